package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/agenterr"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/instructions"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/llm"
)

const (
	MinSteps = 1
	MaxSteps = 20
)

// Grammar is the closed instruction vocabulary the model may emit. It is
// sent verbatim in the system prompt and used to validate the reply.
const Grammar = `
#Filter: {
	trackKind?: "media" | "audio" | "text"
	trackId?:   string & !=""
}

#Target: {#Filter, type: "clipAtPlayhead" | "lastClip"} |
	{#Filter, type: "clipAtTime", time: number & >=0} |
	{#Filter, type: "nthClip", n: int & >=1} |
	{#Filter, type: "clipsOverlappingRange", start: number & >=0, end: number & >=0}

#Side: {mode: "absolute", seconds: number & >=0} |
	{mode: "delta", seconds: number} |
	{mode: "playhead", seconds?: number}

#TrimOptions: {
	clamp?:       bool
	precision?:   int & >=0 & <=6
	ripple?:      bool
	dryRun?:      bool
	pushHistory?: bool
}

#Range: {mode: "elementSeconds" | "globalSeconds", start: number & >=0, end: number & >=0} |
	{mode: "aroundPlayhead", before: number & >=0, after: number & >=0}

#Step: {
	type:         "trim"
	target:       #Target
	left?:        #Side
	right?:       #Side
	options?:     #TrimOptions
	description?: string
} | {
	type:   "cut-out"
	target: #Target
	range:  #Range
	options?: {dryRun?: bool}
	description?: string
} | {
	type:         "captions.generate"
	target?:      #Target
	language?:    string
	description?: string
} | {
	type:         "deadspace.trim"
	target?:      #Target
	language?:    string
	prePadding?:  number & >=0
	postPadding?: number & >=0
	description?: string
}

#Plan: [...#Step]
`

// Validator checks model output against Grammar.
type Validator struct {
	plan cue.Value
}

func NewValidator() (*Validator, error) {
	ctx := cuecontext.New()
	plan := ctx.CompileString(Grammar).LookupPath(cue.ParsePath("#Plan"))
	if err := plan.Err(); err != nil {
		return nil, fmt.Errorf("plan grammar: %w", err)
	}
	return &Validator{plan: plan}, nil
}

// Parse decodes a model reply into instructions. The reply may be a bare
// array or an object with a "steps" array, optionally inside a code fence.
// A reply that is not JSON at all is a plain error; one that is JSON but
// breaks the grammar is a *agenterr.ValidationError.
func (v *Validator) Parse(raw string) ([]instructions.Instruction, error) {
	text := llm.StripFences(raw)
	steps, err := stepsJSON(text)
	if err != nil {
		return nil, err
	}

	invalid := func(diag string) error {
		return &agenterr.ValidationError{Diagnostic: diag, Raw: raw}
	}

	var count []json.RawMessage
	if err := json.Unmarshal(steps, &count); err != nil {
		return nil, invalid("steps must be an array")
	}
	if n := len(count); n < MinSteps || n > MaxSteps {
		return nil, invalid(fmt.Sprintf("plan must have %d to %d steps, got %d", MinSteps, MaxSteps, n))
	}

	value := v.plan.Context().CompileBytes(steps)
	if err := value.Err(); err != nil {
		return nil, invalid(summarize(err))
	}
	if err := v.plan.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return nil, invalid(summarize(err))
	}

	list, err := instructions.UnmarshalList(steps)
	if err != nil {
		return nil, invalid(err.Error())
	}
	return list, nil
}

func stepsJSON(text string) (json.RawMessage, error) {
	if !json.Valid([]byte(text)) {
		return nil, fmt.Errorf("model reply is not JSON: %s", agenterr.Short(errorPreview(text)))
	}
	if strings.HasPrefix(text, "{") {
		var wrapped struct {
			Steps json.RawMessage `json:"steps"`
		}
		if err := json.Unmarshal([]byte(text), &wrapped); err != nil || wrapped.Steps == nil {
			return json.RawMessage("null"), nil
		}
		return wrapped.Steps, nil
	}
	return json.RawMessage(text), nil
}

func errorPreview(text string) error {
	if len(text) > 80 {
		text = text[:80] + "..."
	}
	return fmt.Errorf("%q", text)
}

// summarize keeps the first few CUE errors on one line.
func summarize(err error) string {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err.Error()
	}
	var msgs []string
	for i, e := range errs {
		if i == 3 {
			msgs = append(msgs, fmt.Sprintf("and %d more", len(errs)-3))
			break
		}
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}
