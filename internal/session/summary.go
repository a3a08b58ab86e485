package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/instructions"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/llm"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/logging"
)

// Summarizer writes the closing message of a session from its actions.
type Summarizer struct {
	gen    llm.Generator
	logger *slog.Logger
}

// NewSummarizer returns a summarizer. With a nil generator every summary is
// the deterministic fallback.
func NewSummarizer(gen llm.Generator, logger *slog.Logger) *Summarizer {
	return &Summarizer{gen: gen, logger: logging.WithComponent(logging.OrDiscard(logger), "summarizer")}
}

const summarySystem = `You summarize what a video editing assistant just did, for the user who asked.
You receive the applied actions as JSON. Write two or three friendly sentences.
Only mention what the actions show; say plainly when something failed or was partial.`

// Summarize never fails: model errors fall back to Fallback.
func (s *Summarizer) Summarize(ctx context.Context, prompt string, actions []Action) string {
	if s.gen == nil || len(actions) == 0 {
		return Fallback(actions)
	}
	payload, _ := json.Marshal(actions)
	text, err := s.gen.Generate(ctx, llm.Request{
		System:      summarySystem,
		Prompt:      fmt.Sprintf("Request: %s\nActions: %s", prompt, payload),
		Temperature: 0.3,
		MaxTokens:   256,
	})
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		s.logger.Warn("summary fell back", "error", err)
		return Fallback(actions)
	}
	return text
}

// Fallback builds a plain sentence per action.
func Fallback(actions []Action) string {
	if len(actions) == 0 {
		return "Nothing was changed."
	}
	lines := make([]string, 0, len(actions))
	for _, a := range actions {
		lines = append(lines, describeAction(a))
	}
	return strings.Join(lines, " ")
}

func describeAction(a Action) string {
	what := verb(a.Kind)
	switch a.Status {
	case StatusFailed:
		return fmt.Sprintf("Could not %s: %s.", what, strings.TrimSuffix(a.Error, "."))
	case StatusBackground:
		return fmt.Sprintf("Started to %s on %d clip(s).", what, a.Elements)
	}

	var b strings.Builder
	if a.DryRun {
		fmt.Fprintf(&b, "Previewed how to %s on %d clip(s)", what, a.Elements)
	} else {
		fmt.Fprintf(&b, pastTense(a.Kind), a.Elements)
	}
	if a.Removed > 0 {
		fmt.Fprintf(&b, ", removing %.2fs", a.Removed)
	}
	if a.Detail != "" {
		fmt.Fprintf(&b, " (%s)", a.Detail)
	}
	if a.Status == StatusPartial {
		fmt.Fprintf(&b, "; %d skipped and %d failed", a.Skipped, a.Failed)
	}
	b.WriteString(".")
	return b.String()
}

func verb(k instructions.Kind) string {
	switch k {
	case instructions.KindTrim:
		return "trim"
	case instructions.KindCutOut:
		return "cut out"
	case instructions.KindCaptions:
		return "add captions"
	case instructions.KindDeadspace:
		return "remove silence"
	case instructions.KindSemanticApplyCut, instructions.KindSemanticSearch:
		return "cut matching moments"
	}
	return string(k)
}

func pastTense(k instructions.Kind) string {
	switch k {
	case instructions.KindTrim:
		return "Trimmed %d clip(s)"
	case instructions.KindCutOut:
		return "Cut a range out of %d clip(s)"
	case instructions.KindCaptions:
		return "Added captions to %d clip(s)"
	case instructions.KindDeadspace:
		return "Removed silence from %d clip(s)"
	}
	return "Cut matching moments from %d clip(s)"
}
