package session

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/llm"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/planner"
)

// Narrator produces short reasoning lines shown while a plan is built.
// It must return promptly once ctx is cancelled.
type Narrator interface {
	Narrate(ctx context.Context, prompt string, meta planner.Metadata, emit func(string)) error
}

// LLMNarrator asks the language model for a few lines of reasoning.
type LLMNarrator struct {
	gen llm.Generator
}

func NewLLMNarrator(gen llm.Generator) *LLMNarrator {
	return &LLMNarrator{gen: gen}
}

const narratorSystem = `You are a video editor thinking out loud before editing.
In at most four short sentences, describe how you will approach the request given the timeline.
Plain text only. Do not list JSON or instructions.`

func (n *LLMNarrator) Narrate(ctx context.Context, prompt string, meta planner.Metadata, emit func(string)) error {
	metaJSON, _ := json.Marshal(meta)
	text, err := n.gen.Generate(ctx, llm.Request{
		System:      narratorSystem,
		Prompt:      "Timeline: " + string(metaJSON) + "\nRequest: " + prompt,
		Temperature: 0.4,
		MaxTokens:   200,
	})
	if err != nil {
		return err
	}
	for _, line := range sentences(text) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		emit(line)
	}
	return nil
}

// sentences splits text on sentence ends and newlines.
func sentences(text string) []string {
	var out []string
	var b strings.Builder
	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			out = append(out, s)
		}
		b.Reset()
	}
	for _, r := range text {
		if r == '\n' {
			flush()
			continue
		}
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			flush()
		}
	}
	flush()
	return out
}
