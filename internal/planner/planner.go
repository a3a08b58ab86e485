// Package planner turns a natural-language edit request into a validated,
// ordered list of instructions.
//
// Unambiguous single-intent prompts are answered by regex rules without a
// model call. Everything else goes to the language model with the full
// instruction grammar; the reply is validated against that grammar and
// given exactly one retry. Accepted steps are normalized against the prompt
// text before they are returned.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/agenterr"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/instructions"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/llm"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/logging"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/timeline"
)

// Provenance records how a plan was produced.
type Provenance string

const (
	ProvenanceRule  Provenance = "rule"
	ProvenanceLLM   Provenance = "llm"
	ProvenanceRetry Provenance = "retry"
)

type Plan struct {
	Steps      []instructions.Instruction
	Provenance Provenance
	// Attempts is the number of model calls made (0 for rule plans).
	Attempts int
	// Rule names the matching shortcut for rule plans.
	Rule string
}

func (p *Plan) MarshalJSON() ([]byte, error) {
	steps, err := instructions.MarshalList(p.Steps)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Provenance Provenance      `json:"provenance"`
		Attempts   int             `json:"attempts"`
		Rule       string          `json:"rule,omitempty"`
		Steps      json.RawMessage `json:"steps"`
	}{p.Provenance, p.Attempts, p.Rule, steps})
}

// TrackSummary is the per-track part of Metadata.
type TrackSummary struct {
	ID       string             `json:"id"`
	Kind     timeline.TrackKind `json:"kind"`
	Elements int                `json:"elements"`
	Duration float64            `json:"duration"`
}

// Metadata is the lightweight timeline description sent with the prompt.
type Metadata struct {
	Duration float64        `json:"duration"`
	Playhead float64        `json:"playhead"`
	FPS      float64        `json:"fps"`
	Tracks   []TrackSummary `json:"tracks"`
}

func MetadataFrom(tl *timeline.Timeline) Metadata {
	meta := Metadata{
		Duration: timeline.Round(tl.Duration(), 3),
		Playhead: timeline.Round(tl.Playhead, 3),
		FPS:      tl.FrameRate(),
	}
	for _, tr := range tl.Tracks {
		var end float64
		for _, el := range tr.Elements {
			end = math.Max(end, el.End())
		}
		meta.Tracks = append(meta.Tracks, TrackSummary{
			ID:       tr.ID,
			Kind:     tr.Kind,
			Elements: len(tr.Elements),
			Duration: timeline.Round(end, 3),
		})
	}
	return meta
}

const temperature = 0.1

type Planner struct {
	gen       llm.Generator
	validator *Validator
	logger    *slog.Logger
}

// New builds a planner. gen may be nil, in which case only rule prompts can
// be planned and everything else fails with a ConfigurationError.
func New(gen llm.Generator, logger *slog.Logger) (*Planner, error) {
	v, err := NewValidator()
	if err != nil {
		return nil, err
	}
	return &Planner{
		gen:       gen,
		validator: v,
		logger:    logging.WithComponent(logging.OrDiscard(logger), "planner"),
	}, nil
}

// Plan produces the instruction list for prompt.
func (p *Planner) Plan(ctx context.Context, prompt string, meta Metadata) (*Plan, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, &agenterr.ValidationError{Diagnostic: "prompt is empty"}
	}

	if name, steps := matchRule(prompt); steps != nil {
		p.logger.Info("plan from rule", "rule", name)
		return &Plan{Steps: steps, Provenance: ProvenanceRule, Rule: name}, nil
	}

	if p.gen == nil {
		return nil, &agenterr.ConfigurationError{Setting: "CRE8R_LLM_API_KEY", Message: "no language model configured"}
	}

	steps, err := p.attempt(ctx, p.fullRequest(prompt, meta))
	if err == nil {
		return p.accept(prompt, steps, ProvenanceLLM, 1), nil
	}
	if agenterr.Classify(err) == agenterr.KindConfiguration {
		return nil, err
	}

	var retry llm.Request
	var invalid *agenterr.ValidationError
	if errors.As(err, &invalid) {
		p.logger.Warn("plan rejected, retrying with diagnostic", "diagnostic", invalid.Diagnostic)
		retry = p.correctiveRequest(prompt, meta, invalid.Diagnostic)
	} else {
		p.logger.Warn("plan call failed, retrying with minimal prompt", "error", err)
		retry = p.minimalRequest(prompt)
	}

	steps, err = p.attempt(ctx, retry)
	if err != nil {
		p.logger.Error("planning failed", "error", err)
		return nil, fmt.Errorf("planning failed after retry: %w", err)
	}
	return p.accept(prompt, steps, ProvenanceRetry, 2), nil
}

func (p *Planner) attempt(ctx context.Context, req llm.Request) ([]instructions.Instruction, error) {
	raw, err := p.gen.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	return p.validator.Parse(raw)
}

func (p *Planner) accept(prompt string, steps []instructions.Instruction, prov Provenance, attempts int) *Plan {
	normalized := Normalize(prompt, steps)
	p.logger.Info("plan accepted",
		"provenance", prov,
		"attempts", attempts,
		"steps", len(normalized),
		"normalized_from", len(steps),
	)
	return &Plan{Steps: normalized, Provenance: prov, Attempts: attempts}
}

const systemPrompt = `You convert video editing requests into a JSON array of edit steps.
Reply with JSON only: an array of 1 to 20 steps, each matching #Step in this CUE grammar.

%s

Guidance:
- Times are seconds. "elementSeconds" ranges are relative to the clip's visible start, "globalSeconds" to the timeline.
- "trim the last N seconds" or "shorten by N seconds" is a trim with right {"mode":"delta","seconds":N}.
- "cut out A-B seconds" is one cut-out with target clipsOverlappingRange(A,B) and range globalSeconds A-B.
- Removing silence or dead space at clip edges is deadspace.trim; captions or subtitles is captions.generate.
- Omit a target on deadspace.trim and captions.generate to cover every media clip.
- nthClip is 1-based in timeline order.

Timeline:
%s`

func (p *Planner) fullRequest(prompt string, meta Metadata) llm.Request {
	metaJSON, _ := json.Marshal(meta)
	return llm.Request{
		System:      fmt.Sprintf(systemPrompt, strings.TrimSpace(Grammar), metaJSON),
		Prompt:      prompt,
		JSON:        true,
		Temperature: temperature,
	}
}

func (p *Planner) correctiveRequest(prompt string, meta Metadata, diagnostic string) llm.Request {
	req := p.fullRequest(prompt, meta)
	req.Prompt = fmt.Sprintf("%s\n\nYour previous reply was rejected: %s\nReply again with only a JSON array of steps matching #Plan.",
		prompt, agenterr.Short(errors.New(diagnostic)))
	return req
}

func (p *Planner) minimalRequest(prompt string) llm.Request {
	return llm.Request{
		System:      "Reply with only a JSON array of video edit steps matching this CUE grammar:\n" + strings.TrimSpace(Grammar),
		Prompt:      prompt,
		JSON:        true,
		Temperature: 0,
	}
}
