package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/agenterr"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/cloud"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/instructions"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/logging"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/planner"
)

// Thought narration modes.
const (
	ThoughtOff    = "off"
	ThoughtSoft   = "soft"
	ThoughtStrict = "strict"
)

// Streamer is the producing side of a session: it plans the prompt and
// emits log, thought, step and terminal frames.
type Streamer struct {
	planner        *planner.Planner
	narrator       Narrator
	search         cloud.Searcher
	thoughtMode    string
	thoughtTimeout time.Duration
	logger         *slog.Logger
}

func NewStreamer(p *planner.Planner, narrator Narrator, search cloud.Searcher, mode string, timeout time.Duration, logger *slog.Logger) *Streamer {
	if narrator == nil {
		mode = ThoughtOff
	}
	return &Streamer{
		planner:        p,
		narrator:       narrator,
		search:         search,
		thoughtMode:    mode,
		thoughtTimeout: timeout,
		logger:         logging.WithComponent(logging.OrDiscard(logger), "streamer"),
	}
}

// Stream plans prompt and emits the frame sequence. It returns the plan as
// streamed (searches already resolved). Planning failures are emitted as an
// error frame and returned.
func (s *Streamer) Stream(ctx context.Context, prompt string, meta planner.Metadata, emit Emitter) (*planner.Plan, error) {
	if err := emit.Emit(Frame{Event: EventLog, Message: "Planning your edit"}); err != nil {
		return nil, err
	}

	th := s.startThought(ctx, prompt, meta, emit)

	plan, err := s.planner.Plan(ctx, prompt, meta)
	if err == nil {
		plan.Steps, err = s.resolveSearches(ctx, plan.Steps, emit)
	}
	if err != nil {
		th.stop()
		_ = emit.Emit(errorFrame(err))
		return nil, err
	}

	switch s.thoughtMode {
	case ThoughtStrict:
		th.waitFor(s.thoughtTimeout)
	default:
		th.stop()
	}

	total := len(plan.Steps)
	msg := fmt.Sprintf("Plan ready: %d step(s) from %s", total, plan.Provenance)
	if err := emit.Emit(Frame{Event: EventLog, Message: msg, Provenance: string(plan.Provenance)}); err != nil {
		return nil, err
	}
	for i, step := range plan.Steps {
		raw, err := instructions.Marshal(step)
		if err != nil {
			return nil, fmt.Errorf("encode step %d: %w", i+1, err)
		}
		f := Frame{Event: EventStep, StepIndex: i + 1, TotalSteps: total, Step: raw, Message: step.Description()}
		if err := emit.Emit(f); err != nil {
			return nil, err
		}
	}
	if err := emit.Emit(Frame{Event: EventDone, TotalSteps: total, Provenance: string(plan.Provenance)}); err != nil {
		return nil, err
	}
	return plan, nil
}

// resolveSearches replaces every semantic search with a concrete cut over its
// matches. A search with no matches is dropped with a log frame; a missing
// search service fails the session.
func (s *Streamer) resolveSearches(ctx context.Context, steps []instructions.Instruction, emit Emitter) ([]instructions.Instruction, error) {
	out := make([]instructions.Instruction, 0, len(steps))
	for _, step := range steps {
		search, ok := step.(*instructions.SemanticSearch)
		if !ok {
			out = append(out, step)
			continue
		}
		if s.search == nil {
			return nil, &agenterr.ConfigurationError{Setting: "CRE8R_SERVICES_URL", Message: "search service is not configured"}
		}
		if err := emit.Emit(Frame{Event: EventLog, Message: fmt.Sprintf("Searching for %q", search.Query)}); err != nil {
			return nil, err
		}
		matches, err := s.search.Search(ctx, cloud.SearchRequest{Query: search.Query, Limit: search.Limit})
		if err != nil {
			if agenterr.Classify(err) == agenterr.KindConfiguration {
				return nil, err
			}
			s.logger.Warn("search failed", "query", search.Query, "error", err)
			if err := emit.Emit(Frame{Event: EventLog, Message: "Search failed: " + agenterr.Short(err)}); err != nil {
				return nil, err
			}
			continue
		}
		if len(matches) == 0 {
			if err := emit.Emit(Frame{Event: EventLog, Message: fmt.Sprintf("No moments match %q", search.Query)}); err != nil {
				return nil, err
			}
			continue
		}
		cut := &instructions.SemanticApplyCut{Query: search.Query, Desc: search.Desc}
		for _, m := range matches {
			cut.Matches = append(cut.Matches, instructions.Match{MediaID: m.MediaID, Start: m.Start, End: m.End})
		}
		out = append(out, cut)
	}
	return out, nil
}

// thought is one running narration.
type thought struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *Streamer) startThought(ctx context.Context, prompt string, meta planner.Metadata, emit Emitter) *thought {
	th := &thought{cancel: func() {}, done: make(chan struct{})}
	if s.thoughtMode == ThoughtOff {
		close(th.done)
		return th
	}

	tctx, cancel := context.WithCancel(ctx)
	th.cancel = cancel
	go func() {
		defer close(th.done)
		err := s.narrator.Narrate(tctx, prompt, meta, func(text string) {
			if tctx.Err() != nil {
				return
			}
			if err := emit.Emit(Frame{Event: EventThought, Text: text}); err != nil {
				cancel()
			}
		})
		if err != nil && tctx.Err() == nil {
			s.logger.Debug("narration failed", "error", err)
		}
		_ = emit.Emit(Frame{Event: EventThoughtDone})
	}()
	return th
}

// stop cancels the narration and waits for its thought_done frame.
func (t *thought) stop() {
	t.cancel()
	<-t.done
}

// waitFor lets the narration finish within timeout, then stops it.
func (t *thought) waitFor(timeout time.Duration) {
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-t.done:
		case <-timer.C:
		}
	} else {
		<-t.done
	}
	t.stop()
}
