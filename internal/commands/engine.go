// Package commands implements the timeline edit primitives: bounded trim,
// ripple-consistent cut-out and the ripple adjuster they share. Every public
// operation is a single Store.Apply batch and therefore one undo entry.
package commands

import (
	"fmt"
	"log/slog"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/agenterr"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/resolver"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/timeline"
)

type Engine struct {
	store  timeline.Store
	logger *slog.Logger
}

func NewEngine(store timeline.Store, logger *slog.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// Store exposes the underlying timeline store.
func (e *Engine) Store() timeline.Store {
	return e.store
}

// ElementUpdate describes the effect of a trim on one element.
type ElementUpdate struct {
	TrackID   string  `json:"trackId"`
	ElementID string  `json:"elementId"`
	TrimStart float64 `json:"trimStart"`
	TrimEnd   float64 `json:"trimEnd"`
	StartTime float64 `json:"startTime"`
	// Removed is the visible duration taken away (negative when extended).
	Removed float64 `json:"removed"`
	NoOp    bool    `json:"noOp,omitempty"`
}

type TrimResult struct {
	Updates  []ElementUpdate `json:"updates"`
	Skipped  int             `json:"skipped"`
	Failures []error         `json:"-"`
	DryRun   bool            `json:"dryRun,omitempty"`
}

// Success reports whether at least one element was updated.
func (r *TrimResult) Success() bool {
	return len(r.Updates) > 0
}

// CutOutcome describes one removed span in global coordinates.
type CutOutcome struct {
	TrackID   string  `json:"trackId"`
	ElementID string  `json:"elementId"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Removed   float64 `json:"removed"`
}

type CutResult struct {
	Cuts     []CutOutcome `json:"cuts"`
	Skipped  int          `json:"skipped"`
	Failures []error      `json:"-"`
	DryRun   bool         `json:"dryRun,omitempty"`
}

func (r *CutResult) Success() bool {
	return len(r.Cuts) > 0
}

// Removed is the total visible duration cut.
func (r *CutResult) Removed() float64 {
	var total float64
	for _, c := range r.Cuts {
		total += c.Removed
	}
	return total
}

// batchError builds the error returned when a batch had zero successes.
func batchError(op string, targets []resolver.ElementTarget, skipped int, failures []error) error {
	if len(targets) == 0 {
		return &agenterr.TargetResolutionError{Target: op}
	}
	if len(failures) > 0 {
		if len(failures) == 1 {
			return failures[0]
		}
		return fmt.Errorf("%w (and %d more)", failures[0], len(failures)-1)
	}
	return &agenterr.CommandError{Reason: fmt.Sprintf("%s skipped all %d element(s)", op, skipped)}
}

func (e *Engine) warn(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}
