package timeline

import (
	"fmt"
	"log/slog"
	"sync"
)

// DefaultHistoryLimit bounds the undo history.
const DefaultHistoryLimit = 50

// Store is the single mutation path for a timeline. Every Apply call is at
// most one undo entry; concurrent callers are serialized.
type Store interface {
	Snapshot() *Timeline
	Apply(label string, fn func(tx *Tx) error, opts ...ApplyOption) (changed bool, err error)
	Undo() (label string, ok bool)
}

type applyOptions struct {
	noHistory bool
}

type ApplyOption func(*applyOptions)

// WithoutHistory commits the batch without an undo checkpoint.
func WithoutHistory() ApplyOption {
	return func(o *applyOptions) { o.noHistory = true }
}

type checkpoint struct {
	label string
	tl    *Timeline
}

// Memory is an in-memory Store.
type Memory struct {
	mu      sync.Mutex
	current *Timeline
	history []checkpoint
	limit   int
	version uint64
	logger  *slog.Logger
}

var _ Store = (*Memory)(nil)

// NewMemory creates a store seeded with tl (an empty timeline when nil).
func NewMemory(tl *Timeline, logger *slog.Logger) *Memory {
	if tl == nil {
		tl = &Timeline{FPS: DefaultFPS}
	}
	return &Memory{current: tl.Clone(), limit: DefaultHistoryLimit, logger: logger}
}

// Snapshot returns a deep copy of the current timeline.
func (m *Memory) Snapshot() *Timeline {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Clone()
}

// Apply runs fn against a working copy and commits it when fn succeeds and
// changed something. fn must not call back into the store.
func (m *Memory) Apply(label string, fn func(tx *Tx) error, opts ...ApplyOption) (bool, error) {
	var o applyOptions
	for _, opt := range opts {
		opt(&o)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &Tx{tl: m.current.Clone()}
	if err := fn(tx); err != nil {
		return false, err
	}
	if !tx.changed {
		return false, nil
	}

	if !o.noHistory {
		m.history = append(m.history, checkpoint{label: label, tl: m.current})
		if len(m.history) > m.limit {
			m.history = m.history[len(m.history)-m.limit:]
		}
	}
	m.current = tx.tl
	m.version++

	if m.logger != nil {
		m.logger.Debug("timeline batch applied", "label", label, "version", m.version)
	}
	return true, nil
}

// Undo restores the state before the last committed batch.
func (m *Memory) Undo() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.history)
	if n == 0 {
		return "", false
	}
	cp := m.history[n-1]
	m.history = m.history[:n-1]
	m.current = cp.tl
	m.version++
	return cp.label, true
}

// Load replaces the timeline and clears the undo history.
func (m *Memory) Load(tl *Timeline) error {
	if err := tl.Validate(); err != nil {
		return fmt.Errorf("invalid timeline: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = tl.Clone()
	m.history = nil
	m.version++
	return nil
}

// SetPlayhead moves the playhead without creating an undo entry.
func (m *Memory) SetPlayhead(t float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t < 0 {
		t = 0
	}
	m.current.Playhead = t
}

// Version increases on every commit, undo and load.
func (m *Memory) Version() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

// History returns the undo labels, oldest first.
func (m *Memory) History() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	labels := make([]string, len(m.history))
	for i, cp := range m.history {
		labels[i] = cp.label
	}
	return labels
}
