package pipelines

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/logging"
)

const checkTTL = 5 * time.Minute

// CachedDoctor remembers the last ffmpeg check. Readers never block on a
// running check; concurrent refreshes collapse into one subprocess.
type CachedDoctor struct {
	runner Runner
	ttl    time.Duration
	logger *slog.Logger

	checkMu sync.Mutex
	last    atomic.Pointer[Capabilities]
}

func NewCachedDoctor(runner Runner, logger *slog.Logger) *CachedDoctor {
	return &CachedDoctor{runner: runner, ttl: checkTTL, logger: logging.WithComponent(logging.OrDiscard(logger), "doctor")}
}

func (d *CachedDoctor) fresh(c *Capabilities) bool {
	return c != nil && time.Since(c.CheckedAt) < d.ttl
}

// Get returns the last check while it is younger than the TTL and checks
// again otherwise.
func (d *CachedDoctor) Get(ctx context.Context) (*Capabilities, error) {
	if c := d.last.Load(); d.fresh(c) {
		return c, nil
	}
	d.checkMu.Lock()
	defer d.checkMu.Unlock()
	if c := d.last.Load(); d.fresh(c) {
		return c, nil
	}
	return d.checkLocked(ctx)
}

// Peek returns the last check without running one. Nil before the first check.
func (d *CachedDoctor) Peek() *Capabilities {
	return d.last.Load()
}

// Refresh checks unconditionally.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	d.checkMu.Lock()
	defer d.checkMu.Unlock()
	return d.checkLocked(ctx)
}

// checkLocked runs the subprocess. A check that fails but still describes
// the failure (ffmpeg missing) is stored like a success so /status can show
// it. Without a report the previous check, if any, is kept.
func (d *CachedDoctor) checkLocked(ctx context.Context) (*Capabilities, error) {
	caps, err := d.runner.RunDoctor(ctx)
	if err == nil || caps != nil {
		if err != nil {
			d.logger.Warn("ffmpeg unavailable", "error", err)
		}
		d.last.Store(caps)
		return caps, nil
	}
	d.logger.Warn("ffmpeg check failed", "error", err)
	if prev := d.last.Load(); prev != nil {
		return prev, nil
	}
	return nil, err
}
