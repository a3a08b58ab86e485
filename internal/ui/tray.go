// Package ui is the optional system tray front end of the agent.
package ui

import (
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/subtasks"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/timeline"
)

//go:embed icon.png
var iconBytes []byte

const defaultRefreshInterval = 2 * time.Second

type Tray struct {
	store    *timeline.Memory
	tracker  *subtasks.Tracker
	logger   *slog.Logger
	interval time.Duration

	statusItem   *systray.MenuItem
	timelineItem *systray.MenuItem
	undoItem     *systray.MenuItem

	mu sync.Mutex

	onQuit func()
	stop   chan struct{}
}

type TrayConfig struct {
	Store           *timeline.Memory
	Tracker         *subtasks.Tracker
	Logger          *slog.Logger
	RefreshInterval time.Duration
	OnQuit          func()
}

func NewTray(cfg TrayConfig) *Tray {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = defaultRefreshInterval
	}
	return &Tray{
		store:    cfg.Store,
		tracker:  cfg.Tracker,
		logger:   cfg.Logger,
		interval: cfg.RefreshInterval,
		onQuit:   cfg.OnQuit,
		stop:     make(chan struct{}),
	}
}

// Run blocks on the tray event loop.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("cre8rflow")
	systray.SetTooltip("cre8rflow editing agent")

	t.statusItem = systray.AddMenuItem(StatusLine(0), "Current agent status")
	t.statusItem.Disable()

	t.timelineItem = systray.AddMenuItem("Timeline: empty", "Loaded timeline")
	t.timelineItem.Disable()

	systray.AddSeparator()

	t.undoItem = systray.AddMenuItem("Undo Last Edit", "Revert the most recent edit batch")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit cre8rflow")

	t.refresh()

	go func() {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.refresh()
			case <-t.undoItem.ClickedCh:
				t.undo()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			case <-t.stop:
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) undo() {
	label, ok := t.store.Undo()
	if !ok {
		t.logger.Info("tray undo: nothing to undo")
		return
	}
	t.logger.Info("tray undo", "label", label)
	t.refresh()
}

func (t *Tray) refresh() {
	t.mu.Lock()
	defer t.mu.Unlock()

	pending := 0
	if t.tracker != nil {
		pending = t.tracker.Pending()
	}
	t.statusItem.SetTitle(StatusLine(pending))

	history := t.store.History()
	t.timelineItem.SetTitle(TimelineLine(t.store.Snapshot(), len(history)))
	if len(history) == 0 {
		t.undoItem.Disable()
		t.undoItem.SetTitle("Undo Last Edit")
	} else {
		t.undoItem.Enable()
		t.undoItem.SetTitle("Undo: " + history[len(history)-1])
	}
}

// StatusLine is the status menu title for the number of running background
// edits.
func StatusLine(pending int) string {
	switch pending {
	case 0:
		return "Status: Idle"
	case 1:
		return "Status: 1 background edit"
	default:
		return fmt.Sprintf("Status: %d background edits", pending)
	}
}

// TimelineLine summarizes the loaded timeline for the tray menu.
func TimelineLine(tl *timeline.Timeline, undoDepth int) string {
	clips := 0
	for _, tr := range tl.Tracks {
		if tr.Kind == timeline.TrackMedia {
			clips += len(tr.Elements)
		}
	}
	if clips == 0 {
		return "Timeline: empty"
	}
	line := fmt.Sprintf("Timeline: %d clip(s), %.1fs", clips, tl.VisibleDuration(timeline.TrackMedia))
	if undoDepth > 0 {
		line += fmt.Sprintf(", %d edit(s)", undoDepth)
	}
	return line
}

func (t *Tray) Quit() {
	close(t.stop)
	systray.Quit()
}
