package journal

import (
	"time"

	"github.com/google/uuid"
)

const (
	SessionStateIdle      = "idle"
	SessionStatePlanning  = "planning"
	SessionStateExecuting = "executing"
	SessionStateCompleted = "completed"
	SessionStateErrored   = "errored"

	CommandPhaseQueued    = "queued"
	CommandPhaseExecuting = "executing"
	CommandPhaseComplete  = "complete"
	CommandPhaseFailed    = "failed"
)

// Session is one prompt-to-completion interaction.
type Session struct {
	ID           string    `json:"id"`
	Prompt       string    `json:"prompt"`
	State        string    `json:"state"`
	Provenance   string    `json:"provenance,omitempty"`
	StepCount    int       `json:"step_count"`
	StepsApplied int       `json:"steps_applied"`
	Summary      string    `json:"summary,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Terminal reports whether the session reached Completed or Errored.
func (s *Session) Terminal() bool {
	return s.State == SessionStateCompleted || s.State == SessionStateErrored
}

// Progress is either step-count (Total > 0) or continuous (Fraction in [0,1]).
type Progress struct {
	Done     int     `json:"done"`
	Total    int     `json:"total"`
	Fraction float64 `json:"fraction"`
}

// Ratio returns completion in [0,1] regardless of the progress flavour.
func (p Progress) Ratio() float64 {
	if p.Total > 0 {
		return float64(p.Done) / float64(p.Total)
	}
	return p.Fraction
}

// CommandRecord is the UI-facing record of one dispatched effect. It lives
// until the client acknowledges it.
type CommandRecord struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id,omitempty"`
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	Phase       string    `json:"phase"`
	Progress    Progress  `json:"progress"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Terminal reports whether the command is complete or failed.
func (c *CommandRecord) Terminal() bool {
	return c.Phase == CommandPhaseComplete || c.Phase == CommandPhaseFailed
}

func NewID() string {
	return uuid.NewString()
}
