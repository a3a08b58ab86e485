// Package journal records sessions and UI-facing command records in SQLite.
package journal

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrCommandActive = errors.New("command is still running")
)

const configKeyAuthToken = "auth_token"

// Recorder is the write side used by the session executor and background
// subtasks.
type Recorder interface {
	BeginSession(ctx context.Context, prompt string) (*Session, error)
	SaveSession(ctx context.Context, s *Session) error
	OpenCommand(ctx context.Context, sessionID, kind, description string, total int) (*CommandRecord, error)
	UpdateCommand(ctx context.Context, c *CommandRecord) error
}

type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

var _ Recorder = (*Service)(nil)

func (s *Service) BeginSession(ctx context.Context, prompt string) (*Session, error) {
	now := s.now()
	sess := &Session{
		ID:        NewID(),
		Prompt:    prompt,
		State:     SessionStateIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

func (s *Service) SaveSession(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = s.now()
	if err := s.repo.UpdateSession(ctx, sess); err != nil {
		return fmt.Errorf("update session %s: %w", sess.ID, err)
	}
	if s.logger != nil && sess.Terminal() {
		s.logger.Info("session finished", "session_id", sess.ID, "state", sess.State,
			"steps", sess.StepCount, "applied", sess.StepsApplied)
	}
	return nil
}

func (s *Service) Session(ctx context.Context, id string) (*Session, error) {
	sess, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNotFound
	}
	return sess, nil
}

func (s *Service) Sessions(ctx context.Context, limit int) ([]*Session, error) {
	return s.repo.ListSessions(ctx, limit)
}

// OpenCommand creates a queued command record. total > 0 selects step-count
// progress; otherwise progress is continuous.
func (s *Service) OpenCommand(ctx context.Context, sessionID, kind, description string, total int) (*CommandRecord, error) {
	now := s.now()
	c := &CommandRecord{
		ID:          NewID(),
		SessionID:   sessionID,
		Kind:        kind,
		Description: description,
		Phase:       CommandPhaseQueued,
		Progress:    Progress{Total: total},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateCommand(ctx, c); err != nil {
		return nil, fmt.Errorf("create command: %w", err)
	}
	return c, nil
}

func (s *Service) UpdateCommand(ctx context.Context, c *CommandRecord) error {
	c.UpdatedAt = s.now()
	if err := s.repo.UpdateCommand(ctx, c); err != nil {
		return fmt.Errorf("update command %s: %w", c.ID, err)
	}
	if s.logger != nil && c.Terminal() {
		s.logger.Info("command finished", "command_id", c.ID, "kind", c.Kind, "phase", c.Phase,
			"succeeded", c.Succeeded, "failed", c.Failed)
	}
	return nil
}

func (s *Service) Commands(ctx context.Context, sessionID string) ([]*CommandRecord, error) {
	return s.repo.ListCommands(ctx, sessionID)
}

// Ack destroys a finished command record.
func (s *Service) Ack(ctx context.Context, id string) error {
	c, err := s.repo.GetCommand(ctx, id)
	if err != nil {
		return err
	}
	if c == nil {
		return ErrNotFound
	}
	if !c.Terminal() {
		return ErrCommandActive
	}
	return s.repo.DeleteCommand(ctx, id)
}

// EnsureAuthToken returns the stored API token, generating one on first use.
func (s *Service) EnsureAuthToken(ctx context.Context) (string, error) {
	existing, err := s.repo.GetConfig(ctx, configKeyAuthToken)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := s.repo.SetConfig(ctx, configKeyAuthToken, token); err != nil {
		return "", err
	}
	return token, nil
}

// AuthToken returns the stored API token or "" when none was generated yet.
func (s *Service) AuthToken(ctx context.Context) (string, error) {
	return s.repo.GetConfig(ctx, configKeyAuthToken)
}
