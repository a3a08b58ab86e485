package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/agenterr"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/journal"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/planner"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/session"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/timeline"
)

const maxTimelineBytes = 8 << 20

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(LoopbackGuard())
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Journal, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Get("/timeline", getTimelineHandler(cfg))
		r.Put("/timeline", putTimelineHandler(cfg))
		r.Post("/timeline/undo", undoHandler(cfg))
		r.Get("/timeline/export.edl", edlHandler(cfg))
		r.Post("/timeline/export", exportHandler(cfg))
		r.Get("/media/{id}", mediaHandler(cfg))
		r.Head("/media/{id}", mediaHandler(cfg))
		r.Post("/plan", planHandler(cfg))
		r.Post("/sessions", runSessionHandler(cfg))
		r.Get("/sessions", listSessionsHandler(cfg))
		r.Get("/sessions/{id}", getSessionHandler(cfg))
		r.Get("/commands", listCommandsHandler(cfg))
		r.Post("/commands/{id}/ack", ackCommandHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: Version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		resp := StatusResponse{
			State:           "idle",
			LLMEnabled:      cfg.LLMEnabled,
			ServicesEnabled: cfg.ServicesEnabled,
		}
		if cfg.Store != nil {
			resp.TimelineVersion = cfg.Store.Version()
			resp.UndoDepth = len(cfg.Store.History())
		}
		if cfg.Tracker != nil {
			resp.PendingSubtasks = cfg.Tracker.Pending()
			if resp.PendingSubtasks > 0 {
				resp.State = "editing"
			}
		}

		if sessions, err := cfg.Journal.Sessions(ctx, 1); err == nil && len(sessions) > 0 {
			last := sessions[0]
			if !last.Terminal() && last.State != journal.SessionStateIdle {
				resp.State = last.State
			}
			if last.State == journal.SessionStateErrored {
				resp.LastError = last.Error
				if resp.State == "idle" {
					resp.State = "error"
				}
			}
		}

		if cfg.Doctor != nil {
			if caps := cfg.Doctor.Peek(); caps != nil {
				resp.Pipelines = &PipelineStatusResponse{
					HasFFmpeg: caps.HasFFmpeg,
					Version:   caps.Version,
					Error:     caps.Error,
				}
				if !caps.CheckedAt.IsZero() {
					resp.Pipelines.LastCheckAt = caps.CheckedAt.Format(time.RFC3339)
				}
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func getTimelineHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Timeline-Version", strconv.FormatUint(cfg.Store.Version(), 10))
		WriteJSON(w, http.StatusOK, TimelineResponse{
			Version:  cfg.Store.Version(),
			History:  cfg.Store.History(),
			Timeline: cfg.Store.Snapshot(),
		})
	}
}

func putTimelineHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tl, err := timeline.Decode(http.MaxBytesReader(w, r.Body, maxTimelineBytes))
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		if err := cfg.Store.Load(tl); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		cfg.Logger.Info("timeline loaded", "tracks", len(tl.Tracks), "version", cfg.Store.Version())
		getTimelineHandler(cfg).ServeHTTP(w, r)
	}
}

func undoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		label, ok := cfg.Store.Undo()
		if !ok {
			WriteError(w, http.StatusConflict, "nothing to undo", "NOTHING_TO_UNDO")
			return
		}
		WriteJSON(w, http.StatusOK, UndoResponse{Undone: label, Version: cfg.Store.Version()})
	}
}

func planHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prompt, ok := decodePrompt(w, r)
		if !ok {
			return
		}

		plan, err := cfg.Planner.Plan(r.Context(), prompt, planner.MetadataFrom(cfg.Store.Snapshot()))
		if err != nil {
			writeAgentError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, plan)
	}
}

// runSessionHandler streams the session as NDJSON. Once the first frame is
// written every failure is reported in-band as an error frame.
func runSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prompt, ok := decodePrompt(w, r)
		if !ok {
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusOK)

		res, err := cfg.Sessions.Run(r.Context(), prompt, session.NewNDJSONWriter(w))
		if err != nil {
			cfg.Logger.Warn("session ended with error", "session_id", res.SessionID,
				"code", agenterr.Classify(err), "error", err)
		}
	}
}

func listSessionsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = n
		}

		sessions, err := cfg.Journal.Sessions(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list sessions", "INTERNAL_ERROR")
			return
		}
		if sessions == nil {
			sessions = []*journal.Session{}
		}
		WriteJSON(w, http.StatusOK, SessionsResponse{Sessions: sessions})
	}
}

func getSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "session id required", "BAD_REQUEST")
			return
		}

		sess, err := cfg.Journal.Session(r.Context(), id)
		if errors.Is(err, journal.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "session not found", "NOT_FOUND")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, sess)
	}
}

func listCommandsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cmds, err := cfg.Journal.Commands(r.Context(), r.URL.Query().Get("session_id"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list commands", "INTERNAL_ERROR")
			return
		}
		if cmds == nil {
			cmds = []*journal.CommandRecord{}
		}
		WriteJSON(w, http.StatusOK, CommandsResponse{Commands: cmds})
	}
}

func ackCommandHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := cfg.Journal.Ack(r.Context(), chi.URLParam(r, "id"))
		switch {
		case errors.Is(err, journal.ErrNotFound):
			WriteError(w, http.StatusNotFound, "command not found", "NOT_FOUND")
		case errors.Is(err, journal.ErrCommandActive):
			WriteError(w, http.StatusConflict, err.Error(), "COMMAND_ACTIVE")
		case err != nil:
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}
}

func decodePrompt(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req PromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return "", false
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		WriteError(w, http.StatusBadRequest, "prompt is required", "BAD_REQUEST")
		return "", false
	}
	return prompt, true
}

// writeAgentError maps the error taxonomy onto HTTP statuses.
func writeAgentError(w http.ResponseWriter, err error) {
	kind := agenterr.Classify(err)
	status := http.StatusInternalServerError
	switch kind {
	case agenterr.KindConfiguration:
		status = http.StatusServiceUnavailable
	case agenterr.KindValidation, agenterr.KindTargetResolution:
		status = http.StatusUnprocessableEntity
	case agenterr.KindTransport:
		status = http.StatusBadGateway
	}
	WriteError(w, status, agenterr.Short(err), strings.ToUpper(string(kind)))
}
