package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/playback"
)

func mediaHandler(cfg ServerConfig) http.HandlerFunc {
	media := playback.NewServer(cfg.Store, cfg.Logger)
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := media.ServeMedia(w, r, id)
		if errors.Is(err, playback.ErrUnknownMedia) {
			WriteError(w, http.StatusNotFound, "media not found", "MEDIA_NOT_FOUND")
			return
		}
		if err != nil {
			cfg.Logger.Error("failed to serve media", "media_id", id, "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to serve media", "INTERNAL_ERROR")
		}
	}
}
