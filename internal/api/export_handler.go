package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/export"
)

const defaultExportTitle = "cre8rflow_edit"

// edlHandler returns the current timeline as an EDL download.
func edlHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		title := export.SanitizeName(r.URL.Query().Get("title"), 120)
		if title == "" {
			title = defaultExportTitle
		}

		tl := cfg.Store.Snapshot()
		events, unresolved := export.Events(tl)
		if len(events) == 0 {
			WriteError(w, http.StatusUnprocessableEntity, "timeline has no exportable media clips", "NOTHING_TO_EXPORT")
			return
		}
		if len(unresolved) > 0 {
			cfg.Logger.Warn("edl export skipped clips without media", "elements", unresolved)
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+title+`.edl"`)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(export.GenerateEDL(events, title, tl.FrameRate())))
	}
}

// exportHandler writes the EDL into a local directory.
func exportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ExportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if err := export.ValidateOutputDir(req.OutputDir); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		title := export.SanitizeName(req.Title, 120)
		if title == "" {
			title = defaultExportTitle
		}

		tl := cfg.Store.Snapshot()
		if events, _ := export.Events(tl); len(events) == 0 {
			WriteError(w, http.StatusUnprocessableEntity, "timeline has no exportable media clips", "NOTHING_TO_EXPORT")
			return
		}

		res, err := export.Write(req.OutputDir, title, tl)
		if errors.Is(err, export.ErrExportDir) {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to write export file", "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusOK, ExportResponse{Status: "ok", Result: res})
	}
}
