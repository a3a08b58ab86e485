package api

import (
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/export"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/journal"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/timeline"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State           string                  `json:"state"`
	LastError       string                  `json:"last_error,omitempty"`
	PendingSubtasks int                     `json:"pending_subtasks"`
	TimelineVersion uint64                  `json:"timeline_version"`
	UndoDepth       int                     `json:"undo_depth"`
	LLMEnabled      bool                    `json:"llm_enabled"`
	ServicesEnabled bool                    `json:"services_enabled"`
	Pipelines       *PipelineStatusResponse `json:"pipelines,omitempty"`
}

type PipelineStatusResponse struct {
	HasFFmpeg   bool   `json:"has_ffmpeg"`
	Version     string `json:"version,omitempty"`
	Error       string `json:"error,omitempty"`
	LastCheckAt string `json:"last_check_at,omitempty"`
}

type TimelineResponse struct {
	Version  uint64             `json:"version"`
	History  []string           `json:"history"`
	Timeline *timeline.Timeline `json:"timeline"`
}

type UndoResponse struct {
	Undone  string `json:"undone"`
	Version uint64 `json:"version"`
}

type PromptRequest struct {
	Prompt string `json:"prompt"`
}

type ExportRequest struct {
	Title     string `json:"title"`
	OutputDir string `json:"output_dir"`
}

type ExportResponse struct {
	Status string `json:"status"`
	*export.Result
}

type SessionsResponse struct {
	Sessions []*journal.Session `json:"sessions"`
}

type CommandsResponse struct {
	Commands []*journal.CommandRecord `json:"commands"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
