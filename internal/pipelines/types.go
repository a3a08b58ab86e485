// Package pipelines runs ffmpeg as a subprocess to pull audio windows out of
// source media for the caption and deadspace subtasks.
package pipelines

import "time"

// Standard extraction format: what the speech service and the local voice
// activity detector both expect.
const (
	SampleRate = 16000
	Channels   = 1
)

// Capabilities describes the ffmpeg install found by the doctor check.
type Capabilities struct {
	FFmpegPath string    `json:"ffmpeg_path"`
	Version    string    `json:"version"`
	HasFFmpeg  bool      `json:"has_ffmpeg"`
	Error      string    `json:"error,omitempty"`
	CheckedAt   time.Time `json:"checked_at"`
}

// ExtractRequest selects a window of a media file's audio. To <= From means
// "until the end of the file".
type ExtractRequest struct {
	MediaPath string
	From      float64
	To        float64
	OutPath   string
}

// Window returns the requested length in seconds, or 0 for open-ended.
func (r ExtractRequest) Window() float64 {
	if r.To <= r.From {
		return 0
	}
	return r.To - r.From
}

// RunResult holds the outcome of one ffmpeg invocation.
type RunResult struct {
	ExitCode   int           `json:"exit_code"`
	OutputPath string        `json:"output_path"`
	StderrTail string        `json:"stderr_tail,omitempty"` // last 8KB of stderr
	Duration   time.Duration `json:"duration_ms"`
}

// IsSuccess returns true if the process exited cleanly.
func (r RunResult) IsSuccess() bool {
	return r.ExitCode == 0
}
