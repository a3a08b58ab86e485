package cloud

import (
	"context"
	"errors"
	"strconv"
)

// Default padding around detected speech, in seconds.
const (
	DefaultPrePadding  = 0.08
	DefaultPostPadding = 0.6
)

type DeadspaceRequest struct {
	AudioPath   string
	Language    string
	PrePadding  float64
	PostPadding float64
}

// DeadspaceResult is the detected speech window. TrimStart/TrimEnd already
// include padding and are relative to the uploaded audio.
type DeadspaceResult struct {
	SpeechDetected bool    `json:"speechDetected"`
	SpeechStart    float64 `json:"speechStart"`
	SpeechEnd      float64 `json:"speechEnd"`
	TrimStart      float64 `json:"trimStart"`
	TrimEnd        float64 `json:"trimEnd"`
	Duration       float64 `json:"duration"`
	Confidence     float64 `json:"confidence"`
	AnalysisSource string  `json:"analysisSource"`
	Error          string  `json:"error,omitempty"`
}

// Usable reports whether the result describes a non-empty speech window.
func (r *DeadspaceResult) Usable() bool {
	return r != nil && r.SpeechDetected && r.Error == "" && r.TrimEnd > r.TrimStart
}

// DetectDeadspace uploads audio to POST /trim-deadspace. A response without
// detected speech is returned as an error so callers fall back.
func (c *HTTPClient) DetectDeadspace(ctx context.Context, req DeadspaceRequest) (*DeadspaceResult, error) {
	language := req.Language
	if language == "" {
		language = "auto"
	}
	fields := map[string]string{
		"language":    language,
		"prePadding":  strconv.FormatFloat(max(0, req.PrePadding), 'f', -1, 64),
		"postPadding": strconv.FormatFloat(max(0, req.PostPadding), 'f', -1, 64),
	}

	var res DeadspaceResult
	if err := c.postMultipart(ctx, "/trim-deadspace", req.AudioPath, fields, &res); err != nil {
		return nil, err
	}
	if !res.Usable() {
		msg := res.Error
		if msg == "" {
			msg = "no speech detected"
		}
		return &res, errors.New("deadspace: " + msg)
	}

	c.logger.Info("deadspace detected",
		"source", res.AnalysisSource,
		"trim_start", res.TrimStart,
		"trim_end", res.TrimEnd,
		"confidence", res.Confidence,
	)
	return &res, nil
}
