package cloud

import (
	"context"
	"errors"
	"strings"
)

// Segments shorter than this or more likely silence than speech are dropped.
const (
	MinSegmentDuration = 0.05
	MaxNoSpeechProb    = 0.9
)

type Word struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type Segment struct {
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Text         string  `json:"text"`
	Words        []Word  `json:"words,omitempty"`
	NoSpeechProb float64 `json:"no_speech_prob,omitempty"`
}

// Transcript times are relative to the start of the uploaded audio.
type Transcript struct {
	Text     string    `json:"text"`
	Language string    `json:"language,omitempty"`
	Segments []Segment `json:"segments"`
	Error    string    `json:"error,omitempty"`
}

// Transcribe uploads audio to POST /transcribe. language "" means "auto".
func (c *HTTPClient) Transcribe(ctx context.Context, audioPath, language string) (*Transcript, error) {
	if language == "" {
		language = "auto"
	}
	var t Transcript
	if err := c.postMultipart(ctx, "/transcribe", audioPath, map[string]string{"language": language}, &t); err != nil {
		return nil, err
	}
	if t.Error != "" {
		return nil, errors.New("transcription: " + t.Error)
	}
	t.Segments = NormalizeSegments(t.Segments)
	c.logger.Info("transcription complete", "language", t.Language, "segments", len(t.Segments))
	return &t, nil
}

// NormalizeSegments cleans raw recognizer output: negative times clamp to 0,
// ends never precede starts, empty words are removed, a segment with words
// spans first-word start to last-word end, and short or non-speech segments
// are dropped.
func NormalizeSegments(in []Segment) []Segment {
	out := make([]Segment, 0, len(in))
	for _, seg := range in {
		seg.Text = strings.TrimSpace(seg.Text)
		seg.Start = max(0, seg.Start)
		seg.End = max(seg.Start, seg.End)

		words := seg.Words[:0:0]
		for _, w := range seg.Words {
			w.Text = strings.TrimSpace(w.Text)
			if w.Text == "" {
				continue
			}
			w.Start = max(0, w.Start)
			w.End = max(w.Start, w.End)
			words = append(words, w)
		}
		seg.Words = words
		if len(words) > 0 {
			seg.Start = words[0].Start
			seg.End = words[0].End
			for _, w := range words {
				seg.End = max(seg.End, w.End)
			}
		}

		if seg.End-seg.Start < MinSegmentDuration || seg.NoSpeechProb >= MaxNoSpeechProb {
			continue
		}
		if seg.Text == "" && len(words) == 0 {
			continue
		}
		out = append(out, seg)
	}
	return out
}
