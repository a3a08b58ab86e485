package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/agenterr"
)

// Event discriminates NDJSON frames.
type Event string

const (
	EventLog         Event = "log"
	EventThought     Event = "thought"
	EventThoughtDone Event = "thought_done"
	EventStep        Event = "step"
	EventError       Event = "error"
	EventDone        Event = "done"
	EventSummary     Event = "summary"
)

// Frame is one line of the session stream. Which fields are set depends on
// Event; step frames carry a 1-based StepIndex and TotalSteps.
type Frame struct {
	Event      Event           `json:"event"`
	SessionID  string          `json:"sessionId,omitempty"`
	Message    string          `json:"message,omitempty"`
	Text       string          `json:"text,omitempty"`
	StepIndex  int             `json:"stepIndex,omitempty"`
	TotalSteps int             `json:"totalSteps,omitempty"`
	Step       json.RawMessage `json:"step,omitempty"`
	Provenance string          `json:"provenance,omitempty"`
	Code       agenterr.Kind   `json:"code,omitempty"`
	Summary    string          `json:"summary,omitempty"`
	Actions    []Action        `json:"actions,omitempty"`
}

// Emitter receives frames in order. Implementations must be safe for
// concurrent use: thought narration emits from its own goroutine.
type Emitter interface {
	Emit(f Frame) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Frame) error

func (fn EmitterFunc) Emit(f Frame) error { return fn(f) }

// NDJSONWriter writes one JSON object per line and flushes after each frame
// when the writer supports it.
type NDJSONWriter struct {
	mu      sync.Mutex
	w       io.Writer
	enc     *json.Encoder
	flusher http.Flusher
}

func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	nw := &NDJSONWriter{w: w, enc: json.NewEncoder(w)}
	if f, ok := w.(http.Flusher); ok {
		nw.flusher = f
	}
	return nw
}

// Emit writes f. A write failure means the consumer is gone and is reported
// as a TransportError.
func (nw *NDJSONWriter) Emit(f Frame) error {
	nw.mu.Lock()
	defer nw.mu.Unlock()
	if err := nw.enc.Encode(f); err != nil {
		return &agenterr.TransportError{Op: "write " + string(f.Event) + " frame", Err: err}
	}
	if nw.flusher != nil {
		nw.flusher.Flush()
	}
	return nil
}

// maxFrameBytes bounds one NDJSON line.
const maxFrameBytes = 1 << 20

// ReadFrames decodes an NDJSON stream, calling fn for every frame. Blank
// lines are skipped; a frame without an event is an error.
func ReadFrames(r io.Reader, fn func(Frame) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxFrameBytes)
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var f Frame
		if err := json.Unmarshal(b, &f); err != nil {
			return fmt.Errorf("frame %d: %w", line, err)
		}
		if f.Event == "" {
			return fmt.Errorf("frame %d: missing event", line)
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return &agenterr.TransportError{Op: "read frames", Err: err}
	}
	return nil
}

func errorFrame(err error) Frame {
	return Frame{Event: EventError, Code: agenterr.Classify(err), Message: agenterr.Short(err)}
}
