package agenterr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"configuration", &ConfigurationError{Setting: "GEMINI_API_KEY", Message: "missing"}, KindConfiguration},
		{"validation", &ValidationError{Diagnostic: "steps: incomplete"}, KindValidation},
		{"wrapped validation", fmt.Errorf("plan: %w", &ValidationError{Diagnostic: "x"}), KindValidation},
		{"resolution", &TargetResolutionError{Target: "lastClip"}, KindTargetResolution},
		{"command", &CommandError{ElementID: "e1", Reason: "out of bounds"}, KindCommand},
		{"subtask", &SubtaskError{Subtask: "captions", Err: errors.New("boom")}, KindSubtask},
		{"transport", &TransportError{Op: "llm", Err: errors.New("eof")}, KindTransport},
		{"plain", errors.New("plain"), KindUnknown},
		{"wrapped plain", fmt.Errorf("outer: %w", errors.New("inner")), KindUnknown},
		{"subtask over configuration", &SubtaskError{Subtask: "captions", Err: &ConfigurationError{Setting: "CRE8R_SERVICES_URL", Message: "not set"}}, KindSubtask},
		{"subtask over resolution", &SubtaskError{Subtask: "deadspace", Err: &TargetResolutionError{Target: "all media clips"}}, KindSubtask},
		{"subtask over transport", &SubtaskError{Subtask: "captions", Err: &TransportError{Op: "POST /transcribe", Err: errors.New("refused")}}, KindSubtask},
		{"transport over configuration", &TransportError{Op: "search", Err: &ConfigurationError{Message: "no token"}}, KindTransport},
		{"wrapped subtask over command", fmt.Errorf("task: %w", &SubtaskError{Subtask: "deadspace", Err: &CommandError{Reason: "bounds"}}), KindSubtask},
		{"joined", errors.Join(errors.New("plain"), &CommandError{Reason: "bounds"}), KindCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSubtaskError_Unwrap(t *testing.T) {
	inner := errors.New("service down")
	err := &SubtaskError{Subtask: "deadspace", Err: inner}
	if !errors.Is(err, inner) {
		t.Fatal("expected SubtaskError to unwrap to inner error")
	}
}

func TestShort_Truncates(t *testing.T) {
	long := errors.New(strings.Repeat("x", 500))
	got := Short(long)
	if len(got) != 243 {
		t.Errorf("len(Short()) = %d, want 243", len(got))
	}
	if Short(nil) != "" {
		t.Error("Short(nil) should be empty")
	}
}

func TestShort_CutsOnRuneBoundary(t *testing.T) {
	// 239 ASCII bytes put the byte limit inside the first two-byte rune.
	msg := strings.Repeat("a", 239) + strings.Repeat("é", 20)
	got := Short(errors.New(msg))
	if !utf8.ValidString(got) {
		t.Fatalf("Short() produced invalid UTF-8: %q", got[230:])
	}
	if want := strings.Repeat("a", 239) + "..."; got != want {
		t.Errorf("Short() tail = %q, want %q", got[230:], want[230:])
	}
}
