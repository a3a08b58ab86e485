// Package agenterr defines the error taxonomy shared by the planner, the
// command engine, the background subtasks and the streaming session.
package agenterr

import (
	"fmt"
	"unicode/utf8"
)

// Kind classifies an error by the scope it is allowed to abort.
type Kind string

const (
	KindConfiguration    Kind = "configuration"
	KindValidation       Kind = "validation"
	KindTargetResolution Kind = "target_resolution"
	KindCommand          Kind = "command"
	KindSubtask          Kind = "subtask"
	KindTransport        Kind = "transport"
	KindUnknown          Kind = "unknown"
)

// ConfigurationError means a required credential or setting is missing.
// It is fatal and never retried.
type ConfigurationError struct {
	Setting string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Setting == "" {
		return "configuration error: " + e.Message
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Setting, e.Message)
}

// ValidationError reports a planner response that did not match the
// instruction schema. Diagnostic is the summarized schema failure and Raw the
// offending model output.
type ValidationError struct {
	Diagnostic string
	Raw        string
}

func (e *ValidationError) Error() string {
	return "plan validation failed: " + e.Diagnostic
}

// TargetResolutionError means an instruction's target matched no element.
type TargetResolutionError struct {
	Target string
}

func (e *TargetResolutionError) Error() string {
	return "no timeline element matches " + e.Target
}

// CommandError is a per-element trim or cut-out failure.
type CommandError struct {
	ElementID string
	Reason    string
}

func (e *CommandError) Error() string {
	if e.ElementID == "" {
		return e.Reason
	}
	return fmt.Sprintf("element %s: %s", e.ElementID, e.Reason)
}

// SubtaskError is a failed background derived edit.
type SubtaskError struct {
	Subtask string
	Err     error
}

func (e *SubtaskError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Subtask, e.Err)
}

func (e *SubtaskError) Unwrap() error { return e.Err }

// TransportError wraps a failed call to an external collaborator or a broken
// event stream.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Classify returns the Kind of err, or KindUnknown. The outermost taxonomy
// error in the chain wins, so a SubtaskError wrapping a ConfigurationError is
// a subtask failure.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	return classify(err)
}

func classify(err error) Kind {
	switch err.(type) {
	case *ConfigurationError:
		return KindConfiguration
	case *ValidationError:
		return KindValidation
	case *TargetResolutionError:
		return KindTargetResolution
	case *CommandError:
		return KindCommand
	case *SubtaskError:
		return KindSubtask
	case *TransportError:
		return KindTransport
	}
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		if inner := u.Unwrap(); inner != nil {
			return classify(inner)
		}
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			if k := classify(inner); k != KindUnknown {
				return k
			}
		}
	}
	return KindUnknown
}

// Short renders err as a short user-facing message, cut on a rune boundary.
func Short(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	const limit = 240
	if len(msg) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "..."
	}
	return msg
}
