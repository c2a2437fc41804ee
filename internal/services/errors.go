package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound marks precondition failures: the referenced record does not
	// exist. Never retried.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks inputs or persisted state that cannot proceed.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks missing or malformed configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrConflict marks duplicate-generation attempts.
	ErrConflict = errors.New("conflict")
	// ErrTransient marks remote failures worth retrying with backoff.
	ErrTransient = errors.New("transient failure")
	// ErrTimeout marks remote operations that exceeded their deadline.
	ErrTimeout = errors.New("timeout")
	// ErrExternalTool marks failures in external binaries such as ffmpeg.
	ErrExternalTool = errors.New("external tool error")
	// ErrResourceUnavailable marks a synthesis backend that never reached a
	// usable state within the lifecycle retry ceiling. Fatal for the phase.
	ErrResourceUnavailable = errors.New("resource unavailable")
	// ErrSceneExhausted marks a scene that burned through its retry budget.
	// Escalates to whole-episode failure.
	ErrSceneExhausted = errors.New("scene generation exhausted")
)

// Kind names an error classification for persistence and logging.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindValidation          Kind = "validation"
	KindConfiguration       Kind = "configuration"
	KindConflict            Kind = "conflict"
	KindTransient           Kind = "transient"
	KindTimeout             Kind = "timeout"
	KindExternalTool        Kind = "external_tool"
	KindResourceUnavailable Kind = "resource_unavailable"
	KindSceneExhausted      Kind = "scene_exhausted"
	KindUnknown             Kind = "unknown"
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps an error to its Kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrSceneExhausted):
		return KindSceneExhausted
	case errors.Is(err, ErrResourceUnavailable):
		return KindResourceUnavailable
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrExternalTool):
		return KindExternalTool
	case errors.Is(err, ErrTransient):
		return KindTransient
	default:
		return KindUnknown
	}
}

// IsRetriable reports whether a new orchestrator run for the same episode
// could plausibly succeed without operator intervention.
func IsRetriable(err error) bool {
	switch Classify(err) {
	case KindNotFound, KindValidation, KindConfiguration, KindConflict:
		return false
	default:
		return true
	}
}

// ErrorDetails carries the decomposed parts of a wrapped service error.
type ErrorDetails struct {
	Kind    Kind
	Message string
	Cause   error
}

// Details unpacks an error produced by Wrap. Unwrapped errors classify as
// unknown with their raw message preserved.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{Kind: KindUnknown}
	}
	return ErrorDetails{
		Kind:    Classify(err),
		Message: strings.TrimSpace(err.Error()),
		Cause:   errors.Unwrap(err),
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
