package services_test

import (
	"errors"
	"strings"
	"testing"

	"gridlock/internal/services"
)

func TestWrapPreservesMarker(t *testing.T) {
	cause := errors.New("socket closed")
	err := services.Wrap(services.ErrTransient, "hfspace", "poll status", "backend unreachable", cause)

	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause to survive, got %v", err)
	}
	if !strings.Contains(err.Error(), "hfspace: poll status: backend unreachable") {
		t.Fatalf("unexpected detail: %v", err)
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "assets", "upload clip", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("nil marker should default to transient, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		expect services.Kind
	}{
		{"not found", services.Wrap(services.ErrNotFound, "pipeline", "load", "episode 9 missing", nil), services.KindNotFound},
		{"resource", services.Wrap(services.ErrResourceUnavailable, "synth", "ensure running", "ceiling reached", nil), services.KindResourceUnavailable},
		{"scene exhausted", services.Wrap(services.ErrSceneExhausted, "assets", "scene 7", "retry ceiling", nil), services.KindSceneExhausted},
		{"plain", errors.New("boom"), services.KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.Classify(tc.err); got != tc.expect {
				t.Fatalf("Classify(%v) = %s, want %s", tc.err, got, tc.expect)
			}
		})
	}
}

func TestIsRetriable(t *testing.T) {
	if services.IsRetriable(services.Wrap(services.ErrNotFound, "pipeline", "load", "", nil)) {
		t.Fatal("missing records must not be retriable")
	}
	if !services.IsRetriable(services.Wrap(services.ErrResourceUnavailable, "synth", "", "", nil)) {
		t.Fatal("resource unavailability is retriable by a fresh run")
	}
	if !services.IsRetriable(services.Wrap(services.ErrSceneExhausted, "assets", "", "", nil)) {
		t.Fatal("scene exhaustion is retriable once the backend recovers")
	}
}

func TestDetails(t *testing.T) {
	cause := errors.New("http 503")
	err := services.Wrap(services.ErrTransient, "anthropic", "generate script", "rate limited", cause)
	details := services.Details(err)
	if details.Kind != services.KindTransient {
		t.Fatalf("unexpected kind %s", details.Kind)
	}
	if !strings.Contains(details.Message, "rate limited") {
		t.Fatalf("message lost: %q", details.Message)
	}
}
