package hfspace_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"gridlock/internal/config"
	"gridlock/internal/services"
	"gridlock/internal/services/hfspace"
)

func synthConfig(apiBase, endpoint string) config.Synth {
	return config.Synth{
		SpaceID:     "test/ovi-space",
		Token:       "hf_test",
		APIBaseURL:  apiBase,
		EndpointURL: endpoint,
	}
}

func TestParseState(t *testing.T) {
	cases := map[string]hfspace.State{
		"RUNNING":       hfspace.StateRunning,
		"running":       hfspace.StateRunning,
		"APP_STARTING":  hfspace.StateBuilding,
		"SLEEPING":      hfspace.StateSleeping,
		"PAUSED":        hfspace.StatePaused,
		"STOPPED":       hfspace.StateStopped,
		"RUNTIME_ERROR": hfspace.StateError,
		"whatever":      hfspace.StateUnknown,
		"":              hfspace.StateUnknown,
	}
	for raw, want := range cases {
		if got := hfspace.ParseState(raw); got != want {
			t.Errorf("ParseState(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestStatusReadsRuntimeStage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/spaces/test/ovi-space/runtime" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer hf_test" {
			t.Fatalf("missing authorization header")
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"stage": "SLEEPING"})
	}))
	defer server.Close()

	client := hfspace.New(synthConfig(server.URL, ""), nil)
	state, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if state != hfspace.StateSleeping {
		t.Fatalf("expected sleeping, got %s", state)
	}
}

func TestRestartAndPausePostActions(t *testing.T) {
	var calls []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		calls = append(calls, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := hfspace.New(synthConfig(server.URL, ""), nil)
	if err := client.Restart(context.Background()); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if err := client.Pause(context.Background()); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if len(calls) != 2 ||
		calls[0] != "/api/spaces/test/ovi-space/restart" ||
		calls[1] != "/api/spaces/test/ovi-space/pause" {
		t.Fatalf("unexpected calls: %v", calls)
	}
}

func TestProbeUnreachableIsResourceUnavailable(t *testing.T) {
	client := hfspace.New(synthConfig("", "http://127.0.0.1:1"), nil)
	err := client.Probe(context.Background())
	if !errors.Is(err, services.ErrResourceUnavailable) {
		t.Fatalf("expected resource unavailable, got %v", err)
	}
}

func TestGenerateRoundTrip(t *testing.T) {
	clip := []byte("fake-mp4-bytes")
	var mux *http.ServeMux
	mux = http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/gradio_api/upload", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]string{"/tmp/gradio/upload.png"})
	})
	mux.HandleFunc("/gradio_api/call/generate_scene", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Data []any `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode call payload: %v", err)
		}
		if len(payload.Data) != 3 {
			t.Fatalf("expected 3 call arguments, got %d", len(payload.Data))
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"event_id": "ev-123"})
	})
	mux.HandleFunc("/gradio_api/call/generate_scene/ev-123", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("event: complete\ndata: [{\"url\": \"" + server.URL + "/file/out.mp4\"}]\n"))
	})
	mux.HandleFunc("/file/out.mp4", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(clip)
	})

	srcImage := filepath.Join(t.TempDir(), "scene.png")
	if err := os.WriteFile(srcImage, []byte{0x89, 0x50}, 0o644); err != nil {
		t.Fatalf("write source image: %v", err)
	}
	dest := filepath.Join(t.TempDir(), "clips", "scene_01.mp4")

	client := hfspace.New(synthConfig("", server.URL), nil)
	err := client.Generate(context.Background(), hfspace.GenerateRequest{
		Prompt:      "a driver celebrates <S>we did it<E>",
		ImagePath:   srcImage,
		SampleSteps: 30,
	}, dest)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read clip: %v", err)
	}
	if string(got) != string(clip) {
		t.Fatalf("unexpected clip contents: %q", got)
	}
}

func TestGenerateAppErrorIsTransient(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/gradio_api/upload", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]string{"/tmp/gradio/upload.png"})
	})
	mux.HandleFunc("/gradio_api/call/generate_scene", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"event_id": "ev-err"})
	})
	mux.HandleFunc("/gradio_api/call/generate_scene/ev-err", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("event: error\ndata: \"CUDA out of memory\"\n"))
	})

	srcImage := filepath.Join(t.TempDir(), "scene.png")
	if err := os.WriteFile(srcImage, []byte{0x01}, 0o644); err != nil {
		t.Fatalf("write source image: %v", err)
	}

	client := hfspace.New(synthConfig("", server.URL), nil)
	err := client.Generate(context.Background(), hfspace.GenerateRequest{
		Prompt:      "prompt",
		ImagePath:   srcImage,
		SampleSteps: 15,
	}, filepath.Join(t.TempDir(), "out.mp4"))
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}
