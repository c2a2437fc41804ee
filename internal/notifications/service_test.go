package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"gridlock/internal/config"
	"gridlock/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventEpisodePublished, notifications.Payload{"title": "Example"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "episode started",
			event: notifications.EventEpisodeStarted,
			payload: notifications.Payload{
				"title": "Monaco Fallout",
			},
			expectTitle:   "Gridlock - Episode Started",
			expectMessage: "Started generating: Monaco Fallout",
			expectTags:    "gridlock,episode,started",
		},
		{
			name:  "episode published",
			event: notifications.EventEpisodePublished,
			payload: notifications.Payload{
				"title": "Monaco Fallout",
				"url":   "https://youtube.com/watch?v=abc123",
			},
			expectTitle:    "Gridlock - Episode Published",
			expectMessage:  "Published: Monaco Fallout\nhttps://youtube.com/watch?v=abc123",
			expectTags:     "gridlock,episode,published",
			expectPriority: "high",
		},
		{
			name:  "episode failed",
			event: notifications.EventEpisodeFailed,
			payload: notifications.Payload{
				"title": "Monaco Fallout",
				"error": "scene 7 exhausted retries",
			},
			expectTitle:    "Gridlock - Episode Failed",
			expectMessage:  "Failed: Monaco Fallout\nscene 7 exhausted retries",
			expectTags:     "gridlock,episode,failed",
			expectPriority: "high",
		},
		{
			name:  "error",
			event: notifications.EventError,
			payload: notifications.Payload{
				"context": "scheduler",
				"error":   "calendar sync failed",
			},
			expectTitle:    "Gridlock - Error",
			expectMessage:  "Error with scheduler: calendar sync failed",
			expectTags:     "gridlock,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5
			cfg.Notifications.Episodes = true
			cfg.Notifications.Errors = true

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceHonorsEventToggles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for suppressed event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Episodes = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(&cfg)
	suppressed := []notifications.Event{
		notifications.EventEpisodeStarted,
		notifications.EventEpisodePublished,
		notifications.EventEpisodeFailed,
		notifications.EventError,
	}

	for _, event := range suppressed {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"title": "ignored"}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}
