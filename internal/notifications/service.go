package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gridlock/internal/config"
)

const userAgent = "Gridlock-Go/0.1.0"

// Event identifies a workflow milestone worth telling a human about.
type Event string

const (
	EventEpisodeStarted   Event = "episode-started"
	EventEpisodePublished Event = "episode-published"
	EventEpisodeFailed    Event = "episode-failed"
	EventSceneExhausted   Event = "scene-exhausted"
	EventError            Event = "error"
)

// Payload carries the per-event values interpolated into messages.
type Payload map[string]string

// Service defines the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:      topic,
		client:        &http.Client{Timeout: timeout},
		episodeEvents: cfg.Notifications.Episodes,
		errorEvents:   cfg.Notifications.Errors,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint      string
	client        *http.Client
	episodeEvents bool
	errorEvents   bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	get := func(key string) string { return strings.TrimSpace(payload[key]) }

	var data message
	switch event {
	case EventEpisodeStarted:
		if !n.episodeEvents {
			return nil
		}
		data = message{
			title: "Gridlock - Episode Started",
			body:  fmt.Sprintf("Started generating: %s", get("title")),
			tags:  []string{"gridlock", "episode", "started"},
		}
	case EventEpisodePublished:
		if !n.episodeEvents {
			return nil
		}
		body := fmt.Sprintf("Published: %s", get("title"))
		if url := get("url"); url != "" {
			body = fmt.Sprintf("%s\n%s", body, url)
		}
		data = message{
			title:    "Gridlock - Episode Published",
			body:     body,
			tags:     []string{"gridlock", "episode", "published"},
			priority: "high",
		}
	case EventEpisodeFailed:
		if !n.errorEvents {
			return nil
		}
		data = message{
			title:    "Gridlock - Episode Failed",
			body:     fmt.Sprintf("Failed: %s\n%s", get("title"), get("error")),
			tags:     []string{"gridlock", "episode", "failed"},
			priority: "high",
		}
	case EventSceneExhausted:
		if !n.errorEvents {
			return nil
		}
		data = message{
			title:    "Gridlock - Scene Retries Exhausted",
			body:     fmt.Sprintf("Scene retries exhausted for %s\n%s", get("title"), get("error")),
			tags:     []string{"gridlock", "scene", "failed"},
			priority: "high",
		}
	case EventError:
		if !n.errorEvents {
			return nil
		}
		body := "Error"
		if label := get("context"); label != "" {
			body = fmt.Sprintf("%s with %s", body, label)
		}
		errText := get("error")
		if errText == "" {
			errText = "unknown"
		}
		data = message{
			title:    "Gridlock - Error",
			body:     fmt.Sprintf("%s: %s", body, errText),
			tags:     []string{"gridlock", "error", "alert"},
			priority: "high",
		}
	default:
		return nil
	}

	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := message{
		title:    "Gridlock - Test",
		body:     "Notification system test",
		tags:     []string{"gridlock", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
func (noopService) TestNotification(context.Context) error        { return nil }
