package hfspace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gridlock/internal/config"
	"gridlock/internal/logging"
	"gridlock/internal/services"
)

const (
	defaultAPIBaseURL = "https://huggingface.co"
	componentName     = "hfspace"
	maxErrorBodySize  = 4096
)

// State is the runtime stage reported by the Spaces API.
type State string

const (
	StateRunning  State = "RUNNING"
	StateBuilding State = "BUILDING"
	StateSleeping State = "SLEEPING"
	StatePaused   State = "PAUSED"
	StateStopped  State = "STOPPED"
	StateError    State = "ERROR"
	StateUnknown  State = "UNKNOWN"
)

// ParseState normalizes a stage string from the Spaces API. Transitional
// stages reported during boot map to BUILDING.
func ParseState(raw string) State {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "RUNNING":
		return StateRunning
	case "BUILDING", "RUNNING_BUILDING", "APP_STARTING":
		return StateBuilding
	case "SLEEPING":
		return StateSleeping
	case "PAUSED":
		return StatePaused
	case "STOPPED":
		return StateStopped
	case "ERROR", "RUNTIME_ERROR", "BUILD_ERROR", "CONFIG_ERROR":
		return StateError
	default:
		return StateUnknown
	}
}

// Client controls one Hugging Face Space and calls its gradio app.
type Client struct {
	cfg    config.Synth
	http   *http.Client
	logger *slog.Logger
}

// GenerateRequest describes one scene synthesis call.
type GenerateRequest struct {
	Prompt      string
	ImagePath   string
	SampleSteps int
}

// New builds a Space client from the synth configuration.
func New(cfg config.Synth, logger *slog.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{},
		logger: logging.NewComponentLogger(logger, componentName),
	}
}

func (c *Client) apiBase() string {
	base := strings.TrimRight(c.cfg.APIBaseURL, "/")
	if base == "" {
		base = defaultAPIBaseURL
	}
	return base
}

func (c *Client) endpoint() string {
	return strings.TrimRight(c.cfg.EndpointURL, "/")
}

// Status fetches the current runtime stage of the space.
func (c *Client) Status(ctx context.Context) (State, error) {
	url := fmt.Sprintf("%s/api/spaces/%s/runtime", c.apiBase(), c.cfg.SpaceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return StateUnknown, services.Wrap(services.ErrValidation, componentName, "status", "build request", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return StateUnknown, services.Wrap(services.ErrTransient, componentName, "status", "runtime request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return StateUnknown, c.statusError(resp, "status")
	}

	var decoded struct {
		Stage string `json:"stage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return StateUnknown, services.Wrap(services.ErrTransient, componentName, "status", "decode runtime response", err)
	}
	return ParseState(decoded.Stage), nil
}

// Restart asks the hub to (re)start the space. Safe to call on a sleeping,
// paused, or stopped space.
func (c *Client) Restart(ctx context.Context) error {
	return c.spaceAction(ctx, "restart")
}

// Pause stops billing for the space. Idempotent on an already-paused space.
func (c *Client) Pause(ctx context.Context) error {
	return c.spaceAction(ctx, "pause")
}

func (c *Client) spaceAction(ctx context.Context, action string) error {
	url := fmt.Sprintf("%s/api/spaces/%s/%s", c.apiBase(), c.cfg.SpaceID, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return services.Wrap(services.ErrValidation, componentName, action, "build request", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, componentName, action, action+" request failed", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return c.statusError(resp, action)
	}
	return nil
}

// Probe checks that the gradio app inside the space is answering, not just
// that the container reports RUNNING.
func (c *Client) Probe(ctx context.Context) error {
	url := c.endpoint() + "/gradio_api/info"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return services.Wrap(services.ErrValidation, componentName, "probe", "build request", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return services.Wrap(services.ErrResourceUnavailable, componentName, "probe", "app not answering", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrResourceUnavailable, componentName, "probe",
			fmt.Sprintf("app returned %d", resp.StatusCode), nil)
	}
	return nil
}

// Upload pushes a local file into the gradio app and returns the remote
// temp path the app assigned to it.
func (c *Client) Upload(ctx context.Context, localPath string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, componentName, "upload", "open source file", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("files", filepath.Base(localPath))
	if err != nil {
		return "", services.Wrap(services.ErrValidation, componentName, "upload", "build multipart body", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", services.Wrap(services.ErrValidation, componentName, "upload", "read source file", err)
	}
	if err := writer.Close(); err != nil {
		return "", services.Wrap(services.ErrValidation, componentName, "upload", "finalize multipart body", err)
	}

	url := c.endpoint() + "/gradio_api/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, componentName, "upload", "build request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, componentName, "upload", "upload request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.statusError(resp, "upload")
	}

	var paths []string
	if err := json.NewDecoder(resp.Body).Decode(&paths); err != nil {
		return "", services.Wrap(services.ErrTransient, componentName, "upload", "decode upload response", err)
	}
	if len(paths) == 0 {
		return "", services.Wrap(services.ErrTransient, componentName, "upload", "upload response contained no path", nil)
	}
	return paths[0], nil
}

type callResponse struct {
	EventID string `json:"event_id"`
}

// Generate synthesizes one clip and writes it to destPath. The image must
// already be local; Generate uploads it, invokes the app, then downloads
// the produced video.
func (c *Client) Generate(ctx context.Context, req GenerateRequest, destPath string) error {
	if c.endpoint() == "" {
		return services.Wrap(services.ErrConfiguration, componentName, "generate", "endpoint url not configured", nil)
	}

	timeout := time.Duration(c.cfg.GenerateTimeoutSeconds) * time.Second
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	remoteImage, err := c.Upload(ctx, req.ImagePath)
	if err != nil {
		return err
	}

	payload := map[string]any{
		"data": []any{
			req.Prompt,
			map[string]any{"path": remoteImage, "meta": map[string]string{"_type": "gradio.FileData"}},
			req.SampleSteps,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return services.Wrap(services.ErrValidation, componentName, "generate", "encode call payload", err)
	}

	callURL := c.endpoint() + "/gradio_api/call/generate_scene"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, callURL, bytes.NewReader(body))
	if err != nil {
		return services.Wrap(services.ErrValidation, componentName, "generate", "build call request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return services.Wrap(services.ErrTransient, componentName, "generate", "call request failed", err)
	}
	var call callResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&call)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrTransient, componentName, "generate",
			fmt.Sprintf("call returned %d", resp.StatusCode), nil)
	}
	if decodeErr != nil || call.EventID == "" {
		return services.Wrap(services.ErrTransient, componentName, "generate", "call response missing event id", decodeErr)
	}

	fileURL, err := c.awaitResult(ctx, call.EventID)
	if err != nil {
		return err
	}
	return c.download(ctx, fileURL, destPath)
}

// awaitResult streams the event feed until the app reports completion and
// returns the URL of the produced file.
func (c *Client) awaitResult(ctx context.Context, eventID string) (string, error) {
	url := c.endpoint() + "/gradio_api/call/generate_scene/" + eventID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, componentName, "generate", "build result request", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, componentName, "generate", "result request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.statusError(resp, "generate")
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, componentName, "generate", "read result stream", err)
	}

	var event string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			switch event {
			case "error":
				return "", services.Wrap(services.ErrTransient, componentName, "generate",
					fmt.Sprintf("app reported error: %s", data), nil)
			case "complete":
				return parseResultURL(data)
			}
		}
	}
	return "", services.Wrap(services.ErrTransient, componentName, "generate", "result stream ended without completion", nil)
}

func parseResultURL(data string) (string, error) {
	var results []struct {
		URL  string `json:"url"`
		Path string `json:"path"`
	}
	if err := json.Unmarshal([]byte(data), &results); err != nil {
		return "", services.Wrap(services.ErrTransient, componentName, "generate", "decode completion payload", err)
	}
	for _, result := range results {
		if result.URL != "" {
			return result.URL, nil
		}
	}
	return "", services.Wrap(services.ErrTransient, componentName, "generate", "completion payload contained no file", nil)
}

func (c *Client) download(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return services.Wrap(services.ErrValidation, componentName, "download", "build request", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, componentName, "download", "download request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.statusError(resp, "download")
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return services.Wrap(services.ErrValidation, componentName, "download", "create destination dir", err)
	}
	out, err := os.Create(destPath)
	if err != nil {
		return services.Wrap(services.ErrValidation, componentName, "download", "create destination file", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return services.Wrap(services.ErrTransient, componentName, "download", "write clip", err)
	}
	c.logger.Debug("clip downloaded", logging.String("dest", destPath))
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if token := strings.TrimSpace(c.cfg.Token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func (c *Client) statusError(resp *http.Response, operation string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	msg := fmt.Sprintf("%s returned %d: %s", operation, resp.StatusCode, strings.TrimSpace(string(body)))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, componentName, operation, msg, nil)
	case resp.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrConfiguration, componentName, operation, msg, nil)
	default:
		return services.Wrap(services.ErrTransient, componentName, operation, msg, nil)
	}
}
