package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"gridlock/internal/config"
	"gridlock/internal/logging"
	"gridlock/internal/services"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	apiVersion       = "2023-06-01"
	componentName    = "anthropic"
	maxErrorBodySize = 4096
)

// Client talks to the Anthropic Messages API for script generation.
type Client struct {
	cfg    config.Script
	http   *http.Client
	logger *slog.Logger
}

// Completion is the result of one Messages call, with token accounting
// already converted to dollars using the configured rates.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Latency      time.Duration
}

// New builds a Messages API client from the script configuration.
func New(cfg config.Script, logger *slog.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		logger: logging.NewComponentLogger(logger, componentName),
	}
}

type messageRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`

	Temperature float64 `json:"temperature,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messageResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete sends one system+user exchange and returns the model's text.
func (c *Client) Complete(ctx context.Context, system, user string) (*Completion, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, componentName, "complete", "script api key not configured", nil)
	}

	payload := messageRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		System:      system,
		Messages:    []message{{Role: "user", Content: user}},
		Temperature: c.cfg.Temperature,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, componentName, "complete", "encode request", err)
	}

	base := strings.TrimRight(c.cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, componentName, "complete", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", apiVersion)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, componentName, "complete", "messages request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	var decoded messageResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, services.Wrap(services.ErrTransient, componentName, "complete", "decode response", err)
	}

	var text strings.Builder
	for _, block := range decoded.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, services.Wrap(services.ErrTransient, componentName, "complete", "response contained no text", nil)
	}

	completion := &Completion{
		Text:         text.String(),
		InputTokens:  decoded.Usage.InputTokens,
		OutputTokens: decoded.Usage.OutputTokens,
		CostUSD:      c.cost(decoded.Usage.InputTokens, decoded.Usage.OutputTokens),
		Latency:      time.Since(start),
	}

	c.logger.Debug("completion received",
		logging.Int("input_tokens", completion.InputTokens),
		logging.Int("output_tokens", completion.OutputTokens),
		logging.Float64("cost_usd", completion.CostUSD),
		logging.Duration("latency", completion.Latency),
	)
	return completion, nil
}

func (c *Client) cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1000*c.cfg.InputCostPer1K +
		float64(outputTokens)/1000*c.cfg.OutputCostPer1K
}

func (c *Client) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	detail := strings.TrimSpace(string(body))
	msg := fmt.Sprintf("messages API returned %d: %s", resp.StatusCode, detail)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, componentName, "complete", msg, nil)
	case resp.StatusCode == http.StatusBadRequest:
		return services.Wrap(services.ErrValidation, componentName, "complete", msg, nil)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return services.Wrap(services.ErrTransient, componentName, "complete", msg, nil)
	default:
		return services.Wrap(services.ErrTransient, componentName, "complete", msg, nil)
	}
}
