package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
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
	defaultBaseURL   = "https://generativelanguage.googleapis.com"
	componentName    = "gemini"
	maxErrorBodySize = 4096
)

// Client talks to the Gemini generateContent API for scene-image generation.
type Client struct {
	cfg    config.Image
	http   *http.Client
	logger *slog.Logger
}

// Request describes one image to generate. References are existing images
// sent alongside the prompt to keep a character visually consistent.
type Request struct {
	Prompt     string
	References []Reference
}

// Reference is one inline image attached to a generation request.
type Reference struct {
	MIMEType string
	Data     []byte
}

// Image is one generated picture.
type Image struct {
	MIMEType string
	Data     []byte
	Latency  time.Duration
}

// New builds a generateContent client from the image configuration.
func New(cfg config.Image, logger *slog.Logger) *Client {
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

type generatePart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateRequest struct {
	Contents []struct {
		Parts []generatePart `json:"parts"`
	} `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text       string `json:"text"`
				InlineData *struct {
					MIMEType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Generate produces one image for the request, decoding the first inline
// image in the response.
func (c *Client) Generate(ctx context.Context, req Request) (*Image, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, componentName, "generate", "image api key not configured", nil)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, services.Wrap(services.ErrValidation, componentName, "generate", "empty prompt", nil)
	}

	parts := make([]generatePart, 0, len(req.References)+1)
	parts = append(parts, generatePart{Text: req.Prompt})
	for _, ref := range req.References {
		mime := ref.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		parts = append(parts, generatePart{InlineData: &inlineData{
			MIMEType: mime,
			Data:     base64.StdEncoding.EncodeToString(ref.Data),
		}})
	}

	var payload generateRequest
	payload.Contents = append(payload.Contents, struct {
		Parts []generatePart `json:"parts"`
	}{Parts: parts})

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, componentName, "generate", "encode request", err)
	}

	base := strings.TrimRight(c.cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", base, c.cfg.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, componentName, "generate", "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.cfg.APIKey)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, componentName, "generate", "generateContent request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, services.Wrap(services.ErrTransient, componentName, "generate", "decode response", err)
	}

	for _, candidate := range decoded.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, services.Wrap(services.ErrTransient, componentName, "generate", "decode image payload", err)
			}
			img := &Image{
				MIMEType: part.InlineData.MIMEType,
				Data:     data,
				Latency:  time.Since(start),
			}
			c.logger.Debug("image generated",
				logging.Int("bytes", len(img.Data)),
				logging.Duration("latency", img.Latency),
			)
			return img, nil
		}
	}
	return nil, services.Wrap(services.ErrTransient, componentName, "generate", "response contained no image", nil)
}

func (c *Client) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	msg := fmt.Sprintf("generateContent returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, componentName, "generate", msg, nil)
	case resp.StatusCode == http.StatusBadRequest:
		return services.Wrap(services.ErrValidation, componentName, "generate", msg, nil)
	default:
		return services.Wrap(services.ErrTransient, componentName, "generate", msg, nil)
	}
}
