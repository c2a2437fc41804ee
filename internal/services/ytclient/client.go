package ytclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"gridlock/internal/config"
	"gridlock/internal/logging"
	"gridlock/internal/services"
)

const componentName = "youtube"

// Metadata describes a video to upload.
type Metadata struct {
	Title       string
	Description string
	Tags        []string
}

// Result reports a completed upload.
type Result struct {
	VideoID string
	URL     string
}

// Uploader publishes finished episodes via the YouTube Data API.
type Uploader interface {
	Upload(ctx context.Context, videoPath string, meta Metadata) (*Result, error)
}

// Client implements Uploader against the real Data API using stored OAuth
// credentials. Credentials come from the installed-app flow: a client secret
// JSON plus a previously authorized token file.
type Client struct {
	cfg    config.YouTube
	logger *slog.Logger
}

// New builds an uploader from the youtube configuration.
func New(cfg config.YouTube, logger *slog.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{cfg: cfg, logger: logging.NewComponentLogger(logger, componentName)}
}

// Upload pushes the video with a resumable upload and returns its ID and URL.
func (c *Client) Upload(ctx context.Context, videoPath string, meta Metadata) (*Result, error) {
	httpClient, err := c.oauthClient(ctx)
	if err != nil {
		return nil, err
	}

	svc, err := yt.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, componentName, "upload", "build youtube service", err)
	}

	file, err := os.Open(videoPath)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, componentName, "upload", "open video file", err)
	}
	defer file.Close()

	video := &yt.Video{
		Snippet: &yt.VideoSnippet{
			Title:       meta.Title,
			Description: meta.Description,
			Tags:        meta.Tags,
			CategoryId:  c.cfg.CategoryID,
		},
		Status: &yt.VideoStatus{
			PrivacyStatus:           c.privacyStatus(),
			SelfDeclaredMadeForKids: false,
		},
	}

	call := svc.Videos.Insert([]string{"snippet", "status"}, video)
	call.Media(file)

	uploaded, err := call.Context(ctx).Do()
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, componentName, "upload", "resumable upload failed", err)
	}

	result := &Result{
		VideoID: uploaded.Id,
		URL:     fmt.Sprintf("https://www.youtube.com/watch?v=%s", uploaded.Id),
	}
	c.logger.Info("video uploaded",
		logging.String("video_id", result.VideoID),
		logging.String("url", result.URL),
	)
	return result, nil
}

func (c *Client) privacyStatus() string {
	status := strings.TrimSpace(c.cfg.PrivacyStatus)
	if status == "" {
		return "private"
	}
	return status
}

// oauthClient builds an authorized HTTP client from the configured client
// secret and token files.
func (c *Client) oauthClient(ctx context.Context) (*http.Client, error) {
	secretBytes, err := os.ReadFile(c.cfg.CredentialsFile)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, componentName, "auth", "read credentials file", err)
	}
	conf, err := google.ConfigFromJSON(secretBytes, yt.YoutubeUploadScope)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, componentName, "auth", "parse credentials file", err)
	}

	tokenBytes, err := os.ReadFile(c.cfg.TokenFile)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, componentName, "auth",
			"read token file (run 'gridlock config authorize' first)", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(tokenBytes, &token); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, componentName, "auth", "parse token file", err)
	}

	return conf.Client(ctx, &token), nil
}

func (c *Client) oauthConfig() (*oauth2.Config, error) {
	secretBytes, err := os.ReadFile(c.cfg.CredentialsFile)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, componentName, "auth", "read credentials file", err)
	}
	conf, err := google.ConfigFromJSON(secretBytes, yt.YoutubeUploadScope)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, componentName, "auth", "parse credentials file", err)
	}
	return conf, nil
}

// AuthorizeURL returns the consent URL to visit for the installed-app flow.
func (c *Client) AuthorizeURL() (string, error) {
	conf, err := c.oauthConfig()
	if err != nil {
		return "", err
	}
	return conf.AuthCodeURL("state-token", oauth2.AccessTypeOffline), nil
}

// SaveToken exchanges an authorization code and writes the token file used
// by later uploads.
func (c *Client) SaveToken(ctx context.Context, code string) error {
	conf, err := c.oauthConfig()
	if err != nil {
		return err
	}
	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, componentName, "auth", "exchange authorization code", err)
	}
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrValidation, componentName, "auth", "encode token", err)
	}
	if err := os.WriteFile(c.cfg.TokenFile, data, 0o600); err != nil {
		return services.Wrap(services.ErrConfiguration, componentName, "auth", "write token file", err)
	}
	return nil
}
