package publish

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gridlock/internal/config"
	"gridlock/internal/logging"
	"gridlock/internal/services"
	"gridlock/internal/services/ytclient"
	"gridlock/internal/store"
)

const componentName = "publish"

// ObjectStore is the download surface the publisher needs.
type ObjectStore interface {
	DownloadLocator(ctx context.Context, locator, destPath string) error
}

// Publisher uploads a stitched episode and records the resulting video link.
type Publisher struct {
	store    *store.Store
	objects  ObjectStore
	uploader ytclient.Uploader
	cfg      *config.Config
	logger   *slog.Logger
}

func NewPublisher(st *store.Store, objects ObjectStore, uploader ytclient.Uploader, cfg *config.Config, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Publisher{
		store:    st,
		objects:  objects,
		uploader: uploader,
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, componentName),
	}
}

// Publish uploads the episode's final video. The local copy left behind by
// stitching is used when present; otherwise the video is fetched from
// object storage first.
func (p *Publisher) Publish(ctx context.Context, ep *store.Episode) error {
	if ep.FinalVideoPath == "" {
		return services.Wrap(services.ErrValidation, componentName, "publish", "episode has no final video", nil)
	}

	localPath := filepath.Join(p.cfg.Paths.WorkDir, fmt.Sprintf("episode_%d", ep.ID), "stitch", "final.mp4")
	if _, err := os.Stat(localPath); err != nil {
		if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
			return services.Wrap(services.ErrValidation, componentName, "publish", "create work dir", err)
		}
		if err := p.objects.DownloadLocator(ctx, ep.FinalVideoPath, localPath); err != nil {
			return err
		}
	}

	var race *store.Race
	if ep.RaceID != nil {
		loaded, err := p.store.GetRace(ctx, *ep.RaceID)
		if err != nil {
			p.logger.Warn("race lookup failed", logging.Error(err))
		} else {
			race = loaded
		}
	}

	meta := BuildMetadata(ep, race, p.cfg.YouTube.ChannelTag)
	result, err := p.uploader.Upload(ctx, localPath, meta)
	if err != nil {
		return err
	}

	ep.YouTubeVideoID = result.VideoID
	ep.YouTubeURL = result.URL
	if err := p.store.UpdateEpisode(ctx, ep); err != nil {
		return services.Wrap(services.ErrTransient, componentName, "publish", "persist episode", err)
	}

	p.logger.Info("episode uploaded",
		logging.Int64(logging.FieldEpisodeID, ep.ID),
		logging.String("video_id", result.VideoID),
		logging.String("title", meta.Title),
	)
	return nil
}
