package stitch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gridlock/internal/config"
	"gridlock/internal/logging"
	"gridlock/internal/services"
	"gridlock/internal/services/ffmpeg"
	"gridlock/internal/services/objstore"
	"gridlock/internal/store"
)

const componentName = "stitch"

// ObjectStore is the artifact storage surface the stitcher needs.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, objectName, localPath, contentType string) (string, error)
	DownloadLocator(ctx context.Context, locator, destPath string) error
	FinalVideosBucket() string
}

// Stitcher assembles an episode's completed clips into one video.
type Stitcher struct {
	store   *store.Store
	objects ObjectStore
	runner  ffmpeg.Runner
	cfg     *config.Config
	logger  *slog.Logger
}

// NewStitcher wires a stitcher with its dependencies.
func NewStitcher(st *store.Store, objects ObjectStore, runner ffmpeg.Runner, cfg *config.Config, logger *slog.Logger) *Stitcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Stitcher{
		store:   st,
		objects: objects,
		runner:  runner,
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, componentName),
	}
}

// Stitch concatenates the episode's completed scenes in scene order,
// measures the result, and stores it. An episode with no completed scenes
// cannot be stitched.
func (s *Stitcher) Stitch(ctx context.Context, ep *store.Episode) error {
	scenes, err := s.store.CompletedScenes(ctx, ep.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, componentName, "stitch", "load completed scenes", err)
	}
	if len(scenes) == 0 {
		return services.Wrap(services.ErrValidation, componentName, "stitch", "no completed scenes to stitch", nil)
	}

	workDir := filepath.Join(s.cfg.Paths.WorkDir, fmt.Sprintf("episode_%d", ep.ID), "stitch")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return services.Wrap(services.ErrValidation, componentName, "stitch", "create work dir", err)
	}

	clipPaths := make([]string, 0, len(scenes))
	for _, scene := range scenes {
		local := filepath.Join(workDir, fmt.Sprintf("scene_%02d.mp4", scene.SceneNumber))
		if _, statErr := os.Stat(local); statErr != nil {
			if err := s.objects.DownloadLocator(ctx, scene.VideoClipPath, local); err != nil {
				return err
			}
		}
		clipPaths = append(clipPaths, local)
	}

	stitchCtx := ctx
	if s.cfg.Video.StitchTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		stitchCtx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.Video.StitchTimeoutSeconds)*time.Second)
		defer cancel()
	}

	outputPath := filepath.Join(workDir, "final.mp4")
	opts := ffmpeg.ConcatOptions{
		Codec:      s.cfg.Video.Codec,
		AudioCodec: s.cfg.Video.AudioCodec,
		CRF:        s.cfg.Video.CRF,
	}
	if err := s.runner.Concat(stitchCtx, clipPaths, outputPath, opts); err != nil {
		return services.Wrap(services.ErrExternalTool, componentName, "stitch", "concatenate clips", err)
	}

	duration, err := s.runner.Duration(ctx, outputPath)
	if err != nil {
		s.logger.Warn("duration probe failed", logging.Error(err))
	}

	raceID := int64(0)
	if ep.RaceID != nil {
		raceID = *ep.RaceID
	}
	object := objstore.FinalVideoObject(raceID, ep.ID)
	locator, err := s.objects.Upload(ctx, s.objects.FinalVideosBucket(), object, outputPath, "video/mp4")
	if err != nil {
		return err
	}

	ep.FinalVideoPath = locator
	ep.DurationSeconds = int64(duration / time.Second)
	if err := s.store.UpdateEpisode(ctx, ep); err != nil {
		return services.Wrap(services.ErrTransient, componentName, "stitch", "persist episode", err)
	}

	s.logger.Info("episode stitched",
		logging.Int64(logging.FieldEpisodeID, ep.ID),
		logging.Int("clips", len(clipPaths)),
		logging.Duration("duration", duration),
	)
	return nil
}

// LocalPath returns where a stitched episode lives on disk for upload.
func (s *Stitcher) LocalPath(ep *store.Episode) string {
	return filepath.Join(s.cfg.Paths.WorkDir, fmt.Sprintf("episode_%d", ep.ID), "stitch", "final.mp4")
}
