package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"gridlock/internal/api"
	"gridlock/internal/assets"
	"gridlock/internal/config"
	"gridlock/internal/daemon"
	"gridlock/internal/logging"
	"gridlock/internal/notifications"
	"gridlock/internal/pipeline"
	"gridlock/internal/publish"
	"gridlock/internal/scheduler"
	"gridlock/internal/script"
	"gridlock/internal/services/anthropic"
	"gridlock/internal/services/ffmpeg"
	"gridlock/internal/services/gemini"
	"gridlock/internal/services/hfspace"
	"gridlock/internal/services/objstore"
	"gridlock/internal/services/ytclient"
	"gridlock/internal/stitch"
	"gridlock/internal/store"
	"gridlock/internal/workflow"
)

// run wires every component and blocks until the context is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	objects, err := objstore.New(cfg.Storage, logger)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("connect object storage: %w", err)
	}
	if err := objects.EnsureBuckets(ctx); err != nil {
		logger.Warn("bucket check failed, uploads may fail until storage recovers", logging.Error(err))
	}

	logDependencySnapshot(logger, cfg)

	notifier := notifications.NewService(cfg)
	llm := anthropic.New(cfg.Script, logger)
	images := gemini.New(cfg.Image, logger)
	space := hfspace.New(cfg.Synth, logger)
	uploader := ytclient.New(cfg.YouTube, logger)
	runner := ffmpeg.NewCLI()

	producer := script.NewProducer(st, llm, cfg, logger)
	synthesizer := assets.NewSynthesizer(st, images, objects, cfg, logger)
	stitcher := stitch.NewStitcher(st, objects, runner, cfg, logger)
	publisher := publish.NewPublisher(st, objects, uploader, cfg, logger)
	sessions := pipeline.NewSessionScope(space, cfg.Synth, logger)
	pipe := pipeline.New(st, producer, synthesizer, stitcher, publisher, sessions, objects, notifier, cfg, logger)

	triggers := api.NewService(st, cfg, logger)
	jobs := scheduler.New(st, nil, triggers, logger)

	manager := workflow.NewManager(cfg, st, pipe, jobs, logger)
	d, err := daemon.New(cfg, st, logger, manager)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer func() { _ = d.Close() }()

	if err := d.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("gridlockd shutting down")
	return nil
}

// logDependencySnapshot records at startup which external tools and
// credentials are available, so a misconfigured host is obvious from the
// first lines of the log.
func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("dependency snapshot",
		logging.Bool("script_key_present", strings.TrimSpace(cfg.Script.APIKey) != ""),
		logging.Bool("image_key_present", strings.TrimSpace(cfg.Image.APIKey) != ""),
		logging.Bool("synth_token_present", strings.TrimSpace(cfg.Synth.Token) != ""),
		logging.Bool("storage_key_present", strings.TrimSpace(cfg.Storage.AccessKey) != ""),
		logging.Bool("ffmpeg_available", binaryAvailable("ffmpeg")),
		logging.Bool("ffprobe_available", binaryAvailable("ffprobe")),
		logging.String("synth_space", cfg.Synth.SpaceID),
	)
}

func binaryAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
