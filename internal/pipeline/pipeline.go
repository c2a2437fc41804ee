// Package pipeline drives an episode from a pending database row to a
// published video. Each phase persists its status transition before the
// next begins, so an interrupted run can be diagnosed from the episode row
// alone.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gridlock/internal/assets"
	"gridlock/internal/config"
	"gridlock/internal/logging"
	"gridlock/internal/notifications"
	"gridlock/internal/services"
	"gridlock/internal/services/objstore"
	"gridlock/internal/store"
	"gridlock/internal/synth"
)

const componentName = "pipeline"

// ScriptProducer generates and persists an episode's scenes.
type ScriptProducer interface {
	Produce(ctx context.Context, ep *store.Episode) error
}

// AssetSynthesizer renders image and clip assets for every scene.
type AssetSynthesizer interface {
	SynthesizeAll(ctx context.Context, ep *store.Episode, clips assets.ClipGenerator) error
}

// Stitcher assembles completed clips into the final video.
type Stitcher interface {
	Stitch(ctx context.Context, ep *store.Episode) error
}

// Publisher uploads the final video and records its public link.
type Publisher interface {
	Publish(ctx context.Context, ep *store.Episode) error
}

// SessionScope acquires a live generation session for the duration of fn.
// The production implementation wakes the remote space and pauses it again
// when fn returns, success or not.
type SessionScope interface {
	WithClips(ctx context.Context, fn func(assets.ClipGenerator) error) error
}

// Storage is the object-store surface used for retention cleanup.
type Storage interface {
	DeletePrefix(ctx context.Context, bucket, prefix string) (int, int64, error)
	SceneImagesBucket() string
	VideoClipsBucket() string
}

// Pipeline owns the end-to-end episode workflow.
type Pipeline struct {
	store       *store.Store
	producer    ScriptProducer
	synthesizer AssetSynthesizer
	stitcher    Stitcher
	publisher   Publisher
	sessions    SessionScope
	storage     Storage
	notifier    notifications.Service
	cfg         *config.Config
	logger      *slog.Logger
}

func New(st *store.Store, producer ScriptProducer, synthesizer AssetSynthesizer, stitcher Stitcher, publisher Publisher, sessions SessionScope, storage Storage, notifier notifications.Service, cfg *config.Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{
		store:       st,
		producer:    producer,
		synthesizer: synthesizer,
		stitcher:    stitcher,
		publisher:   publisher,
		sessions:    sessions,
		storage:     storage,
		notifier:    notifier,
		cfg:         cfg,
		logger:      logging.NewComponentLogger(logger, componentName),
	}
}

// Run executes the full workflow for one episode. A missing episode is a
// precondition failure; anything else that goes wrong marks the episode
// failed with the error preserved, and the error is returned for the
// caller's retry policy.
func (p *Pipeline) Run(ctx context.Context, episodeID int64) error {
	ep, err := p.store.GetEpisode(ctx, episodeID)
	if err != nil {
		return services.Wrap(services.ErrTransient, componentName, "run", "load episode", err)
	}
	if ep == nil {
		return services.Wrap(services.ErrNotFound, componentName, "run", fmt.Sprintf("episode %d not found", episodeID), nil)
	}
	switch ep.Status {
	case store.EpisodePending, store.EpisodeGenerating:
	default:
		return services.Wrap(services.ErrValidation, componentName, "run",
			fmt.Sprintf("episode %d is %s, not runnable", ep.ID, ep.Status), nil)
	}

	ctx = services.WithEpisodeID(ctx, ep.ID)
	logger := p.logger.With(logging.Int64(logging.FieldEpisodeID, ep.ID))
	logger.Info("episode run started", logging.String("episode_type", string(ep.EpisodeType)))
	p.notify(ctx, notifications.EventEpisodeStarted, notifications.Payload{
		"episode_id": fmt.Sprintf("%d", ep.ID),
		"title":      ep.Title,
		"type":       string(ep.EpisodeType),
	})

	if err := p.generate(ctx, ep); err != nil {
		return p.fail(ctx, ep, "generating", err)
	}
	if err := p.stitch(ctx, ep); err != nil {
		return p.fail(ctx, ep, "stitching", err)
	}
	if err := p.upload(ctx, ep); err != nil {
		return p.fail(ctx, ep, "uploading", err)
	}

	now := time.Now().UTC()
	ep.Status = store.EpisodePublished
	ep.PublishedAt = &now
	ep.LastError = ""
	ep.LastErrorKind = ""
	if err := p.store.UpdateEpisode(ctx, ep); err != nil {
		return p.fail(ctx, ep, "publishing", services.Wrap(services.ErrTransient, componentName, "run", "persist published status", err))
	}

	cost, err := p.store.EpisodeCost(ctx, ep.ID)
	if err != nil {
		cost = ep.ScriptCostUSD
	}
	p.notify(ctx, notifications.EventEpisodePublished, notifications.Payload{
		"episode_id": fmt.Sprintf("%d", ep.ID),
		"title":      ep.Title,
		"url":        ep.YouTubeURL,
		"cost_usd":   fmt.Sprintf("%.4f", cost),
	})
	logger.Info("episode published",
		logging.String("video_id", ep.YouTubeVideoID),
		logging.Float64("cost_usd", cost),
	)

	p.cleanup(ctx, ep)
	return nil
}

func (p *Pipeline) generate(ctx context.Context, ep *store.Episode) error {
	ctx = services.WithPhase(ctx, "generating")
	if ep.Status != store.EpisodeGenerating || ep.GenerationStartedAt == nil {
		now := time.Now().UTC()
		ep.Status = store.EpisodeGenerating
		if ep.GenerationStartedAt == nil {
			ep.GenerationStartedAt = &now
		}
		if err := p.store.UpdateEpisode(ctx, ep); err != nil {
			return services.Wrap(services.ErrTransient, componentName, "generate", "persist status", err)
		}
	}

	if err := p.producer.Produce(ctx, ep); err != nil {
		return err
	}

	if err := p.sessions.WithClips(ctx, func(clips assets.ClipGenerator) error {
		return p.synthesizer.SynthesizeAll(ctx, ep, clips)
	}); err != nil {
		return err
	}

	now := time.Now().UTC()
	ep.GenerationCompletedAt = &now
	return nil
}

func (p *Pipeline) stitch(ctx context.Context, ep *store.Episode) error {
	ctx = services.WithPhase(ctx, "stitching")
	ep.Status = store.EpisodeStitching
	if err := p.store.UpdateEpisode(ctx, ep); err != nil {
		return services.Wrap(services.ErrTransient, componentName, "stitch", "persist status", err)
	}
	return p.stitcher.Stitch(ctx, ep)
}

func (p *Pipeline) upload(ctx context.Context, ep *store.Episode) error {
	ctx = services.WithPhase(ctx, "uploading")
	now := time.Now().UTC()
	ep.Status = store.EpisodeUploading
	ep.UploadStartedAt = &now
	if err := p.store.UpdateEpisode(ctx, ep); err != nil {
		return services.Wrap(services.ErrTransient, componentName, "upload", "persist status", err)
	}
	return p.publisher.Publish(ctx, ep)
}

func (p *Pipeline) fail(ctx context.Context, ep *store.Episode, phase string, cause error) error {
	details := services.Details(cause)
	ep.SetFailed(details.Message, string(details.Kind))
	if err := p.store.UpdateEpisode(ctx, ep); err != nil {
		p.logger.Error("failed to persist failure state",
			logging.Int64(logging.FieldEpisodeID, ep.ID),
			logging.Error(err),
		)
	}
	p.logger.Error("episode run failed",
		logging.Int64(logging.FieldEpisodeID, ep.ID),
		logging.String(logging.FieldPhase, phase),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.Error(cause),
	)
	if errors.Is(cause, services.ErrSceneExhausted) {
		p.notify(ctx, notifications.EventSceneExhausted, notifications.Payload{
			"episode_id": fmt.Sprintf("%d", ep.ID),
			"title":      ep.Title,
			"error":      details.Message,
		})
	}
	p.notify(ctx, notifications.EventEpisodeFailed, notifications.Payload{
		"episode_id": fmt.Sprintf("%d", ep.ID),
		"title":      ep.Title,
		"phase":      phase,
		"error":      details.Message,
	})
	return cause
}

// cleanup expires intermediate artifacts for rounds older than the
// configured retention window. Failures are logged, never fatal: the run
// already succeeded.
func (p *Pipeline) cleanup(ctx context.Context, ep *store.Episode) {
	keep := p.cfg.Storage.RetentionRaces
	if keep <= 0 || ep.RaceID == nil || p.storage == nil {
		return
	}
	race, err := p.store.GetRace(ctx, *ep.RaceID)
	if err != nil || race == nil {
		return
	}
	latest, err := p.store.LatestRound(ctx, race.Season)
	if err != nil {
		p.logger.Warn("retention sweep skipped", logging.Error(err))
		return
	}
	threshold := latest - keep
	if threshold <= 0 {
		return
	}
	expired, err := p.store.RacesBeforeRound(ctx, race.Season, threshold)
	if err != nil {
		p.logger.Warn("retention sweep skipped", logging.Error(err))
		return
	}
	for _, old := range expired {
		prefix := objstore.RacePrefix(old.ID)
		for _, bucket := range []string{p.storage.SceneImagesBucket(), p.storage.VideoClipsBucket()} {
			removed, bytes, err := p.storage.DeletePrefix(ctx, bucket, prefix)
			if err != nil {
				p.logger.Warn("retention delete failed",
					logging.String("bucket", bucket),
					logging.String("prefix", prefix),
					logging.Error(err),
				)
				continue
			}
			if removed > 0 {
				p.logger.Info("expired stored artifacts",
					logging.String("bucket", bucket),
					logging.String("prefix", prefix),
					logging.Int("objects", removed),
					logging.Int64("bytes", bytes),
				)
			}
		}
	}
}

func (p *Pipeline) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Publish(ctx, event, payload); err != nil {
		p.logger.Warn("notification failed",
			logging.String(logging.FieldEventType, string(event)),
			logging.Error(err),
		)
	}
}

// NewSessionScope adapts the space lifecycle manager to the pipeline's
// session contract. Every call wakes the space, runs fn against the live
// session, and pauses the space again on the way out.
func NewSessionScope(backend synth.Backend, cfg config.Synth, logger *slog.Logger) SessionScope {
	return &synthScope{backend: backend, cfg: cfg, logger: logger}
}

type synthScope struct {
	backend synth.Backend
	cfg     config.Synth
	logger  *slog.Logger
}

func (s *synthScope) WithClips(ctx context.Context, fn func(assets.ClipGenerator) error) error {
	return synth.WithSession(ctx, s.backend, s.cfg, s.logger, func(session *synth.Session) error {
		return fn(session)
	})
}
