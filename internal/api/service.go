// Package api is the programmatic trigger surface. Any transport (CLI
// today, HTTP tomorrow) maps its verbs onto these methods; the error kinds
// carry the not-found / conflict / invalid-input distinctions a transport
// needs for status mapping.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gridlock/internal/config"
	"gridlock/internal/logging"
	"gridlock/internal/services"
	"gridlock/internal/store"
)

const componentName = "api"

// Service exposes episode triggering and inspection operations.
type Service struct {
	store  *store.Store
	cfg    *config.Config
	logger *slog.Logger
}

func NewService(st *store.Store, cfg *config.Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:  st,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, componentName),
	}
}

// GenerateRequest describes a manual episode trigger.
type GenerateRequest struct {
	RaceID      int64
	EpisodeType store.EpisodeType
	Force       bool
}

// Generate creates a pending episode for a race. A second trigger for the
// same race and type is a conflict unless forced.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*store.Episode, error) {
	episodeType := req.EpisodeType
	if episodeType == "" {
		episodeType = store.TypePostRace
	}
	switch episodeType {
	case store.TypePostRace, store.TypePostFP2, store.TypePostSprint, store.TypeWeeklyRecap, store.TypePreRace:
	default:
		return nil, services.Wrap(services.ErrValidation, componentName, "generate",
			fmt.Sprintf("unknown episode type %q", episodeType), nil)
	}

	var raceID *int64
	if req.RaceID > 0 {
		race, err := s.store.GetRace(ctx, req.RaceID)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, componentName, "generate", "load race", err)
		}
		if race == nil {
			return nil, services.Wrap(services.ErrNotFound, componentName, "generate",
				fmt.Sprintf("race %d not found", req.RaceID), nil)
		}
		raceID = &race.ID

		if !req.Force {
			existing, err := s.store.FindEpisodeByRaceAndType(ctx, race.ID, episodeType)
			if err != nil {
				return nil, services.Wrap(services.ErrTransient, componentName, "generate", "check for duplicate", err)
			}
			if existing != nil {
				return nil, services.Wrap(services.ErrConflict, componentName, "generate",
					fmt.Sprintf("episode %d already covers race %d (%s)", existing.ID, race.ID, episodeType), nil)
			}
		}
	}

	ep := &store.Episode{
		RaceID:      raceID,
		EpisodeType: episodeType,
		Status:      store.EpisodePending,
		TriggeredAt: time.Now().UTC(),
		SceneCount:  s.cfg.Video.SceneCount,
	}
	if err := s.store.CreateEpisode(ctx, ep); err != nil {
		return nil, services.Wrap(services.ErrTransient, componentName, "generate", "create episode", err)
	}
	s.logger.Info("episode triggered",
		logging.Int64(logging.FieldEpisodeID, ep.ID),
		logging.String("episode_type", string(episodeType)),
		logging.Bool("forced", req.Force),
	)
	return ep, nil
}

// Retry resets a failed episode to pending so the workflow picks it up
// again. Only failed episodes are retriable.
func (s *Service) Retry(ctx context.Context, episodeID int64) (*store.Episode, error) {
	ep, err := s.store.GetEpisode(ctx, episodeID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, componentName, "retry", "load episode", err)
	}
	if ep == nil {
		return nil, services.Wrap(services.ErrNotFound, componentName, "retry",
			fmt.Sprintf("episode %d not found", episodeID), nil)
	}
	if ep.Status != store.EpisodeFailed {
		return nil, services.Wrap(services.ErrValidation, componentName, "retry",
			fmt.Sprintf("episode %d is %s, only failed episodes can be retried", episodeID, ep.Status), nil)
	}
	if err := s.store.ResetEpisode(ctx, episodeID); err != nil {
		return nil, services.Wrap(services.ErrTransient, componentName, "retry", "reset episode", err)
	}
	s.logger.Info("episode reset for retry", logging.Int64(logging.FieldEpisodeID, episodeID))
	return s.store.GetEpisode(ctx, episodeID)
}

// Status returns one episode with its scenes.
func (s *Service) Status(ctx context.Context, episodeID int64) (*store.Episode, []*store.Scene, error) {
	ep, err := s.store.GetEpisode(ctx, episodeID)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrTransient, componentName, "status", "load episode", err)
	}
	if ep == nil {
		return nil, nil, services.Wrap(services.ErrNotFound, componentName, "status",
			fmt.Sprintf("episode %d not found", episodeID), nil)
	}
	scenes, err := s.store.ScenesForEpisode(ctx, episodeID)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrTransient, componentName, "status", "load scenes", err)
	}
	return ep, scenes, nil
}

// List returns recent episodes, optionally filtered by status.
func (s *Service) List(ctx context.Context, status store.EpisodeStatus, limit int) ([]*store.Episode, error) {
	episodes, err := s.store.ListEpisodes(ctx, status, limit)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, componentName, "list", "list episodes", err)
	}
	return episodes, nil
}

// Health summarizes episode counts by lifecycle bucket.
func (s *Service) Health(ctx context.Context) (*store.HealthSummary, error) {
	summary, err := s.store.Health(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, componentName, "health", "summarize episodes", err)
	}
	return summary, nil
}

// TriggerScheduled launches a scheduled job ahead of its due time. The job
// must still be in the scheduled state.
func (s *Service) TriggerScheduled(ctx context.Context, jobID int64) (*store.Episode, error) {
	job, err := s.store.GetScheduledJob(ctx, jobID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, componentName, "trigger-scheduled", "load job", err)
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, componentName, "trigger-scheduled",
			fmt.Sprintf("scheduled job %d not found", jobID), nil)
	}
	if job.Status != store.JobScheduled {
		return nil, services.Wrap(services.ErrValidation, componentName, "trigger-scheduled",
			fmt.Sprintf("job %d is %s, only scheduled jobs can be triggered", jobID, job.Status), nil)
	}

	req := GenerateRequest{EpisodeType: job.TriggerType, Force: true}
	if job.RaceID != nil {
		req.RaceID = *job.RaceID
	}
	ep, err := s.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.store.MarkJobRunning(ctx, jobID, ep.ID); err != nil {
		return nil, services.Wrap(services.ErrTransient, componentName, "trigger-scheduled", "mark job running", err)
	}
	return ep, nil
}
