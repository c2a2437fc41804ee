// Package scheduler turns calendar events into scheduled jobs and launches
// the ones that come due. The calendar itself is an external collaborator;
// only the narrow CalendarSource contract lives here.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gridlock/internal/api"
	"gridlock/internal/logging"
	"gridlock/internal/services"
	"gridlock/internal/store"
)

const componentName = "scheduler"

// Trigger delays relative to the session end they react to.
const (
	postFP2Delay    = time.Hour
	postSprintDelay = time.Hour
	postRaceDelay   = 2 * time.Hour
)

// Event is one calendar entry from an external source. Session times are
// UTC; absent sessions are nil and produce no trigger.
type Event struct {
	Season          int
	Round           int
	RaceName        string
	CircuitName     string
	Country         string
	RaceDate        time.Time
	IsSprintWeekend bool

	FP2Start    *time.Time
	SprintStart *time.Time
	RaceStart   *time.Time

	// ExtraTriggers carries source-computed launches such as off-week
	// recaps, where the timing heuristic lives with the source.
	ExtraTriggers []ExtraTrigger
}

// ExtraTrigger is a source-supplied launch not tied to a session time.
type ExtraTrigger struct {
	Type        store.EpisodeType
	At          time.Time
	Description string
}

// CalendarSource supplies the season's events.
type CalendarSource interface {
	Season(ctx context.Context, year int) ([]Event, error)
}

// EpisodeLauncher creates the episode a due job asks for.
type EpisodeLauncher interface {
	Generate(ctx context.Context, req api.GenerateRequest) (*store.Episode, error)
}

// SyncStats summarizes one calendar sync pass.
type SyncStats struct {
	RacesChecked int
	RacesAdded   int
	JobsCreated  int
}

// Scheduler persists calendar-derived jobs and launches due ones.
type Scheduler struct {
	store    *store.Store
	source   CalendarSource
	launcher EpisodeLauncher
	logger   *slog.Logger
}

func New(st *store.Store, source CalendarSource, launcher EpisodeLauncher, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{
		store:    st,
		source:   source,
		launcher: launcher,
		logger:   logging.NewComponentLogger(logger, componentName),
	}
}

// Sync pulls a season from the calendar source, inserts unknown races, and
// creates the standard trigger jobs for each. Repeated syncs are idempotent.
func (s *Scheduler) Sync(ctx context.Context, season int) (SyncStats, error) {
	var stats SyncStats
	if s.source == nil {
		return stats, services.Wrap(services.ErrConfiguration, componentName, "sync", "no calendar source configured", nil)
	}
	events, err := s.source.Season(ctx, season)
	if err != nil {
		return stats, services.Wrap(services.ErrTransient, componentName, "sync", "fetch season calendar", err)
	}

	for _, event := range events {
		stats.RacesChecked++
		race, err := s.store.FindRace(ctx, event.Season, event.Round)
		if err != nil {
			return stats, services.Wrap(services.ErrTransient, componentName, "sync", "look up race", err)
		}
		if race == nil {
			race = &store.Race{
				Season:          event.Season,
				RoundNumber:     event.Round,
				RaceName:        event.RaceName,
				CircuitName:     event.CircuitName,
				Country:         event.Country,
				RaceDate:        event.RaceDate,
				IsSprintWeekend: event.IsSprintWeekend,
			}
			if err := s.store.InsertRace(ctx, race); err != nil {
				return stats, services.Wrap(services.ErrTransient, componentName, "sync", "insert race", err)
			}
			stats.RacesAdded++
		}

		created, err := s.scheduleRaceJobs(ctx, race, event)
		if err != nil {
			return stats, err
		}
		stats.JobsCreated += created
	}

	s.logger.Info("calendar sync complete",
		logging.Int("season", season),
		logging.Int("races_checked", stats.RacesChecked),
		logging.Int("races_added", stats.RacesAdded),
		logging.Int("jobs_created", stats.JobsCreated),
	)
	return stats, nil
}

func (s *Scheduler) scheduleRaceJobs(ctx context.Context, race *store.Race, event Event) (int, error) {
	created := 0

	add := func(raceID *int64, trigger store.EpisodeType, at time.Time, description string) error {
		exists, err := s.store.HasScheduledJob(ctx, raceID, trigger, at)
		if err != nil {
			return services.Wrap(services.ErrTransient, componentName, "sync", "check existing job", err)
		}
		if exists {
			return nil
		}
		job := &store.ScheduledJob{
			RaceID:       raceID,
			TriggerType:  trigger,
			ScheduledFor: at,
			Status:       store.JobScheduled,
			Description:  description,
		}
		if err := s.store.CreateScheduledJob(ctx, job); err != nil {
			return services.Wrap(services.ErrTransient, componentName, "sync", "create job", err)
		}
		created++
		return nil
	}

	if event.FP2Start != nil {
		at := event.FP2Start.Add(postFP2Delay).UTC()
		if err := add(&race.ID, store.TypePostFP2, at, fmt.Sprintf("Post-FP2 recap for %s", race.RaceName)); err != nil {
			return created, err
		}
	}
	if event.IsSprintWeekend && event.SprintStart != nil {
		at := event.SprintStart.Add(postSprintDelay).UTC()
		if err := add(&race.ID, store.TypePostSprint, at, fmt.Sprintf("Post-Sprint recap for %s", race.RaceName)); err != nil {
			return created, err
		}
	}
	if event.RaceStart != nil {
		at := event.RaceStart.Add(postRaceDelay).UTC()
		if err := add(&race.ID, store.TypePostRace, at, fmt.Sprintf("Post-Race recap for %s", race.RaceName)); err != nil {
			return created, err
		}
	}
	for _, extra := range event.ExtraTriggers {
		description := extra.Description
		if description == "" {
			description = fmt.Sprintf("%s for %s", extra.Type, extra.At.Format("2006-01-02"))
		}
		if err := add(nil, extra.Type, extra.At.UTC(), description); err != nil {
			return created, err
		}
	}
	return created, nil
}

// LaunchDue creates episodes for every job whose time has passed and links
// them. Retriable launch failures leave the job scheduled for the next
// sweep; precondition failures retire it.
func (s *Scheduler) LaunchDue(ctx context.Context, now time.Time) (int, error) {
	if s.launcher == nil {
		return 0, services.Wrap(services.ErrConfiguration, componentName, "launch-due", "no episode launcher configured", nil)
	}
	due, err := s.store.DueJobs(ctx, now)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, componentName, "launch-due", "query due jobs", err)
	}

	launched := 0
	var firstErr error
	for _, job := range due {
		req := api.GenerateRequest{EpisodeType: job.TriggerType}
		if job.RaceID != nil {
			req.RaceID = *job.RaceID
		}
		ep, err := s.launcher.Generate(ctx, req)
		if err != nil {
			if errors.Is(err, services.ErrConflict) {
				// Somebody already triggered this episode by hand.
				if finishErr := s.store.FinishJob(ctx, job.ID, store.JobCancelled); finishErr != nil {
					s.logger.Warn("failed to cancel superseded job", logging.Error(finishErr))
				}
				continue
			}
			if services.IsRetriable(err) {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			s.logger.Error("scheduled job launch rejected",
				logging.Int64("job_id", job.ID),
				logging.Error(err),
			)
			if finishErr := s.store.FinishJob(ctx, job.ID, store.JobFailed); finishErr != nil {
				s.logger.Warn("failed to retire job", logging.Error(finishErr))
			}
			continue
		}
		if err := s.store.MarkJobRunning(ctx, job.ID, ep.ID); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		launched++
		s.logger.Info("scheduled job launched",
			logging.Int64("job_id", job.ID),
			logging.Int64(logging.FieldEpisodeID, ep.ID),
			logging.String("trigger", string(job.TriggerType)),
		)
	}

	if err := s.reconcileRunning(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return launched, firstErr
}

// reconcileRunning retires running jobs whose episodes reached a terminal
// state.
func (s *Scheduler) reconcileRunning(ctx context.Context) error {
	running, err := s.store.ListScheduledJobs(ctx, store.JobRunning)
	if err != nil {
		return services.Wrap(services.ErrTransient, componentName, "reconcile", "list running jobs", err)
	}
	for _, job := range running {
		if job.EpisodeID == nil {
			continue
		}
		ep, err := s.store.GetEpisode(ctx, *job.EpisodeID)
		if err != nil || ep == nil {
			continue
		}
		switch ep.Status {
		case store.EpisodePublished:
			if err := s.store.FinishJob(ctx, job.ID, store.JobCompleted); err != nil {
				s.logger.Warn("failed to complete job", logging.Error(err))
			}
		case store.EpisodeFailed:
			if err := s.store.FinishJob(ctx, job.ID, store.JobFailed); err != nil {
				s.logger.Warn("failed to retire job", logging.Error(err))
			}
		}
	}
	return nil
}
