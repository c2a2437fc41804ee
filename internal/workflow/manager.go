// Package workflow runs the background loop that turns pending episode rows
// into pipeline runs, one claim at a time with bounded concurrency.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"gridlock/internal/config"
	"gridlock/internal/logging"
	"gridlock/internal/services"
	"gridlock/internal/store"
)

// Runner executes the full episode pipeline for one episode.
type Runner interface {
	Run(ctx context.Context, episodeID int64) error
}

// JobLauncher converts due scheduled jobs into pending episodes. Optional;
// a manager without one only processes episodes created by hand.
type JobLauncher interface {
	LaunchDue(ctx context.Context, now time.Time) (int, error)
}

// Manager polls the store for work and dispatches pipeline runs.
type Manager struct {
	cfg    *config.Config
	store  *store.Store
	runner Runner
	jobs   JobLauncher
	logger *slog.Logger

	pollInterval  time.Duration
	errorInterval time.Duration
	slots         chan struct{}

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// NewManager constructs a workflow manager. A nil jobs launcher disables
// calendar-driven launches.
func NewManager(cfg *config.Config, st *store.Store, runner Runner, jobs JobLauncher, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	concurrent := cfg.Workflow.MaxConcurrent
	if concurrent < 1 {
		concurrent = 1
	}
	poll := time.Duration(cfg.Workflow.PollInterval) * time.Second
	if poll <= 0 {
		poll = 15 * time.Second
	}
	retry := time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second
	if retry <= 0 {
		retry = poll
	}
	return &Manager{
		cfg:           cfg,
		store:         st,
		runner:        runner,
		jobs:          jobs,
		logger:        logging.NewComponentLogger(logger, "workflow"),
		pollInterval:  poll,
		errorInterval: retry,
		slots:         make(chan struct{}, concurrent),
	}
}

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	go m.runLoop(runCtx)
	return nil
}

// Stop terminates background processing and waits for in-flight episodes.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Running reports whether the manager loop is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// LastError returns the most recent dispatch or pipeline error, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) runLoop(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		m.launchDueJobs(ctx)

		// Hold a slot before claiming so a full roster of in-flight
		// episodes never strands a claimed row.
		select {
		case <-ctx.Done():
			return
		case m.slots <- struct{}{}:
		}

		ep, err := m.store.ClaimPendingEpisode(ctx)
		if err != nil {
			<-m.slots
			m.setLastError(err)
			m.logger.Error("failed to claim pending episode",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check database access"),
			)
			m.sleep(ctx, m.errorInterval)
			continue
		}
		if ep == nil {
			<-m.slots
			m.sleep(ctx, m.pollInterval)
			continue
		}

		m.wg.Add(1)
		go m.runEpisode(ctx, ep)
	}
}

func (m *Manager) runEpisode(ctx context.Context, ep *store.Episode) {
	defer m.wg.Done()
	defer func() { <-m.slots }()

	runCtx := services.WithRequestID(ctx, uuid.NewString())
	logger := m.logger.With(logging.Int64(logging.FieldEpisodeID, ep.ID))
	logger.Info("dispatching episode", logging.String("episode_type", string(ep.EpisodeType)))

	if err := m.runner.Run(runCtx, ep.ID); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		m.setLastError(err)
		logger.Error("episode run failed",
			logging.Error(err),
			logging.Bool("retriable", services.IsRetriable(err)),
		)
		return
	}
	logger.Info("episode run finished")
}

func (m *Manager) launchDueJobs(ctx context.Context) {
	if m.jobs == nil {
		return
	}
	launched, err := m.jobs.LaunchDue(ctx, time.Now().UTC())
	if err != nil {
		m.setLastError(err)
		m.logger.Warn("scheduled job launch failed", logging.Error(err))
		return
	}
	if launched > 0 {
		m.logger.Info("launched scheduled jobs", logging.Int("count", launched))
	}
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
