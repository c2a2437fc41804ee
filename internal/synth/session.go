package synth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gridlock/internal/config"
	"gridlock/internal/logging"
	"gridlock/internal/services"
	"gridlock/internal/services/hfspace"
)

const componentName = "synth"

// Backend is the remote synthesis resource a session controls. The hfspace
// client satisfies it; tests substitute fakes.
type Backend interface {
	Status(ctx context.Context) (hfspace.State, error)
	Restart(ctx context.Context) error
	Pause(ctx context.Context) error
	Probe(ctx context.Context) error
	Generate(ctx context.Context, req hfspace.GenerateRequest, destPath string) error
}

// retryBackoffBase scales the pause between acquisition attempts; attempt
// n waits n times this long. Tests shrink it.
var retryBackoffBase = 30 * time.Second

// Session scopes exclusive use of the pay-per-use synthesis backend. The
// backend is started on acquisition and paused on release so GPU billing
// covers only active generation.
type Session struct {
	backend Backend
	cfg     config.Synth
	quality Quality
	logger  *slog.Logger
}

// NewSession wraps a backend with lifecycle management.
func NewSession(backend Backend, cfg config.Synth, logger *slog.Logger) (*Session, error) {
	quality, err := ParseQuality(cfg.Quality)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, componentName, "new-session", "invalid quality", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Session{
		backend: backend,
		cfg:     cfg,
		quality: quality,
		logger:  logging.NewComponentLogger(logger, componentName),
	}, nil
}

func (s *Session) maxAttempts() int {
	if s.cfg.MaxAttempts > 0 {
		return s.cfg.MaxAttempts
	}
	return 3
}

func (s *Session) pollInterval() time.Duration {
	if s.cfg.PollIntervalSeconds > 0 {
		return time.Duration(s.cfg.PollIntervalSeconds) * time.Second
	}
	return 10 * time.Second
}

func (s *Session) startupTimeout() time.Duration {
	if s.cfg.StartupTimeoutSeconds > 0 {
		return time.Duration(s.cfg.StartupTimeoutSeconds) * time.Second
	}
	return 5 * time.Minute
}

// EnsureRunning brings the backend to a state where generation calls will
// succeed: container RUNNING and the app inside answering. It makes a
// bounded number of attempts, restarting the backend when it is asleep,
// paused, or stopped, and backs off linearly between attempts. Failure
// after the final attempt reports the backend as unavailable.
func (s *Session) EnsureRunning(ctx context.Context) error {
	attempts := s.maxAttempts()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.ensureOnce(ctx, attempt)
		if err == nil {
			s.logger.Info("backend ready", logging.Int("attempt", attempt))
			return nil
		}
		lastErr = err
		s.logger.Warn("backend acquisition attempt failed",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", attempts),
			logging.Error(err),
		)

		if attempt < attempts {
			if err := sleepCtx(ctx, time.Duration(attempt)*retryBackoffBase); err != nil {
				return err
			}
		}
	}

	return services.Wrap(services.ErrResourceUnavailable, componentName, "ensure-running",
		fmt.Sprintf("backend not ready after %d attempts", attempts), lastErr)
}

func (s *Session) ensureOnce(ctx context.Context, attempt int) error {
	state, err := s.backend.Status(ctx)
	if err != nil {
		return err
	}
	s.logger.Debug("backend state",
		logging.String("state", string(state)),
		logging.Int("attempt", attempt),
	)

	switch state {
	case hfspace.StateRunning:
		// Container up does not mean the app is loaded; verify before
		// declaring victory.
		if err := s.backend.Probe(ctx); err == nil {
			return nil
		}
		return s.awaitReady(ctx)
	case hfspace.StateSleeping, hfspace.StatePaused, hfspace.StateStopped:
		if err := s.backend.Restart(ctx); err != nil {
			return err
		}
		return s.awaitReady(ctx)
	case hfspace.StateBuilding:
		return s.awaitReady(ctx)
	case hfspace.StateError:
		if err := s.backend.Restart(ctx); err != nil {
			return err
		}
		return s.awaitReady(ctx)
	default:
		return services.Wrap(services.ErrResourceUnavailable, componentName, "ensure-running",
			fmt.Sprintf("backend in unknown state %s", state), nil)
	}
}

// awaitReady polls until the backend reports RUNNING and the app answers a
// probe, or the startup timeout expires.
func (s *Session) awaitReady(ctx context.Context) error {
	deadline := time.Now().Add(s.startupTimeout())
	interval := s.pollInterval()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return services.Wrap(services.ErrTimeout, componentName, "await-ready",
				fmt.Sprintf("backend not ready within %s", s.startupTimeout()), nil)
		}

		state, err := s.backend.Status(ctx)
		if err == nil && state == hfspace.StateRunning {
			if probeErr := s.backend.Probe(ctx); probeErr == nil {
				return nil
			}
		}
		if err == nil && state == hfspace.StateError {
			return services.Wrap(services.ErrResourceUnavailable, componentName, "await-ready",
				"backend entered error state during startup", nil)
		}

		if err := sleepCtx(ctx, interval); err != nil {
			return err
		}
	}
}

// Generate synthesizes one clip using the session's quality preset.
func (s *Session) Generate(ctx context.Context, prompt, imagePath, destPath string) error {
	return s.backend.Generate(ctx, hfspace.GenerateRequest{
		Prompt:      prompt,
		ImagePath:   imagePath,
		SampleSteps: s.quality.SampleSteps(),
	}, destPath)
}

// Shutdown pauses the backend so billing stops. Failures are logged, never
// propagated: a stuck pause must not fail an otherwise finished episode.
func (s *Session) Shutdown(ctx context.Context) {
	if err := s.backend.Pause(ctx); err != nil {
		s.logger.Warn("backend pause failed", logging.Error(err))
		return
	}
	s.logger.Info("backend paused")
}

// WithSession runs fn with an acquired session and always releases the
// backend afterwards, whether fn succeeds or not.
func WithSession(ctx context.Context, backend Backend, cfg config.Synth, logger *slog.Logger, fn func(*Session) error) error {
	session, err := NewSession(backend, cfg, logger)
	if err != nil {
		return err
	}
	if err := session.EnsureRunning(ctx); err != nil {
		return err
	}
	defer session.Shutdown(context.WithoutCancel(ctx))
	return fn(session)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
