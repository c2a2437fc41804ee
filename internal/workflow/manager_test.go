package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"gridlock/internal/store"
	"gridlock/internal/testsupport"
)

type recordingRunner struct {
	mu      sync.Mutex
	ran     []int64
	started chan int64
	release chan struct{}
	err     error
}

func newRecordingRunner(buffer int) *recordingRunner {
	return &recordingRunner{started: make(chan int64, buffer)}
}

func (r *recordingRunner) Run(ctx context.Context, episodeID int64) error {
	r.mu.Lock()
	r.ran = append(r.ran, episodeID)
	r.mu.Unlock()
	r.started <- episodeID
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return r.err
}

func (r *recordingRunner) runCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ran)
}

type countingLauncher struct {
	mu    sync.Mutex
	calls int
}

func (c *countingLauncher) LaunchDue(context.Context, time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.calls == 1 {
		return 1, nil
	}
	return 0, nil
}

func (c *countingLauncher) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func startManager(t *testing.T, m *Manager) {
	t.Helper()
	m.pollInterval = 10 * time.Millisecond
	m.errorInterval = 10 * time.Millisecond
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(m.Stop)
}

func awaitEpisode(t *testing.T, ch <-chan int64) int64 {
	t.Helper()
	select {
	case id := <-ch:
		return id
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for episode dispatch")
		return 0
	}
}

func TestManagerDispatchesPendingEpisodes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	first := testsupport.NewEpisode(t, st, "First", store.TypePostRace)
	second := testsupport.NewEpisode(t, st, "Second", store.TypeWeeklyRecap)

	runner := newRecordingRunner(2)
	m := NewManager(cfg, st, runner, nil, nil)
	startManager(t, m)

	got := map[int64]bool{
		awaitEpisode(t, runner.started): true,
		awaitEpisode(t, runner.started): true,
	}
	if !got[first.ID] || !got[second.ID] {
		t.Fatalf("dispatched %v, want both %d and %d", got, first.ID, second.ID)
	}

	// Claims flipped both rows out of pending before dispatch.
	claimed, err := st.GetEpisode(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if claimed.Status != store.EpisodeGenerating {
		t.Fatalf("claimed status %s, want generating", claimed.Status)
	}
}

func TestManagerHonorsConcurrencyLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.MaxConcurrent = 1
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.NewEpisode(t, st, "First", store.TypePostRace)
	testsupport.NewEpisode(t, st, "Second", store.TypePostRace)

	runner := newRecordingRunner(2)
	runner.release = make(chan struct{})
	m := NewManager(cfg, st, runner, nil, nil)
	startManager(t, m)

	awaitEpisode(t, runner.started)
	time.Sleep(50 * time.Millisecond)
	if n := runner.runCount(); n != 1 {
		t.Fatalf("%d episodes in flight with limit 1", n)
	}

	close(runner.release)
	awaitEpisode(t, runner.started)
}

func TestManagerRecordsRunFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.NewEpisode(t, st, "Doomed", store.TypePostRace)

	runner := newRecordingRunner(1)
	runner.err = context.DeadlineExceeded
	m := NewManager(cfg, st, runner, nil, nil)
	startManager(t, m)

	awaitEpisode(t, runner.started)
	deadline := time.Now().Add(5 * time.Second)
	for m.LastError() == nil {
		if time.Now().After(deadline) {
			t.Fatalf("run failure never recorded")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestManagerSweepsScheduledJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	launcher := &countingLauncher{}
	m := NewManager(cfg, st, newRecordingRunner(1), launcher, nil)
	startManager(t, m)

	deadline := time.Now().Add(5 * time.Second)
	for launcher.callCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("job launcher not swept on poll loop")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestManagerRejectsDoubleStart(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	m := NewManager(cfg, st, newRecordingRunner(1), nil, nil)
	startManager(t, m)
	if err := m.Start(context.Background()); err == nil {
		t.Fatalf("second Start should fail while running")
	}
	if !m.Running() {
		t.Fatalf("manager should report running")
	}
}
