package daemon_test

import (
	"context"
	"testing"

	"gridlock/internal/daemon"
	"gridlock/internal/store"
	"gridlock/internal/testsupport"
	"gridlock/internal/workflow"
)

type idleRunner struct{}

func (idleRunner) Run(ctx context.Context, _ int64) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	mgr := workflow.NewManager(cfg, st, idleRunner{}, nil, nil)

	d, err := daemon.New(cfg, st, nil, mgr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	if err := d.Start(context.Background()); err == nil {
		t.Fatalf("second Start should fail")
	}

	status, err := d.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running {
		t.Fatalf("status should report running")
	}
	if status.Episodes == nil {
		t.Fatalf("status missing episode summary")
	}

	d.Stop()
	status, err = d.Status(context.Background())
	if err != nil {
		t.Fatalf("Status after stop: %v", err)
	}
	if status.Running {
		t.Fatalf("status should report stopped")
	}
}

func TestDaemonSecondInstanceBlocked(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	first, err := daemon.New(cfg, st, nil, workflow.NewManager(cfg, st, idleRunner{}, nil, nil))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer first.Stop()

	second, err := daemon.New(cfg, st, nil, workflow.NewManager(cfg, st, idleRunner{}, nil, nil))
	if err != nil {
		t.Fatalf("New second: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatalf("second instance acquired the lock")
	}
}

func TestDaemonHealthCounts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.NewEpisode(t, st, "Pending One", store.TypePostRace)

	d, err := daemon.New(cfg, st, nil, workflow.NewManager(cfg, st, idleRunner{}, nil, nil))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	status, err := d.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Episodes.Pending != 1 || status.Episodes.Total != 1 {
		t.Fatalf("unexpected health summary %+v", status.Episodes)
	}
}
