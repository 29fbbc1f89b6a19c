package daemon_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"dripfeed/internal/daemon"
	"dripfeed/internal/processor"
	"dripfeed/internal/testsupport"
)

type countingScanner struct {
	calls atomic.Int32
	ran   chan struct{}
}

func newCountingScanner() *countingScanner {
	return &countingScanner{ran: make(chan struct{}, 16)}
}

func (s *countingScanner) RunOnce(context.Context) processor.Summary {
	s.calls.Add(1)
	select {
	case s.ran <- struct{}{}:
	default:
	}
	return processor.Summary{ScanID: "scan-1", Status: processor.StatusIdle}
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	scanner := newCountingScanner()

	d, err := daemon.New(cfg, daemon.Options{Store: store, Scanner: scanner, PollEvery: time.Hour})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second Start to fail")
	}

	select {
	case <-scanner.ran:
	case <-time.After(5 * time.Second):
		t.Fatal("expected an immediate scan after start")
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected running status")
	}
	if status.LastScan == nil || status.LastScan.ScanID != "scan-1" {
		t.Fatalf("expected last scan in status, got %+v", status.LastScan)
	}
	if status.PollInterval != time.Hour.String() {
		t.Fatalf("unexpected poll interval %q", status.PollInterval)
	}
	if d.APIAddress() == "" {
		t.Fatal("expected API to be listening")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonLockPreventsSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	store := testsupport.MustOpenStore(t, cfg)

	first, err := daemon.New(cfg, daemon.Options{Store: store, Scanner: newCountingScanner(), PollEvery: time.Hour})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	second, err := daemon.New(cfg, daemon.Options{Store: store, Scanner: newCountingScanner(), PollEvery: time.Hour})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(first.Stop)
	t.Cleanup(second.Stop)

	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("expected lock contention error")
	}
	first.Stop()
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("second Start after release: %v", err)
	}
}

func TestDaemonScansOnInterval(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	store := testsupport.MustOpenStore(t, cfg)
	scanner := newCountingScanner()

	d, err := daemon.New(cfg, daemon.Options{Store: store, Scanner: scanner, PollEvery: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for scanner.calls.Load() < 3 {
		select {
		case <-scanner.ran:
		case <-deadline:
			t.Fatalf("expected repeated scans, got %d", scanner.calls.Load())
		}
	}
}

func TestDaemonPrunesExpiredCompletedJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	cfg.Workflow.CompletedRetentionDays = 1
	store := testsupport.MustOpenStore(t, cfg)

	store.SetClock(func() time.Time { return time.Now().Add(-72 * time.Hour) })
	old := testsupport.NewJob(t, store, time.Now(), 1, 1, testsupport.Steps("a", "1"))
	old.Steps = nil
	if err := store.Update(context.Background(), old); err != nil {
		t.Fatalf("Update: %v", err)
	}
	store.SetClock(time.Now)
	fresh := testsupport.NewJob(t, store, time.Now().Add(time.Hour), 1, 1, testsupport.Steps("a", "1"))

	scanner := newCountingScanner()
	d, err := daemon.New(cfg, daemon.Options{Store: store, Scanner: scanner, PollEvery: time.Hour})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := store.GetByID(context.Background(), old.ID); err != nil {
			if _, err := store.GetByID(context.Background(), fresh.ID); err != nil {
				t.Fatalf("pending job must survive pruning: %v", err)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected expired completed job to be pruned")
}
