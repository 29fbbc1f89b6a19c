package queue_test

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dripfeed/internal/queue"
	"dripfeed/internal/testsupport"
)

func TestCreateAssignsIDAndPendingStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	due := time.Now().Add(time.Hour)
	job := testsupport.NewJob(t, store, due, 1, 2, testsupport.Steps("install", "tokA", "purchase", "tokB"))
	if job.ID == 0 {
		t.Fatal("expected job ID to be assigned")
	}
	if job.Status != queue.StatusPending {
		t.Fatalf("expected pending, got %s", job.Status)
	}
	if got := job.NextDueAt.Sub(due); got > time.Millisecond || got < -time.Millisecond {
		t.Fatalf("next due mismatch: %s vs %s", job.NextDueAt, due)
	}
	if job.Target.AppName != "TestApp" || job.Owner != "tester" {
		t.Fatalf("unexpected job fields: %+v", job)
	}

	second := testsupport.NewJob(t, store, due, 1, 2, testsupport.Steps("a", "1"))
	if second.ID <= job.ID {
		t.Fatalf("expected monotonically increasing ids, got %d then %d", job.ID, second.ID)
	}
}

func TestCreateRejectsInvalidJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	base := queue.NewJob{
		Target:   queue.Target{AppName: "App"},
		Steps:    testsupport.Steps("a", "1"),
		DelayMin: 1,
		DelayMax: 2,
	}
	cases := map[string]func(*queue.NewJob){
		"no app":        func(j *queue.NewJob) { j.Target.AppName = " " },
		"no steps":      func(j *queue.NewJob) { j.Steps = nil },
		"dup steps":     func(j *queue.NewJob) { j.Steps = testsupport.Steps("a", "1", "a", "2") },
		"blank step":    func(j *queue.NewJob) { j.Steps = testsupport.Steps("", "1") },
		"negative min":  func(j *queue.NewJob) { j.DelayMin = -1 },
		"max below min": func(j *queue.NewJob) { j.DelayMax = 0.5 },
		"nan":           func(j *queue.NewJob) { j.DelayMin = math.NaN() },
		"infinite max":  func(j *queue.NewJob) { j.DelayMax = math.Inf(1) },
		"overflow max":  func(j *queue.NewJob) { j.DelayMax = 3e6 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := base
			mutate(&req)
			if _, err := store.Create(ctx, req); !errors.Is(err, queue.ErrInvalidJob) {
				t.Fatalf("expected ErrInvalidJob, got %v", err)
			}
		})
	}
}

func TestCreateDefaultsDueToNow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	job := testsupport.NewJob(t, store, time.Time{}, 0, 0, testsupport.Steps("a", "1"))
	due, err := store.DueJobs(context.Background(), time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("DueJobs: %v", err)
	}
	if len(due) != 1 || due[0].ID != job.ID {
		t.Fatalf("expected job to be immediately due, got %d jobs", len(due))
	}
}

func TestDueJobsSelectsOnlyPendingPastDue(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	now := time.Now()

	past := testsupport.NewJob(t, store, now.Add(-48*time.Hour), 1, 2, testsupport.Steps("a", "1"))
	exact := testsupport.NewJob(t, store, now, 1, 2, testsupport.Steps("a", "1"))
	testsupport.NewJob(t, store, now.Add(time.Hour), 1, 2, testsupport.Steps("a", "1"))
	done := testsupport.NewJob(t, store, now.Add(-time.Hour), 1, 2, testsupport.Steps("a", "1"))
	done.Steps = nil
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("Update: %v", err)
	}

	due, err := store.DueJobs(ctx, now)
	if err != nil {
		t.Fatalf("DueJobs: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due jobs, got %d", len(due))
	}
	if due[0].ID != past.ID || due[1].ID != exact.ID {
		t.Fatalf("unexpected due order: %d, %d", due[0].ID, due[1].ID)
	}
}

func TestStepOrderSurvivesReopen(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	names := []string{"zeta", "alpha", "mid", "beta", "10", "2"}
	steps := make(queue.Steps, 0, len(names))
	for i, name := range names {
		steps = append(steps, queue.Step{Name: name, Payload: string(rune('a' + i))})
	}
	job := testsupport.NewJob(t, store, time.Now(), 0, 0, steps)
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	fetched, err := reopened.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	got := fetched.Steps.Names()
	for i := range names {
		if got[i] != names[i] {
			t.Fatalf("step order changed across reopen: got %v want %v", got, names)
		}
	}
}

func TestUpdateIsIdempotentAndFinalizesEmptySteps(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, time.Now(), 1, 2, testsupport.Steps("a", "1", "b", "2"))
	_, job.Steps = job.Steps.Pop()
	job.NextDueAt = time.Now().Add(90 * time.Minute)
	job.StepsDone = 1
	job.LastStep = "a"
	job.LastResultCode = 200

	for i := 0; i < 2; i++ {
		if err := store.Update(ctx, job); err != nil {
			t.Fatalf("Update #%d: %v", i+1, err)
		}
	}
	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(fetched.Steps) != 1 || fetched.Steps[0].Name != "b" {
		t.Fatalf("unexpected steps %v", fetched.Steps.Names())
	}
	if fetched.Revision != job.Revision {
		t.Fatalf("expected stored revision %d to match job, got %d", job.Revision, fetched.Revision)
	}
	if fetched.LastStep != "a" || fetched.LastResultCode != 200 || fetched.StepsDone != 1 {
		t.Fatalf("unexpected bookkeeping %+v", fetched)
	}

	fetched.Steps = queue.Steps{}
	fetched.Status = queue.StatusPending
	if err := store.Update(ctx, fetched); err != nil {
		t.Fatalf("Update empty: %v", err)
	}
	final, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if final.Status != queue.StatusCompleted {
		t.Fatalf("expected empty job to be completed, got %s", final.Status)
	}
	if !final.NextDueAt.IsZero() {
		t.Fatalf("expected zero due time for completed job, got %s", final.NextDueAt)
	}
}

func TestUpdateMissingJobReturnsNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	err := store.Update(context.Background(), &queue.Job{ID: 999, Status: queue.StatusPending, Steps: testsupport.Steps("a", "1")})
	if !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetByID(context.Background(), 999); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from GetByID, got %v", err)
	}
}

func TestUpdateRejectsStaleRevision(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, time.Now().Add(-time.Minute), 1, 1, testsupport.Steps("a", "1", "b", "2"))
	late := job.Clone()
	if ok, err := store.Claim(ctx, late, time.Now().Add(-time.Second)); err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	// The first lease has already lapsed, so a second scan claims the job.
	current := mustGetJob(t, store, job.ID)
	if ok, err := store.Claim(ctx, current, time.Now().Add(time.Minute)); err != nil || !ok {
		t.Fatalf("second claim: ok=%v err=%v", ok, err)
	}

	_, late.Steps = late.Steps.Pop()
	late.StepsDone = 1
	err := store.Update(ctx, late)
	if !errors.Is(err, queue.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("conflict must not look like not found: %v", err)
	}

	stored := mustGetJob(t, store, job.ID)
	if len(stored.Steps) != 2 || stored.StepsDone != 0 || stored.Revision != current.Revision {
		t.Fatalf("stale update overwrote newer claim: %+v", stored)
	}
}

func TestClaimIsExclusive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewJob(t, store, time.Now().Add(-time.Minute), 0, 0, testsupport.Steps("a", "1"))
	due, err := store.DueJobs(ctx, time.Now())
	if err != nil || len(due) != 1 {
		t.Fatalf("DueJobs: %v (%d)", err, len(due))
	}

	const contenders = 8
	var wins atomic.Int32
	var wg sync.WaitGroup
	lease := time.Now().Add(time.Minute)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			copyJob := due[0].Clone()
			ok, err := store.Claim(ctx, copyJob, lease)
			if err != nil {
				t.Errorf("Claim: %v", err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one claim to win, got %d", wins.Load())
	}
	stillDue, err := store.DueJobs(ctx, time.Now())
	if err != nil {
		t.Fatalf("DueJobs: %v", err)
	}
	if len(stillDue) != 0 {
		t.Fatalf("expected leased job to be hidden from due scans, got %d", len(stillDue))
	}
	if again, _ := store.DueJobs(ctx, lease.Add(time.Second)); len(again) != 1 {
		t.Fatalf("expected job to become due after lease expiry, got %d", len(again))
	}
}

func TestClaimRejectsCompletedJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, time.Now(), 0, 0, testsupport.Steps("a", "1"))
	done := job.Clone()
	done.Steps = nil
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("Update: %v", err)
	}
	fetched, _ := store.GetByID(ctx, job.ID)
	ok, err := store.Claim(ctx, fetched, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if ok {
		t.Fatal("expected claim on completed job to fail")
	}
}

func TestMaintenanceOperations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	clockNow := time.Now().Add(-72 * time.Hour)
	store.SetClock(func() time.Time { return clockNow })
	old := testsupport.NewJob(t, store, time.Now(), 0, 0, testsupport.Steps("a", "1"))
	old.Steps = nil
	if err := store.Update(ctx, old); err != nil {
		t.Fatalf("Update: %v", err)
	}
	store.SetClock(time.Now)
	recent := testsupport.NewJob(t, store, time.Now(), 0, 0, testsupport.Steps("a", "1"))
	recent.Steps = nil
	if err := store.Update(ctx, recent); err != nil {
		t.Fatalf("Update: %v", err)
	}
	pending := testsupport.NewJob(t, store, time.Now().Add(-time.Minute), 0, 0, testsupport.Steps("a", "1", "b", "2"))

	health, err := store.Health(ctx, time.Now())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 3 || health.Completed != 2 || health.Pending != 1 || health.Due != 1 || health.StepsPending != 2 {
		t.Fatalf("unexpected health %+v", health)
	}

	pruned, err := store.PruneCompleted(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneCompleted: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 pruned job, got %d", pruned)
	}
	cleared, err := store.ClearCompleted(ctx)
	if err != nil {
		t.Fatalf("ClearCompleted: %v", err)
	}
	if cleared != 1 {
		t.Fatalf("expected 1 cleared job, got %d", cleared)
	}
	removed, err := store.Remove(ctx, pending.ID, 12345)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed job, got %d", removed)
	}
	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected empty queue, got %d", len(all))
	}
}

func TestCheckHealthReportsSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.NewJob(t, store, time.Now(), 0, 0, testsupport.Steps("a", "1"))

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.TableExists || !health.IntegrityCheck {
		t.Fatalf("unexpected health %+v", health)
	}
	if len(health.MissingColumns) != 0 {
		t.Fatalf("unexpected missing columns %v", health.MissingColumns)
	}
	if health.TotalJobs != 1 || health.SchemaVersion != 1 {
		t.Fatalf("unexpected counts %+v", health)
	}
}

func TestOpenRejectsForeignSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 7"); err != nil {
		t.Fatalf("set user_version: %v", err)
	}
	db.Close()

	if _, err := queue.OpenPath(path); !errors.Is(err, queue.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func mustGetJob(t *testing.T, store *queue.Store, id int64) *queue.Job {
	t.Helper()
	job, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%d): %v", id, err)
	}
	return job
}
