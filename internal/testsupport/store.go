package testsupport

import (
	"context"
	"testing"
	"time"

	"dripfeed/internal/config"
	"dripfeed/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Steps builds an ordered step list from name/payload pairs.
func Steps(pairs ...string) queue.Steps {
	if len(pairs)%2 != 0 {
		panic("testsupport.Steps requires name/payload pairs")
	}
	steps := make(queue.Steps, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		steps = append(steps, queue.Step{Name: pairs[i], Payload: pairs[i+1]})
	}
	return steps
}

// NewJob inserts a pending job due at dueAt with the given steps and delay bounds in hours.
func NewJob(t testing.TB, store *queue.Store, dueAt time.Time, delayMin, delayMax float64, steps queue.Steps) *queue.Job {
	t.Helper()

	job, err := store.Create(context.Background(), queue.NewJob{
		Target: queue.Target{
			AppName:    "TestApp",
			Platform:   "android",
			DeviceID:   "device-1",
			Credential: "app-token",
		},
		Steps:     steps,
		NextDueAt: dueAt,
		DelayMin:  delayMin,
		DelayMax:  delayMax,
		Owner:     "tester",
	})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return job
}
