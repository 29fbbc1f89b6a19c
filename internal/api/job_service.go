package api

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"dripfeed/internal/catalog"
	"dripfeed/internal/queue"
	"dripfeed/internal/services"
)

// JobStore abstracts the queue operations the service needs.
type JobStore interface {
	Create(ctx context.Context, req queue.NewJob) (*queue.Job, error)
	GetByID(ctx context.Context, id int64) (*queue.Job, error)
	List(ctx context.Context, statuses ...queue.Status) ([]*queue.Job, error)
	Stats(ctx context.Context) (map[queue.Status]int, error)
	Health(ctx context.Context, now time.Time) (queue.HealthSummary, error)
	Remove(ctx context.Context, ids ...int64) (int64, error)
	ClearCompleted(ctx context.Context) (int64, error)
	PruneCompleted(ctx context.Context, cutoff time.Time) (int64, error)
}

// Resolver maps catalog event names to step tokens.
type Resolver interface {
	Resolve(appName string, events []string) (queue.Target, queue.Steps, error)
}

// SubmitRecorder counts accepted submissions.
type SubmitRecorder interface {
	RecordJobSubmitted()
}

// JobService exposes queue operations returning API DTOs.
type JobService struct {
	store    JobStore
	resolver Resolver
	recorder SubmitRecorder
	now      func() time.Time
}

// NewJobService constructs a JobService. resolver and recorder may be nil.
func NewJobService(store JobStore, resolver Resolver, recorder SubmitRecorder) *JobService {
	if store == nil {
		return nil
	}
	return &JobService{store: store, resolver: resolver, recorder: recorder, now: time.Now}
}

// SetClock overrides the wall clock used for start times and status.
func (s *JobService) SetClock(now func() time.Time) {
	if s != nil && now != nil {
		s.now = now
	}
}

// List returns jobs filtered by status.
func (s *JobService) List(ctx context.Context, statuses ...queue.Status) ([]Job, error) {
	if s == nil {
		return nil, nil
	}
	jobs, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromJobs(jobs), nil
}

// Describe fetches a single job.
func (s *JobService) Describe(ctx context.Context, id int64) (*Job, error) {
	if s == nil {
		return nil, nil
	}
	job, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			return nil, services.Wrap(services.ErrNotFound, "api", "describe", fmt.Sprintf("job %d", id), err)
		}
		return nil, err
	}
	dto := FromJob(job)
	return &dto, nil
}

// Status returns aggregate queue counts.
func (s *JobService) Status(ctx context.Context) (QueueStatus, error) {
	if s == nil {
		return QueueStatus{}, nil
	}
	health, err := s.store.Health(ctx, s.now())
	if err != nil {
		return QueueStatus{}, err
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return QueueStatus{}, err
	}
	return FromHealth(health, stats), nil
}

// Submit validates req, resolves catalog events, and enqueues the job.
func (s *JobService) Submit(ctx context.Context, req SubmitRequest) (*Job, error) {
	if s == nil {
		return nil, services.Wrap(services.ErrConfiguration, "api", "submit", "job service unavailable", nil)
	}
	newJob, err := s.buildJob(req)
	if err != nil {
		return nil, err
	}
	job, err := s.store.Create(ctx, newJob)
	if err != nil {
		if errors.Is(err, queue.ErrInvalidJob) {
			return nil, services.Wrap(services.ErrValidation, "api", "submit", "", err)
		}
		return nil, err
	}
	if s.recorder != nil {
		s.recorder.RecordJobSubmitted()
	}
	dto := FromJob(job)
	return &dto, nil
}

func (s *JobService) buildJob(req SubmitRequest) (queue.NewJob, error) {
	invalid := func(msg string) error {
		return services.Wrap(services.ErrValidation, "api", "submit", msg, nil)
	}
	appName := strings.TrimSpace(req.AppName)
	if appName == "" {
		return queue.NewJob{}, invalid("appName is required")
	}
	if len(req.Steps) > 0 && len(req.Events) > 0 {
		return queue.NewJob{}, invalid("provide either steps or events, not both")
	}
	if math.IsNaN(req.StartInMinutes) || req.StartInMinutes < 0 {
		return queue.NewJob{}, invalid("startInMinutes must be >= 0")
	}
	if req.StartInMinutes > float64(queue.MaxDelay/time.Minute) {
		return queue.NewJob{}, invalid(fmt.Sprintf("startInMinutes must be <= %d", queue.MaxDelay/time.Minute))
	}

	target := queue.Target{AppName: appName}
	var steps queue.Steps
	switch {
	case len(req.Steps) > 0:
		steps = make(queue.Steps, 0, len(req.Steps))
		for _, step := range req.Steps {
			steps = append(steps, queue.Step{Name: strings.TrimSpace(step.Name), Payload: step.Token})
		}
	case len(req.Events) > 0:
		if s.resolver == nil {
			return queue.NewJob{}, services.Wrap(services.ErrConfiguration, "api", "submit", "no app catalog configured", nil)
		}
		resolved, resolvedSteps, err := s.resolver.Resolve(appName, req.Events)
		if err != nil {
			return queue.NewJob{}, err
		}
		target = resolved
		steps = resolvedSteps
	default:
		return queue.NewJob{}, invalid("at least one step or event is required")
	}

	target.Platform = strings.ToLower(strings.TrimSpace(req.Platform))
	target.DeviceID = strings.TrimSpace(req.DeviceID)
	if token := strings.TrimSpace(req.AppToken); token != "" {
		target.Credential = token
	}
	if req.UseGet != nil {
		target.UseGet = *req.UseGet
	}

	due := s.now().Add(time.Duration(req.StartInMinutes * float64(time.Minute)))
	return queue.NewJob{
		Target:    target,
		Steps:     steps,
		NextDueAt: due,
		DelayMin:  req.DelayMin,
		DelayMax:  req.DelayMax,
		Owner:     strings.TrimSpace(req.Owner),
	}, nil
}

// Remove deletes jobs by id.
func (s *JobService) Remove(ctx context.Context, ids ...int64) (RemoveResult, error) {
	if s == nil {
		return RemoveResult{}, nil
	}
	removed, err := s.store.Remove(ctx, ids...)
	if err != nil {
		return RemoveResult{}, err
	}
	if removed == 0 && len(ids) == 1 {
		return RemoveResult{}, services.Wrap(services.ErrNotFound, "api", "remove", fmt.Sprintf("job %d", ids[0]), nil)
	}
	return RemoveResult{Removed: removed}, nil
}

// ClearCompleted deletes every completed job.
func (s *JobService) ClearCompleted(ctx context.Context) (RemoveResult, error) {
	if s == nil {
		return RemoveResult{}, nil
	}
	removed, err := s.store.ClearCompleted(ctx)
	return RemoveResult{Removed: removed}, err
}

// Prune deletes completed jobs last updated more than olderThan ago.
func (s *JobService) Prune(ctx context.Context, olderThan time.Duration) (RemoveResult, error) {
	if s == nil {
		return RemoveResult{}, nil
	}
	removed, err := s.store.PruneCompleted(ctx, s.now().Add(-olderThan))
	return RemoveResult{Removed: removed}, err
}

var _ Resolver = (*catalog.Catalog)(nil)
