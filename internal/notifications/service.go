package notifications

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"dripfeed/internal/config"
)

const userAgent = "dripfeed/0.1.0"

// Event names a job lifecycle notification.
type Event string

const (
	EventStepExecuted Event = "step_executed"
	EventStepFailed   Event = "step_failed"
	EventJobCompleted Event = "job_completed"
	EventStorageError Event = "storage_error"
	EventTest         Event = "test"
)

// Payload carries event fields. Well-known keys: jobID, app, step, code, text,
// remaining, nextDueAt, owner, op, error.
type Payload map[string]any

// Service delivers notifications to an external channel.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds the configured transports behind a single Service. The
// client is shared by every transport; nil means a client with the configured
// request timeout. When nothing is configured a noop implementation is returned.
func NewService(cfg *config.Config, client *http.Client) Service {
	if cfg == nil {
		return noopService{}
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.NotificationTimeout()}
	}

	var targets []Service
	if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
		targets = append(targets, &ntfyService{endpoint: topic, client: client})
	}
	if hook := strings.TrimSpace(cfg.Notifications.DiscordWebhook); hook != "" {
		targets = append(targets, &discordService{webhook: hook, client: client})
	}
	if len(targets) == 0 {
		return noopService{}
	}

	var svc Service = multiService(targets)
	if len(targets) == 1 {
		svc = targets[0]
	}
	return &filterService{
		next: svc,
		enabled: map[Event]bool{
			EventStepExecuted: cfg.Notifications.StepExecuted,
			EventStepFailed:   cfg.Notifications.StepFailed,
			EventJobCompleted: cfg.Notifications.JobCompleted,
			EventStorageError: cfg.Notifications.StorageErrors,
			EventTest:         true,
		},
	}
}

// IsNoop reports whether svc discards everything.
func IsNoop(svc Service) bool {
	_, ok := svc.(noopService)
	return svc == nil || ok
}

type filterService struct {
	next    Service
	enabled map[Event]bool
}

func (f *filterService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !f.enabled[event] {
		return nil
	}
	return f.next.Publish(ctx, event, payload)
}

type multiService []Service

func (m multiService) Publish(ctx context.Context, event Event, payload Payload) error {
	var errs []error
	for _, svc := range m {
		if err := svc.Publish(ctx, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
