package queue

import (
	"math"
	"strings"
	"time"
)

// MaxDelay is the longest interval a job may wait between steps or before its
// first step. Longer intervals overflow time.Duration.
const MaxDelay = time.Duration(math.MaxInt64)

// MaxDelayHours is MaxDelay in whole hours, the upper bound for delay_max.
const MaxDelayHours = float64(MaxDelay / time.Hour)

// Status represents the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// ParseStatus normalizes a user-supplied status string.
func ParseStatus(value string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case StatusPending:
		return StatusPending, true
	case StatusCompleted:
		return StatusCompleted, true
	default:
		return "", false
	}
}

// Target identifies where a job's steps are delivered. The scheduler treats it
// as opaque; only the executor interprets the fields.
type Target struct {
	AppName    string
	Platform   string
	DeviceID   string
	Credential string
	UseGet     bool
}

// Job is a persisted multi-step sequence targeting one external identity.
type Job struct {
	ID        int64
	Target    Target
	Steps     Steps
	NextDueAt time.Time
	DelayMin  float64
	DelayMax  float64
	Owner     string
	Status    Status
	Revision  int64

	StepsDone      int
	LastStep       string
	LastResultCode int
	LastResultText string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsDue reports whether the job should be selected by a scan at now.
func (j *Job) IsDue(now time.Time) bool {
	if j == nil || j.Status != StatusPending {
		return false
	}
	return !j.NextDueAt.After(now)
}

// Clone returns a deep copy so callers can mutate steps without aliasing.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	cp.Steps = j.Steps.Clone()
	return &cp
}

// NewJob describes a job submission.
type NewJob struct {
	Target    Target
	Steps     Steps
	NextDueAt time.Time
	DelayMin  float64
	DelayMax  float64
	Owner     string
}

// HealthSummary captures aggregate queue counts.
type HealthSummary struct {
	Total        int
	Pending      int
	Due          int
	Completed    int
	StepsPending int
	NextDueAt    time.Time
}

// DatabaseHealth reports diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalJobs        int
	Error            string
}
