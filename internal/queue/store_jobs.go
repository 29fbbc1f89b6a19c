package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Create validates and inserts a new pending job. A zero NextDueAt means due immediately.
func (s *Store) Create(ctx context.Context, req NewJob) (*Job, error) {
	if err := validateNewJob(req); err != nil {
		return nil, err
	}
	now := s.now()
	due := req.NextDueAt
	if due.IsZero() {
		due = now
	}
	stepsJSON, err := encodeSteps(req.Steps)
	if err != nil {
		return nil, err
	}
	timestamp := formatTimestamp(now)

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            app_name, platform, device_id, credential, use_get, steps_json,
            next_due_at, delay_min, delay_max, owner, status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		strings.TrimSpace(req.Target.AppName),
		nullableString(req.Target.Platform),
		nullableString(req.Target.DeviceID),
		nullableString(req.Target.Credential),
		boolToInt(req.Target.UseGet),
		stepsJSON,
		toUnixSeconds(due),
		req.DelayMin,
		req.DelayMax,
		nullableString(strings.TrimSpace(req.Owner)),
		StatusPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func validateNewJob(req NewJob) error {
	if strings.TrimSpace(req.Target.AppName) == "" {
		return fmt.Errorf("%w: app name is required", ErrInvalidJob)
	}
	if len(req.Steps) == 0 {
		return fmt.Errorf("%w: at least one step is required", ErrInvalidJob)
	}
	if err := req.Steps.Validate(); err != nil {
		return err
	}
	if math.IsNaN(req.DelayMin) || math.IsNaN(req.DelayMax) || math.IsInf(req.DelayMax, 0) {
		return fmt.Errorf("%w: delay bounds must be finite", ErrInvalidJob)
	}
	if req.DelayMin < 0 {
		return fmt.Errorf("%w: delay_min must be >= 0", ErrInvalidJob)
	}
	if req.DelayMax < req.DelayMin {
		return fmt.Errorf("%w: delay_max (%g) must be >= delay_min (%g)", ErrInvalidJob, req.DelayMax, req.DelayMin)
	}
	if req.DelayMax > MaxDelayHours {
		return fmt.Errorf("%w: delay_max (%g) exceeds %g hours", ErrInvalidJob, req.DelayMax, MaxDelayHours)
	}
	return nil
}

// GetByID fetches a job by its identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get job %d: %w", id, err)
	}
	return job, nil
}

// List returns jobs filtered by status. No statuses means all jobs.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY id`
	return s.queryJobs(ctx, query, args...)
}

// DueJobs returns every pending job whose next_due_at has passed, ordered by id.
func (s *Store) DueJobs(ctx context.Context, now time.Time) ([]*Job, error) {
	jobs, err := s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? AND next_due_at <= ? ORDER BY id`,
		StatusPending, toUnixSeconds(now),
	)
	if err != nil {
		return nil, fmt.Errorf("due jobs: %w", err)
	}
	return jobs, nil
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]*Job, error) {
	ctx = ensureContext(ctx)
	var jobs []*Job
	err := retryOnBusy(ctx, func() error {
		jobs = nil
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			job, err := scanJob(rows)
			if err != nil {
				return err
			}
			jobs = append(jobs, job)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// Claim leases a due job to the caller by pushing its next_due_at to
// leaseUntil, provided nobody modified the row since it was read. It returns
// false when another scan got there first. On success the job's Revision and
// NextDueAt reflect the stored row.
func (s *Store) Claim(ctx context.Context, job *Job, leaseUntil time.Time) (bool, error) {
	if job == nil {
		return false, fmt.Errorf("%w: nil job", ErrInvalidJob)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET next_due_at = ?, revision = revision + 1, updated_at = ?
         WHERE id = ? AND revision = ? AND status = ?`,
		toUnixSeconds(leaseUntil), formatTimestamp(s.now()), job.ID, job.Revision, StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("claim job %d: %w", job.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim job %d rows: %w", job.ID, err)
	}
	if affected == 0 {
		return false, nil
	}
	job.Revision++
	job.NextDueAt = fromUnixSeconds(toUnixSeconds(leaseUntil))
	return true, nil
}

// Update replaces the mutable fields of a job: remaining steps, next due time,
// status, and result bookkeeping. A job with no remaining steps is always
// written as completed with a zero due time. The write only lands when the
// stored revision still equals job.Revision; otherwise ErrConflict is returned
// and the row is left alone. On success job.Revision reflects the stored row,
// so repeating the call with the same job rewrites identical content.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return fmt.Errorf("%w: nil job", ErrInvalidJob)
	}
	status := job.Status
	due := job.NextDueAt
	if len(job.Steps) == 0 || status == StatusCompleted {
		status = StatusCompleted
		due = time.Time{}
	}
	if status != StatusPending && status != StatusCompleted {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidJob, job.Status)
	}
	stepsJSON, err := encodeSteps(job.Steps)
	if err != nil {
		return err
	}

	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET
            steps_json = ?, next_due_at = ?, status = ?, revision = ?,
            steps_done = ?, last_step = ?, last_result_code = ?, last_result_text = ?,
            updated_at = ?
         WHERE id = ? AND revision = ?`,
		stepsJSON,
		toUnixSeconds(due),
		status,
		job.Revision+1,
		job.StepsDone,
		nullableString(job.LastStep),
		job.LastResultCode,
		nullableString(job.LastResultText),
		formatTimestamp(s.now()),
		job.ID,
		job.Revision,
	)
	if err != nil {
		return fmt.Errorf("update job %d: %w", job.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job %d rows: %w", job.ID, err)
	}
	if affected == 0 {
		return s.missedUpdate(ctx, job)
	}
	job.Revision++
	return nil
}

// missedUpdate tells a vanished row apart from one another writer advanced.
func (s *Store) missedUpdate(ctx context.Context, job *Job) error {
	var revision int64
	err := s.db.QueryRowContext(ctx, `SELECT revision FROM jobs WHERE id = ?`, job.ID).Scan(&revision)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: id %d", ErrNotFound, job.ID)
	case err != nil:
		return fmt.Errorf("update job %d: %w", job.ID, err)
	default:
		return fmt.Errorf("%w: id %d at revision %d, expected %d", ErrConflict, job.ID, revision, job.Revision)
	}
}

// Remove deletes the given jobs and reports how many rows were removed.
func (s *Store) Remove(ctx context.Context, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE id IN (`+makePlaceholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("remove jobs: %w", err)
	}
	return res.RowsAffected()
}
