package queue

import "errors"

var (
	// ErrNotFound reports that no job row matched the requested identifier.
	ErrNotFound = errors.New("job not found")
	// ErrConflict reports that the job row changed since it was read.
	ErrConflict = errors.New("job changed concurrently")
	// ErrInvalidJob reports a submission that violates the job model.
	ErrInvalidJob = errors.New("invalid job")
)
