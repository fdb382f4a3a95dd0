// Package taskerr holds the error taxonomy shared by the task-state core.
package taskerr

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument marks malformed input: empty patches, missing required fields,
// unknown enum values, mismatched ids. Wrap it with fmt.Errorf to add detail.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrSyncFailed matches any SyncFailedError via errors.Is.
var ErrSyncFailed = errors.New("sync failed")

func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// AdapterError is an opaque failure surfaced from the persistence adapter.
type AdapterError struct {
	Op  string
	Err error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("adapter %s: %v", e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// SyncFailedError reports a remote failure after a local change was already applied.
// The local change has been rolled back (or, for deletes, never applied) by the time
// the caller sees it.
type SyncFailedError struct {
	Op     string
	TaskID string
	Err    error
}

func (e *SyncFailedError) Error() string {
	return fmt.Sprintf("sync failed: %s %s: %v", e.Op, e.TaskID, e.Err)
}

func (e *SyncFailedError) Unwrap() error { return e.Err }

func (e *SyncFailedError) Is(target error) bool { return target == ErrSyncFailed }

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}
