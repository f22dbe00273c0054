package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the referenced project does not exist.
	ErrNotFound = errors.New("project not found")

	// ErrStaleTransition means a transition's expected pre-state no longer
	// matches: a lost race or a duplicate delivery. The caller must abort
	// without side effects rather than overwrite.
	ErrStaleTransition = errors.New("stale transition")
)

// PreconditionError is fatal: a stage was dispatched against a project that
// is missing a required artifact or sits in a state the stage cannot run
// from. Retrying cannot fix missing input, so the project fails immediately.
type PreconditionError struct {
	Stage  string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s precondition failed: %s", e.Stage, e.Reason)
}

// IsPrecondition reports whether err is (or wraps) a PreconditionError.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}
