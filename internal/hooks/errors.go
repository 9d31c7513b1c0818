package hooks

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when an operation addresses a hook that does not
// exist in the addressed scope.
var ErrNotFound = errors.New("hook not found")

// ValidationError reports a malformed hook draft or patch.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid hook: missing required field(s): %s", strings.Join(e.Missing, ", "))
}

// ScopeError reports an invalid scope/projectName combination.
type ScopeError struct {
	Scope Scope
}

func (e *ScopeError) Error() string {
	if e.Scope == ScopeProject {
		return "project scope requires a projectName"
	}
	return fmt.Sprintf("invalid scope %q", e.Scope)
}

// PersistenceError reports a failed write of a per-scope document. The
// in-memory mutation is rolled back before this is surfaced, so memory
// and disk never silently diverge.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist hooks to %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
