package resolve

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Resolution Errors
// =============================================================================

// Sentinel errors the API layer can match with errors.Is. The typed
// wrappers below carry the details a UI needs to render the failure.
// Unknown-profile lookups propagate the catalog's error unchanged.
var (
	ErrCircularDependency = errors.New("circular profile dependency")
	ErrProfileConflict    = errors.New("conflicting profiles selected")
	ErrPrerequisiteNotMet = errors.New("prerequisite not met")
)

// CircularDependencyError names the full cycle, first profile repeated
// at the end: a -> b -> c -> a.
type CircularDependencyError struct {
	Path []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency: %s", strings.Join(e.Path, " -> "))
}

func (e *CircularDependencyError) Unwrap() error { return ErrCircularDependency }

// ConflictError reports a conflicting pair. For a selected pair ProfileA
// sorts before ProfileB so the same pair always reports identically; for
// a conflict with the installation ProfileA is the selected profile.
type ConflictError struct {
	ProfileA  string
	ProfileB  string
	Installed bool // ProfileB is already installed rather than selected
}

func (e *ConflictError) Error() string {
	if e.Installed {
		return fmt.Sprintf("profile %s conflicts with installed profile %s", e.ProfileA, e.ProfileB)
	}
	return fmt.Sprintf("profiles %s and %s conflict", e.ProfileA, e.ProfileB)
}

func (e *ConflictError) Unwrap() error { return ErrProfileConflict }

// PrerequisiteError reports an unsatisfied prerequisite group, listing
// every profile that would satisfy it.
type PrerequisiteError struct {
	Profile      string
	Alternatives []string
}

func (e *PrerequisiteError) Error() string {
	return fmt.Sprintf("profile %s requires at least one of: %s",
		e.Profile, strings.Join(e.Alternatives, ", "))
}

func (e *PrerequisiteError) Unwrap() error { return ErrPrerequisiteNotMet }
