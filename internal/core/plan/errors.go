package plan

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// Planner Errors
// =============================================================================

var ErrUnplaceableService = errors.New("unplaceable service")

// UnplaceableServiceError reports services left with unsatisfied
// dependencies after staging. The resolver rejects cyclic selections
// before planning, so this is an internal invariant violation, not a
// user-facing validation failure.
type UnplaceableServiceError struct {
	Services []string
}

func (e *UnplaceableServiceError) Error() string {
	names := append([]string(nil), e.Services...)
	sort.Strings(names)
	return fmt.Sprintf("unplaceable services: %s", strings.Join(names, ", "))
}

func (e *UnplaceableServiceError) Unwrap() error { return ErrUnplaceableService }
