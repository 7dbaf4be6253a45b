// Package catalog holds the immutable profile registry. Profiles are
// loaded and validated once at startup; lookups never mutate.
// This is part of the Functional Core - no I/O beyond the file loader.
package catalog

import (
	"errors"
	"fmt"
	"sort"

	"github.com/artpar/drydock/internal/core/domain"
)

// =============================================================================
// Catalog Errors
// =============================================================================

var (
	ErrDuplicateProfile  = errors.New("duplicate profile id")
	ErrDanglingReference = errors.New("reference to unknown profile")
	ErrSharedServiceSpec = errors.New("shared service declared with divergent specs")
	ErrUnknownProfile    = errors.New("unknown profile")
)

// UnknownProfileError identifies a lookup for a profile the catalog does
// not contain.
type UnknownProfileError struct {
	ID string
}

func (e *UnknownProfileError) Error() string {
	return fmt.Sprintf("unknown profile %q", e.ID)
}

func (e *UnknownProfileError) Unwrap() error { return ErrUnknownProfile }

// =============================================================================
// Registry
// =============================================================================

// Registry is the validated, immutable profile catalog.
type Registry struct {
	profiles map[string]domain.Profile
	ordered  []string // ids sorted for deterministic iteration
}

// NewRegistry validates the profile set as a whole and builds the
// registry. Later entries with the same ID are rejected, not merged;
// merging file overrides over built-ins happens in Load.
func NewRegistry(profiles []domain.Profile) (*Registry, error) {
	byID := make(map[string]domain.Profile, len(profiles))
	for _, p := range profiles {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, exists := byID[p.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateProfile, p.ID)
		}
		byID[p.ID] = p
	}

	// Cross-profile checks need the full map.
	sharedSpecs := make(map[string]domain.ServiceSpec)
	sharedOwner := make(map[string]string)
	for _, p := range byID {
		for _, ref := range p.References() {
			if _, ok := byID[ref]; !ok {
				return nil, fmt.Errorf("%w: profile %s references %s", ErrDanglingReference, p.ID, ref)
			}
		}
		for _, s := range p.Services {
			if prev, ok := sharedSpecs[s.Name]; ok {
				if !domain.SpecEqual(prev, s) {
					return nil, fmt.Errorf("%w: %s (declared by %s and %s)",
						ErrSharedServiceSpec, s.Name, sharedOwner[s.Name], p.ID)
				}
				continue
			}
			sharedSpecs[s.Name] = s
			sharedOwner[s.Name] = p.ID
		}
	}

	ordered := make([]string, 0, len(byID))
	for id := range byID {
		ordered = append(ordered, id)
	}
	sort.Strings(ordered)

	return &Registry{profiles: byID, ordered: ordered}, nil
}

// Get returns the profile with the given ID.
func (r *Registry) Get(id string) (domain.Profile, error) {
	p, ok := r.profiles[id]
	if !ok {
		return domain.Profile{}, &UnknownProfileError{ID: id}
	}
	return p, nil
}

// Has reports whether the catalog contains the profile.
func (r *Registry) Has(id string) bool {
	_, ok := r.profiles[id]
	return ok
}

// All returns every profile sorted by ID.
func (r *Registry) All() []domain.Profile {
	out := make([]domain.Profile, 0, len(r.ordered))
	for _, id := range r.ordered {
		out = append(out, r.profiles[id])
	}
	return out
}

// ByCategory returns the profiles in a category, sorted by ID.
func (r *Registry) ByCategory(category string) []domain.Profile {
	var out []domain.Profile
	for _, id := range r.ordered {
		if p := r.profiles[id]; p.Category == category {
			out = append(out, p)
		}
	}
	return out
}

// Categories returns the distinct categories, sorted.
func (r *Registry) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, id := range r.ordered {
		cat := r.profiles[id].Category
		if !seen[cat] {
			seen[cat] = true
			out = append(out, cat)
		}
	}
	sort.Strings(out)
	return out
}

// Len returns the number of profiles.
func (r *Registry) Len() int {
	return len(r.profiles)
}
