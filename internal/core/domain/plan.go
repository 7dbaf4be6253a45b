package domain

import "sort"

// =============================================================================
// Resolution
// =============================================================================

// Resolution is the outcome of validating a profile selection: the
// transitively expanded profile set and the deduplicated service list.
type Resolution struct {
	// Profiles is the expanded set, sorted by ID.
	Profiles []Profile `json:"profiles"`

	// Services is deduplicated by service name. A service declared by
	// several profiles appears once, with every owner recorded.
	Services []PlannedService `json:"services"`

	// Installed carries the profile IDs that were already installed when
	// the selection was validated. Prerequisites may be satisfied by them.
	Installed []string `json:"installed,omitempty"`
}

// ProfileIDs returns the expanded profile IDs in sorted order.
func (r Resolution) ProfileIDs() []string {
	ids := make([]string, len(r.Profiles))
	for i, p := range r.Profiles {
		ids[i] = p.ID
	}
	return ids
}

// Profile returns the expanded profile with the given ID.
func (r Resolution) Profile(id string) (Profile, bool) {
	for _, p := range r.Profiles {
		if p.ID == id {
			return p, true
		}
	}
	return Profile{}, false
}

// =============================================================================
// Planned Service
// =============================================================================

// PlannedService is a service scheduled for installation. Profile is the
// lexicographically first owner; SharedWith lists the remaining owners.
type PlannedService struct {
	Spec       ServiceSpec `json:"spec"`
	Profile    string      `json:"profile"`
	SharedWith []string    `json:"shared_with,omitempty"`
}

// Owners returns every profile that declares this service, sorted.
func (s PlannedService) Owners() []string {
	owners := make([]string, 0, len(s.SharedWith)+1)
	owners = append(owners, s.Profile)
	owners = append(owners, s.SharedWith...)
	sort.Strings(owners)
	return owners
}

// =============================================================================
// Plan
// =============================================================================

// Stage is an unordered set of services eligible to start concurrently.
// Services is sorted by tier then name, which is cosmetic only.
type Stage struct {
	Index    int              `json:"index"` // 1-based
	Services []PlannedService `json:"services"`
}

// Plan is the ordered list of stages produced for a resolution. Every
// dependency of a service lives in a strictly earlier stage.
type Plan struct {
	Profiles []string        `json:"profiles"`
	Stages   []Stage         `json:"stages"`
	Report   *CapacityReport `json:"capacity,omitempty"`
}

// TotalServices returns the number of services across all stages.
func (p Plan) TotalServices() int {
	n := 0
	for _, st := range p.Stages {
		n += len(st.Services)
	}
	return n
}

// StageOf returns the 1-based stage index holding the named service,
// or 0 when the plan does not place it.
func (p Plan) StageOf(service string) int {
	for _, st := range p.Stages {
		for _, s := range st.Services {
			if s.Spec.Name == service {
				return st.Index
			}
		}
	}
	return 0
}

// =============================================================================
// Capacity Report
// =============================================================================

// CapacityReport compares the estimated footprint with the host capacity.
// Insufficiency produces warnings, never an error: the user may proceed.
type CapacityReport struct {
	Footprint Resources `json:"footprint"`
	Host      Resources `json:"host"`
	Fits      bool      `json:"fits"`
	Probed    bool      `json:"probed"`
	Warnings  []string  `json:"warnings,omitempty"`
}
