// Package resolve validates a profile selection against the catalog:
// expansion over hard requirements, cycle detection, conflict checks and
// prerequisite groups. All functions are pure.
//
// Checks run in a fixed order and fail fast: unknown profiles first (the
// rest cannot reason about IDs that do not exist), then cycles (the
// requires-graph must be well-formed before pair checks), then conflicts,
// then prerequisite groups (which need the fully expanded set).
package resolve

import (
	"sort"

	"github.com/artpar/drydock/internal/core/domain"
)

// Catalog is the read-only profile source the resolver consults.
type Catalog interface {
	Get(id string) (domain.Profile, error)
	Has(id string) bool
}

// Resolve validates the selected profile IDs and returns the expanded
// resolution. installed lists profiles already on the host; they satisfy
// prerequisite groups and participate in conflict checks.
func Resolve(cat Catalog, selected []string, installed []string) (*domain.Resolution, error) {
	if len(selected) == 0 {
		return nil, domain.ErrEmptySelection
	}

	// Unknown check before anything else.
	for _, id := range selected {
		if _, err := cat.Get(id); err != nil {
			return nil, err
		}
	}

	expanded, err := expand(cat, selected)
	if err != nil {
		return nil, err
	}

	if err := detectCycles(expanded); err != nil {
		return nil, err
	}

	if err := detectConflicts(expanded, installedProfiles(cat, installed)); err != nil {
		return nil, err
	}

	if err := checkPrerequisites(expanded, installed); err != nil {
		return nil, err
	}

	profiles := make([]domain.Profile, 0, len(expanded))
	for _, p := range expanded {
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].ID < profiles[j].ID })

	return &domain.Resolution{
		Profiles:  profiles,
		Services:  dedupServices(profiles),
		Installed: installed,
	}, nil
}

// =============================================================================
// Expansion
// =============================================================================

// expand closes the selection over hard requirements. Unknown references
// cannot occur for catalog-validated profiles but are surfaced anyway in
// case the registry and selection drifted.
func expand(cat Catalog, selected []string) (map[string]domain.Profile, error) {
	out := make(map[string]domain.Profile)
	queue := append([]string(nil), selected...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, done := out[id]; done {
			continue
		}
		p, err := cat.Get(id)
		if err != nil {
			return nil, err
		}
		out[id] = p
		queue = append(queue, p.Requires...)
	}
	return out, nil
}

// =============================================================================
// Cycle Detection
// =============================================================================

// detectCycles runs DFS with a recursion stack over the requires-graph
// and reports the first cycle with its full path.
func detectCycles(profiles map[string]domain.Profile) error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	var path []string

	var walk func(id string) *CircularDependencyError
	walk = func(id string) *CircularDependencyError {
		visited[id] = true
		recStack[id] = true
		path = append(path, id)

		for _, dep := range profiles[id].Requires {
			if _, inSet := profiles[dep]; !inSet {
				continue
			}
			if recStack[dep] {
				// Close the loop starting from the first occurrence of dep.
				start := 0
				for i, seen := range path {
					if seen == dep {
						start = i
						break
					}
				}
				cycle := append([]string(nil), path[start:]...)
				cycle = append(cycle, dep)
				return &CircularDependencyError{Path: cycle}
			}
			if !visited[dep] {
				if err := walk(dep); err != nil {
					return err
				}
			}
		}

		recStack[id] = false
		path = path[:len(path)-1]
		return nil
	}

	for _, id := range sortedIDs(profiles) {
		if !visited[id] {
			if err := walk(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// =============================================================================
// Conflict Detection
// =============================================================================

// detectConflicts checks every pair in the expanded set plus each
// expanded profile against the installed set. One side listing the other
// is enough.
func detectConflicts(expanded map[string]domain.Profile, installed []domain.Profile) error {
	ids := sortedIDs(expanded)
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := expanded[ids[i]], expanded[ids[j]]
			if a.ConflictsWith(b.ID) || b.ConflictsWith(a.ID) {
				return &ConflictError{ProfileA: a.ID, ProfileB: b.ID}
			}
		}
	}
	for _, id := range ids {
		p := expanded[id]
		for _, inst := range installed {
			if inst.ID == p.ID {
				continue // re-selecting an installed profile is fine
			}
			if p.ConflictsWith(inst.ID) || inst.ConflictsWith(p.ID) {
				return &ConflictError{ProfileA: p.ID, ProfileB: inst.ID, Installed: true}
			}
		}
	}
	return nil
}

// =============================================================================
// Prerequisite Groups
// =============================================================================

// checkPrerequisites verifies every prerequisite group has at least one
// member selected or already installed.
func checkPrerequisites(expanded map[string]domain.Profile, installed []string) error {
	installedSet := make(map[string]bool, len(installed))
	for _, id := range installed {
		installedSet[id] = true
	}

	for _, id := range sortedIDs(expanded) {
		p := expanded[id]
		if len(p.RequiresAny) == 0 {
			continue
		}
		satisfied := false
		for _, alt := range p.RequiresAny {
			if _, inSet := expanded[alt]; inSet || installedSet[alt] {
				satisfied = true
				break
			}
		}
		if !satisfied {
			alts := append([]string(nil), p.RequiresAny...)
			sort.Strings(alts)
			return &PrerequisiteError{Profile: p.ID, Alternatives: alts}
		}
	}
	return nil
}

// =============================================================================
// Service Deduplication
// =============================================================================

// dedupServices flattens the expanded profiles into one service list,
// collapsing shared names. The lexicographically first owner becomes the
// primary; the rest go to SharedWith.
func dedupServices(profiles []domain.Profile) []domain.PlannedService {
	owners := make(map[string][]string)
	specs := make(map[string]domain.ServiceSpec)
	for _, p := range profiles {
		for _, s := range p.Services {
			owners[s.Name] = append(owners[s.Name], p.ID)
			specs[s.Name] = s
		}
	}

	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]domain.PlannedService, 0, len(names))
	for _, name := range names {
		ids := owners[name]
		sort.Strings(ids)
		out = append(out, domain.PlannedService{
			Spec:       specs[name],
			Profile:    ids[0],
			SharedWith: ids[1:],
		})
	}
	return out
}

// =============================================================================
// Materialization
// =============================================================================

// Materialize builds a resolution for a profile set that is already
// installed, without re-validating it. Restores replay states recorded in
// the past; profiles the catalog no longer knows are skipped rather than
// rejected, and the surviving set is validated again on the next run.
func Materialize(cat Catalog, installed []string) *domain.Resolution {
	profiles := installedProfiles(cat, installed)
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].ID < profiles[j].ID })
	return &domain.Resolution{
		Profiles: profiles,
		Services: dedupServices(profiles),
	}
}

func installedProfiles(cat Catalog, installed []string) []domain.Profile {
	out := make([]domain.Profile, 0, len(installed))
	for _, id := range installed {
		// Installed profiles may predate a catalog change; skip unknowns.
		if p, err := cat.Get(id); err == nil {
			out = append(out, p)
		}
	}
	return out
}

func sortedIDs(profiles map[string]domain.Profile) []string {
	ids := make([]string, 0, len(profiles))
	for id := range profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
