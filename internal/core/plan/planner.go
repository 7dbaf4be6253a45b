// Package plan turns a validated resolution into a staged installation
// plan using Kahn's algorithm. Pure functions, no I/O.
package plan

import (
	"sort"

	"github.com/artpar/drydock/internal/core/domain"
)

// Build groups the resolution's services into stages with a BFS-based
// topological sort:
//  1. Derive service edges from the profile graph: a service of profile A
//     depends on every service of every profile A requires or satisfies a
//     prerequisite with. Shared services union the edges of all owners.
//  2. Start with services whose in-degree is 0 (stage 1).
//  3. Releasing a whole frontier at a time yields the next stage.
//
// Every dependency therefore lands in a strictly earlier stage than its
// dependents. Within a stage, services sort by startup tier then name;
// that ordering is cosmetic and carries no concurrency meaning.
func Build(res *domain.Resolution) (*domain.Plan, error) {
	if len(res.Services) == 0 {
		return &domain.Plan{Profiles: res.ProfileIDs()}, nil
	}

	edges := Edges(res)

	serviceMap := make(map[string]domain.PlannedService, len(res.Services))
	inDegree := make(map[string]int, len(res.Services))
	dependents := make(map[string][]string)

	for _, s := range res.Services {
		serviceMap[s.Spec.Name] = s
		deps := edges[s.Spec.Name]
		inDegree[s.Spec.Name] = len(deps)
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], s.Spec.Name)
		}
	}

	// Release one frontier per round; each round is a stage.
	frontier := make([]string, 0, len(inDegree))
	for name, degree := range inDegree {
		if degree == 0 {
			frontier = append(frontier, name)
		}
	}

	var stages []domain.Stage
	placed := 0
	for len(frontier) > 0 {
		stage := domain.Stage{Index: len(stages) + 1}
		for _, name := range frontier {
			stage.Services = append(stage.Services, serviceMap[name])
		}
		sortStage(&stage)
		stages = append(stages, stage)
		placed += len(frontier)

		var next []string
		for _, name := range frontier {
			for _, dep := range dependents[name] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		frontier = next
	}

	if placed < len(res.Services) {
		var stuck []string
		for name, degree := range inDegree {
			if degree > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, &UnplaceableServiceError{Services: stuck}
	}

	return &domain.Plan{Profiles: res.ProfileIDs(), Stages: stages}, nil
}

// Edges derives the service dependency sets from the profile graph: a
// service of profile A depends on every service of every profile A
// requires, or whose presence satisfies A's prerequisite group. Shared
// services union the edges of all their owners. The returned lists are
// sorted and never contain the service itself.
func Edges(res *domain.Resolution) map[string][]string {
	servicesByProfile := make(map[string][]string)
	for _, s := range res.Services {
		for _, owner := range s.Owners() {
			servicesByProfile[owner] = append(servicesByProfile[owner], s.Spec.Name)
		}
	}

	upstream := make(map[string][]string)
	for _, p := range res.Profiles {
		ids := append([]string(nil), p.Requires...)
		for _, alt := range p.RequiresAny {
			if _, present := res.Profile(alt); present {
				ids = append(ids, alt)
			}
		}
		upstream[p.ID] = ids
	}

	out := make(map[string][]string, len(res.Services))
	for _, s := range res.Services {
		deps := make(map[string]bool)
		for _, owner := range s.Owners() {
			for _, up := range upstream[owner] {
				for _, dep := range servicesByProfile[up] {
					if dep != s.Spec.Name {
						deps[dep] = true
					}
				}
			}
		}
		sorted := make([]string, 0, len(deps))
		for dep := range deps {
			sorted = append(sorted, dep)
		}
		sort.Strings(sorted)
		out[s.Spec.Name] = sorted
	}
	return out
}

// sortStage orders a stage's services by tier then name.
func sortStage(stage *domain.Stage) {
	sort.Slice(stage.Services, func(i, j int) bool {
		a, b := stage.Services[i], stage.Services[j]
		if a.Spec.Tier != b.Spec.Tier {
			return a.Spec.Tier < b.Spec.Tier
		}
		return a.Spec.Name < b.Spec.Name
	})
}
