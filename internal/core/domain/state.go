package domain

import "sort"

// =============================================================================
// Install State
// =============================================================================

// InstallState is the installation configuration checkpoints capture:
// the installed profile set plus the user-supplied configuration values.
type InstallState struct {
	Profiles []string          `json:"profiles"`
	Values   map[string]string `json:"values"`
}

// NewInstallState returns an empty state with non-nil fields.
func NewInstallState() InstallState {
	return InstallState{Profiles: []string{}, Values: map[string]string{}}
}

// Normalize sorts profiles and drops duplicates so that equal states
// encode to identical bytes.
func (s InstallState) Normalize() InstallState {
	out := InstallState{
		Profiles: make([]string, 0, len(s.Profiles)),
		Values:   make(map[string]string, len(s.Values)),
	}
	seen := make(map[string]bool, len(s.Profiles))
	for _, p := range s.Profiles {
		if !seen[p] {
			seen[p] = true
			out.Profiles = append(out.Profiles, p)
		}
	}
	sort.Strings(out.Profiles)
	for k, v := range s.Values {
		out.Values[k] = v
	}
	return out
}

// Clone returns a deep copy.
func (s InstallState) Clone() InstallState {
	out := InstallState{
		Profiles: make([]string, len(s.Profiles)),
		Values:   make(map[string]string, len(s.Values)),
	}
	copy(out.Profiles, s.Profiles)
	for k, v := range s.Values {
		out.Values[k] = v
	}
	return out
}

// Equal reports whether two states describe the same installation.
func (s InstallState) Equal(other InstallState) bool {
	a, b := s.Normalize(), other.Normalize()
	if len(a.Profiles) != len(b.Profiles) || len(a.Values) != len(b.Values) {
		return false
	}
	for i := range a.Profiles {
		if a.Profiles[i] != b.Profiles[i] {
			return false
		}
	}
	for k, v := range a.Values {
		if b.Values[k] != v {
			return false
		}
	}
	return true
}

// HasProfile reports whether the profile is installed.
func (s InstallState) HasProfile(id string) bool {
	for _, p := range s.Profiles {
		if p == id {
			return true
		}
	}
	return false
}
