package domain

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// =============================================================================
// Profile Errors
// =============================================================================

var (
	ErrProfileIDRequired   = errors.New("profile id is required")
	ErrProfileIDInvalid    = errors.New("profile id must be lowercase kebab-case")
	ErrProfileNoServices   = errors.New("profile must declare at least one service")
	ErrServiceNameRequired = errors.New("service name is required")
	ErrServiceImageMissing = errors.New("service image is required")
	ErrTierOutOfRange      = errors.New("startup tier must be between 1 and 3")
	ErrNegativeResources   = errors.New("service resources cannot be negative")
	ErrSelfReference       = errors.New("profile cannot reference itself")
	ErrFallbackIncomplete  = errors.New("fallback must declare name, config key and target")
)

var profileIDPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// =============================================================================
// Startup Tiers
// =============================================================================

// Startup tiers order services cosmetically within a stage. They never
// create dependency edges; ordering between profiles comes from the
// requires-graph alone.
const (
	TierFoundation = 1 // daemons and storage
	TierService    = 2 // APIs and workers
	TierEdge       = 3 // user-facing and auxiliary
)

// =============================================================================
// Profile
// =============================================================================

// Profile is an immutable bundle of services installed and removed as a
// unit. Profiles are loaded once at startup and never mutated.
type Profile struct {
	ID          string        `json:"id" yaml:"id"`
	Name        string        `json:"name" yaml:"name"`
	Category    string        `json:"category" yaml:"category"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Services    []ServiceSpec `json:"services" yaml:"services"`

	// Requires lists profiles that must be installed alongside this one.
	// The resolver expands the selection over this graph transitively.
	Requires []string `json:"requires,omitempty" yaml:"requires,omitempty"`

	// RequiresAny is a prerequisite group: at least one member must be
	// selected or already installed for this profile to be valid.
	RequiresAny []string `json:"requires_any,omitempty" yaml:"requires_any,omitempty"`

	// Conflicts blocks co-installation. The check is direction-insensitive:
	// either side listing the other blocks the pair.
	Conflicts []string `json:"conflicts,omitempty" yaml:"conflicts,omitempty"`

	// Fallback, when set, lets the run degrade instead of fail if one of
	// this profile's services never becomes healthy.
	Fallback *Fallback `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// ServiceSpec describes one containerised service inside a profile.
// Service names are global: the same name declared by several profiles
// means one shared instance, and the declarations must be identical.
type ServiceSpec struct {
	Name      string            `json:"name" yaml:"name"`
	Image     string            `json:"image" yaml:"image"`
	Tier      int               `json:"tier" yaml:"tier"`
	Required  bool              `json:"required" yaml:"required"`
	Ports     []PortSpec        `json:"ports,omitempty" yaml:"ports,omitempty"`
	Env       map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Resources Resources         `json:"resources" yaml:"resources"`
	Health    HealthSpec        `json:"health" yaml:"health"`
}

// PortSpec maps a container port to an optional host port.
type PortSpec struct {
	ContainerPort int    `json:"container_port" yaml:"container_port"`
	HostPort      int    `json:"host_port,omitempty" yaml:"host_port,omitempty"`
	Protocol      string `json:"protocol,omitempty" yaml:"protocol,omitempty"` // tcp, udp
}

// HealthSpec configures the container health probe.
type HealthSpec struct {
	Test     []string      `json:"test,omitempty" yaml:"test,omitempty"`
	Interval time.Duration `json:"interval,omitempty" yaml:"interval,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Retries  int           `json:"retries,omitempty" yaml:"retries,omitempty"`
}

// Fallback describes a degraded mode for a profile whose service failed.
// Applying it writes Target under ConfigKey in the run's value map so
// later stages pick it up.
type Fallback struct {
	Name      string `json:"name" yaml:"name"`
	Message   string `json:"message" yaml:"message"`
	ConfigKey string `json:"config_key" yaml:"config_key"`
	Target    string `json:"target" yaml:"target"`
}

// =============================================================================
// Profile Validation
// =============================================================================

// Validate checks a single profile in isolation. Cross-profile checks
// (dangling references, shared-service consistency) live in the catalog.
func (p Profile) Validate() error {
	if p.ID == "" {
		return ErrProfileIDRequired
	}
	if !profileIDPattern.MatchString(p.ID) {
		return fmt.Errorf("%w: %q", ErrProfileIDInvalid, p.ID)
	}
	if len(p.Services) == 0 {
		return fmt.Errorf("%w: %s", ErrProfileNoServices, p.ID)
	}
	for _, s := range p.Services {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("profile %s: %w", p.ID, err)
		}
	}
	for _, ref := range p.References() {
		if ref == p.ID {
			return fmt.Errorf("%w: %s", ErrSelfReference, p.ID)
		}
	}
	if p.Fallback != nil {
		if p.Fallback.Name == "" || p.Fallback.ConfigKey == "" || p.Fallback.Target == "" {
			return fmt.Errorf("%w: profile %s", ErrFallbackIncomplete, p.ID)
		}
	}
	return nil
}

// Validate checks a service descriptor.
func (s ServiceSpec) Validate() error {
	if s.Name == "" {
		return ErrServiceNameRequired
	}
	if s.Image == "" {
		return fmt.Errorf("%w: service %s", ErrServiceImageMissing, s.Name)
	}
	if s.Tier < TierFoundation || s.Tier > TierEdge {
		return fmt.Errorf("%w: service %s has tier %d", ErrTierOutOfRange, s.Name, s.Tier)
	}
	if s.Resources.IsNegative() {
		return fmt.Errorf("%w: service %s", ErrNegativeResources, s.Name)
	}
	return nil
}

// References returns every profile ID this profile points at, across
// requires, the prerequisite group and conflicts.
func (p Profile) References() []string {
	refs := make([]string, 0, len(p.Requires)+len(p.RequiresAny)+len(p.Conflicts))
	refs = append(refs, p.Requires...)
	refs = append(refs, p.RequiresAny...)
	refs = append(refs, p.Conflicts...)
	return refs
}

// ConflictsWith reports whether p lists other as a conflict.
func (p Profile) ConflictsWith(other string) bool {
	for _, c := range p.Conflicts {
		if c == other {
			return true
		}
	}
	return false
}

// Service returns the named service spec, if declared.
func (p Profile) Service(name string) (ServiceSpec, bool) {
	for _, s := range p.Services {
		if s.Name == name {
			return s, true
		}
	}
	return ServiceSpec{}, false
}

// =============================================================================
// Service Spec Equality
// =============================================================================

// SpecEqual reports whether two declarations of a shared service agree.
// The catalog rejects shared services with divergent declarations.
func SpecEqual(a, b ServiceSpec) bool {
	if a.Name != b.Name || a.Image != b.Image || a.Tier != b.Tier || a.Required != b.Required {
		return false
	}
	if a.Resources != b.Resources {
		return false
	}
	if len(a.Ports) != len(b.Ports) {
		return false
	}
	for i := range a.Ports {
		if a.Ports[i] != b.Ports[i] {
			return false
		}
	}
	if len(a.Env) != len(b.Env) {
		return false
	}
	for k, v := range a.Env {
		if b.Env[k] != v {
			return false
		}
	}
	if len(a.Health.Test) != len(b.Health.Test) {
		return false
	}
	for i := range a.Health.Test {
		if a.Health.Test[i] != b.Health.Test[i] {
			return false
		}
	}
	return a.Health.Interval == b.Health.Interval &&
		a.Health.Timeout == b.Health.Timeout &&
		a.Health.Retries == b.Health.Retries
}
