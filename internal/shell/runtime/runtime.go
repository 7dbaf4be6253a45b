// Package runtime drives the container runtime that hosts profile services.
package runtime

import (
	"context"
	"time"
)

// =============================================================================
// Container Types
// =============================================================================

// ContainerSpec describes the container a service should run as.
type ContainerSpec struct {
	Name          string
	Image         string
	Env           map[string]string
	Labels        map[string]string
	Ports         []PortBinding
	Network       string
	Aliases       []string // DNS names on the network, usually the service name
	RestartPolicy string   // "no", "always", "on-failure", "unless-stopped"
	CPUCores      float64  // 0 for unlimited
	MemoryGB      float64  // 0 for unlimited
	HealthCheck   *HealthCheck
}

// PortBinding defines a port mapping.
type PortBinding struct {
	ContainerPort int
	HostPort      int    // 0 for auto-assign
	Protocol      string // "tcp" or "udp"
	HostIP        string // "" for 0.0.0.0
}

// HealthCheck defines container health check configuration.
type HealthCheck struct {
	Test        []string
	Interval    time.Duration
	Timeout     time.Duration
	Retries     int
	StartPeriod time.Duration
}

// =============================================================================
// Service Info
// =============================================================================

// ServiceInfo describes a running or stopped service container.
// Health and Restarts are only populated by InspectService; listings
// carry the cheap fields only.
type ServiceInfo struct {
	Handle    string // container ID
	Name      string
	Image     string
	State     string // "running", "exited", "created", ...
	Health    string // "healthy", "unhealthy", "starting", "" when no check
	Restarts  int
	ExitCode  int
	Labels    map[string]string
	StartedAt *time.Time
}

// =============================================================================
// Driver Interface
// =============================================================================

// Driver is the surface of the container runtime the engine uses.
type Driver interface {
	// Network operations
	EnsureNetwork(ctx context.Context, name string) error

	// Image operations
	PullImage(ctx context.Context, image string) error
	ImageExists(ctx context.Context, image string) (bool, error)

	// Container operations
	CreateService(ctx context.Context, spec ContainerSpec) (handle string, err error)
	StartService(ctx context.Context, handle string) error
	StopService(ctx context.Context, handle string, timeout *time.Duration) error
	RemoveService(ctx context.Context, handle string, force bool) error
	InspectService(ctx context.Context, handle string) (*ServiceInfo, error)
	ListServices(ctx context.Context) ([]ServiceInfo, error) // managed containers only

	// Health operations
	Ping(ctx context.Context) error
	Close() error
}

// =============================================================================
// Label Constants
// =============================================================================

const (
	LabelManaged = "drydock.managed"
	LabelProfile = "drydock.profile"
	LabelService = "drydock.service"
	LabelShared  = "drydock.shared_with"
)
