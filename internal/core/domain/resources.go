// Package domain contains the core domain types and validation logic.
// This is part of the Functional Core - all functions are pure with no I/O.
package domain

import "fmt"

// =============================================================================
// Resources
// =============================================================================

// Resources describes a resource footprint or a host capacity.
// CPU is in cores, memory and disk in gigabytes.
type Resources struct {
	CPUCores float64 `json:"cpu_cores" yaml:"cpu_cores"`
	MemoryGB float64 `json:"memory_gb" yaml:"memory_gb"`
	DiskGB   float64 `json:"disk_gb" yaml:"disk_gb"`
}

// Add returns the sum of two resource sets.
func (r Resources) Add(other Resources) Resources {
	return Resources{
		CPUCores: r.CPUCores + other.CPUCores,
		MemoryGB: r.MemoryGB + other.MemoryGB,
		DiskGB:   r.DiskGB + other.DiskGB,
	}
}

// Fits reports whether r fits within the given capacity.
func (r Resources) Fits(capacity Resources) bool {
	return r.CPUCores <= capacity.CPUCores &&
		r.MemoryGB <= capacity.MemoryGB &&
		r.DiskGB <= capacity.DiskGB
}

// IsZero reports whether all dimensions are zero. A zero capacity means
// the host was never probed.
func (r Resources) IsZero() bool {
	return r.CPUCores == 0 && r.MemoryGB == 0 && r.DiskGB == 0
}

// IsNegative reports whether any dimension is negative.
func (r Resources) IsNegative() bool {
	return r.CPUCores < 0 || r.MemoryGB < 0 || r.DiskGB < 0
}

func (r Resources) String() string {
	return fmt.Sprintf("%.2f cores, %.2f GB memory, %.2f GB disk", r.CPUCores, r.MemoryGB, r.DiskGB)
}
