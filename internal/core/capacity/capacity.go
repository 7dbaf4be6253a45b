// Package capacity estimates the resource footprint of a resolution and
// compares it with the host. Pure functions; the host numbers come from
// the probe in the shell.
package capacity

import (
	"fmt"

	"github.com/artpar/drydock/internal/core/domain"
)

// Aggregate sums the per-service costs of a resolution. The service list
// is already deduplicated, so a service shared between profiles counts
// once no matter how many profiles declare it.
func Aggregate(res *domain.Resolution) domain.Resources {
	var total domain.Resources
	for _, s := range res.Services {
		total = total.Add(s.Spec.Resources)
	}
	return total
}

// Check compares a footprint with the host capacity. Insufficiency is
// reported as warnings so the caller can proceed deliberately; it never
// blocks a run. A zero host dimension means the probe could not measure
// it and that dimension is not compared, so an unprobed host (all zeros)
// produces no warnings at all.
func Check(footprint, host domain.Resources) *domain.CapacityReport {
	report := &domain.CapacityReport{
		Footprint: footprint,
		Host:      host,
		Probed:    !host.IsZero(),
		Fits:      true,
	}
	if !report.Probed {
		return report
	}

	if host.CPUCores > 0 && footprint.CPUCores > host.CPUCores {
		report.Fits = false
		report.Warnings = append(report.Warnings, fmt.Sprintf(
			"estimated CPU need %.2f cores exceeds host capacity %.2f cores",
			footprint.CPUCores, host.CPUCores))
	}
	if host.MemoryGB > 0 && footprint.MemoryGB > host.MemoryGB {
		report.Fits = false
		report.Warnings = append(report.Warnings, fmt.Sprintf(
			"estimated memory need %.2f GB exceeds host capacity %.2f GB",
			footprint.MemoryGB, host.MemoryGB))
	}
	if host.DiskGB > 0 && footprint.DiskGB > host.DiskGB {
		report.Fits = false
		report.Warnings = append(report.Warnings, fmt.Sprintf(
			"estimated disk need %.2f GB exceeds host capacity %.2f GB",
			footprint.DiskGB, host.DiskGB))
	}
	return report
}

// Estimate is Aggregate followed by Check.
func Estimate(res *domain.Resolution, host domain.Resources) *domain.CapacityReport {
	return Check(Aggregate(res), host)
}
