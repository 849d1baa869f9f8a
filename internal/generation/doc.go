// Package generation defines the boundary between the lifecycle engine
// and external long-running compute services, following the hexagonal
// architecture pattern: the ComputeAdapter contract, the job status and
// result types that cross it, and the startup-time adapter registry.
package generation
