package domain

// ResourceSample is a point-in-time reading of host resource usage.
type ResourceSample struct {
	// MemoryFraction is the used share of physical memory in [0,1].
	MemoryFraction float64

	// CPUFraction is the busy share of CPU time in [0,1].
	CPUFraction float64

	// AvailableBytes is the memory available to new work.
	AvailableBytes uint64
}
