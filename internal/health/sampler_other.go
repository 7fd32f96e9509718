//go:build !linux

package health

import "runtime"

// genericSampler is the non-Linux fallback: memory is still readable
// via runtime.MemStats, but disk usage has no portable syscall in the
// standard library, so it's reported unavailable.
type genericSampler struct {
	memLimitMB int
}

// NewDefaultSampler builds the platform sampler used when no fake is
// injected.
func NewDefaultSampler(memLimitMB int) ResourceSampler {
	if memLimitMB <= 0 {
		memLimitMB = 1024
	}
	return &genericSampler{memLimitMB: memLimitMB}
}

func (s *genericSampler) Sample() ResourceSample {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	memPercent := (float64(mem.Sys) / (1024 * 1024)) / float64(s.memLimitMB) * 100
	return ResourceSample{CPUPercent: -1, MemoryPercent: memPercent, DiskPercent: -1}
}
