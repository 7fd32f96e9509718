//go:build linux

package health

import (
	"runtime"
	"syscall"
)

// defaultDiskTarget is the filesystem the sampler reports disk usage
// for; a single-volume assumption is fine for a diagnostic heuristic,
// not a capacity planner.
const defaultDiskTarget = "/"

// linuxSampler reads memory from runtime.MemStats relative to a
// configured limit and disk usage via statfs. There is no CPU-percent
// syscall exposed by the standard library, so CPU is reported as
// unavailable (-1) rather than invented.
type linuxSampler struct {
	memLimitMB int
}

// NewDefaultSampler builds the platform sampler used when no fake is
// injected. memLimitMB should come from the Config Registry's
// performance.memory_limit_mb.
func NewDefaultSampler(memLimitMB int) ResourceSampler {
	if memLimitMB <= 0 {
		memLimitMB = 1024
	}
	return &linuxSampler{memLimitMB: memLimitMB}
}

func (s *linuxSampler) Sample() ResourceSample {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	memPercent := (float64(mem.Sys) / (1024 * 1024)) / float64(s.memLimitMB) * 100

	var stat syscall.Statfs_t
	diskPercent := -1.0
	if err := syscall.Statfs(defaultDiskTarget, &stat); err == nil && stat.Blocks > 0 {
		used := stat.Blocks - stat.Bfree
		diskPercent = float64(used) / float64(stat.Blocks) * 100
	}

	return ResourceSample{CPUPercent: -1, MemoryPercent: memPercent, DiskPercent: diskPercent}
}
