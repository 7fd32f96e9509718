package health

import "fmt"

// Diagnose applies the resource threshold rules (CPU > 90%, memory > 85%,
// disk > 90%, zero available engines, available engines < 50% of
// total, error count > 10) against one resource sample and the current
// engine roster, returning every rule that fires. A negative sample
// value means "unavailable on this platform" and is skipped rather
// than compared.
func Diagnose(sample ResourceSample, availableEngines, totalEngines, errorCount int) []DiagnosticResult {
	var out []DiagnosticResult

	if sample.CPUPercent >= 0 && sample.CPUPercent > 90 {
		out = append(out, DiagnosticResult{
			IssueType:          "high_cpu",
			Severity:           SeverityHigh,
			Description:        fmt.Sprintf("CPU usage at %.1f%%", sample.CPUPercent),
			Recommendation:     "reduce worker concurrency or pause non-critical tasks",
			AffectedComponents: []string{"scheduler"},
			AutoFixable:        false,
		})
	}
	if sample.MemoryPercent >= 0 && sample.MemoryPercent > 85 {
		out = append(out, DiagnosticResult{
			IssueType:          "high_memory",
			Severity:           SeverityHigh,
			Description:        fmt.Sprintf("memory usage at %.1f%% of configured limit", sample.MemoryPercent),
			Recommendation:     "lower performance.memory_limit_mb usage by reducing concurrent tasks",
			AffectedComponents: []string{"scheduler", "engine"},
			AutoFixable:        false,
		})
	}
	if sample.DiskPercent >= 0 && sample.DiskPercent > 90 {
		out = append(out, DiagnosticResult{
			IssueType:          "low_disk",
			Severity:           SeverityMedium,
			Description:        fmt.Sprintf("disk usage at %.1f%%", sample.DiskPercent),
			Recommendation:     "clean up old output files or config backups",
			AffectedComponents: []string{"configregistry", "pipeline"},
			AutoFixable:        true,
		})
	}

	if totalEngines > 0 && availableEngines == 0 {
		out = append(out, DiagnosticResult{
			IssueType:          "no_engines_available",
			Severity:           SeverityCritical,
			Description:        "zero registered engines are available",
			Recommendation:     "check engine health and network/model configuration",
			AffectedComponents: []string{"engine", "scheduler"},
			AutoFixable:        false,
		})
	} else if totalEngines > 0 && float64(availableEngines)/float64(totalEngines) < 0.5 {
		out = append(out, DiagnosticResult{
			IssueType:          "degraded_engines",
			Severity:           SeverityMedium,
			Description:        fmt.Sprintf("%d/%d engines available", availableEngines, totalEngines),
			Recommendation:     "investigate unavailable engines before starting large batches",
			AffectedComponents: []string{"engine"},
			AutoFixable:        false,
		})
	}

	if errorCount > 10 {
		out = append(out, DiagnosticResult{
			IssueType:          "high_error_count",
			Severity:           SeverityHigh,
			Description:        fmt.Sprintf("%d engine probe errors in the last sweep", errorCount),
			Recommendation:     "check engine logs for the recurring failure",
			AffectedComponents: []string{"engine"},
			AutoFixable:        false,
		})
	}

	return out
}
