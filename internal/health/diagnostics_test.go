package health

import "testing"

func hasIssue(results []DiagnosticResult, issueType string) bool {
	for _, r := range results {
		if r.IssueType == issueType {
			return true
		}
	}
	return false
}

func TestDiagnoseHealthySampleProducesNothing(t *testing.T) {
	sample := ResourceSample{CPUPercent: 10, MemoryPercent: 20, DiskPercent: 30}
	got := Diagnose(sample, 3, 3, 0)
	if len(got) != 0 {
		t.Fatalf("expected no issues, got %+v", got)
	}
}

func TestDiagnoseHighCPU(t *testing.T) {
	sample := ResourceSample{CPUPercent: 95, MemoryPercent: 10, DiskPercent: 10}
	got := Diagnose(sample, 1, 1, 0)
	if !hasIssue(got, "high_cpu") {
		t.Fatalf("expected high_cpu issue, got %+v", got)
	}
}

func TestDiagnoseNegativeValuesSkipped(t *testing.T) {
	sample := ResourceSample{CPUPercent: -1, MemoryPercent: -1, DiskPercent: -1}
	got := Diagnose(sample, 1, 1, 0)
	if len(got) != 0 {
		t.Fatalf("expected negative (unavailable) metrics to be skipped, got %+v", got)
	}
}

func TestDiagnoseNoEnginesAvailable(t *testing.T) {
	got := Diagnose(ResourceSample{CPUPercent: -1, MemoryPercent: -1, DiskPercent: -1}, 0, 3, 0)
	if !hasIssue(got, "no_engines_available") {
		t.Fatalf("expected no_engines_available, got %+v", got)
	}
}

func TestDiagnoseDegradedEngines(t *testing.T) {
	got := Diagnose(ResourceSample{CPUPercent: -1, MemoryPercent: -1, DiskPercent: -1}, 1, 3, 0)
	if !hasIssue(got, "degraded_engines") {
		t.Fatalf("expected degraded_engines, got %+v", got)
	}
}

func TestDiagnoseHighErrorCount(t *testing.T) {
	got := Diagnose(ResourceSample{CPUPercent: -1, MemoryPercent: -1, DiskPercent: -1}, 3, 3, 11)
	if !hasIssue(got, "high_error_count") {
		t.Fatalf("expected high_error_count, got %+v", got)
	}
}
