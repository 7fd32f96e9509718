// Package health implements the health monitor: periodic engine
// reachability probes that feed the Engine Registry's availability, a
// one-shot startup check, and a diagnostic subsystem that watches host
// resource usage once engine health has been established at least once.
package health

import (
	"time"

	"github.com/battconv/battconv/internal/engine"
)

// EngineHealth is one engine's last-probed health record.
type EngineHealth struct {
	ID              string
	State           engine.State
	LastCheck       time.Time
	ErrorMessage    string
	AvailableVoices int
}

// Severity classifies a DiagnosticResult's urgency.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// DiagnosticResult is emitted when one of the resource threshold rules fires.
type DiagnosticResult struct {
	IssueType           string
	Severity            Severity
	Description         string
	Recommendation      string
	AffectedComponents  []string
	AutoFixable         bool
}

// ResourceSample is one reading of host resource usage. CPU is never
// sampled (always -1) and disk is best-effort (see sampler_linux.go and
// sampler_other.go) — a negative value means "not available on this
// platform" rather than "0%", so diagnostic rules can skip the check
// instead of misreporting healthy.
type ResourceSample struct {
	CPUPercent    float64
	MemoryPercent float64
	DiskPercent   float64
}

// ResourceSampler abstracts host-metric collection so tests can inject
// deterministic readings instead of depending on the real machine's
// load.
type ResourceSampler interface {
	Sample() ResourceSample
}
