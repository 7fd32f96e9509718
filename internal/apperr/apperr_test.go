package apperr

import (
	"errors"
	"testing"
)

func TestNewDefaultsToSeverityError(t *testing.T) {
	cause := errors.New("boom")
	err := New(cause, "configregistry", "load")

	if err.Severity != SeverityError {
		t.Fatalf("expected default severity error, got %v", err.Severity)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected Unwrap to expose the cause")
	}
	want := "configregistry: load: boom"
	if got := err.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestWithSeverityChainsOnReceiver(t *testing.T) {
	err := New(errors.New("boom"), "health", "probe").WithSeverity(SeverityCritical)
	if err.Severity != SeverityCritical {
		t.Fatalf("expected critical severity, got %v", err.Severity)
	}
}

func TestSeverityStringValues(t *testing.T) {
	cases := []struct {
		sev  Severity
		want string
	}{
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "error"},
	}
	for _, c := range cases {
		if got := c.sev.String(); got != c.want {
			t.Fatalf("Severity(%d).String() = %q, want %q", c.sev, got, c.want)
		}
	}
}
