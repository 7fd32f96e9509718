package engine

import "errors"

// Sentinels for the engine-layer error taxonomy. Component
// packages each define their own; the pipeline wraps these with
// task-specific context via %w.
var (
	ErrNotRegistered      = errors.New("engine: id not registered")
	ErrUnavailable        = errors.New("engine: unavailable")
	ErrVoiceUnknown       = errors.New("engine: voice_name not known to target engine")
	ErrNetwork            = errors.New("engine: transient network failure")
	ErrSynthesis          = errors.New("engine: synthesis failed")
	ErrNoCandidateEngines = errors.New("engine: no enabled available engine remains")
	ErrInvalidParameter   = errors.New("engine: extra parameter failed validation")
)
