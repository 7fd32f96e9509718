// Package engine defines the uniform synthesis contract every TTS
// backend is normalized to, the registry that resolves engine ids to
// live instances, and the voice mapper that translates voice
// identifiers across engines.
package engine

import (
	"context"

	"github.com/battconv/battconv/internal/task"
)

// ParamRule describes validation for one parameter_schema entry
// (EngineDescriptor's enumerated engine-specific knobs).
type ParamRule struct {
	Type    string // "float", "int", "string", "enum"
	Min     float64
	Max     float64
	Pattern string
	Options []string
}

// ParameterSchema enumerates an engine's required and optional
// engine-specific knobs (VoiceConfig.Extra); see ValidateExtra, which
// every adapter's Validate calls against its own descriptor's schema.
type ParameterSchema struct {
	Required map[string]ParamRule
	Optional map[string]ParamRule
}

// Descriptor is the immutable, declarative metadata for a registered
// engine.
type Descriptor struct {
	ID                 string
	DisplayName        string
	Version            string
	SupportedLanguages []string
	SupportedFormats   []string
	IsOnline           bool
	RequiresAuth       bool
	ParameterSchema    ParameterSchema
	DefaultVoiceID     string
	FallbackVoiceID    string
	EmitsFormat        string
	ProvidesTimingData bool
}

// State is an engine's current health.
type State int

const (
	StateUnavailable State = iota
	StateAvailable
	StateError
	StateLoading
)

func (s State) String() string {
	switch s {
	case StateAvailable:
		return "available"
	case StateError:
		return "error"
	case StateLoading:
		return "loading"
	default:
		return "unavailable"
	}
}

// VoiceInfo describes one voice as returned by ListVoices / a catalog.
type VoiceInfo struct {
	ID            string
	Name          string
	Language      string
	Gender        string
	Quality       string
	Popular       bool
	Recommended   bool
	CustomAttrs   map[string]string
}

// Status is the mutable health record for a registered engine.
type Status struct {
	State           State
	LastCheck       int64 // unix seconds
	ErrorMessage    string
	AvailableVoices []VoiceInfo
	// PerformanceMetrics holds free-form timing/throughput samples
	// collected by the health monitor (e.g. "avg_synth_ms").
	PerformanceMetrics map[string]float64
}

// Capabilities is a convenience view derived from a Descriptor, used by
// adapters that don't need the full parameter schema.
type Capabilities struct {
	SupportsStreaming bool
	SupportedFormats  []string
	MaxTextLength     int
	RequiresNetwork   bool
}

// SynthesisResult is what an adapter's Synthesize returns.
type SynthesisResult struct {
	Success        bool
	AudioBytes     []byte
	DetectedFormat string
	DurationS      float64
	SampleRate     int
	BitDepth       int
	Channels       int
	SRTContent     string
	HasSRT         bool
	ErrorMessage   string
}

// Engine is the uniform contract every adapter kind implements.
type Engine interface {
	// Init prepares the engine for use. Idempotent; transitions status
	// from UNAVAILABLE/LOADING to AVAILABLE or ERROR.
	Init(ctx context.Context) error

	// ListVoices returns the cached voice catalog, unfiltered.
	ListVoices(ctx context.Context) ([]VoiceInfo, error)

	// Validate checks voice_config parameter ranges against the
	// descriptor's parameter_schema and substitutes an unknown
	// voice_name with the descriptor's fallback_voice_id. The adapters
	// do not consult the Voice Mapper here; Registry.Resolve maps voices
	// only when it moves to a different engine. Returns the
	// possibly-rewritten config.
	Validate(ctx context.Context, cfg task.VoiceConfig) (task.VoiceConfig, error)

	// Synthesize converts text to audio bytes. Never writes a file.
	Synthesize(ctx context.Context, text string, cfg task.VoiceConfig) (SynthesisResult, error)

	// Describe returns the engine's static descriptor.
	Describe() Descriptor

	// Status returns the engine's current health record.
	Status() Status

	// Close releases resources; safe to call in any state.
	Close() error
}

// DetectFormat sniffs the container format from emitted audio bytes via
// the magic-byte table below. It is a total function: every
// non-empty byte slice maps to a known tag or "unknown".
func DetectFormat(data []byte) string {
	if len(data) < 4 {
		return "unknown"
	}
	switch {
	case len(data) >= 3 && string(data[:3]) == "ID3":
		return "mp3"
	case data[0] == 0xFF && (data[1]&0xF0) == 0xF0 && data[1] != 0xF1 && data[1] != 0xF9:
		// "FF Fx" frame sync, excluding the two AAC ADTS markers below.
		return "mp3"
	case string(data[:4]) == "RIFF":
		return "wav"
	case string(data[:4]) == "OggS":
		return "ogg"
	case len(data) >= 12 && string(data[4:12]) == "ftypM4A ":
		return "m4a"
	case len(data) >= 12 && string(data[4:8]) == "ftyp" && string(data[8:11]) == "M4A":
		return "m4a"
	case len(data) >= 2 && data[0] == 0xFF && (data[1] == 0xF1 || data[1] == 0xF9):
		return "aac"
	default:
		return "unknown"
	}
}
