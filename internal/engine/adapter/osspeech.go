package adapter

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/battconv/battconv/internal/engine"
	"github.com/battconv/battconv/internal/task"
)

// osSpeechMutex serializes every synthesize call across every
// OSSpeechEngine instance in the process, because the underlying OS
// TTS API is not reentrant. A package-level mutex rather than a
// per-instance one, since the OS object itself is the process-wide
// singleton.
var osSpeechMutex sync.Mutex

// watchdogTimeout bounds how long a single blocking OS-speech call may
// run before the adapter gives up waiting and reads back whatever was
// written to the temp file so far.
const watchdogTimeout = 10 * time.Second

// OSSpeechEngine drives a single OS-provided TTS object under
// osSpeechMutex. Synthesize writes to a temp file, reads it back, then
// deletes it. The adapter performs no reset of the OS object between
// calls; each call goes straight through the speak hook.
type OSSpeechEngine struct {
	mu sync.RWMutex

	id      string
	tempDir string
	desc    engine.Descriptor
	voices  []engine.VoiceInfo
	status  engine.Status

	// speak is the platform hook that actually drives the OS API; it
	// writes synthesized audio to outputPath and returns once done (or
	// is abandoned by the watchdog). Exposed as a field so tests and
	// alternate platforms can substitute a fake without touching the
	// mutex/watchdog/reset plumbing.
	speak func(ctx context.Context, text, voiceName, outputPath string, rate, volume float64) error
}

// NewOSSpeechEngine builds an OS-speech adapter. speak is the
// platform-specific synthesis hook (absent in this portable core; see
// unavailableSpeak in cmd/battconv/app.go).
func NewOSSpeechEngine(id, tempDir string, desc engine.Descriptor, voices []engine.VoiceInfo, speak func(ctx context.Context, text, voiceName, outputPath string, rate, volume float64) error) *OSSpeechEngine {
	return &OSSpeechEngine{
		id:      id,
		tempDir: tempDir,
		desc:    desc,
		voices:  voices,
		speak:   speak,
		status:  engine.Status{State: engine.StateUnavailable},
	}
}

func (e *OSSpeechEngine) Init(ctx context.Context) error {
	osSpeechMutex.Lock()
	defer osSpeechMutex.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.MkdirAll(e.tempDir, 0o755); err != nil {
		e.status = engine.Status{State: engine.StateError, ErrorMessage: err.Error()}
		return fmt.Errorf("os-speech adapter %s: %w", e.id, err)
	}
	// Init only prepares the temp dir: it neither instantiates the OS
	// object nor lists its voices, so the configured voice list is
	// reported as-is.
	e.status = engine.Status{State: engine.StateAvailable, AvailableVoices: e.voices}
	return nil
}

func (e *OSSpeechEngine) ListVoices(ctx context.Context) ([]engine.VoiceInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.voices, nil
}

func (e *OSSpeechEngine) Validate(ctx context.Context, cfg task.VoiceConfig) (task.VoiceConfig, error) {
	if !cfg.IsValid() {
		return task.VoiceConfig{}, fmt.Errorf("%w: out-of-range parameter", engine.ErrVoiceUnknown)
	}
	e.mu.RLock()
	voices, desc := e.voices, e.desc
	e.mu.RUnlock()
	if err := engine.ValidateExtra(desc.ParameterSchema, cfg.Extra); err != nil {
		return task.VoiceConfig{}, err
	}
	if voiceKnown(cfg.VoiceName, voices) {
		return cfg, nil
	}
	out := cfg.Clone()
	out.VoiceName = desc.FallbackVoiceID
	return out, nil
}

// Synthesize acquires the process-wide mutex, writes to a temp file
// under a watchdog, reads the result back, and always removes the temp
// file — even when the watchdog fired and the underlying call is still
// technically running (the in-flight call is never killed; its eventual
// output, if any, is simply discarded once this method has returned).
func (e *OSSpeechEngine) Synthesize(ctx context.Context, text string, cfg task.VoiceConfig) (engine.SynthesisResult, error) {
	osSpeechMutex.Lock()
	defer osSpeechMutex.Unlock()

	e.mu.RLock()
	tempDir, speak := e.tempDir, e.speak
	e.mu.RUnlock()

	outputPath := fmt.Sprintf("%s/osspeech_%d.wav", tempDir, time.Now().UnixNano())
	defer os.Remove(outputPath)

	watchdogCtx, cancel := context.WithTimeout(ctx, watchdogTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- speak(watchdogCtx, text, cfg.VoiceName, outputPath, cfg.Rate, cfg.Volume)
	}()

	select {
	case err := <-done:
		if err != nil {
			return engine.SynthesisResult{}, fmt.Errorf("%w: %v", engine.ErrSynthesis, err)
		}
	case <-watchdogCtx.Done():
		log.Warn("os-speech watchdog fired, reading back whatever was written", "engine", e.id, "timeout", watchdogTimeout)
	}

	data, err := os.ReadFile(outputPath)
	if err != nil || len(data) == 0 {
		return engine.SynthesisResult{}, fmt.Errorf("%w: no audio written before watchdog/timeout", engine.ErrSynthesis)
	}

	return engine.SynthesisResult{
		Success:        true,
		AudioBytes:     data,
		DetectedFormat: engine.DetectFormat(data),
		SampleRate:     22050,
		Channels:       1,
		BitDepth:       16,
	}, nil
}

func (e *OSSpeechEngine) Describe() engine.Descriptor {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.desc
}

func (e *OSSpeechEngine) Status() engine.Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

func (e *OSSpeechEngine) Close() error {
	return nil
}
