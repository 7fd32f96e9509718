// Package adapter provides the three engine adapter kinds: a local
// inference adapter (one external subprocess per synthesize call, model
// paths cached by voice name), a mutex-serialized OS-speech adapter,
// and an HTTP adapter with retry/backoff and optional event-stream
// subtitle capture.
package adapter

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/battconv/battconv/internal/engine"
	"github.com/battconv/battconv/internal/task"
)

// modelHandle is the cached, validated path to a loaded voice model.
// Loading (stat + existence check) happens at most once per handle,
// guarded by sync.Once.
type modelHandle struct {
	once      sync.Once
	modelPath string
	loadErr   error
}

func (h *modelHandle) load(modelDir, voiceName string) (string, error) {
	h.once.Do(func() {
		path := filepath.Join(modelDir, voiceName+".onnx")
		if _, err := os.Stat(path); err != nil {
			h.loadErr = fmt.Errorf("inference adapter: model not found for voice %q: %w", voiceName, err)
			return
		}
		h.modelPath = path
	})
	return h.modelPath, h.loadErr
}

// InferenceEngine is the local-model adapter kind: it shells out to a
// binary (e.g. a piper-like CLI) synchronously, starting a new
// subprocess for every synthesize call; no model is loaded in-process.
// It caches one validated model path per voice_name and reuses it
// across tasks.
type InferenceEngine struct {
	mu sync.RWMutex

	id         string
	binaryPath string
	modelDir   string
	timeout    time.Duration
	desc       engine.Descriptor

	status engine.Status
	voices []engine.VoiceInfo

	handles map[string]*modelHandle
}

// NewInferenceEngine builds an inference-library adapter. voices, when
// non-nil, seeds the built-in voice list used absent a JSON catalog.
func NewInferenceEngine(id, binaryPath, modelDir string, desc engine.Descriptor, voices []engine.VoiceInfo) *InferenceEngine {
	return &InferenceEngine{
		id:         id,
		binaryPath: binaryPath,
		modelDir:   modelDir,
		timeout:    30 * time.Second,
		desc:       desc,
		voices:     voices,
		handles:    make(map[string]*modelHandle),
		status:     engine.Status{State: engine.StateUnavailable},
	}
}

func (e *InferenceEngine) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := exec.LookPath(e.binaryPath); err != nil {
		if _, statErr := os.Stat(e.binaryPath); statErr != nil {
			e.status = engine.Status{State: engine.StateError, ErrorMessage: fmt.Sprintf("binary not found: %s", e.binaryPath)}
			return fmt.Errorf("inference adapter %s: %w", e.id, err)
		}
	}
	if _, err := os.Stat(e.modelDir); err != nil {
		e.status = engine.Status{State: engine.StateError, ErrorMessage: fmt.Sprintf("model dir not found: %s", e.modelDir)}
		return fmt.Errorf("inference adapter %s: model dir: %w", e.id, err)
	}
	e.status = engine.Status{State: engine.StateAvailable, AvailableVoices: e.voices}
	return nil
}

func (e *InferenceEngine) ListVoices(ctx context.Context) ([]engine.VoiceInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.voices, nil
}

func (e *InferenceEngine) Validate(ctx context.Context, cfg task.VoiceConfig) (task.VoiceConfig, error) {
	if !cfg.IsValid() {
		return task.VoiceConfig{}, fmt.Errorf("%w: out-of-range parameter", engine.ErrVoiceUnknown)
	}
	e.mu.RLock()
	voices := e.voices
	desc := e.desc
	e.mu.RUnlock()

	if err := engine.ValidateExtra(desc.ParameterSchema, cfg.Extra); err != nil {
		return task.VoiceConfig{}, err
	}

	if voiceKnown(cfg.VoiceName, voices) {
		return cfg, nil
	}

	out := cfg.Clone()
	out.VoiceName = desc.FallbackVoiceID
	log.Warn("voice not known to inference engine, using fallback", "engine", e.id, "requested", cfg.VoiceName, "fallback", desc.FallbackVoiceID)
	return out, nil
}

func voiceKnown(name string, voices []engine.VoiceInfo) bool {
	for _, v := range voices {
		if v.ID == name {
			return true
		}
	}
	return false
}

// Synthesize pipes text to the configured binary's stdin and reads raw
// PCM/WAV bytes from stdout.
func (e *InferenceEngine) Synthesize(ctx context.Context, text string, cfg task.VoiceConfig) (engine.SynthesisResult, error) {
	e.mu.Lock()
	h, ok := e.handles[cfg.VoiceName]
	if !ok {
		h = &modelHandle{}
		e.handles[cfg.VoiceName] = h
	}
	binaryPath, modelDir, timeout := e.binaryPath, e.modelDir, e.timeout
	e.mu.Unlock()

	modelPath, err := h.load(modelDir, cfg.VoiceName)
	if err != nil {
		return engine.SynthesisResult{}, fmt.Errorf("%w: %v", engine.ErrSynthesis, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{"--model", modelPath, "--output-raw"}
	if cfg.Rate != 1.0 && cfg.Rate > 0 {
		args = append(args, "--length-scale", strconv.FormatFloat(1.0/cfg.Rate, 'f', 2, 64))
	}

	cmd := exec.CommandContext(runCtx, binaryPath, args...)
	cmd.Stdin = bytesReader(text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return engine.SynthesisResult{}, fmt.Errorf("%w: synthesis timed out after %v", engine.ErrSynthesis, timeout)
		}
		return engine.SynthesisResult{}, fmt.Errorf("%w: %s", engine.ErrSynthesis, stderr.String())
	}

	data := stdout.Bytes()
	if len(data) == 0 {
		return engine.SynthesisResult{}, fmt.Errorf("%w: no audio data generated", engine.ErrSynthesis)
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

func bytesReader(s string) *bytes.Reader {
	return bytes.NewReader([]byte(s))
}

func (e *InferenceEngine) Describe() engine.Descriptor {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.desc
}

func (e *InferenceEngine) Status() engine.Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

func (e *InferenceEngine) Close() error {
	return nil
}
