package main

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/battconv/battconv/internal/configregistry"
	"github.com/battconv/battconv/internal/engine"
	"github.com/battconv/battconv/internal/engine/adapter"
	"github.com/battconv/battconv/internal/health"
	"github.com/battconv/battconv/internal/pipeline"
	"github.com/battconv/battconv/internal/scheduler"
)

// app bundles every long-lived collaborator one CLI invocation needs —
// the Config Registry and Health Monitor are the two global singletons
// the worker pool allows, created once here; nothing tears them down
// explicitly, so they live until the process exits.
type app struct {
	Config  *configregistry.Registry
	Engines *engine.Registry
	Health  *health.Monitor
}

// newApp loads the Config Registry from configDir, registers the
// built-in adapter set against it, and builds the Health Monitor
// without starting its background probe loop (commands that need
// engine status call StartupCheck).
func newApp(configDir string) (*app, error) {
	cfg := configregistry.New(configDir)
	if err := cfg.Load(); err != nil {
		return nil, err
	}

	registry := engine.NewRegistry()
	registerBuiltinEngines(registry, cfg, configDir)

	sampler := health.NewDefaultSampler(cfg.App().Performance.MemoryLimitMB)
	monitor := health.New(registry, sampler, 30*time.Second)

	return &app{Config: cfg, Engines: registry, Health: monitor}, nil
}

// registerBuiltinEngines wires the three adapter kinds against the
// descriptors/voice catalogs the engine package ships, using live
// parameter values from the Config Registry's engine records where
// present and the descriptor's own defaults otherwise. Each engine's
// voice list honors a configs/voices/<id>_voices.json catalog when one
// exists, falling back to the built-in defaults below.
func registerBuiltinEngines(registry *engine.Registry, cfg *configregistry.Registry, configDir string) {
	engines := cfg.Engines()

	edgeDesc := engine.Descriptor{
		ID: "edge_tts", DisplayName: "Edge Neural TTS", Version: "1.0",
		SupportedLanguages: []string{"zh-CN", "en-US"},
		SupportedFormats:   []string{"mp3"},
		IsOnline:           true,
		EmitsFormat:        "mp3",
		ProvidesTimingData: true,
		DefaultVoiceID:     "zh-CN-XiaoxiaoNeural",
		FallbackVoiceID:    "zh-CN-XiaoxiaoNeural",
		// voice_style/voice_role are this service's engine-specific
		// extra knobs, carried through VoiceConfig.Extra.
		ParameterSchema: engine.ParameterSchema{
			Optional: map[string]engine.ParamRule{
				"voice_style": {Type: "enum", Options: []string{"default", "cheerful", "sad", "angry", "calm"}},
				"voice_role":  {Type: "string"},
			},
		},
	}
	edgeCfg := adapter.HTTPEngineConfig{
		ID: "edge_tts", Endpoint: paramOr(engines, "edge_tts", "endpoint", "http://127.0.0.1:8001"),
		VoicesPath: "/voices", Streams: true, Descriptor: edgeDesc,
		ConcurrentRequests: 2, Timeout: 30 * time.Second,
		Voices: catalogVoices(configDir, "edge_tts", []engine.VoiceInfo{
			{ID: "zh-CN-XiaoxiaoNeural", Name: "Xiaoxiao", Language: "zh-CN", Gender: "female"},
			{ID: "zh-CN-YunxiNeural", Name: "Yunxi", Language: "zh-CN", Gender: "male"},
			{ID: "en-US-AriaNeural", Name: "Aria", Language: "en-US", Gender: "female"},
			{ID: "en-US-GuyNeural", Name: "Guy", Language: "en-US", Gender: "male"},
		}),
	}
	registry.Register(adapter.NewHTTPEngine(edgeCfg), 100)

	emotionDesc := engine.Descriptor{
		ID: "emotivoice_tts_api", DisplayName: "EmotiVoice API", Version: "1.0",
		SupportedLanguages: []string{"zh-CN", "en-US"},
		SupportedFormats:   []string{"wav"},
		IsOnline:           true,
		EmitsFormat:        "wav",
		DefaultVoiceID:     "8051",
		FallbackVoiceID:    "8051",
		// alpha (emotion blend strength) is this API's one
		// engine-specific knob beyond the uniform emotion string.
		ParameterSchema: engine.ParameterSchema{
			Optional: map[string]engine.ParamRule{
				"alpha": {Type: "float", Min: 0.0, Max: 1.0},
			},
		},
	}
	emotionCfg := adapter.HTTPEngineConfig{
		ID: "emotivoice_tts_api", Endpoint: paramOr(engines, "emotivoice_tts_api", "endpoint", "http://127.0.0.1:8002"),
		VoicesPath: "/voices", Streams: false, Descriptor: emotionDesc,
		ConcurrentRequests: 2, Timeout: 30 * time.Second,
		Voices: catalogVoices(configDir, "emotivoice_tts_api", []engine.VoiceInfo{
			{ID: "8051", Name: "8051", Language: "zh-CN", Gender: "female"},
		}),
	}
	registry.Register(adapter.NewHTTPEngine(emotionCfg), 80)

	piperDesc := engine.Descriptor{
		ID: "piper_tts", DisplayName: "Piper (local inference)", Version: "1.0",
		SupportedLanguages: []string{"zh-CN", "en-US", "en-GB"},
		SupportedFormats:   []string{"wav"},
		EmitsFormat:        "wav",
		DefaultVoiceID:     "zh_CN-huayan-medium",
		FallbackVoiceID:    "zh_CN-huayan-medium",
		// noise_scale tunes Piper's synthesis variance; it has no
		// uniform VoiceConfig field, so it travels via Extra.
		ParameterSchema: engine.ParameterSchema{
			Optional: map[string]engine.ParamRule{
				"noise_scale": {Type: "float", Min: 0.0, Max: 1.0},
			},
		},
	}
	registry.Register(adapter.NewInferenceEngine("piper_tts",
		paramOr(engines, "piper_tts", "binary", "piper"),
		paramOr(engines, "piper_tts", "model_dir", "./models/piper"),
		piperDesc, catalogVoices(configDir, "piper_tts", []engine.VoiceInfo{
			{ID: "zh_CN-huayan-medium", Name: "Huayan", Language: "zh-CN", Gender: "female"},
			{ID: "en_US-amy-medium", Name: "Amy", Language: "en-US", Gender: "female"},
			{ID: "en_GB-alan-medium", Name: "Alan", Language: "en-GB", Gender: "male"},
		})), 60)

	osDesc := engine.Descriptor{
		ID: "pyttsx3", DisplayName: "OS Speech", Version: "1.0",
		SupportedLanguages: []string{"en-US"},
		SupportedFormats:   []string{"wav"},
		EmitsFormat:        "wav",
		DefaultVoiceID:     "default",
		FallbackVoiceID:    "default",
	}
	registry.Register(adapter.NewOSSpeechEngine("pyttsx3",
		paramOr(engines, "pyttsx3", "temp_dir", "./temp/osspeech"),
		osDesc, nil, unavailableSpeak), 20)
}

// catalogVoices loads the per-engine JSON voice catalog when present,
// falling back to the built-in default list otherwise.
func catalogVoices(configDir, engineID string, builtin []engine.VoiceInfo) []engine.VoiceInfo {
	path := filepath.Join(configDir, "voices", engineID+"_voices.json")
	voices, err := engine.LoadVoiceCatalog(path)
	if err != nil {
		log.Warn("voice catalog unreadable, using built-in list", "engine", engineID, "path", path, "err", err)
		return builtin
	}
	if len(voices) == 0 {
		return builtin
	}
	return voices
}

// paramOr reads a persisted engine parameter, falling back to def when
// the engine has no record or the key is unset.
func paramOr(reg configregistry.EngineRegistryFile, engineID, key, def string) string {
	rec, ok := reg.Engines[engineID]
	if !ok {
		return def
	}
	if v, ok := rec.Parameters[key]; ok && v != "" {
		return v
	}
	return def
}

// unavailableSpeak is the portable core's OS-speech hook: real
// platform drivers are an external collaborator that
// this repository doesn't implement. With the default wiring the engine
// still initializes as available, but every synthesize call fails with
// errUnsupportedPlatform rather than pretending to synthesize.
func unavailableSpeak(ctx context.Context, text, voiceName, outputPath string, rate, volume float64) error {
	return errUnsupportedPlatform
}

var errUnsupportedPlatform = errors.New("os-speech backend not implemented on this platform")

func buildScheduler(a *app, loadText scheduler.TextLoader, concurrency int) *scheduler.Scheduler {
	transcoder := pipeline.NewTranscoder("ffmpeg", "./temp")
	cfg := scheduler.Config{
		Concurrency: concurrency,
		Registry:    a.Engines,
		Transcoder:  transcoder,
		LoadText:    loadText,
	}
	return scheduler.New(cfg)
}

func init() {
	log.SetReportTimestamp(false)
}
