package adapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/battconv/battconv/internal/engine"
	"github.com/battconv/battconv/internal/task"
)

// writeCatScript creates an executable shell script that copies stdin
// to stdout verbatim, ignoring its arguments, standing in for a real
// inference binary so Synthesize has something real to run.
func writeCatScript(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "fake-infer.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\ncat\n"), 0o755); err != nil {
		t.Fatalf("failed to write fake binary: %v", err)
	}
	return path
}

func TestInferenceEngineInitSucceedsWhenBinaryAndModelDirExist(t *testing.T) {
	dir := t.TempDir()
	bin := writeCatScript(t, dir)
	modelDir := filepath.Join(dir, "models")
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}

	eng := NewInferenceEngine("piper_tts", bin, modelDir, engine.Descriptor{ID: "piper_tts"}, nil)
	if err := eng.Init(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eng.Status().State != engine.StateAvailable {
		t.Fatalf("expected available, got %v", eng.Status().State)
	}
}

func TestInferenceEngineInitFailsWhenModelDirMissing(t *testing.T) {
	dir := t.TempDir()
	bin := writeCatScript(t, dir)

	eng := NewInferenceEngine("piper_tts", bin, filepath.Join(dir, "missing"), engine.Descriptor{ID: "piper_tts"}, nil)
	if err := eng.Init(context.Background()); err == nil {
		t.Fatal("expected error when model dir is missing")
	}
	if eng.Status().State != engine.StateError {
		t.Fatalf("expected error state, got %v", eng.Status().State)
	}
}

func TestInferenceEngineSynthesizeFailsWithoutModel(t *testing.T) {
	dir := t.TempDir()
	bin := writeCatScript(t, dir)
	modelDir := filepath.Join(dir, "models")
	_ = os.MkdirAll(modelDir, 0o755)

	eng := NewInferenceEngine("piper_tts", bin, modelDir, engine.Descriptor{ID: "piper_tts"}, nil)
	cfg := task.VoiceConfig{EngineID: "piper_tts", VoiceName: "zh_CN-huayan-medium", Language: "zh-CN", Rate: 1, Volume: 1}
	_, err := eng.Synthesize(context.Background(), "hello", cfg)
	if err == nil {
		t.Fatal("expected error since no .onnx model file exists for the requested voice")
	}
}

func TestInferenceEngineSynthesizeSucceedsWithModelPresent(t *testing.T) {
	dir := t.TempDir()
	bin := writeCatScript(t, dir)
	modelDir := filepath.Join(dir, "models")
	_ = os.MkdirAll(modelDir, 0o755)
	if err := os.WriteFile(filepath.Join(modelDir, "zh_CN-huayan-medium.onnx"), []byte("fake-model"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	eng := NewInferenceEngine("piper_tts", bin, modelDir, engine.Descriptor{ID: "piper_tts"}, nil)
	cfg := task.VoiceConfig{EngineID: "piper_tts", VoiceName: "zh_CN-huayan-medium", Language: "zh-CN", Rate: 1, Volume: 1}
	result, err := eng.Synthesize(context.Background(), "hello world", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || len(result.AudioBytes) == 0 {
		t.Fatalf("got %+v", result)
	}
}

func TestInferenceEngineValidateSubstitutesUnknownVoice(t *testing.T) {
	eng := NewInferenceEngine("piper_tts", "ignored", "ignored", engine.Descriptor{ID: "piper_tts", FallbackVoiceID: "fallback-voice"}, []engine.VoiceInfo{{ID: "known-voice"}})
	cfg := task.VoiceConfig{EngineID: "piper_tts", VoiceName: "unknown-voice", Language: "zh-CN", Rate: 1, Volume: 1}
	got, err := eng.Validate(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.VoiceName != "fallback-voice" {
		t.Fatalf("expected fallback substituted, got %q", got.VoiceName)
	}
}
