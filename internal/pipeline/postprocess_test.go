package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/battconv/battconv/internal/task"
)

func TestSaveWithConversionWritesVerbatimWhenFormatMatches(t *testing.T) {
	dir := t.TempDir()
	tr := NewTranscoder("does-not-matter", filepath.Join(dir, "tmp"))

	wavBytes := []byte("RIFF\x24\x00\x00\x00WAVEfmt ")
	outputPath := filepath.Join(dir, "out.wav")

	format, err := tr.SaveWithConversion(context.Background(), wavBytes, outputPath, task.OutputConfig{Format: "wav"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if format != "wav" {
		t.Fatalf("expected detected format wav, got %q", format)
	}
	data, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("expected output file to exist: %v", err)
	}
	if string(data) != string(wavBytes) {
		t.Fatalf("expected verbatim bytes written")
	}
}

func TestSaveWithConversionFailsWhenTranscoderMissing(t *testing.T) {
	dir := t.TempDir()
	tr := NewTranscoder(filepath.Join(dir, "no-such-binary"), filepath.Join(dir, "tmp"))

	wavBytes := []byte("RIFF\x24\x00\x00\x00WAVEfmt ")
	outputPath := filepath.Join(dir, "out.mp3")

	_, err := tr.SaveWithConversion(context.Background(), wavBytes, outputPath, task.OutputConfig{Format: "mp3"})
	if err == nil {
		t.Fatal("expected an error when the transcoder binary cannot be run")
	}
	if !errors.Is(err, ErrTranscodeFailed) {
		t.Fatalf("expected ErrTranscodeFailed, got %v", err)
	}
}

func TestNewTranscoderDefaults(t *testing.T) {
	tr := NewTranscoder("", "")
	if tr.BinaryPath != "ffmpeg" {
		t.Fatalf("got %q", tr.BinaryPath)
	}
	if tr.TempDir != "./temp" {
		t.Fatalf("got %q", tr.TempDir)
	}
}
