package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/battconv/battconv/internal/engine"
	"github.com/battconv/battconv/internal/task"
)

// ErrTranscodeFailed marks a non-zero exit or missing output file from
// the external transcoder (TranscodeError — no retry, task FAILED).
var ErrTranscodeFailed = fmt.Errorf("transcode failed")

// Transcoder shells out to a command-line transcoder (ffmpeg-equivalent,
// the core does not itself decode or resample). binaryPath
// defaults to "ffmpeg" when empty.
type Transcoder struct {
	BinaryPath string
	TempDir    string
}

// NewTranscoder builds a Transcoder rooted at tempDir for intermediate
// files; tempDir is created lazily by SaveWithConversion.
func NewTranscoder(binaryPath, tempDir string) *Transcoder {
	if binaryPath == "" {
		binaryPath = "ffmpeg"
	}
	if tempDir == "" {
		tempDir = "./temp"
	}
	return &Transcoder{BinaryPath: binaryPath, TempDir: tempDir}
}

// SaveWithConversion sniffs the actual container format out of
// audioBytes, writes directly to
// outputPath if that already matches out.Format, and otherwise stages a
// temp file under t.TempDir, invokes the transcoder, and removes the
// temp file whether or not the conversion succeeded.
func (t *Transcoder) SaveWithConversion(ctx context.Context, audioBytes []byte, outputPath string, out task.OutputConfig) (detectedFormat string, err error) {
	detectedFormat = engine.DetectFormat(audioBytes)

	if dir := filepath.Dir(outputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return detectedFormat, err
		}
	}

	if detectedFormat == out.Format || out.Format == "" {
		if err := os.WriteFile(outputPath, audioBytes, 0o644); err != nil {
			return detectedFormat, err
		}
		return detectedFormat, nil
	}

	if err := os.MkdirAll(t.TempDir, 0o755); err != nil {
		return detectedFormat, err
	}
	tempPath := filepath.Join(t.TempDir, fmt.Sprintf("preconv_%d.%s", time.Now().UnixNano(), detectedFormat))
	if err := os.WriteFile(tempPath, audioBytes, 0o644); err != nil {
		return detectedFormat, err
	}
	defer os.Remove(tempPath)

	if err := t.convert(ctx, tempPath, outputPath, out); err != nil {
		return detectedFormat, err
	}
	return detectedFormat, nil
}

// convert invokes the transcoder with {input_path, output_path,
// target_format, {bitrate, sample_rate, channels}} (the fixed call
// signature). A non-zero exit or a missing output file is hard failure.
func (t *Transcoder) convert(ctx context.Context, inputPath, outputPath string, out task.OutputConfig) error {
	bitrate, sampleRate, channels := out.Bitrate, out.SampleRate, out.Channels
	if bitrate <= 0 {
		bitrate = 128
	}
	if sampleRate <= 0 {
		sampleRate = 22050
	}
	if channels <= 0 {
		channels = 1
	}

	args := []string{
		"-y",
		"-i", inputPath,
		"-b:a", strconv.Itoa(bitrate) + "k",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		outputPath,
	}

	cmd := exec.CommandContext(ctx, t.BinaryPath, args...)
	if err := cmd.Run(); err != nil {
		log.Error("transcode failed", "input", inputPath, "output", outputPath, "err", err)
		return fmt.Errorf("%w: %v", ErrTranscodeFailed, err)
	}
	if _, err := os.Stat(outputPath); err != nil {
		return fmt.Errorf("%w: output file missing after transcode", ErrTranscodeFailed)
	}
	return nil
}
