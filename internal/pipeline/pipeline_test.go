package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/battconv/battconv/internal/engine"
	"github.com/battconv/battconv/internal/task"
)

// stubEngine returns canned wav bytes (and optionally an SRT script)
// for every synthesize call so Run can be driven without a backend.
type stubEngine struct {
	desc engine.Descriptor
	srt  string
}

func (e *stubEngine) Init(ctx context.Context) error { return nil }
func (e *stubEngine) ListVoices(ctx context.Context) ([]engine.VoiceInfo, error) {
	return nil, nil
}
func (e *stubEngine) Validate(ctx context.Context, cfg task.VoiceConfig) (task.VoiceConfig, error) {
	return cfg, nil
}
func (e *stubEngine) Synthesize(ctx context.Context, text string, cfg task.VoiceConfig) (engine.SynthesisResult, error) {
	return engine.SynthesisResult{
		Success:        true,
		AudioBytes:     []byte("RIFF\x24\x00\x00\x00WAVEfmt "),
		DetectedFormat: "wav",
		DurationS:      0.01,
		SRTContent:     e.srt,
		HasSRT:         e.srt != "",
	}, nil
}
func (e *stubEngine) Describe() engine.Descriptor { return e.desc }
func (e *stubEngine) Status() engine.Status {
	return engine.Status{State: engine.StateAvailable}
}
func (e *stubEngine) Close() error { return nil }

type stubResolver struct {
	eng engine.Engine
}

func (r *stubResolver) Resolve(ctx context.Context, cfg task.VoiceConfig) (engine.Engine, task.VoiceConfig, error) {
	return r.eng, cfg, nil
}

func newPipelineTask(t *testing.T, dir, outputPath string) (*task.Task, Deps) {
	t.Helper()
	voice := task.VoiceConfig{EngineID: "stub", VoiceName: "v1", Language: "en-US", Rate: 1, Volume: 1, OutputFormat: "wav"}
	out := task.DefaultOutputConfig(dir)
	out.Format = "wav"
	tk := task.New("t1", "in.txt", outputPath, voice, &out, task.ChapterInfo{Number: 1, Title: "Intro"})
	deps := Deps{
		Registry:   &stubResolver{eng: &stubEngine{desc: engine.Descriptor{ID: "stub", EmitsFormat: "wav"}}},
		Transcoder: NewTranscoder("ffmpeg", filepath.Join(dir, "tmp")),
	}
	return tk, deps
}

func TestRunCompletesAndWritesOutput(t *testing.T) {
	dir := t.TempDir()
	outputPath := filepath.Join(dir, "01_Intro.wav")
	tk, deps := newPipelineTask(t, dir, outputPath)

	if err := Run(context.Background(), tk, "hello world", deps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tk.Status() != task.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", tk.Status(), tk.ErrorMessage())
	}
	if tk.Progress() != 100 {
		t.Fatalf("expected progress 100, got %d", tk.Progress())
	}
	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		t.Fatalf("expected non-empty output file, err=%v", err)
	}
	if _, remaining := tk.Timing(); remaining != 0 {
		t.Fatalf("expected remaining 0 on completion, got %v", remaining)
	}
	// the calibration preview temp file must be cleaned up.
	if _, err := os.Stat(filepath.Join(dir, "01_Intro.tmp.wav")); !os.IsNotExist(err) {
		t.Fatal("expected preview temp file removed")
	}
	res := tk.Result()
	if res == nil || res.DetectedFormat != "wav" {
		t.Fatalf("expected wav result metadata, got %+v", res)
	}
}

func TestRunDerivesOutputPathWhenUnset(t *testing.T) {
	dir := t.TempDir()
	tk, deps := newPipelineTask(t, dir, "")

	if err := Run(context.Background(), tk, "hello world", deps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res := tk.Result()
	if res == nil {
		t.Fatal("expected a result")
	}
	want := filepath.Join(dir, "01_Intro.wav")
	if res.OutputPath != want {
		t.Fatalf("expected derived path %q, got %q", want, res.OutputPath)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected derived output file to exist: %v", err)
	}
	if tk.Snapshot().OutputPath != want {
		t.Fatal("expected derived path recorded on the task")
	}
}

func TestRunWritesSubtitleSidecarWithOffset(t *testing.T) {
	dir := t.TempDir()
	outputPath := filepath.Join(dir, "01_Intro.wav")
	tk, deps := newPipelineTask(t, dir, outputPath)
	tk.OutputConfig.GenerateSubtitle = true
	tk.OutputConfig.SubtitleFormat = task.SubtitleSRT
	tk.OutputConfig.SubtitleOffset = 0.5

	srt := "1\n00:00:00,000 --> 00:00:01,000\nhello\n\n2\n00:00:01,000 --> 00:00:02,000\nworld\n\n"
	deps.Registry = &stubResolver{eng: &stubEngine{desc: engine.Descriptor{ID: "stub", ProvidesTimingData: true}, srt: srt}}

	if err := Run(context.Background(), tk, "hello world", deps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sidecar := filepath.Join(dir, "01_Intro.srt")
	data, err := os.ReadFile(sidecar)
	if err != nil {
		t.Fatalf("expected sidecar written: %v", err)
	}
	content := string(data)
	if strings.Count(content, "-->") != 2 {
		t.Fatalf("expected 2 cues, got:\n%s", content)
	}
	if !strings.Contains(content, "00:00:00,500 --> 00:00:01,500") {
		t.Fatalf("expected timestamps shifted by +0.5s, got:\n%s", content)
	}
	res := tk.Result()
	if res == nil || !res.HasSubtitle || res.SubtitlePath != sidecar {
		t.Fatalf("expected subtitle metadata recorded, got %+v", res)
	}
}

func TestRunFailsOnEmptyText(t *testing.T) {
	dir := t.TempDir()
	tk, deps := newPipelineTask(t, dir, filepath.Join(dir, "out.wav"))

	if err := Run(context.Background(), tk, "   \n\t ", deps); err != nil {
		t.Fatalf("Run should absorb the failure into the task, got %v", err)
	}
	if tk.Status() != task.StatusFailed {
		t.Fatalf("expected failed, got %s", tk.Status())
	}
	if tk.ErrorMessage() == "" {
		t.Fatal("expected an error message recorded")
	}
}

func TestRunObservesCancellationAtCheckpoint(t *testing.T) {
	dir := t.TempDir()
	tk, deps := newPipelineTask(t, dir, filepath.Join(dir, "out.wav"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Run(ctx, tk, "hello world", deps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tk.Status() != task.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", tk.Status())
	}
	if _, err := os.Stat(filepath.Join(dir, "out.wav")); !os.IsNotExist(err) {
		t.Fatal("expected no output written for a cancelled task")
	}
}
