package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/battconv/battconv/internal/engine"
	"github.com/battconv/battconv/internal/task"
)

// previewMaxChars bounds the calibration preview to the first N
// characters of the full text.
const previewMaxChars = 20

// Resolver is the subset of *engine.Registry the pipeline needs — kept
// as an interface so tests can substitute a stub registry.
type Resolver interface {
	Resolve(ctx context.Context, cfg task.VoiceConfig) (engine.Engine, task.VoiceConfig, error)
}

// Deps bundles the pipeline's external collaborators. PauseGate, when
// set, is consulted at every stage checkpoint in addition to ctx.Done —
// it lets the scheduler implement PAUSED/RESUMED (the task lifecycle)
// without ever interrupting an in-flight adapter call, the same
// checkpoint discipline cancellation uses. It blocks the calling
// goroutine while paused and returns ctx.Err() if the context is
// cancelled while waiting.
type Deps struct {
	Registry   Resolver
	Transcoder *Transcoder
	PauseGate  func(ctx context.Context, t *task.Task) error
}

// Run drives one task through the seven synthesis stages,
// checking ctx.Err() between stages so a cooperative cancellation
// request (the scheduler cancels the task's context, it never kills an
// in-flight synthesis call) takes effect at the next checkpoint rather
// than mid-call. text is the already-extracted chapter text; import and
// chapter-segmentation are external collaborators upstream of this
// package.
func Run(ctx context.Context, t *task.Task, text string, deps Deps) error {
	if err := t.Transition(task.StatusProcessing); err != nil {
		return err
	}

	// Stage 1: import/validate file (text already extracted by caller;
	// this stage just confirms there's something to synthesize).
	if strings.TrimSpace(text) == "" {
		return t.Fail("empty input text")
	}
	t.SetProgress(5)

	if stop, err := checkpoint(ctx, t, deps); stop {
		return err
	}

	// Stage 2: process text (normalize whitespace at the boundary; the
	// engine adapters receive already-clean text).
	fullText := normalizeText(text)
	t.SetProgress(10)

	if stop, err := checkpoint(ctx, t, deps); stop {
		return err
	}

	// Stage 3: resolve engine + synthesize a short preview to calibrate
	// the time estimator. The preview request is always forced to wav so
	// calibration timing isn't skewed by the engine's own encoder.
	eng, voiceCfg, err := deps.Registry.Resolve(ctx, t.VoiceConfig)
	if err != nil {
		return t.Fail(fmt.Sprintf("no engine available: %v", err))
	}
	outCfg := *t.OutputConfig
	preview := truncateRunes(fullText, previewMaxChars)
	previewStart := time.Now()
	previewResult, err := eng.Synthesize(ctx, preview, voiceCfg.WithOutputFormat("wav"))
	if err != nil {
		return t.Fail(fmt.Sprintf("preview synthesis failed: %v", err))
	}
	previewDurationS := time.Since(previewStart).Seconds()
	if previewResult.DurationS > 0 {
		previewDurationS = previewResult.DurationS
	}
	previewPath := writePreviewFile(t, outCfg, previewResult.AudioBytes)
	if previewPath != "" {
		defer os.Remove(previewPath)
	}
	t.SetProgress(15)

	if stop, err := checkpoint(ctx, t, deps); stop {
		return err
	}

	// Stage 4: calibrate and begin full synthesis.
	desc := eng.Describe()
	strategy := strategyFor(desc)
	estimated := EstimateDuration(strategy, previewDurationS, utf8.RuneCountInString(preview), utf8.RuneCountInString(fullText))
	t.SetEstimation(estimated)
	t.SetProgress(20)

	if stop, err := checkpoint(ctx, t, deps); stop {
		return err
	}

	synthDone := make(chan struct {
		result engine.SynthesisResult
		err    error
	}, 1)
	synthStart := time.Now()
	go func() {
		result, err := eng.Synthesize(ctx, fullText, voiceCfg)
		synthDone <- struct {
			result engine.SynthesisResult
			err    error
		}{result, err}
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var fullResult engine.SynthesisResult
waitLoop:
	for {
		select {
		case out := <-synthDone:
			if out.err != nil {
				return t.Fail(fmt.Sprintf("synthesis failed: %v", out.err))
			}
			fullResult = out.result
			break waitLoop
		case <-ticker.C:
			elapsed := time.Since(synthStart).Seconds()
			progress, remaining := ProgressFromElapsed(elapsed, estimated)
			t.SetProgress(progress)
			t.SetRemaining(remaining)
		case <-ctx.Done():
			return handleCancellation(t)
		}
	}
	t.SetProgress(90)

	if stop, err := checkpoint(ctx, t, deps); stop {
		return err
	}

	// Stage 5: derive the output filename (unless the caller pinned one),
	// save + transcode if the emitted format doesn't match the requested
	// output format, then generate the subtitle sidecar.
	outputPath := t.OutputPath
	if outputPath == "" {
		stem := GenerateFilename(t.Chapter, outCfg)
		outputPath, err = ResolveOutputPath(outCfg.OutputDir, stem, outCfg.Format)
		if err != nil {
			return t.Fail(fmt.Sprintf("output path resolution failed: %v", err))
		}
		t.SetOutputPath(outputPath)
	}
	detectedFormat, err := deps.Transcoder.SaveWithConversion(ctx, fullResult.AudioBytes, outputPath, outCfg)
	if err != nil {
		return t.Fail(fmt.Sprintf("save/transcode failed: %v", err))
	}

	var subtitlePath string
	if outCfg.GenerateSubtitle && fullResult.HasSRT {
		subtitlePath, err = writeSubtitleSidecar(outputPath, fullResult.SRTContent, outCfg)
		if err != nil {
			log.Warn("subtitle sidecar write failed", "task", t.ID, "err", err)
		}
	}
	t.SetProgress(95)

	if stop, err := checkpoint(ctx, t, deps); stop {
		return err
	}

	// Stage 6/7: remove the preview temp file and mark complete.
	if previewPath != "" {
		if rmErr := os.Remove(previewPath); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Debug("preview cleanup failed", "task", t.ID, "path", previewPath, "err", rmErr)
		}
	}
	return t.Complete(task.Result{
		OutputPath:     outputPath,
		DetectedFormat: detectedFormat,
		DurationS:      fullResult.DurationS,
		SampleRate:     fullResult.SampleRate,
		Channels:       fullResult.Channels,
		HasSubtitle:    subtitlePath != "",
		SubtitlePath:   subtitlePath,
	})
}

// checkpoint is the cooperative-cancellation/pause gate: it never
// aborts an in-flight adapter call (those are watched by their own
// select loop or left to finish), it only refuses to start the *next*
// stage, and it's where a PAUSED task actually blocks. stop is true
// once the task has been cancelled (err is then nil unless the
// CANCELLED transition itself failed), telling Run to return.
func checkpoint(ctx context.Context, t *task.Task, deps Deps) (stop bool, err error) {
	select {
	case <-ctx.Done():
		return true, handleCancellation(t)
	default:
	}
	if deps.PauseGate != nil {
		if err := deps.PauseGate(ctx, t); err != nil {
			return true, handleCancellation(t)
		}
	}
	return false, nil
}

func handleCancellation(t *task.Task) error {
	if err := t.Transition(task.StatusCancelled); err != nil {
		return err
	}
	return nil
}

// strategyFor dispatches on the engine's literal id (`edge_tts`,
// `emotivoice_tts_api`, else generic), not on a capability flag: the
// two segmented formulas are tied to those specific HTTP services'
// latency shape rather than to "is this engine online" or "does it
// report timing data" in general.
func strategyFor(desc engine.Descriptor) EstimationStrategy {
	switch desc.ID {
	case "edge_tts":
		return StrategyEdgeSegmented
	case "emotivoice_tts_api":
		return StrategyEmotionSegmented
	default:
		return StrategyGenericLinear
	}
}

// writePreviewFile persists the calibration preview next to the task's
// eventual output as <base>.tmp.wav. The file exists purely for
// debugging a bad calibration run; failing to write it never fails the
// task, and stage 6 (plus a deferred best-effort pass on early exits)
// removes it.
func writePreviewFile(t *task.Task, out task.OutputConfig, audio []byte) string {
	if len(audio) == 0 {
		return ""
	}
	var dir, stem string
	if t.OutputPath != "" {
		dir = filepath.Dir(t.OutputPath)
		base := filepath.Base(t.OutputPath)
		stem = strings.TrimSuffix(base, filepath.Ext(base))
	} else {
		dir = out.OutputDir
		stem = GenerateFilename(t.Chapter, out)
	}
	if dir == "" {
		return ""
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Debug("preview dir create failed", "task", t.ID, "dir", dir, "err", err)
		return ""
	}
	path := filepath.Join(dir, stem+".tmp.wav")
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		log.Debug("preview write failed", "task", t.ID, "path", path, "err", err)
		return ""
	}
	return path
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func writeSubtitleSidecar(audioOutputPath, srtContent string, out task.OutputConfig) (string, error) {
	entries := parseSRT(srtContent)
	entries = ApplyOffset(entries, out.SubtitleOffset)
	rendered := RenderSubtitle(entries, out.SubtitleFormat, out.SubtitleStyle)

	ext := string(out.SubtitleFormat)
	if ext == "" {
		ext = "srt"
	}
	base := strings.TrimSuffix(audioOutputPath, filepath.Ext(audioOutputPath))
	sidecarPath := base + "." + ext
	if err := os.WriteFile(sidecarPath, []byte(rendered), 0o644); err != nil {
		return "", err
	}
	return sidecarPath, nil
}
