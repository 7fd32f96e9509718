package pipeline

import "math"

// EstimationStrategy names one of the three time-estimation formulas
// this package implements. Which one applies is a property of the
// resolved engine's identity (see strategyFor), not a user-facing
// setting.
type EstimationStrategy string

const (
	// StrategyGenericLinear scales a short preview's synth time
	// linearly by character count — the fallback for any engine that
	// doesn't report its own timing behavior.
	StrategyGenericLinear EstimationStrategy = "generic_linear"
	// StrategyEdgeSegmented models an online neural engine whose
	// per-request overhead grows in 500-character increments.
	StrategyEdgeSegmented EstimationStrategy = "edge_segmented"
	// StrategyEmotionSegmented models an emotion-aware HTTP API billed
	// per 200-character segment.
	StrategyEmotionSegmented EstimationStrategy = "emotion_segmented"
)

// EstimateDuration computes the expected full-synthesis duration in
// seconds for one strategy, given the preview's measured duration (only
// used by the generic strategy) and the full/preview text lengths.
func EstimateDuration(strategy EstimationStrategy, previewDurationS float64, previewChars, fullChars int) float64 {
	switch strategy {
	case StrategyEdgeSegmented:
		return estimateEdgeSegmented(fullChars)
	case StrategyEmotionSegmented:
		return estimateEmotionSegmented(fullChars)
	default:
		return estimateGenericLinear(previewDurationS, previewChars, fullChars)
	}
}

func estimateGenericLinear(previewDurationS float64, previewChars, fullChars int) float64 {
	if previewChars <= 0 {
		previewChars = 1
	}
	perChar := previewDurationS / float64(previewChars)
	estimate := perChar*float64(fullChars) + 0.5
	return clamp(estimate, 10.0, 3600.0)
}

func estimateEdgeSegmented(textLength int) float64 {
	var base float64
	if textLength <= 500 {
		base = 10.0
	} else {
		extra := textLength - 500
		increments := math.Ceil(float64(extra) / 500.0)
		base = 10.0 + increments*8.0
	}
	return clamp(base+3.0, 10.0, 300.0)
}

func estimateEmotionSegmented(textLength int) float64 {
	segments := math.Ceil(float64(textLength) / 200.0)
	base := segments * 12.0
	return clamp(base+5.0, 15.0, 600.0)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ProgressFromElapsed maps elapsed time against the estimated duration
// onto the stage-4 progress band [20,90]. The ratio is capped at 0.95
// before scaling so the displayed percentage never reaches 95 purely
// from the time-based curve, and the final value is additionally
// capped at 90 so stage 5 (post-process) always owns the 90->100 span.
func ProgressFromElapsed(elapsedS, estimatedDurationS float64) (progress int, remainingS float64) {
	if estimatedDurationS <= 0 {
		estimatedDurationS = 1
	}
	ratio := elapsedS / estimatedDurationS
	if ratio > 0.95 {
		ratio = 0.95
	}
	audioProgress := int(20.0 + ratio*70.0)
	if audioProgress > 90 {
		audioProgress = 90
	}
	remaining := estimatedDurationS - elapsedS
	if remaining < 0 {
		remaining = 0
	}
	return audioProgress, remaining
}
