package pipeline

import (
	"testing"

	"github.com/battconv/battconv/internal/engine"
)

// These mirror the real descriptors cmd/battconv/app.go registers, so
// a future change to either side that breaks the pairing shows up here
// instead of only at runtime via a silently-wrong estimate.
func TestStrategyForBuiltinEngineDescriptors(t *testing.T) {
	cases := []struct {
		name string
		desc engine.Descriptor
		want EstimationStrategy
	}{
		{"edge_tts", engine.Descriptor{ID: "edge_tts", IsOnline: true, ProvidesTimingData: true}, StrategyEdgeSegmented},
		{"emotivoice_tts_api", engine.Descriptor{ID: "emotivoice_tts_api", IsOnline: true}, StrategyEmotionSegmented},
		{"piper_tts", engine.Descriptor{ID: "piper_tts"}, StrategyGenericLinear},
		{"pyttsx3", engine.Descriptor{ID: "pyttsx3"}, StrategyGenericLinear},
		{"unknown engine id", engine.Descriptor{ID: "some_future_engine", IsOnline: true, ProvidesTimingData: true}, StrategyGenericLinear},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := strategyFor(c.desc); got != c.want {
				t.Fatalf("strategyFor(%q) = %v, want %v", c.desc.ID, got, c.want)
			}
		})
	}
}
