package engine

import (
	"context"
	"testing"

	"github.com/battconv/battconv/internal/task"
)

// fakeEngine is a minimal stand-in Engine for registry tests; it never
// touches the network or disk.
type fakeEngine struct {
	desc  Descriptor
	state State
}

func (f *fakeEngine) Init(ctx context.Context) error { return nil }
func (f *fakeEngine) ListVoices(ctx context.Context) ([]VoiceInfo, error) {
	return []VoiceInfo{{ID: f.desc.DefaultVoiceID, Name: "default"}}, nil
}
func (f *fakeEngine) Validate(ctx context.Context, cfg task.VoiceConfig) (task.VoiceConfig, error) {
	if cfg.VoiceName == f.desc.DefaultVoiceID {
		return cfg, nil
	}
	cfg.VoiceName = f.desc.FallbackVoiceID
	return cfg, nil
}
func (f *fakeEngine) Synthesize(ctx context.Context, text string, cfg task.VoiceConfig) (SynthesisResult, error) {
	return SynthesisResult{Success: true, AudioBytes: []byte("RIFF....WAVE")}, nil
}
func (f *fakeEngine) Describe() Descriptor { return f.desc }
func (f *fakeEngine) Status() Status       { return Status{State: f.state} }
func (f *fakeEngine) Close() error         { return nil }

func newFakeEngine(id string, state State) *fakeEngine {
	return &fakeEngine{desc: Descriptor{ID: id, DefaultVoiceID: "v1", FallbackVoiceID: "v1"}, state: state}
}

func TestRegistryPriorityOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(newFakeEngine("low", StateAvailable), 10)
	r.Register(newFakeEngine("high", StateAvailable), 90)
	r.Register(newFakeEngine("mid", StateAvailable), 50)

	order := r.PriorityOrder()
	want := []string{"high", "mid", "low"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestRegistrySetEnabledExcludesFromPriorityOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(newFakeEngine("a", StateAvailable), 10)
	r.Register(newFakeEngine("b", StateAvailable), 20)

	if err := r.SetEnabled("a", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	order := r.PriorityOrder()
	if len(order) != 1 || order[0] != "b" {
		t.Fatalf("got %v, want [b]", order)
	}
}

func TestCandidateOrderExcludesUnavailable(t *testing.T) {
	r := NewRegistry()
	r.Register(newFakeEngine("down", StateUnavailable), 90)
	r.Register(newFakeEngine("up", StateAvailable), 10)

	got := r.CandidateOrder(context.Background())
	if len(got) != 1 || got[0] != "up" {
		t.Fatalf("got %v, want [up]", got)
	}
}

func TestResolveFallsBackWhenRequestedEngineUnavailable(t *testing.T) {
	r := NewRegistry()
	r.Register(newFakeEngine("primary", StateUnavailable), 90)
	r.Register(newFakeEngine("secondary", StateAvailable), 50)

	cfg := task.VoiceConfig{EngineID: "primary", VoiceName: "v1", Language: "en-US", Rate: 1, Volume: 1}
	eng, resolved, err := r.Resolve(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eng.Describe().ID != "secondary" {
		t.Fatalf("expected fallback to secondary, got %s", eng.Describe().ID)
	}
	if resolved.EngineID != "secondary" {
		t.Fatalf("expected resolved config engine secondary, got %s", resolved.EngineID)
	}
}

func TestResolveReturnsErrorWhenNoCandidates(t *testing.T) {
	r := NewRegistry()
	r.Register(newFakeEngine("only", StateUnavailable), 90)

	cfg := task.VoiceConfig{EngineID: "only", VoiceName: "v1", Language: "en-US", Rate: 1, Volume: 1}
	_, _, err := r.Resolve(context.Background(), cfg)
	if err != ErrNoCandidateEngines {
		t.Fatalf("expected ErrNoCandidateEngines, got %v", err)
	}
}

func TestUnregisterClosesAndRemoves(t *testing.T) {
	r := NewRegistry()
	r.Register(newFakeEngine("a", StateAvailable), 10)
	if err := r.Unregister("a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Get("a"); err == nil {
		t.Fatal("expected error getting unregistered engine")
	}
}

func TestIDsReturnsAllRegardlessOfEnabled(t *testing.T) {
	r := NewRegistry()
	r.Register(newFakeEngine("a", StateAvailable), 10)
	r.Register(newFakeEngine("b", StateAvailable), 20)
	_ = r.SetEnabled("a", false)

	ids := r.IDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids regardless of enabled flag, got %v", ids)
	}
}
