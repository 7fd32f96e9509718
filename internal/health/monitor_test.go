package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/battconv/battconv/internal/engine"
	"github.com/battconv/battconv/internal/task"
)

// fakeHealthEngine is a minimal engine.Engine stand-in for monitor
// tests: Init flips to Available unless initErr is set.
type fakeHealthEngine struct {
	id      string
	state   engine.State
	initErr error
}

func (e *fakeHealthEngine) Init(ctx context.Context) error {
	if e.initErr != nil {
		return e.initErr
	}
	e.state = engine.StateAvailable
	return nil
}
func (e *fakeHealthEngine) ListVoices(ctx context.Context) ([]engine.VoiceInfo, error) {
	return []engine.VoiceInfo{{ID: "v1"}, {ID: "v2"}}, nil
}
func (e *fakeHealthEngine) Validate(ctx context.Context, cfg task.VoiceConfig) (task.VoiceConfig, error) {
	return cfg, nil
}
func (e *fakeHealthEngine) Synthesize(ctx context.Context, text string, cfg task.VoiceConfig) (engine.SynthesisResult, error) {
	return engine.SynthesisResult{Success: true}, nil
}
func (e *fakeHealthEngine) Describe() engine.Descriptor { return engine.Descriptor{ID: e.id} }
func (e *fakeHealthEngine) Status() engine.Status       { return engine.Status{State: e.state} }
func (e *fakeHealthEngine) Close() error                { return nil }

// stubRegistry implements EngineSource over a fixed map of fakeHealthEngine.
type stubRegistry struct {
	ids      []string
	engines  map[string]engine.Engine
	notified []string
}

func (r *stubRegistry) IDs() []string { return r.ids }
func (r *stubRegistry) Get(id string) (engine.Engine, error) {
	eng, ok := r.engines[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return eng, nil
}
func (r *stubRegistry) NotifyStatusChanged(id string) {
	r.notified = append(r.notified, id)
}

type stubSampler struct {
	sample ResourceSample
}

func (s *stubSampler) Sample() ResourceSample { return s.sample }

func TestStartupCheckPopulatesHealth(t *testing.T) {
	good := &fakeHealthEngine{id: "good"}
	bad := &fakeHealthEngine{id: "bad", initErr: errors.New("boom")}
	reg := &stubRegistry{ids: []string{"good", "bad"}, engines: map[string]engine.Engine{"good": good, "bad": bad}}
	m := New(reg, &stubSampler{}, time.Second)

	m.StartupCheck(context.Background())

	health := m.Health()
	if health["good"].State != engine.StateAvailable {
		t.Fatalf("expected good engine available, got %+v", health["good"])
	}
	if health["bad"].State != engine.StateError {
		t.Fatalf("expected bad engine error state, got %+v", health["bad"])
	}
	if !m.EngineHealthChecked() {
		t.Fatal("expected checked flag set after startup check")
	}
	if len(reg.notified) != 2 {
		t.Fatalf("expected both engines notified, got %v", reg.notified)
	}
}

func TestResetEngineHealthCheckRearms(t *testing.T) {
	reg := &stubRegistry{ids: []string{"a"}, engines: map[string]engine.Engine{"a": &fakeHealthEngine{id: "a"}}}
	m := New(reg, &stubSampler{}, time.Second)
	m.StartupCheck(context.Background())
	if !m.EngineHealthChecked() {
		t.Fatal("expected checked after startup")
	}
	m.ResetEngineHealthCheck()
	if m.EngineHealthChecked() {
		t.Fatal("expected checked to be false after reset")
	}
}

func TestStartAndStop(t *testing.T) {
	reg := &stubRegistry{ids: []string{"a"}, engines: map[string]engine.Engine{"a": &fakeHealthEngine{id: "a"}}}
	m := New(reg, &stubSampler{}, 20*time.Millisecond)
	m.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	m.Stop()
	if !m.EngineHealthChecked() {
		t.Fatal("expected at least one sweep to have run")
	}
}
