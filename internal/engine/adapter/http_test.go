package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/battconv/battconv/internal/engine"
	"github.com/battconv/battconv/internal/task"
)

func testDescriptor() engine.Descriptor {
	return engine.Descriptor{ID: "test_http", DefaultVoiceID: "v1", FallbackVoiceID: "v1"}
}

func TestHTTPEngineInitSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	eng := NewHTTPEngine(HTTPEngineConfig{ID: "test_http", Endpoint: srv.URL, VoicesPath: "/voices", Descriptor: testDescriptor()})
	if err := eng.Init(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eng.Status().State != engine.StateAvailable {
		t.Fatalf("expected available, got %v", eng.Status().State)
	}
}

func TestHTTPEngineInitFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	eng := NewHTTPEngine(HTTPEngineConfig{ID: "test_http", Endpoint: srv.URL, VoicesPath: "/voices", Descriptor: testDescriptor()})
	if err := eng.Init(context.Background()); err == nil {
		t.Fatal("expected error on 500 probe")
	}
	if eng.Status().State != engine.StateError {
		t.Fatalf("expected error state, got %v", eng.Status().State)
	}
}

func TestHTTPEngineSynthesizeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("RIFF\x24\x00\x00\x00WAVEfmt "))
	}))
	defer srv.Close()

	eng := NewHTTPEngine(HTTPEngineConfig{ID: "test_http", Endpoint: srv.URL, Descriptor: testDescriptor(), ConcurrentRequests: 5})
	cfg := task.VoiceConfig{EngineID: "test_http", VoiceName: "v1", Language: "en-US", Rate: 1, Volume: 1}
	result, err := eng.Synthesize(context.Background(), "hello", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.DetectedFormat != "wav" {
		t.Fatalf("got %+v", result)
	}
}

func TestHTTPEngineSynthesize4xxIsPermanent(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	eng := NewHTTPEngine(HTTPEngineConfig{ID: "test_http", Endpoint: srv.URL, Descriptor: testDescriptor(), MaxRetries: 3, RetryDelay: time.Millisecond, ConcurrentRequests: 5})
	cfg := task.VoiceConfig{EngineID: "test_http", VoiceName: "v1", Language: "en-US", Rate: 1, Volume: 1}
	_, err := eng.Synthesize(context.Background(), "hello", cfg)
	if err == nil {
		t.Fatal("expected error on 4xx response")
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 call for a permanent 4xx failure, got %d", calls)
	}
}

func TestHTTPEngineSynthesize5xxRetriesThenSucceeds(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("RIFF\x24\x00\x00\x00WAVEfmt "))
	}))
	defer srv.Close()

	eng := NewHTTPEngine(HTTPEngineConfig{ID: "test_http", Endpoint: srv.URL, Descriptor: testDescriptor(), MaxRetries: 5, RetryDelay: time.Millisecond, ConcurrentRequests: 5})
	cfg := task.VoiceConfig{EngineID: "test_http", VoiceName: "v1", Language: "en-US", Rate: 1, Volume: 1}
	result, err := eng.Synthesize(context.Background(), "hello", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("got %+v", result)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestHTTPEngineValidateSubstitutesUnknownVoice(t *testing.T) {
	eng := NewHTTPEngine(HTTPEngineConfig{ID: "test_http", Endpoint: "http://example.invalid", Descriptor: testDescriptor(), Voices: []engine.VoiceInfo{{ID: "v1"}}})
	cfg := task.VoiceConfig{EngineID: "test_http", VoiceName: "unknown-voice", Language: "en-US", Rate: 1, Volume: 1}
	got, err := eng.Validate(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.VoiceName != "v1" {
		t.Fatalf("expected fallback voice substituted, got %q", got.VoiceName)
	}
}

func TestHTTPEngineValidateRejectsOutOfRangeParams(t *testing.T) {
	eng := NewHTTPEngine(HTTPEngineConfig{ID: "test_http", Endpoint: "http://example.invalid", Descriptor: testDescriptor()})
	cfg := task.VoiceConfig{EngineID: "test_http", VoiceName: "v1", Language: "en-US", Rate: 10, Volume: 1}
	if _, err := eng.Validate(context.Background(), cfg); err == nil {
		t.Fatal("expected validation error for out-of-range rate")
	}
}

func TestHTTPEngineValidateChecksParameterSchema(t *testing.T) {
	desc := testDescriptor()
	desc.ParameterSchema = engine.ParameterSchema{
		Optional: map[string]engine.ParamRule{"alpha": {Type: "float", Min: 0, Max: 1}},
	}
	eng := NewHTTPEngine(HTTPEngineConfig{ID: "test_http", Endpoint: "http://example.invalid", Descriptor: desc, Voices: []engine.VoiceInfo{{ID: "v1"}}})

	cfg := task.VoiceConfig{EngineID: "test_http", VoiceName: "v1", Language: "en-US", Rate: 1, Volume: 1, Extra: map[string]string{"alpha": "0.5"}}
	if _, err := eng.Validate(context.Background(), cfg); err != nil {
		t.Fatalf("unexpected error for an in-range extra param: %v", err)
	}

	cfg.Extra = map[string]string{"alpha": "5"}
	if _, err := eng.Validate(context.Background(), cfg); err == nil {
		t.Fatal("expected validation error for an out-of-range extra param")
	}

	cfg.Extra = map[string]string{"unknown_knob": "1"}
	if _, err := eng.Validate(context.Background(), cfg); err == nil {
		t.Fatal("expected validation error for a key outside the parameter schema")
	}
}
