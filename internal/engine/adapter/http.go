package adapter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/battconv/battconv/internal/engine"
	"github.com/battconv/battconv/internal/task"
)

// wordBoundary is one timing event from a streaming HTTP engine (e.g.
// an online neural voice service reporting word/sentence offsets
// alongside audio chunks).
type wordBoundary struct {
	text      string
	offsetS   float64
	durationS float64
}

// HTTPEngine is the networked adapter kind: POSTs to a configured
// endpoint, retries 5xx/network failures with backoff, treats 4xx as
// permanent, and throttles how often synthesize calls may start via
// its own rate limiter. The limiter does not bound how many requests
// are in flight at once.
type HTTPEngine struct {
	mu sync.RWMutex

	id          string
	endpoint    string
	voicesPath  string
	client      *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	retryDelay  time.Duration
	streams     bool // true for engines that emit audio + word-boundary SSE
	desc        engine.Descriptor
	voices      []engine.VoiceInfo
	status      engine.Status
}

// HTTPEngineConfig configures one HTTPEngine instance.
type HTTPEngineConfig struct {
	ID                 string
	Endpoint           string
	VoicesPath         string
	Timeout            time.Duration
	MaxRetries         int
	RetryDelay         time.Duration
	ConcurrentRequests int
	Streams            bool
	Descriptor         engine.Descriptor
	Voices             []engine.VoiceInfo
}

// NewHTTPEngine builds an HTTP adapter. ConcurrentRequests seeds a
// token-bucket limiter (golang.org/x/time/rate) with that many tokens
// per second and that burst size, so it limits the rate at which
// synthesize calls start. It does not limit how many calls are in
// flight at the same time.
func NewHTTPEngine(cfg HTTPEngineConfig) *HTTPEngine {
	if cfg.ConcurrentRequests <= 0 {
		cfg.ConcurrentRequests = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTPEngine{
		id:         cfg.ID,
		endpoint:   cfg.Endpoint,
		voicesPath: cfg.VoicesPath,
		client:     &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.ConcurrentRequests), cfg.ConcurrentRequests),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		streams:    cfg.Streams,
		desc:       cfg.Descriptor,
		voices:     cfg.Voices,
		status:     engine.Status{State: engine.StateUnavailable},
	}
}

// Init probes the configured voice-list endpoint, matching the health
// monitor's own HTTP probe so a freshly-constructed engine
// starts with an accurate status.
func (e *HTTPEngine) Init(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.endpoint+e.voicesPath, nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err == nil {
		defer resp.Body.Close()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil || resp.StatusCode >= 300 {
		msg := "probe failed"
		if err != nil {
			msg = fmt.Sprintf("probe failed: %v", err)
		} else {
			msg = fmt.Sprintf("probe failed: status %d", resp.StatusCode)
		}
		e.status = engine.Status{State: engine.StateError, ErrorMessage: msg}
		return fmt.Errorf("%w: %s", engine.ErrUnavailable, e.id)
	}
	e.status = engine.Status{State: engine.StateAvailable, AvailableVoices: e.voices}
	return nil
}

func (e *HTTPEngine) ListVoices(ctx context.Context) ([]engine.VoiceInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.voices, nil
}

func (e *HTTPEngine) Validate(ctx context.Context, cfg task.VoiceConfig) (task.VoiceConfig, error) {
	if !cfg.IsValid() {
		return task.VoiceConfig{}, fmt.Errorf("%w: out-of-range parameter", engine.ErrVoiceUnknown)
	}
	e.mu.RLock()
	voices, desc := e.voices, e.desc
	e.mu.RUnlock()
	if err := engine.ValidateExtra(desc.ParameterSchema, cfg.Extra); err != nil {
		return task.VoiceConfig{}, err
	}
	if voiceKnown(cfg.VoiceName, voices) {
		return cfg, nil
	}
	out := cfg.Clone()
	out.VoiceName = desc.FallbackVoiceID
	return out, nil
}

type synthesizeRequest struct {
	Text      string  `json:"text"`
	Voice     string  `json:"voice"`
	Rate      float64 `json:"rate"`
	Pitch     float64 `json:"pitch"`
	Volume    float64 `json:"volume"`
	Format    string  `json:"format"`
	Emotion   string  `json:"emotion,omitempty"`
	Streaming bool    `json:"streaming"`
}

// Synthesize POSTs the request, retrying 5xx/network failures with
// cenkalti/backoff's exponential strategy and treating any 4xx as
// backoff.Permanent (no retry). Streaming engines multiplex an SSE
// body of audio-chunk and word-boundary events into accumulated bytes
// plus a constructed SRT script.
func (e *HTTPEngine) Synthesize(ctx context.Context, text string, cfg task.VoiceConfig) (engine.SynthesisResult, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return engine.SynthesisResult{}, err
	}

	e.mu.RLock()
	maxRetries, retryDelay, streams := e.maxRetries, e.retryDelay, e.streams
	e.mu.RUnlock()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryDelay

	op := func() (engine.SynthesisResult, error) {
		result, permanent, err := e.doSynthesize(ctx, text, cfg, streams)
		if err != nil {
			if permanent {
				return engine.SynthesisResult{}, backoff.Permanent(err)
			}
			return engine.SynthesisResult{}, err
		}
		return result, nil
	}

	result, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(maxRetries+1)),
	)
	if err != nil {
		return engine.SynthesisResult{}, fmt.Errorf("%w: %v", engine.ErrNetwork, err)
	}
	return result, nil
}

func (e *HTTPEngine) doSynthesize(ctx context.Context, text string, cfg task.VoiceConfig, streaming bool) (result engine.SynthesisResult, permanent bool, err error) {
	reqBody := synthesizeRequest{
		Text: text, Voice: cfg.VoiceName, Rate: cfg.Rate, Pitch: cfg.Pitch,
		Volume: cfg.Volume, Format: cfg.OutputFormat, Emotion: cfg.Emotion, Streaming: streaming,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return engine.SynthesisResult{}, true, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/synthesize", bytes.NewReader(payload))
	if err != nil {
		return engine.SynthesisResult{}, true, err
	}
	req.Header.Set("Content-Type", "application/json")
	if streaming {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return engine.SynthesisResult{}, false, err // network error: retryable
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		body, _ := io.ReadAll(resp.Body)
		return engine.SynthesisResult{}, true, fmt.Errorf("%w: status %d: %s", engine.ErrSynthesis, resp.StatusCode, string(body))
	}
	if resp.StatusCode >= 500 {
		return engine.SynthesisResult{}, false, fmt.Errorf("server error: status %d", resp.StatusCode)
	}

	if streaming {
		return e.consumeStream(resp.Body)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return engine.SynthesisResult{}, false, err
	}
	return engine.SynthesisResult{
		Success:        true,
		AudioBytes:     data,
		DetectedFormat: engine.DetectFormat(data),
	}, false, nil
}

// consumeStream reads an SSE body interleaving base64 audio-chunk
// events with word-boundary timing events, accumulating both into a
// final SynthesisResult whose SRTContent is built from the boundaries.
func (e *HTTPEngine) consumeStream(body io.Reader) (engine.SynthesisResult, bool, error) {
	var audio bytes.Buffer
	var boundaries []wordBoundary

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	var eventType string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			eventType = ""
			continue
		}
		field, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			eventType = value
		case "data":
			switch eventType {
			case "audio":
				chunk, err := base64.StdEncoding.DecodeString(value)
				if err != nil {
					continue
				}
				audio.Write(chunk)
			case "boundary":
				var wb struct {
					Text   string  `json:"text"`
					Offset float64 `json:"offset_s"`
					Dur    float64 `json:"duration_s"`
				}
				if err := json.Unmarshal([]byte(value), &wb); err == nil {
					boundaries = append(boundaries, wordBoundary{text: wb.Text, offsetS: wb.Offset, durationS: wb.Dur})
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return engine.SynthesisResult{}, false, fmt.Errorf("sse scan: %w", err)
	}

	data := audio.Bytes()
	srt := buildSRT(boundaries)
	log.Debug("stream consumed", "audio_bytes", len(data), "boundaries", len(boundaries))

	return engine.SynthesisResult{
		Success:        true,
		AudioBytes:     data,
		DetectedFormat: engine.DetectFormat(data),
		SRTContent:     srt,
		HasSRT:         srt != "",
	}, false, nil
}

func buildSRT(boundaries []wordBoundary) string {
	if len(boundaries) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, wb := range boundaries {
		fmt.Fprintf(&sb, "%d\n%s --> %s\n%s\n\n",
			i+1,
			formatSRTTimestamp(wb.offsetS),
			formatSRTTimestamp(wb.offsetS+wb.durationS),
			wb.text,
		)
	}
	return sb.String()
}

func formatSRTTimestamp(s float64) string {
	if s < 0 {
		s = 0
	}
	total := time.Duration(s * float64(time.Second))
	h := total / time.Hour
	total -= h * time.Hour
	m := total / time.Minute
	total -= m * time.Minute
	sec := total / time.Second
	total -= sec * time.Second
	ms := total / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, sec, ms)
}

func (e *HTTPEngine) Describe() engine.Descriptor {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.desc
}

func (e *HTTPEngine) Status() engine.Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

func (e *HTTPEngine) Close() error {
	return nil
}
