package health

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/battconv/battconv/internal/engine"
)

// EngineSource is the subset of *engine.Registry the monitor needs —
// kept as an interface so tests can substitute a stub roster.
type EngineSource interface {
	IDs() []string
	Get(id string) (engine.Engine, error)
	NotifyStatusChanged(id string)
}

// Monitor runs the periodic probe sweep. After the first sweep
// that probes the engines, whether or not every probe succeeds, it sets
// checked and subsequent ticks skip the engine-availability block,
// continuing to sample host resources for diagnostics until
// ResetEngineHealthCheck re-arms the engine block.
type Monitor struct {
	mu sync.RWMutex

	registry EngineSource
	sampler  ResourceSampler
	interval time.Duration
	limiter  *rate.Limiter

	checked    bool
	lastHealth map[string]EngineHealth
	errorCount int

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Monitor. interval defaults to 30s; limiter
// throttles how many engine probes fire per second so a large roster
// doesn't stampede every backend at once on each sweep (the same
// golang.org/x/time/rate package the HTTP adapter uses to throttle
// its request starts).
func New(registry EngineSource, sampler ResourceSampler, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		registry:   registry,
		sampler:    sampler,
		interval:   interval,
		limiter:    rate.NewLimiter(rate.Limit(5), 5),
		lastHealth: make(map[string]EngineHealth),
	}
}

// Start launches the probe loop in a background goroutine. Stop ends it.
func (m *Monitor) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.sweep(runCtx)
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				m.sweep(runCtx)
			}
		}
	}()
}

// Stop cancels the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.done != nil {
		<-m.done
	}
}

// StartupCheck runs a single synchronous sweep, used to establish
// initial engine availability before the scheduler starts dispatching
// a one-shot startup check.
func (m *Monitor) StartupCheck(ctx context.Context) {
	m.sweep(ctx)
}

// ResetEngineHealthCheck re-arms the engine-availability block so the
// next sweep probes every engine again instead of only sampling
// resources.
func (m *Monitor) ResetEngineHealthCheck() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checked = false
}

// EngineHealthChecked reports whether the engine-availability block has
// run at least once since the last reset.
func (m *Monitor) EngineHealthChecked() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checked
}

// Health returns the last recorded health for every probed engine.
func (m *Monitor) Health() map[string]EngineHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]EngineHealth, len(m.lastHealth))
	for k, v := range m.lastHealth {
		out[k] = v
	}
	return out
}

func (m *Monitor) sweep(ctx context.Context) {
	m.mu.RLock()
	alreadyChecked := m.checked
	m.mu.RUnlock()

	if !alreadyChecked {
		m.probeEngines(ctx)
		m.mu.Lock()
		m.checked = true
		m.mu.Unlock()
	}

	sample := m.sampler.Sample()
	m.mu.RLock()
	errCount := m.errorCount
	total := len(m.lastHealth)
	available := 0
	for _, h := range m.lastHealth {
		if h.State == engine.StateAvailable {
			available++
		}
	}
	m.mu.RUnlock()

	for _, d := range Diagnose(sample, available, total, errCount) {
		log.Warn("diagnostic", "issue", d.IssueType, "severity", d.Severity, "description", d.Description)
	}
}

func (m *Monitor) probeEngines(ctx context.Context) {
	errCount := 0
	for _, id := range m.registry.IDs() {
		if err := m.limiter.Wait(ctx); err != nil {
			return
		}
		eng, err := m.registry.Get(id)
		if err != nil {
			continue
		}

		var health EngineHealth
		if err := eng.Init(ctx); err != nil {
			errCount++
			health = EngineHealth{ID: id, State: engine.StateError, LastCheck: time.Now(), ErrorMessage: err.Error()}
		} else {
			voices, _ := eng.ListVoices(ctx)
			health = EngineHealth{ID: id, State: eng.Status().State, LastCheck: time.Now(), AvailableVoices: len(voices)}
		}

		m.mu.Lock()
		m.lastHealth[id] = health
		m.mu.Unlock()

		m.registry.NotifyStatusChanged(id)
	}

	m.mu.Lock()
	m.errorCount = errCount
	m.mu.Unlock()
}
