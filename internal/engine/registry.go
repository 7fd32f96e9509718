package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/battconv/battconv/internal/task"
)

// Config is the mutable registration record for one engine: its
// descriptor, live parameter values, enabled flag, and scheduling
// priority (EngineConfig).
type Config struct {
	Descriptor Descriptor
	Parameters map[string]string
	Enabled    bool
	Priority   int // 0..100, descending order wins
}

// ChangeListener is notified after a registry mutation: engine
// added, removed, enabled, disabled, or its status changed.
type ChangeListener func(changeType string, engineID string)

// Registry holds per-engine capability descriptors plus live instances
// and resolves engine id -> engine. It owns the Config records;
// adapters own their own internal caches (model handles, HTTP clients).
type Registry struct {
	mu sync.RWMutex

	engines   map[string]Engine
	configs   map[string]Config
	listeners []ChangeListener

	mapper *VoiceMapper
}

// NewRegistry creates an empty registry with a fresh voice mapper.
func NewRegistry() *Registry {
	return &Registry{
		engines: make(map[string]Engine),
		configs: make(map[string]Config),
		mapper:  NewVoiceMapper(),
	}
}

// Mapper exposes the registry's voice mapper for callers that need to
// translate a voice id outside of Resolve's automatic substitution.
func (r *Registry) Mapper() *VoiceMapper {
	return r.mapper
}

// Register adds an engine instance under its descriptor's id.
func (r *Registry) Register(eng Engine, priority int) {
	desc := eng.Describe()

	r.mu.Lock()
	r.engines[desc.ID] = eng
	r.configs[desc.ID] = Config{
		Descriptor: desc,
		Parameters: make(map[string]string),
		Enabled:    true,
		Priority:   priority,
	}
	r.mu.Unlock()

	r.notify("engine_registered", desc.ID)
}

// Unregister removes an engine, closing it first.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	eng, ok := r.engines[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}
	delete(r.engines, id)
	delete(r.configs, id)
	r.mu.Unlock()

	r.notify("engine_unregistered", id)
	return eng.Close()
}

// Get returns the live engine for id.
func (r *Registry) Get(id string) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	eng, ok := r.engines[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}
	return eng, nil
}

// SetEnabled toggles an engine's enabled flag (engine-parameter edits
// go through the Config Registry in production; the scheduler-facing
// Registry mirrors just the flags it needs for candidate ordering).
func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	cfg, ok := r.configs[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}
	cfg.Enabled = enabled
	r.configs[id] = cfg
	r.mu.Unlock()
	r.notify("engine_enabled_changed", id)
	return nil
}

// NotifyStatusChanged fires the registry's change listeners after the
// health monitor refreshes id's status (the status value itself lives
// on the engine, fetched via Engine.Status).
func (r *Registry) NotifyStatusChanged(id string) {
	r.notify("engine_status_changed", id)
}

// PriorityOrder returns enabled engine ids ordered by descending
// priority.
func (r *Registry) PriorityOrder() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.configs))
	for id, cfg := range r.configs {
		if cfg.Enabled {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return r.configs[ids[i]].Priority > r.configs[ids[j]].Priority
	})
	return ids
}

// CandidateOrder returns enabled, AVAILABLE engine ids in descending
// priority order — the list Resolve/fallback selection walks.
func (r *Registry) CandidateOrder(ctx context.Context) []string {
	order := r.PriorityOrder()
	out := make([]string, 0, len(order))
	for _, id := range order {
		eng, err := r.Get(id)
		if err != nil {
			continue
		}
		if eng.Status().State == StateAvailable {
			out = append(out, id)
		}
	}
	return out
}

// Resolve returns the engine for cfg.EngineID, validating the voice
// config against it (the adapter substitutes its fallback voice id when
// voice_name is unknown; the mapper is not consulted for the requested
// engine). If the requested engine is unavailable or rejects the
// config, it falls back through CandidateOrder in priority order
// (EngineUnavailableError recovery), running the Voice Mapper to
// re-map the voice for each candidate engine it tries.
func (r *Registry) Resolve(ctx context.Context, cfg task.VoiceConfig) (Engine, task.VoiceConfig, error) {
	eng, err := r.Get(cfg.EngineID)
	if err == nil && eng.Status().State == StateAvailable {
		validated, verr := eng.Validate(ctx, cfg)
		if verr == nil {
			return eng, validated, nil
		}
		log.Warn("engine validate failed, trying fallback order", "engine", cfg.EngineID, "err", verr)
	} else {
		log.Warn("requested engine unavailable, trying fallback order", "engine", cfg.EngineID)
	}

	for _, id := range r.CandidateOrder(ctx) {
		if id == cfg.EngineID {
			continue
		}
		candidate, err := r.Get(id)
		if err != nil {
			continue
		}
		mapping := r.mapper.Map(cfg.VoiceName, cfg.EngineID, id, nil)
		substituted := cfg.Clone()
		substituted.EngineID = id
		substituted.VoiceName = mapping.TargetID
		validated, verr := candidate.Validate(ctx, substituted)
		if verr != nil {
			continue
		}
		log.Warn("substituted engine", "from", cfg.EngineID, "to", id, "strategy", mapping.Strategy, "confidence", mapping.Confidence)
		return candidate, validated, nil
	}

	return nil, task.VoiceConfig{}, ErrNoCandidateEngines
}

// AddListener registers a callback fired after every mutation.
func (r *Registry) AddListener(l ChangeListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

func (r *Registry) notify(changeType, engineID string) {
	r.mu.RLock()
	listeners := make([]ChangeListener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.RUnlock()
	for _, l := range listeners {
		l(changeType, engineID)
	}
}

// IDs returns every registered engine id, enabled or not, in no
// particular order — the Health Monitor probes all of them regardless
// of the scheduling-candidate filter PriorityOrder applies.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.engines))
	for id := range r.engines {
		ids = append(ids, id)
	}
	return ids
}

// Snapshot returns a read-only copy of every registered engine's
// Config, keyed by id.
func (r *Registry) Snapshot() map[string]Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Config, len(r.configs))
	for k, v := range r.configs {
		out[k] = v
	}
	return out
}
