package telemetry

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Well-known counter keys stored by the simulation loop.
const (
	KeyTickDurationMillis = "sim_tick_duration_millis"
	KeyWorldActors        = "sim_world_actors"
	KeyWorldPlayers       = "sim_world_players"
	KeyPendingCommands    = "sim_pending_commands"
	KeyCommandOverflow    = "sim_command_overflow_total"
	KeyBroadcastBytes     = "net_broadcast_bytes_total"
	KeyBroadcastEntities  = "net_broadcast_entities_total"
	KeySessionsOpen       = "net_sessions_open"
	KeyMessagesRejected   = "net_messages_rejected_total"
	KeyPhaseFaults        = "sim_phase_faults_total"
	KeyRecorderWrites     = "persist_writes_total"
	KeyRecorderDropped    = "persist_dropped_total"
)

// Counters is the in-process Metrics implementation. Counters are created on
// first use; reads take a snapshot so HTTP introspection never holds the
// writers up.
type Counters struct {
	mu     sync.RWMutex
	values map[string]*atomic.Uint64

	phaseMu sync.RWMutex
	phases  map[string]time.Duration
}

func NewCounters() *Counters {
	return &Counters{
		values: make(map[string]*atomic.Uint64),
		phases: make(map[string]time.Duration),
	}
}

func (c *Counters) counter(key string) *atomic.Uint64 {
	c.mu.RLock()
	v, ok := c.values[key]
	c.mu.RUnlock()
	if ok {
		return v
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok = c.values[key]; ok {
		return v
	}
	v = &atomic.Uint64{}
	c.values[key] = v
	return v
}

// Add implements Metrics.
func (c *Counters) Add(key string, delta uint64) {
	if c == nil || key == "" {
		return
	}
	c.counter(key).Add(delta)
}

// Store implements Metrics.
func (c *Counters) Store(key string, value uint64) {
	if c == nil || key == "" {
		return
	}
	c.counter(key).Store(value)
}

// Load returns the current value for a key, zero when never written.
func (c *Counters) Load(key string) uint64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	v, ok := c.values[key]
	c.mu.RUnlock()
	if !ok {
		return 0
	}
	return v.Load()
}

// RecordPhase stores the most recent duration of a named tick phase.
func (c *Counters) RecordPhase(phase string, d time.Duration) {
	if c == nil || phase == "" {
		return
	}
	if d < 0 {
		d = 0
	}
	c.phaseMu.Lock()
	c.phases[phase] = d
	c.phaseMu.Unlock()
}

// Snapshot renders every counter and phase timing for the introspection API.
type Snapshot struct {
	Counters    map[string]uint64 `json:"counters"`
	PhaseMillis map[string]int64  `json:"phaseMillis"`
}

func (c *Counters) Snapshot() Snapshot {
	snap := Snapshot{
		Counters:    make(map[string]uint64),
		PhaseMillis: make(map[string]int64),
	}
	if c == nil {
		return snap
	}
	c.mu.RLock()
	keys := make([]string, 0, len(c.values))
	for key := range c.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		snap.Counters[key] = c.values[key].Load()
	}
	c.mu.RUnlock()

	c.phaseMu.RLock()
	for phase, d := range c.phases {
		snap.PhaseMillis[phase] = d.Milliseconds()
	}
	c.phaseMu.RUnlock()
	return snap
}

var _ Metrics = (*Counters)(nil)
