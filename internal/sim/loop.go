package sim

import (
	"sync"
	"sync/atomic"
	"time"

	"cliffhop/server/internal/telemetry"
	"cliffhop/server/logging"
)

const (
	// CommandRejectQueueLimit indicates a command was dropped due to per-actor
	// queue throttling.
	CommandRejectQueueLimit = "queue_limit"
	// CommandRejectQueueFull indicates the global command buffer is saturated.
	CommandRejectQueueFull = "queue_full"
	// CommandRejectPaused indicates the simulation is paused after a fault.
	CommandRejectPaused = "paused"
)

// Engine is the surface the loop drives and non-simulation callers consume.
type Engine interface {
	Apply([]Command) error
	Step()
	Snapshot() Snapshot
	DrainEvents() []Event
	Deps() Deps
}

// LoopConfig tunes the command buffer and tick loop orchestration.
type LoopConfig struct {
	TickRate        int
	CommandCapacity int
	PerActorLimit   int
	WarningStep     int
}

// LoopTickContext identifies the tick about to run.
type LoopTickContext struct {
	Tick uint64
	Now  time.Time
}

// LoopStepResult summarises one completed tick for the broadcast side.
type LoopStepResult struct {
	Tick     uint64
	Now      time.Time
	Snapshot Snapshot
	Events   []Event
	Commands []Command
	Duration time.Duration
	Budget   time.Duration
}

// LoopHooks lets the hub observe loop activity without reaching into engine
// internals.
type LoopHooks struct {
	Prepare        func(LoopTickContext)
	AfterStep      func(LoopStepResult)
	OnCommandDrop  func(reason string, cmd Command)
	OnQueueWarning func(length int)
	// OnFault fires when a panic escapes the engine entirely. The loop is
	// already paused when the hook runs.
	OnFault func(tick uint64, recovered any)
}

// Loop coordinates command ingestion and the fixed-timestep runner. Producers
// enqueue from connection goroutines; the tick goroutine is the only caller
// of the engine itself.
type Loop struct {
	core   Engine
	buffer *CommandBuffer
	hooks  LoopHooks
	config LoopConfig

	logger  telemetry.Logger
	metrics telemetry.Metrics

	paused atomic.Bool
	tick   atomic.Uint64

	queueMu       sync.Mutex
	perActorCount map[string]int
	dropCounts    map[string]uint64
}

// NewLoop wraps the provided engine with a ring-buffer queue and runner.
func NewLoop(core Engine, cfg LoopConfig, hooks LoopHooks) *Loop {
	if core == nil {
		return nil
	}
	deps := core.Deps()
	return &Loop{
		core:          core,
		buffer:        NewCommandBuffer(cfg.CommandCapacity, deps.Metrics),
		hooks:         hooks,
		config:        cfg,
		logger:        deps.Logger,
		metrics:       deps.Metrics,
		perActorCount: make(map[string]int),
		dropCounts:    make(map[string]uint64),
	}
}

// Deps returns the injected dependencies for the underlying engine.
func (l *Loop) Deps() Deps {
	if l == nil {
		return Deps{}
	}
	return l.core.Deps()
}

// Pending reports the number of staged commands.
func (l *Loop) Pending() int {
	if l == nil {
		return 0
	}
	return l.buffer.Len()
}

// Tick reports the last completed tick.
func (l *Loop) Tick() uint64 {
	if l == nil {
		return 0
	}
	return l.tick.Load()
}

// Paused reports whether the loop is halted after a fault.
func (l *Loop) Paused() bool {
	return l != nil && l.paused.Load()
}

// Pause halts ticking and discards staged commands so stale inputs do not
// fire on resume.
func (l *Loop) Pause() {
	if l == nil {
		return
	}
	l.paused.Store(true)
	l.drainCommands()
}

// Resume restarts ticking.
func (l *Loop) Resume() {
	if l == nil {
		return
	}
	l.paused.Store(false)
}

// Enqueue stages a command, enforcing per-actor throttling and capacity
// limits.
func (l *Loop) Enqueue(cmd Command) (bool, string) {
	if l == nil {
		return false, CommandRejectQueueFull
	}
	if l.paused.Load() {
		return false, CommandRejectPaused
	}
	reason := ""
	var dropCount uint64
	l.queueMu.Lock()
	if l.config.PerActorLimit > 0 && cmd.ActorID != "" {
		count := l.perActorCount[cmd.ActorID]
		if count >= l.config.PerActorLimit {
			reason = CommandRejectQueueLimit
			dropCount = l.incrementDropLocked(cmd.ActorID)
		} else {
			l.perActorCount[cmd.ActorID] = count + 1
		}
	}
	if reason == "" {
		if !l.buffer.Push(cmd) {
			reason = CommandRejectQueueFull
			dropCount = l.incrementDropLocked(cmd.ActorID)
		} else if l.config.WarningStep > 0 {
			length := l.buffer.Len()
			if length >= l.config.WarningStep && length%l.config.WarningStep == 0 {
				l.queueMu.Unlock()
				l.warnQueue(length)
				return true, ""
			}
		}
	}
	l.queueMu.Unlock()
	if reason != "" {
		l.reportDrop(reason, cmd, dropCount)
		return false, reason
	}
	return true, ""
}

// Advance executes a single simulation step using the staged commands.
func (l *Loop) Advance(ctx LoopTickContext) LoopStepResult {
	if l == nil {
		return LoopStepResult{}
	}
	commands := l.drainCommands()
	if l.hooks.Prepare != nil {
		l.hooks.Prepare(ctx)
	}
	if err := l.core.Apply(commands); err != nil && l.logger != nil {
		l.logger.Printf("tick %d command apply: %v", ctx.Tick, err)
	}
	l.core.Step()
	l.tick.Store(ctx.Tick)
	if l.metrics != nil {
		l.metrics.Store(telemetry.KeyPendingCommands, uint64(l.buffer.Len()))
	}
	return LoopStepResult{
		Tick:     ctx.Tick,
		Now:      ctx.Now,
		Snapshot: l.core.Snapshot(),
		Events:   l.core.DrainEvents(),
		Commands: commands,
	}
}

// Run drives the fixed-timestep loop until the stop channel closes. Wall
// clock jitter only affects when ticks fire, never how far a tick advances
// the world.
func (l *Loop) Run(stop <-chan struct{}) {
	if l == nil {
		return
	}
	tickRate := l.config.TickRate
	if tickRate <= 0 {
		tickRate = TickRate
	}
	budget := time.Second / time.Duration(tickRate)
	ticker := time.NewTicker(budget)
	defer ticker.Stop()

	clock := l.core.Deps().Clock
	if clock == nil {
		clock = logging.SystemClock{}
	}

	var tick uint64
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if l.paused.Load() {
				continue
			}
			tick++
			now := clock.Now()
			l.safeAdvance(LoopTickContext{Tick: tick, Now: now}, clock, budget)
		}
	}
}

func (l *Loop) safeAdvance(ctx LoopTickContext, clock logging.Clock, budget time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			l.paused.Store(true)
			l.drainCommands()
			if l.logger != nil {
				l.logger.Printf("tick %d fault, simulation paused: %v", ctx.Tick, r)
			}
			if l.hooks.OnFault != nil {
				l.hooks.OnFault(ctx.Tick, r)
			}
		}
	}()
	start := clock.Now()
	result := l.Advance(ctx)
	result.Duration = clock.Now().Sub(start)
	result.Budget = budget
	if l.metrics != nil {
		l.metrics.Store(telemetry.KeyTickDurationMillis, uint64(result.Duration.Milliseconds()))
	}
	if l.hooks.AfterStep != nil {
		l.hooks.AfterStep(result)
	}
}

func (l *Loop) drainCommands() []Command {
	l.queueMu.Lock()
	defer l.queueMu.Unlock()
	commands := l.buffer.Drain()
	if len(l.perActorCount) > 0 {
		l.perActorCount = make(map[string]int)
	}
	return commands
}

func (l *Loop) incrementDropLocked(actorID string) uint64 {
	if actorID == "" {
		return 0
	}
	count := l.dropCounts[actorID] + 1
	l.dropCounts[actorID] = count
	return count
}

func (l *Loop) warnQueue(length int) {
	if l.hooks.OnQueueWarning != nil {
		l.hooks.OnQueueWarning(length)
	}
}

func (l *Loop) reportDrop(reason string, cmd Command, count uint64) {
	if l.hooks.OnCommandDrop != nil {
		l.hooks.OnCommandDrop(reason, cmd)
	}
	if count > 0 && count&(count-1) == 0 && l.logger != nil {
		l.logger.Printf(
			"[backpressure] dropping command actor=%s type=%s reason=%s count=%d",
			cmd.ActorID,
			cmd.Type,
			reason,
			count,
		)
	}
}
