package sim

import (
	"testing"
	"time"

	"cliffhop/server/logging"
)

func newTestLoop(t *testing.T, cfg LoopConfig) (*Loop, *World) {
	t.Helper()
	w := newTestWorld(t)
	if cfg.CommandCapacity == 0 {
		cfg.CommandCapacity = 64
	}
	loop := NewLoop(w, cfg, LoopHooks{})
	if loop == nil {
		t.Fatalf("NewLoop returned nil")
	}
	return loop, w
}

func TestLoopAdvanceAppliesStagedCommands(t *testing.T) {
	loop, w := newTestLoop(t, LoopConfig{})
	if ok, reason := loop.Enqueue(Command{Type: CommandJoin, Join: &JoinCommand{PlayerID: "p1"}}); !ok {
		t.Fatalf("enqueue rejected: %s", reason)
	}
	result := loop.Advance(LoopTickContext{Tick: 1, Now: time.Now()})
	if result.Tick != 1 {
		t.Fatalf("expected tick 1, got %d", result.Tick)
	}
	if w.PlayerCount() != 1 {
		t.Fatalf("join command not applied, players=%d", w.PlayerCount())
	}
	joined := false
	for _, ev := range result.Events {
		if ev.Type == EventPlayerJoined {
			joined = true
		}
	}
	if !joined {
		t.Fatalf("expected player_joined event in step result")
	}
	if len(result.Snapshot.Actors) == 0 {
		t.Fatalf("expected actors in the step snapshot")
	}
	if loop.Pending() != 0 {
		t.Fatalf("staged commands must drain on advance, pending=%d", loop.Pending())
	}
}

func TestLoopPerActorThrottle(t *testing.T) {
	loop, _ := newTestLoop(t, LoopConfig{PerActorLimit: 2})
	cmd := Command{Type: CommandInput, ActorID: "player-1", Input: &InputCommand{Action: InputJump}}
	for i := 0; i < 2; i++ {
		if ok, reason := loop.Enqueue(cmd); !ok {
			t.Fatalf("enqueue %d rejected: %s", i, reason)
		}
	}
	ok, reason := loop.Enqueue(cmd)
	if ok {
		t.Fatalf("expected throttle above the per-actor limit")
	}
	if reason != CommandRejectQueueLimit {
		t.Fatalf("expected reason %q, got %q", CommandRejectQueueLimit, reason)
	}
	// Draining resets the per-actor window.
	loop.Advance(LoopTickContext{Tick: 1, Now: time.Now()})
	if ok, _ := loop.Enqueue(cmd); !ok {
		t.Fatalf("expected enqueue to succeed after drain")
	}
}

func TestLoopCapacityReject(t *testing.T) {
	loop, _ := newTestLoop(t, LoopConfig{CommandCapacity: 1})
	if ok, _ := loop.Enqueue(Command{Type: CommandInput, ActorID: "a", Input: &InputCommand{Action: InputJump}}); !ok {
		t.Fatalf("first enqueue should succeed")
	}
	ok, reason := loop.Enqueue(Command{Type: CommandInput, ActorID: "b", Input: &InputCommand{Action: InputJump}})
	if ok || reason != CommandRejectQueueFull {
		t.Fatalf("expected queue_full reject, ok=%v reason=%q", ok, reason)
	}
}

func TestLoopPauseDiscardsPendingCommands(t *testing.T) {
	loop, _ := newTestLoop(t, LoopConfig{})
	loop.Enqueue(Command{Type: CommandInput, ActorID: "a", Input: &InputCommand{Action: InputJump}})
	loop.Pause()
	if !loop.Paused() {
		t.Fatalf("expected paused loop")
	}
	if loop.Pending() != 0 {
		t.Fatalf("pause must discard staged commands, pending=%d", loop.Pending())
	}
	if ok, reason := loop.Enqueue(Command{Type: CommandInput, ActorID: "a", Input: &InputCommand{Action: InputJump}}); ok || reason != CommandRejectPaused {
		t.Fatalf("paused loop must reject commands, ok=%v reason=%q", ok, reason)
	}
	loop.Resume()
	if ok, _ := loop.Enqueue(Command{Type: CommandInput, ActorID: "a", Input: &InputCommand{Action: InputJump}}); !ok {
		t.Fatalf("resumed loop must accept commands")
	}
}

type faultyEngine struct {
	deps Deps
}

func (faultyEngine) Apply([]Command) error { return nil }
func (faultyEngine) Step()                 { panic("engine fault") }
func (faultyEngine) Snapshot() Snapshot    { return Snapshot{} }
func (faultyEngine) DrainEvents() []Event  { return nil }
func (e faultyEngine) Deps() Deps          { return e.deps }

func TestLoopFaultPausesAndReportsOnce(t *testing.T) {
	var faultTick uint64
	loop := NewLoop(faultyEngine{}, LoopConfig{CommandCapacity: 4}, LoopHooks{
		OnFault: func(tick uint64, _ any) { faultTick = tick },
	})
	loop.safeAdvance(LoopTickContext{Tick: 7, Now: time.Now()}, logging.SystemClock{}, time.Millisecond)
	if !loop.Paused() {
		t.Fatalf("expected loop paused after engine panic")
	}
	if faultTick != 7 {
		t.Fatalf("expected fault hook with tick 7, got %d", faultTick)
	}
}
