package sim

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"cliffhop/server/internal/telemetry"
	"cliffhop/server/logging"
	lifecyclelog "cliffhop/server/logging/lifecycle"
)

type phase struct {
	name string
	fn   func()
}

// Step advances the world by exactly one tick of TickDelta seconds. A panic
// inside a phase is logged and skips the rest of that phase only; the
// remaining phases still run so one faulty actor cannot stall the world.
func (w *World) Step() {
	w.tick++
	phases := []phase{
		{"input", w.phaseInput},
		{"kinematics", w.phaseKinematics},
		{"collision", w.phaseCollision},
		{"contact", w.phaseContact},
		{"goal", w.phaseGoal},
		{"timers", w.phaseTimers},
		{"cleanup", w.phaseCleanup},
	}
	for _, p := range phases {
		w.runPhase(p)
	}
	if w.deps.Recorder != nil {
		w.deps.Recorder.RecordTick(w.tick, w.stage.Name, len(w.actors), w.events)
	}
}

func (w *World) runPhase(p phase) {
	clock := w.deps.Clock
	if clock == nil {
		clock = logging.SystemClock{}
	}
	startAt := clock.Now()
	defer func() {
		if r := recover(); r != nil {
			w.phaseFaults++
			w.logf("tick %d phase %s panicked: %v\n%s", w.tick, p.name, r, debug.Stack())
			lifecyclelog.PhaseFault(context.Background(), w.deps.Publisher, w.tick, lifecyclelog.FaultPayload{
				Phase: p.name,
				Err:   fmt.Sprint(r),
			})
			if w.deps.Metrics != nil {
				w.deps.Metrics.Add(telemetry.KeyPhaseFaults, 1)
			}
		}
		if rec, ok := w.deps.Metrics.(interface {
			RecordPhase(string, time.Duration)
		}); ok {
			rec.RecordPhase(p.name, clock.Now().Sub(startAt))
		}
	}()
	p.fn()
}

// PhaseFaults reports the number of phase panics recovered so far.
func (w *World) PhaseFaults() uint64 { return w.phaseFaults }

// phaseCleanup clears per-tick flags and compacts removed actors out of the
// world. Removal events were already emitted by whichever phase removed them.
func (w *World) phaseCleanup() {
	original := w.actors
	kept := original[:0]
	for _, actor := range original {
		switch actor.Kind {
		case KindPlayer:
			actor.Player.landedThisTick = false
		case KindBreakablePlatform:
			clear(actor.Breakable.hitBy)
		}
		if actor.Removed {
			delete(w.byID, actor.ID)
			continue
		}
		kept = append(kept, actor)
	}
	for i := len(kept); i < len(original); i++ {
		original[i] = nil
	}
	w.actors = kept
	w.storeGauges()
}
