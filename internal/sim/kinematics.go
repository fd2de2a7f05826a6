package sim

import "math"

// phaseKinematics integrates every mobile actor by the fixed timestep.
// Positions advance by exactly velocity * TickDelta; the driver's wall-clock
// jitter never leaks into the integration.
func (w *World) phaseKinematics() {
	for _, actor := range w.actors {
		if actor.Removed || !actor.mobile() {
			continue
		}
		b := &actor.Body
		b.PrevX, b.PrevY = b.X, b.Y
		if actor.Kind == KindPlayer {
			p := actor.Player
			if p.RespawnTicks > 0 || p.Lives <= 0 {
				continue
			}
		}
		if actor.Kind == KindEnemy {
			w.steerEnemy(actor)
		}

		b.VY += gravity * TickDelta
		if b.VY > maxFallSpeed {
			b.VY = maxFallSpeed
		}
		b.X += b.VX * TickDelta
		b.Y += b.VY * TickDelta

		// Stage edges are solid walls; enemies bounce, players stop.
		if b.X < b.HalfW {
			b.X = b.HalfW
			if actor.Kind == KindEnemy {
				actor.Enemy.Direction = 1
			}
		}
		if b.X > w.stage.Width-b.HalfW {
			b.X = w.stage.Width - b.HalfW
			if actor.Kind == KindEnemy {
				actor.Enemy.Direction = -1
			}
		}
	}
}

// steerEnemy reverses the patrol before the enemy's centre walks past the
// edge of whatever is holding it up.
func (w *World) steerEnemy(actor *Actor) {
	e := actor.Enemy
	if !e.OnGround {
		return
	}
	b := &actor.Body
	nextX := b.X + b.VX*TickDelta
	for _, surface := range w.actors {
		if !surface.isSurface() {
			continue
		}
		sb := &surface.Body
		if math.Abs(b.bottom()-sb.top()) > landingTolerance {
			continue
		}
		margin := math.Min(enemyPatrolMargin/2, sb.HalfW/2)
		if math.Abs(nextX-sb.X) <= sb.HalfW-margin {
			return
		}
	}
	e.Direction = -e.Direction
	b.VX = -b.VX
}
