package sim

import (
	"context"
	"math"

	gameplaylog "cliffhop/server/logging/gameplay"
)

// phaseCollision resolves one-way platform contacts using the swept motion of
// the tick. A falling body lands when its bottom edge crossed a surface top
// between PrevY and Y, within landingTolerance for resting contacts. Upward
// motion never collides, which is what lets actors jump through platforms.
func (w *World) phaseCollision() {
	for _, actor := range w.actors {
		if actor.Removed || !actor.mobile() {
			continue
		}
		if actor.Kind == KindPlayer {
			p := actor.Player
			if p.RespawnTicks > 0 || p.Lives <= 0 {
				continue
			}
		}
		b := &actor.Body
		grounded := false
		if b.VY >= 0 {
			var landedOn *Actor
			bestTop := math.Inf(1)
			for _, surface := range w.actors {
				if surface == actor || !surface.isSurface() {
					continue
				}
				sb := &surface.Body
				if !b.horizontalOverlap(sb) {
					continue
				}
				top := sb.top()
				if b.prevBottom() <= top+landingTolerance && b.bottom() >= top && top < bestTop {
					bestTop = top
					landedOn = surface
				}
			}
			if landedOn != nil {
				wasAirborne := airborne(actor)
				b.Y = bestTop - b.HalfH
				b.VY = 0
				grounded = true
				if wasAirborne {
					w.registerLanding(actor, landedOn)
				}
			}
		}
		w.setGrounded(actor, grounded)
	}
}

func airborne(actor *Actor) bool {
	switch actor.Kind {
	case KindPlayer:
		return !actor.Player.OnGround
	case KindEnemy:
		return !actor.Enemy.OnGround
	default:
		return false
	}
}

// setGrounded maintains the ground flag and coyote window. Walking off an
// edge leaves the window primed so a jump still fires for a few ticks.
func (w *World) setGrounded(actor *Actor, grounded bool) {
	switch actor.Kind {
	case KindPlayer:
		p := actor.Player
		if grounded {
			p.OnGround = true
			p.CoyoteTicks = coyoteMaxTicks
			return
		}
		p.OnGround = false
		if p.CoyoteTicks > 0 {
			p.CoyoteTicks--
		}
	case KindEnemy:
		e := actor.Enemy
		if grounded {
			e.OnGround = true
			e.CoyoteTicks = coyoteMaxTicks
			return
		}
		e.OnGround = false
		if e.CoyoteTicks > 0 {
			e.CoyoteTicks--
		}
	}
}

// registerLanding fires once per airborne-to-grounded transition.
func (w *World) registerLanding(actor, surface *Actor) {
	if actor.Kind != KindPlayer {
		return
	}
	actor.Player.landedThisTick = true
	if surface.Kind == KindBreakablePlatform {
		w.hitBreakable(surface, actor)
	}
}

// hitBreakable applies landing damage. Each landing actor contributes one hit
// per tick, so simultaneous landings by different players stack. Broken never
// unlatches, and the breaking hit removes the platform outright.
func (w *World) hitBreakable(platform, by *Actor) {
	bp := platform.Breakable
	if bp.Broken || bp.hitThisTickBy(by.ID) {
		return
	}
	bp.markHit(by.ID)
	bp.HitCount++
	if bp.HitCount < bp.MaxHits {
		return
	}
	bp.Broken = true
	platform.Removed = true
	by.Player.Score += breakScoreBonus
	w.emit(Event{
		Type:     EventPlatformBroken,
		ActorID:  platform.ID,
		PlayerID: by.Player.PlayerID,
		X:        platform.Body.X,
		Y:        platform.Body.Y,
		Score:    by.Player.Score,
	})
	gameplaylog.PlatformBroken(context.Background(), w.deps.Publisher, w.tick, w.ref(platform), gameplaylog.BreakPayload{
		HitCount: bp.HitCount,
		MaxHits:  bp.MaxHits,
		BrokenBy: by.Player.PlayerID,
		Bonus:    breakScoreBonus,
	})
}
