package sim

import (
	"context"

	gameplaylog "cliffhop/server/logging/gameplay"
)

// phaseTimers runs scheduled tasks and per-player countdowns. Respawn and
// invulnerability windows never tick down in the same frame: the dead body
// stays frozen until respawn completes, then invulnerability starts fresh.
func (w *World) phaseTimers() {
	w.scheduler.RunDue(w.tick)
	for _, actor := range w.actors {
		if actor.Kind != KindPlayer || actor.Removed {
			continue
		}
		p := actor.Player
		if p.Lives > 0 && !w.stageOver && !w.gameWon {
			p.StageTimeTicks++
		}
		if p.RespawnTicks > 0 {
			p.RespawnTicks--
			if p.RespawnTicks == 0 {
				w.respawn(actor)
			}
			continue
		}
		if p.InvulnTicks > 0 {
			p.InvulnTicks--
		}
	}
	w.checkStageOver()
}

// respawn places the player back near the stage spawn with fresh
// invulnerability.
func (w *World) respawn(actor *Actor) {
	p := actor.Player
	x, y := w.placeNearSpawn()
	actor.Body = Body{X: x, Y: y, HalfW: playerHalf, HalfH: playerHalf, PrevX: x, PrevY: y}
	p.InvulnTicks = invulnerabilityTicks
	p.OnGround = false
	p.CoyoteTicks = 0
	w.emit(Event{
		Type:     EventPlayerRespawned,
		ActorID:  actor.ID,
		PlayerID: p.PlayerID,
		X:        x,
		Y:        y,
		Lives:    p.Lives,
	})
	gameplaylog.PlayerRespawned(context.Background(), w.deps.Publisher, w.tick, w.ref(actor), gameplaylog.RespawnPayload{
		X:           x,
		Y:           y,
		InvulnTicks: invulnerabilityTicks,
	})
}
