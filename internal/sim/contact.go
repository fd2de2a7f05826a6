package sim

import (
	"context"

	gameplaylog "cliffhop/server/logging/gameplay"
)

// phaseContact applies enemy touch damage and removes actors that fell out of
// the world. Damage tests the swept extents of the tick rather than the end
// positions, so a fast body cannot step across an enemy between frames. Spawn
// invulnerability suppresses enemy contact but not falling.
func (w *World) phaseContact() {
	for _, actor := range w.actors {
		if actor.Removed {
			continue
		}
		switch actor.Kind {
		case KindPlayer:
			p := actor.Player
			if p.RespawnTicks > 0 || p.Lives <= 0 {
				continue
			}
			if actor.Body.top() > w.stage.Height+fallRemovalMargin {
				w.killPlayer(actor, CauseFellOut)
				continue
			}
			if p.InvulnTicks > 0 {
				continue
			}
			for _, enemy := range w.actors {
				if enemy.Kind != KindEnemy || enemy.Removed {
					continue
				}
				if actor.Body.sweptOverlaps(&enemy.Body) {
					w.killPlayer(actor, CauseEnemyContact)
					break
				}
			}
		case KindEnemy:
			if actor.Body.top() > w.stage.Height+fallRemovalMargin {
				actor.Removed = true
				w.emit(Event{Type: EventActorRemoved, ActorID: actor.ID, Cause: CauseFellOut})
			}
		}
	}
}

// killPlayer books one death, freezes the body and either starts the respawn
// countdown or marks elimination when the last life is gone.
func (w *World) killPlayer(actor *Actor, cause string) {
	p := actor.Player
	p.Deaths++
	p.Lives--
	actor.Body.VX = 0
	actor.Body.VY = 0
	p.HeldDirection = 0
	p.jumpQueued = false
	p.OnGround = false
	p.CoyoteTicks = 0
	p.InvulnTicks = invulnerabilityTicks
	w.emit(Event{
		Type:     EventPlayerDied,
		ActorID:  actor.ID,
		PlayerID: p.PlayerID,
		Cause:    cause,
		Lives:    p.Lives,
		Deaths:   p.Deaths,
		X:        actor.Body.X,
		Y:        actor.Body.Y,
	})
	gameplaylog.PlayerDied(context.Background(), w.deps.Publisher, w.tick, w.ref(actor), gameplaylog.DeathPayload{
		Lives:        p.Lives,
		Deaths:       p.Deaths,
		KilledBy:     cause,
		RespawnTicks: respawnTicks,
	})
	if p.Lives <= 0 {
		w.emit(Event{Type: EventPlayerEliminated, ActorID: actor.ID, PlayerID: p.PlayerID, Deaths: p.Deaths})
		return
	}
	p.RespawnTicks = respawnTicks
}

// checkStageOver latches stage-over once every joined player is out of lives
// and schedules a reload after the grace window. The reload restores lives
// but keeps score, death and time totals. phaseTimers re-evaluates this every
// tick, so the latch also fires when the last living player disconnects.
func (w *World) checkStageOver() {
	if w.stageOver || w.gameWon {
		return
	}
	anyPlayer := false
	for _, actor := range w.players {
		if actor.Removed {
			continue
		}
		anyPlayer = true
		if actor.Player.Lives > 0 {
			return
		}
	}
	if !anyPlayer {
		return
	}
	w.stageOver = true
	w.cancelStageTimers()
	w.emit(Event{Type: EventStageOver})
	gameplaylog.StageOver(context.Background(), w.deps.Publisher, w.tick, gameplaylog.StageOverPayload{
		Stage:      w.stage.Name,
		GraceTicks: stageOverGraceTicks,
	})
	if w.deps.Recorder != nil {
		for _, actor := range w.players {
			if actor.Removed {
				continue
			}
			p := actor.Player
			w.deps.Recorder.RecordStageResult(w.stage.Name, p.PlayerID, p.Score, p.Deaths, p.StageTimeTicks, false)
		}
	}
	w.scheduler.ScheduleAt(w.tick+stageOverGraceTicks, func(uint64) {
		for _, actor := range w.players {
			if actor.Removed {
				continue
			}
			actor.Player.Lives = defaultLives
			actor.Player.RespawnTicks = 0
		}
		w.loadStage(w.stageIndex, true)
	})
}
