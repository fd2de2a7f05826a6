package sim

import (
	"context"

	"cliffhop/server/logging"
	gameplaylog "cliffhop/server/logging/gameplay"
)

// phaseGoal checks goal proximity and drives stage progression. The first
// player to touch the goal arms a safety timer so a straggler cannot hold
// the stage forever; once every living player has finished, the advance runs
// on the short timer instead.
func (w *World) phaseGoal() {
	if w.stageOver || w.gameWon {
		return
	}
	goal := w.stage.Goal
	final := w.stageIndex == len(w.stages)-1
	for _, actor := range w.actors {
		if actor.Kind != KindPlayer || actor.Removed {
			continue
		}
		p := actor.Player
		if p.GoalReached || p.RespawnTicks > 0 || p.Lives <= 0 {
			continue
		}
		dx := actor.Body.X - goal.X
		dy := actor.Body.Y - goal.Y
		if dx*dx+dy*dy > goalRadius*goalRadius {
			continue
		}
		p.GoalReached = true
		p.Score += goalScoreBonus
		w.emit(Event{
			Type:     EventGoalReached,
			ActorID:  actor.ID,
			PlayerID: p.PlayerID,
			Score:    p.Score,
		})
		next := ""
		if !final {
			next = w.stages[w.stageIndex+1].Name
		}
		gameplaylog.GoalReached(context.Background(), w.deps.Publisher, w.tick, w.ref(actor), gameplaylog.GoalPayload{
			Stage:     w.stage.Name,
			NextStage: next,
			Score:     p.Score,
			Final:     final,
		})
		if w.deps.Recorder != nil {
			w.deps.Recorder.RecordStageResult(w.stage.Name, p.PlayerID, p.Score, p.Deaths, p.StageTimeTicks, final)
		}
		if w.safetyTask == 0 && w.advanceTask == 0 {
			w.safetyTask = w.scheduler.ScheduleAt(w.tick+stageAdvanceSafety, w.advanceStage)
		}
	}

	allReached := true
	anyAlive := false
	for _, actor := range w.players {
		if actor.Removed || actor.Player.Lives <= 0 {
			continue
		}
		anyAlive = true
		if !actor.Player.GoalReached {
			allReached = false
			break
		}
	}
	if !anyAlive || !allReached || w.advanceTask != 0 {
		return
	}
	if final {
		w.winGame()
		return
	}
	if w.safetyTask != 0 {
		w.scheduler.Cancel(w.safetyTask)
		w.safetyTask = 0
	}
	w.advanceTask = w.scheduler.ScheduleAt(w.tick+stageAdvanceTicks, w.advanceStage)
}

// advanceStage fires from the scheduler and either loads the next stage or,
// on the final stage, ends the game.
func (w *World) advanceStage(uint64) {
	w.advanceTask = 0
	w.safetyTask = 0
	if w.gameWon || w.stageOver {
		return
	}
	if w.stageIndex == len(w.stages)-1 {
		w.winGame()
		return
	}
	w.loadStage(w.stageIndex+1, false)
}

// winGame latches the terminal state. The world keeps ticking so clients can
// display final standings, but progression and timers stop.
func (w *World) winGame() {
	if w.gameWon {
		return
	}
	w.gameWon = true
	w.cancelStageTimers()
	w.emit(Event{Type: EventGameWon})
	gameplaylog.GameWon(context.Background(), w.deps.Publisher, w.tick, logging.EntityRef{Kind: logging.EntityKindWorld}, w.stage.Name)
}
