package sim

import (
	"testing"

	"cliffhop/server/internal/stage"
)

func TestGoalAwardsOncePerPlayer(t *testing.T) {
	doc := groundStage()
	doc.Goal = stage.Point{X: 200, Y: 648}
	w := newTestWorld(t, doc, groundStage())
	actor := join(t, w, "p1")
	w.Step()
	if err := w.applyInput(actor.ID, InputCommand{Action: InputMove, Direction: 1}); err != nil {
		t.Fatalf("applyInput: %v", err)
	}
	for i := 0; i < 10*TickRate && !actor.Player.GoalReached; i++ {
		w.Step()
	}
	if !actor.Player.GoalReached {
		t.Fatalf("player never reached the goal, x=%v", actor.Body.X)
	}
	if actor.Player.Score != goalScoreBonus {
		t.Fatalf("expected goal bonus %d, got %d", goalScoreBonus, actor.Player.Score)
	}
	// Lingering inside the goal radius must not award again.
	score := actor.Player.Score
	if err := w.applyInput(actor.ID, InputCommand{Action: InputMove, Direction: 0}); err != nil {
		t.Fatalf("applyInput: %v", err)
	}
	for i := 0; i < 10; i++ {
		w.Step()
	}
	if actor.Player.Score != score {
		t.Fatalf("goal bonus awarded twice, score=%d", actor.Player.Score)
	}
}

func TestStageAdvancesAfterAllPlayersFinish(t *testing.T) {
	first := groundStage()
	first.Name = "one"
	first.Goal = stage.Point{X: 200, Y: 648}
	second := groundStage()
	second.Name = "two"
	w := newTestWorld(t, first, second)
	actor := join(t, w, "p1")
	w.Step()
	if err := w.applyInput(actor.ID, InputCommand{Action: InputMove, Direction: 1}); err != nil {
		t.Fatalf("applyInput: %v", err)
	}
	for i := 0; i < 10*TickRate && !actor.Player.GoalReached; i++ {
		w.Step()
	}
	if !actor.Player.GoalReached {
		t.Fatalf("player never reached the goal")
	}
	for i := 0; i < stageAdvanceTicks+2 && w.StageName() != "two"; i++ {
		w.Step()
	}
	if w.StageName() != "two" {
		t.Fatalf("expected advance to stage two, still on %s", w.StageName())
	}
	if actor.Player.GoalReached {
		t.Fatalf("goal flag must reset when the next stage loads")
	}
	if actor.Player.Score != goalScoreBonus {
		t.Fatalf("score must carry into the next stage, got %d", actor.Player.Score)
	}
	if w.GameWon() {
		t.Fatalf("game must not be won with a stage remaining")
	}
}

func TestFinalStageGoalWinsGame(t *testing.T) {
	doc := groundStage()
	doc.Goal = stage.Point{X: 200, Y: 648}
	w := newTestWorld(t, doc)
	actor := join(t, w, "p1")
	w.Step()
	if err := w.applyInput(actor.ID, InputCommand{Action: InputMove, Direction: 1}); err != nil {
		t.Fatalf("applyInput: %v", err)
	}
	for i := 0; i < 10*TickRate && !w.GameWon(); i++ {
		w.Step()
	}
	if !w.GameWon() {
		t.Fatalf("expected game won on final stage goal")
	}
	won := false
	for _, ev := range w.DrainEvents() {
		if ev.Type == EventGameWon {
			won = true
		}
	}
	if !won {
		t.Fatalf("expected game_won event")
	}
	// The terminal state latches; the world keeps ticking without reloading.
	stageName := w.StageName()
	for i := 0; i < 10; i++ {
		w.Step()
	}
	if w.StageName() != stageName || !w.GameWon() {
		t.Fatalf("terminal state did not latch")
	}
}

func TestSafetyTimerAdvancesWithStraggler(t *testing.T) {
	first := groundStage()
	first.Name = "one"
	first.Goal = stage.Point{X: 400, Y: 648}
	second := groundStage()
	second.Name = "two"
	w := newTestWorld(t, first, second)
	runner := join(t, w, "runner")
	straggler := join(t, w, "straggler")
	w.Step()
	if err := w.applyInput(runner.ID, InputCommand{Action: InputMove, Direction: 1}); err != nil {
		t.Fatalf("applyInput: %v", err)
	}
	for i := 0; i < 10*TickRate && !runner.Player.GoalReached; i++ {
		w.Step()
	}
	if !runner.Player.GoalReached {
		t.Fatalf("runner never reached the goal")
	}
	if straggler.Player.GoalReached {
		t.Fatalf("straggler should not have finished")
	}
	for i := 0; i < stageAdvanceSafety+2 && w.StageName() != "two"; i++ {
		w.Step()
	}
	if w.StageName() != "two" {
		t.Fatalf("safety timer never advanced the stage")
	}
}
