package gameplay

import (
	"context"

	"cliffhop/server/logging"
)

const (
	// EventPlayerDied is emitted when an enemy contact costs a player a life.
	EventPlayerDied logging.EventType = "gameplay.player_died"
	// EventPlayerRespawned is emitted when a respawn countdown completes.
	EventPlayerRespawned logging.EventType = "gameplay.player_respawned"
	// EventGoalReached is emitted the tick a player first touches the stage goal.
	EventGoalReached logging.EventType = "gameplay.goal_reached"
	// EventPlatformBroken is emitted when a breakable platform crosses its hit limit.
	EventPlatformBroken logging.EventType = "gameplay.platform_broken"
	// EventStageOver is emitted when no player has lives remaining.
	EventStageOver logging.EventType = "gameplay.stage_over"
	// EventGameWon is emitted when the goal on the final stage is reached.
	EventGameWon logging.EventType = "gameplay.game_won"
)

// DeathPayload captures the bookkeeping of a single death event.
type DeathPayload struct {
	Lives        int    `json:"lives"`
	Deaths       int    `json:"deaths"`
	KilledBy     string `json:"killedBy"`
	RespawnTicks int    `json:"respawnTicks"`
}

// PlayerDied publishes the one death event recorded per player per tick.
func PlayerDied(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload DeathPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPlayerDied,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryGameplay,
		Payload:  payload,
	})
}

// RespawnPayload captures where a player re-entered the stage.
type RespawnPayload struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	InvulnTicks int     `json:"invulnTicks"`
}

func PlayerRespawned(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload RespawnPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPlayerRespawned,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryGameplay,
		Payload:  payload,
	})
}

// GoalPayload records the stage a player finished and the stage coming next.
type GoalPayload struct {
	Stage     string `json:"stage"`
	NextStage string `json:"nextStage,omitempty"`
	Score     int    `json:"score"`
	Final     bool   `json:"final,omitempty"`
}

func GoalReached(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload GoalPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventGoalReached,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryGameplay,
		Payload:  payload,
	})
}

// BreakPayload records the final hit on a breakable platform.
type BreakPayload struct {
	HitCount int    `json:"hitCount"`
	MaxHits  int    `json:"maxHits"`
	BrokenBy string `json:"brokenBy,omitempty"`
	Bonus    int    `json:"bonus,omitempty"`
}

func PlatformBroken(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload BreakPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPlatformBroken,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryGameplay,
		Payload:  payload,
	})
}

// StageOverPayload records the grace window before the stage reloads.
type StageOverPayload struct {
	Stage      string `json:"stage"`
	GraceTicks int    `json:"graceTicks"`
}

func StageOver(ctx context.Context, pub logging.Publisher, tick uint64, payload StageOverPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventStageOver,
		Tick:     tick,
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryGameplay,
		Payload:  payload,
	})
}

func GameWon(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, stage string) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventGameWon,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryGameplay,
		Payload:  map[string]string{"stage": stage},
	})
}
