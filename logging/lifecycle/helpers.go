package lifecycle

import (
	"context"

	"cliffhop/server/logging"
)

const (
	// EventPlayerJoined is emitted when a player actor enters the world.
	EventPlayerJoined logging.EventType = "lifecycle.player_joined"
	// EventPlayerLeft is emitted when a player actor is purged from the world.
	EventPlayerLeft logging.EventType = "lifecycle.player_left"
	// EventStageLoaded is emitted after a stage document is spawned into the world.
	EventStageLoaded logging.EventType = "lifecycle.stage_loaded"
	// EventPhaseFault is emitted when a tick phase panics and is skipped.
	EventPhaseFault logging.EventType = "lifecycle.phase_fault"
	// EventSimulationPaused is emitted when a panic escapes the tick driver.
	EventSimulationPaused logging.EventType = "lifecycle.simulation_paused"
)

func PlayerJoined(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPlayerJoined,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySystem,
	})
}

func PlayerLeft(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, reason string) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPlayerLeft,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySystem,
		Payload:  map[string]string{"reason": reason},
	})
}

// StagePayload summarizes what the loader spawned.
type StagePayload struct {
	Stage     string `json:"stage"`
	Platforms int    `json:"platforms"`
	Enemies   int    `json:"enemies"`
	Reload    bool   `json:"reload,omitempty"`
}

func StageLoaded(ctx context.Context, pub logging.Publisher, tick uint64, payload StagePayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventStageLoaded,
		Tick:     tick,
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
		Severity: logging.SeverityInfo,
		Category: logging.CategorySystem,
		Payload:  payload,
	})
}

// FaultPayload names the phase that panicked so operators can correlate logs.
type FaultPayload struct {
	Phase string `json:"phase"`
	Err   string `json:"err"`
}

func PhaseFault(ctx context.Context, pub logging.Publisher, tick uint64, payload FaultPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPhaseFault,
		Tick:     tick,
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
		Severity: logging.SeverityError,
		Category: logging.CategorySystem,
		Payload:  payload,
	})
}

func SimulationPaused(ctx context.Context, pub logging.Publisher, tick uint64, err string) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSimulationPaused,
		Tick:     tick,
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
		Severity: logging.SeverityError,
		Category: logging.CategorySystem,
		Payload:  map[string]string{"err": err},
	})
}
