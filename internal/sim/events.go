package sim

// EventType enumerates gameplay events emitted by the world. Events are
// collected during a tick and drained once by the broadcaster.
type EventType string

const (
	EventPlayerJoined     EventType = "player_joined"
	EventPlayerLeft       EventType = "player_left"
	EventPlayerDied       EventType = "player_died"
	EventPlayerRespawned  EventType = "player_respawned"
	EventPlayerEliminated EventType = "player_eliminated"
	EventGoalReached      EventType = "goal_reached"
	EventPlatformBroken   EventType = "platform_broken"
	EventStageLoaded      EventType = "stage_loaded"
	EventStageOver        EventType = "stage_over"
	EventGameWon          EventType = "game_won"
	EventActorRemoved     EventType = "actor_removed"
)

// Event is a single gameplay occurrence. Kind-specific fields are populated
// as relevant and omitted from the wire form otherwise.
type Event struct {
	Type     EventType `json:"type"`
	Tick     uint64    `json:"tick"`
	ActorID  string    `json:"actorId,omitempty"`
	PlayerID string    `json:"playerId,omitempty"`
	Stage    string    `json:"stage,omitempty"`
	X        float64   `json:"x,omitempty"`
	Y        float64   `json:"y,omitempty"`
	Cause    string    `json:"cause,omitempty"`
	Score    int       `json:"score,omitempty"`
	Lives    int       `json:"lives,omitempty"`
	Deaths   int       `json:"deaths,omitempty"`
}

// Death causes carried on player_died events.
const (
	CauseEnemyContact = "enemy_contact"
	CauseFellOut      = "fell_out_of_bounds"
)
