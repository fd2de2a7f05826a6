package sim

import "time"

// CommandType enumerates the supported simulation commands.
type CommandType string

const (
	CommandJoin  CommandType = "Join"
	CommandLeave CommandType = "Leave"
	CommandInput CommandType = "Input"
)

// InputAction identifies the control a player exercised.
type InputAction string

const (
	InputMove InputAction = "move"
	InputJump InputAction = "jump"
)

// JoinCommand requests a player actor for the given identity.
type JoinCommand struct {
	PlayerID string `json:"playerId"`
}

// LeaveCommand removes the player actor for the given identity.
type LeaveCommand struct {
	PlayerID string `json:"playerId"`
}

// InputCommand carries a single control intent. Direction is -1, 0 or 1 and
// only meaningful for InputMove.
type InputCommand struct {
	Action    InputAction `json:"action"`
	Direction int         `json:"direction"`
}

// Command represents an intent captured for processing on the next tick.
type Command struct {
	OriginTick uint64        `json:"originTick"`
	ActorID    string        `json:"actorId"`
	Type       CommandType   `json:"type"`
	IssuedAt   time.Time     `json:"issuedAt"`
	Join       *JoinCommand  `json:"join,omitempty"`
	Leave      *LeaveCommand `json:"leave,omitempty"`
	Input      *InputCommand `json:"input,omitempty"`
}
