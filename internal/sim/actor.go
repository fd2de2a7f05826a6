package sim

import (
	"errors"
	"fmt"
)

// ActorKind discriminates the per-kind state carried by an Actor. Exactly one
// of the kind-specific state structs is non-nil, matching the kind.
type ActorKind string

const (
	KindPlayer            ActorKind = "player"
	KindEnemy             ActorKind = "enemy"
	KindPlatform          ActorKind = "platform"
	KindBreakablePlatform ActorKind = "breakable_platform"
)

var errKindStateMismatch = errors.New("actor state does not match kind")

// PlayerState is the player-only portion of an actor.
type PlayerState struct {
	PlayerID       string
	Lives          int
	Deaths         int
	Score          int
	StageTimeTicks uint64

	RespawnTicks int
	InvulnTicks  int
	CoyoteTicks  int
	OnGround     bool
	GoalReached  bool

	// HeldDirection is the latched horizontal input, -1, 0 or 1.
	HeldDirection int

	landedThisTick bool
	jumpQueued     bool
}

// EnemyState drives the fixed patrol behaviour.
type EnemyState struct {
	Direction   int // -1 or 1
	Speed       float64
	OnGround    bool
	CoyoteTicks int
}

// PlatformState is a static one-way surface.
type PlatformState struct {
	Width float64
}

// BreakablePlatformState tracks landing damage. Broken latches permanently
// once HitCount reaches MaxHits.
type BreakablePlatformState struct {
	Width    float64
	HitCount int
	MaxHits  int
	Broken   bool

	// hitBy holds the actors that already damaged the platform this tick.
	// Each landing actor counts one hit; repeat contacts from the same actor
	// within a tick do not.
	hitBy map[string]struct{}
}

func (bp *BreakablePlatformState) hitThisTickBy(id string) bool {
	_, ok := bp.hitBy[id]
	return ok
}

func (bp *BreakablePlatformState) markHit(id string) {
	if bp.hitBy == nil {
		bp.hitBy = make(map[string]struct{}, 1)
	}
	bp.hitBy[id] = struct{}{}
}

// Actor is a single simulated entity. Kind selects which state pointer is
// populated; NewActor enforces the pairing so downstream code can switch on
// Kind without nil checks.
type Actor struct {
	ID      string
	Kind    ActorKind
	Body    Body
	Removed bool

	Player    *PlayerState
	Enemy     *EnemyState
	Platform  *PlatformState
	Breakable *BreakablePlatformState
}

// NewActor builds a validated actor. Exactly one state argument must be
// non-nil and it must match kind.
func NewActor(id string, kind ActorKind, body Body, player *PlayerState, enemy *EnemyState, platform *PlatformState, breakable *BreakablePlatformState) (*Actor, error) {
	if id == "" {
		return nil, errors.New("actor id is empty")
	}
	if !body.validPosition() {
		return nil, fmt.Errorf("actor %s has non-finite body", id)
	}
	populated := 0
	for _, present := range []bool{player != nil, enemy != nil, platform != nil, breakable != nil} {
		if present {
			populated++
		}
	}
	if populated != 1 {
		return nil, fmt.Errorf("actor %s: %w", id, errKindStateMismatch)
	}
	switch kind {
	case KindPlayer:
		if player == nil {
			return nil, fmt.Errorf("actor %s: %w", id, errKindStateMismatch)
		}
		if player.PlayerID == "" {
			return nil, fmt.Errorf("player actor %s has no player id", id)
		}
		if player.Lives < 0 {
			return nil, fmt.Errorf("player actor %s has negative lives", id)
		}
	case KindEnemy:
		if enemy == nil {
			return nil, fmt.Errorf("actor %s: %w", id, errKindStateMismatch)
		}
		if enemy.Direction != -1 && enemy.Direction != 1 {
			return nil, fmt.Errorf("enemy actor %s direction must be -1 or 1", id)
		}
		if enemy.Speed < 0 || !finite(enemy.Speed) {
			return nil, fmt.Errorf("enemy actor %s has invalid speed", id)
		}
	case KindPlatform:
		if platform == nil {
			return nil, fmt.Errorf("actor %s: %w", id, errKindStateMismatch)
		}
		if platform.Width <= 0 || !finite(platform.Width) {
			return nil, fmt.Errorf("platform actor %s has invalid width", id)
		}
	case KindBreakablePlatform:
		if breakable == nil {
			return nil, fmt.Errorf("actor %s: %w", id, errKindStateMismatch)
		}
		if breakable.Width <= 0 || !finite(breakable.Width) {
			return nil, fmt.Errorf("breakable platform actor %s has invalid width", id)
		}
		if breakable.MaxHits <= 0 {
			return nil, fmt.Errorf("breakable platform actor %s must allow at least one hit", id)
		}
		if breakable.HitCount < 0 || breakable.HitCount > breakable.MaxHits {
			return nil, fmt.Errorf("breakable platform actor %s hit count out of range", id)
		}
	default:
		return nil, fmt.Errorf("actor %s has unknown kind %q", id, kind)
	}
	return &Actor{
		ID:        id,
		Kind:      kind,
		Body:      body,
		Player:    player,
		Enemy:     enemy,
		Platform:  platform,
		Breakable: breakable,
	}, nil
}

// isSurface reports whether the actor currently blocks downward motion.
func (a *Actor) isSurface() bool {
	switch a.Kind {
	case KindPlatform:
		return !a.Removed
	case KindBreakablePlatform:
		return !a.Removed && !a.Breakable.Broken
	default:
		return false
	}
}

// mobile reports whether kinematics apply to the actor.
func (a *Actor) mobile() bool {
	return a.Kind == KindPlayer || a.Kind == KindEnemy
}
