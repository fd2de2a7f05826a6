package sim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"cliffhop/server/internal/stage"
	"cliffhop/server/internal/telemetry"
	"cliffhop/server/logging"
	lifecyclelog "cliffhop/server/logging/lifecycle"
)

var (
	// ErrWorldFull indicates the actor cap was reached; no partial state is
	// created.
	ErrWorldFull = errors.New("sim: actor limit reached")
	// ErrPlayerExists indicates a join for an identity that already has an
	// actor.
	ErrPlayerExists = errors.New("sim: player already joined")
	// ErrNoStages indicates the world was constructed without any stages.
	ErrNoStages = errors.New("sim: no stages configured")
)

const goalScoreBonus = 1000

// World owns every actor and advances the game by whole ticks. All methods
// must be called from the tick goroutine; the Loop serialises access.
type World struct {
	deps Deps

	tick       uint64
	stages     []stage.Document
	stageIndex int
	stage      stage.Document

	actors  []*Actor
	byID    map[string]*Actor
	players map[string]*Actor

	scheduler *Scheduler
	events    []Event

	nextActorSeq   uint64
	stageOver      bool
	gameWon        bool
	advanceTask    TaskID
	safetyTask     TaskID
	phaseFaults    uint64
	lastTickEvents int
}

// NewWorld builds a world over the provided stages and loads the first one.
func NewWorld(stages []stage.Document, deps Deps) (*World, error) {
	if len(stages) == 0 {
		return nil, ErrNoStages
	}
	w := &World{
		deps:      deps,
		stages:    stages,
		byID:      make(map[string]*Actor),
		players:   make(map[string]*Actor),
		scheduler: NewScheduler(),
	}
	w.loadStage(0, false)
	return w, nil
}

// Tick reports the last completed tick.
func (w *World) Tick() uint64 { return w.tick }

// StageName reports the active stage.
func (w *World) StageName() string { return w.stage.Name }

// StageIndex reports the active stage position.
func (w *World) StageIndex() int { return w.stageIndex }

// GameWon reports whether the final goal has been cleared.
func (w *World) GameWon() bool { return w.gameWon }

// ActorCount reports live actors.
func (w *World) ActorCount() int { return len(w.actors) }

// PlayerCount reports joined players.
func (w *World) PlayerCount() int { return len(w.players) }

// Deps exposes the injected dependencies.
func (w *World) Deps() Deps { return w.deps }

// Apply stages joins, leaves and latched inputs ahead of the next Step.
func (w *World) Apply(cmds []Command) error {
	var firstErr error
	for _, cmd := range cmds {
		var err error
		switch cmd.Type {
		case CommandJoin:
			if cmd.Join != nil {
				_, err = w.AddPlayer(cmd.Join.PlayerID)
			}
		case CommandLeave:
			if cmd.Leave != nil {
				err = w.RemovePlayer(cmd.Leave.PlayerID)
			}
		case CommandInput:
			if cmd.Input != nil {
				err = w.applyInput(cmd.ActorID, *cmd.Input)
			}
		default:
			err = fmt.Errorf("sim: unknown command type %q", cmd.Type)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// AddPlayer spawns a player actor near the stage spawn point. The placement
// search keeps new bodies at least spawnSeparation away from other players.
func (w *World) AddPlayer(playerID string) (string, error) {
	if playerID == "" {
		return "", errors.New("sim: empty player id")
	}
	if _, ok := w.players[playerID]; ok {
		return "", ErrPlayerExists
	}
	if len(w.actors) >= MaxActors {
		return "", ErrWorldFull
	}
	x, y := w.placeNearSpawn()
	w.nextActorSeq++
	id := fmt.Sprintf("player-%d", w.nextActorSeq)
	actor, err := NewActor(id, KindPlayer, Body{
		X: x, Y: y, HalfW: playerHalf, HalfH: playerHalf, PrevX: x, PrevY: y,
	}, &PlayerState{
		PlayerID:    playerID,
		Lives:       defaultLives,
		InvulnTicks: invulnerabilityTicks,
	}, nil, nil, nil)
	if err != nil {
		return "", err
	}
	w.insert(actor)
	w.players[playerID] = actor
	w.emit(Event{Type: EventPlayerJoined, ActorID: id, PlayerID: playerID, X: x, Y: y, Lives: defaultLives})
	lifecyclelog.PlayerJoined(context.Background(), w.deps.Publisher, w.tick, w.ref(actor))
	w.storeGauges()
	return id, nil
}

// RemovePlayer detaches and removes the actor for the given identity.
func (w *World) RemovePlayer(playerID string) error {
	actor, ok := w.players[playerID]
	if !ok {
		return fmt.Errorf("sim: unknown player %q", playerID)
	}
	delete(w.players, playerID)
	actor.Removed = true
	w.emit(Event{Type: EventPlayerLeft, ActorID: actor.ID, PlayerID: playerID})
	lifecyclelog.PlayerLeft(context.Background(), w.deps.Publisher, w.tick, w.ref(actor), "leave")
	w.storeGauges()
	return nil
}

// ActorIDForPlayer resolves the actor backing a player identity.
func (w *World) ActorIDForPlayer(playerID string) (string, bool) {
	actor, ok := w.players[playerID]
	if !ok {
		return "", false
	}
	return actor.ID, true
}

func (w *World) applyInput(actorID string, input InputCommand) error {
	actor, ok := w.byID[actorID]
	if !ok {
		// Connection code addresses players by identity, not actor id.
		actor, ok = w.players[actorID]
	}
	if !ok || actor.Kind != KindPlayer || actor.Removed {
		return fmt.Errorf("sim: input for unknown actor %q", actorID)
	}
	switch input.Action {
	case InputMove:
		dir := input.Direction
		if dir < -1 || dir > 1 {
			return fmt.Errorf("sim: move direction %d out of range", dir)
		}
		actor.Player.HeldDirection = dir
	case InputJump:
		actor.Player.jumpQueued = true
	default:
		return fmt.Errorf("sim: unknown input action %q", input.Action)
	}
	return nil
}

func (w *World) insert(actor *Actor) {
	w.actors = append(w.actors, actor)
	w.byID[actor.ID] = actor
}

func (w *World) emit(ev Event) {
	ev.Tick = w.tick
	ev.Stage = w.stage.Name
	w.events = append(w.events, ev)
}

func (w *World) ref(actor *Actor) logging.EntityRef {
	kind := logging.EntityKindUnknown
	switch actor.Kind {
	case KindPlayer:
		kind = logging.EntityKindPlayer
	case KindEnemy:
		kind = logging.EntityKindEnemy
	case KindPlatform, KindBreakablePlatform:
		kind = logging.EntityKindPlatform
	}
	return logging.EntityRef{ID: actor.ID, Kind: kind}
}

// DrainEvents returns the events accumulated since the previous drain.
func (w *World) DrainEvents() []Event {
	if len(w.events) == 0 {
		return nil
	}
	events := w.events
	w.events = nil
	return events
}

// loadStage replaces all non-player actors with the stage layout and moves
// players to the spawn point. Player score, death and time totals carry over.
func (w *World) loadStage(index int, reload bool) {
	w.stageIndex = index
	w.stage = w.stages[index]
	w.stageOver = false
	w.cancelStageTimers()

	kept := w.actors[:0]
	for _, actor := range w.actors {
		if actor.Kind == KindPlayer && !actor.Removed {
			kept = append(kept, actor)
			continue
		}
		delete(w.byID, actor.ID)
	}
	w.actors = kept

	for i, decl := range w.stage.Platforms {
		w.nextActorSeq++
		half := decl.Width / 2
		body := Body{X: decl.X, Y: decl.Y, HalfW: half, HalfH: platformHalfH, PrevX: decl.X, PrevY: decl.Y}
		var actor *Actor
		var err error
		if decl.Breakable {
			id := fmt.Sprintf("breakable-%d", w.nextActorSeq)
			actor, err = NewActor(id, KindBreakablePlatform, body, nil, nil, nil, &BreakablePlatformState{Width: decl.Width, MaxHits: decl.MaxHits})
		} else {
			id := fmt.Sprintf("platform-%d", w.nextActorSeq)
			actor, err = NewActor(id, KindPlatform, body, nil, nil, &PlatformState{Width: decl.Width}, nil)
		}
		if err != nil {
			w.logf("stage %s platform %d rejected: %v", w.stage.Name, i, err)
			continue
		}
		w.insert(actor)
	}
	for i, decl := range w.stage.Enemies {
		w.nextActorSeq++
		id := fmt.Sprintf("enemy-%d", w.nextActorSeq)
		actor, err := NewActor(id, KindEnemy, Body{
			X: decl.X, Y: decl.Y, HalfW: enemyHalf, HalfH: enemyHalf, PrevX: decl.X, PrevY: decl.Y,
		}, nil, &EnemyState{Direction: decl.Direction, Speed: decl.Speed}, nil, nil)
		if err != nil {
			w.logf("stage %s enemy %d rejected: %v", w.stage.Name, i, err)
			continue
		}
		w.insert(actor)
	}

	for _, actor := range w.actors {
		if actor.Kind != KindPlayer {
			continue
		}
		x, y := w.placeNearSpawn()
		actor.Body = Body{X: x, Y: y, HalfW: playerHalf, HalfH: playerHalf, PrevX: x, PrevY: y}
		p := actor.Player
		p.GoalReached = false
		p.OnGround = false
		p.CoyoteTicks = 0
		p.RespawnTicks = 0
		p.InvulnTicks = invulnerabilityTicks
		p.HeldDirection = 0
		p.jumpQueued = false
	}

	w.emit(Event{Type: EventStageLoaded})
	lifecyclelog.StageLoaded(context.Background(), w.deps.Publisher, w.tick, lifecyclelog.StagePayload{
		Stage:     w.stage.Name,
		Platforms: len(w.stage.Platforms),
		Enemies:   len(w.stage.Enemies),
		Reload:    reload,
	})
	w.storeGauges()
}

// placeNearSpawn searches expanding horizontal rings around the stage spawn
// for a spot at least spawnSeparation from every live player and enemy, and
// with a surface directly underfoot so nobody materialises over a pit.
func (w *World) placeNearSpawn() (float64, float64) {
	base := w.stage.Spawn
	candidate := func(x float64) (float64, bool) {
		x = clamp(x, playerHalf, w.stage.Width-playerHalf)
		for _, actor := range w.actors {
			if actor.Removed {
				continue
			}
			switch actor.Kind {
			case KindPlayer:
				if actor.Player.RespawnTicks > 0 {
					continue
				}
			case KindEnemy:
			default:
				continue
			}
			if math.Abs(actor.Body.X-x) < spawnSeparation && math.Abs(actor.Body.Y-base.Y) < spawnSurfaceBandY {
				return 0, false
			}
		}
		if !w.supportedAt(x, base.Y+playerHalf) {
			return 0, false
		}
		return x, true
	}
	if x, ok := candidate(base.X); ok {
		return x, base.Y
	}
	for ring := 1; ring <= spawnMaxRings; ring++ {
		offset := float64(ring) * spawnRingStep
		if x, ok := candidate(base.X + offset); ok {
			return x, base.Y
		}
		if x, ok := candidate(base.X - offset); ok {
			return x, base.Y
		}
	}
	// No ring qualified. Stages without a surface under the spawn fall back to
	// the declared point; crowding overlap is harmless because players do not
	// collide with each other.
	return clamp(base.X, playerHalf, w.stage.Width-playerHalf), base.Y
}

// supportedAt reports whether some surface top sits at the given bottom edge,
// within landingTolerance, under a player-width footprint at x.
func (w *World) supportedAt(x, bottom float64) bool {
	for _, actor := range w.actors {
		if !actor.isSurface() {
			continue
		}
		sb := &actor.Body
		if math.Abs(sb.X-x) >= sb.HalfW+playerHalf {
			continue
		}
		if math.Abs(sb.top()-bottom) <= landingTolerance {
			return true
		}
	}
	return false
}

func (w *World) cancelStageTimers() {
	if w.advanceTask != 0 {
		w.scheduler.Cancel(w.advanceTask)
		w.advanceTask = 0
	}
	if w.safetyTask != 0 {
		w.scheduler.Cancel(w.safetyTask)
		w.safetyTask = 0
	}
}

func (w *World) storeGauges() {
	if w.deps.Metrics == nil {
		return
	}
	w.deps.Metrics.Store(telemetry.KeyWorldActors, uint64(len(w.actors)))
	w.deps.Metrics.Store(telemetry.KeyWorldPlayers, uint64(len(w.players)))
}

func (w *World) logf(format string, args ...any) {
	if w.deps.Logger == nil {
		return
	}
	w.deps.Logger.Printf(format, args...)
}

var _ Engine = (*World)(nil)

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
