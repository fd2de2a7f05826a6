package sim

// ActorSnapshot is the per-actor state exported to the broadcaster. Only the
// fields matching the actor's kind are populated.
type ActorSnapshot struct {
	ID   string    `json:"id"`
	Kind ActorKind `json:"kind"`
	X    float64   `json:"x"`
	Y    float64   `json:"y"`
	VX   float64   `json:"vx"`
	VY   float64   `json:"vy"`

	// Player fields.
	PlayerID       string `json:"playerId,omitempty"`
	Lives          int    `json:"lives,omitempty"`
	Deaths         int    `json:"deaths,omitempty"`
	Score          int    `json:"score,omitempty"`
	StageTimeTicks uint64 `json:"stageTimeTicks,omitempty"`
	OnGround       bool   `json:"onGround,omitempty"`
	Invulnerable   bool   `json:"invulnerable,omitempty"`
	Dead           bool   `json:"dead,omitempty"`
	GoalReached    bool   `json:"goalReached,omitempty"`

	// Enemy fields.
	Direction int `json:"direction,omitempty"`

	// Platform fields.
	Width    float64 `json:"width,omitempty"`
	HitCount int     `json:"hitCount,omitempty"`
	MaxHits  int     `json:"maxHits,omitempty"`
	Broken   bool    `json:"broken,omitempty"`
}

// Snapshot is a value copy of the world taken after a tick completes.
type Snapshot struct {
	Tick       uint64          `json:"tick"`
	Stage      string          `json:"stage"`
	StageIndex int             `json:"stageIndex"`
	GameWon    bool            `json:"gameWon,omitempty"`
	StageOver  bool            `json:"stageOver,omitempty"`
	Actors     []ActorSnapshot `json:"actors"`
}

// Snapshot copies the current world state. The result shares nothing with
// the live world and is safe to hand to other goroutines.
func (w *World) Snapshot() Snapshot {
	snap := Snapshot{
		Tick:       w.tick,
		Stage:      w.stage.Name,
		StageIndex: w.stageIndex,
		GameWon:    w.gameWon,
		StageOver:  w.stageOver,
		Actors:     make([]ActorSnapshot, 0, len(w.actors)),
	}
	for _, actor := range w.actors {
		if actor.Removed {
			continue
		}
		as := ActorSnapshot{
			ID:   actor.ID,
			Kind: actor.Kind,
			X:    actor.Body.X,
			Y:    actor.Body.Y,
			VX:   actor.Body.VX,
			VY:   actor.Body.VY,
		}
		switch actor.Kind {
		case KindPlayer:
			p := actor.Player
			as.PlayerID = p.PlayerID
			as.Lives = p.Lives
			as.Deaths = p.Deaths
			as.Score = p.Score
			as.StageTimeTicks = p.StageTimeTicks
			as.OnGround = p.OnGround
			as.Invulnerable = p.InvulnTicks > 0
			as.Dead = p.RespawnTicks > 0 || p.Lives <= 0
			as.GoalReached = p.GoalReached
		case KindEnemy:
			as.Direction = actor.Enemy.Direction
		case KindPlatform:
			as.Width = actor.Platform.Width
		case KindBreakablePlatform:
			bp := actor.Breakable
			as.Width = bp.Width
			as.HitCount = bp.HitCount
			as.MaxHits = bp.MaxHits
			as.Broken = bp.Broken
		}
		snap.Actors = append(snap.Actors, as)
	}
	return snap
}
