package sim

const (
	// TickRate is the fixed simulation frequency.
	TickRate = 60
	// TickDelta is the fixed integration step in seconds. Positions advance by
	// exactly velocity * TickDelta once per tick regardless of wall-clock
	// jitter in the driver.
	TickDelta = 1.0 / float64(TickRate)

	gravity      = 1200.0 // pixels per second squared
	jumpSpeed    = -450.0 // pixels per second, negative is up
	maxFallSpeed = 900.0
	moveSpeed    = 220.0

	coyoteMaxTicks = 6

	playerHalf       = 16.0 // 32x32 body
	enemyHalf        = 16.0
	platformHalfH    = 8.0
	landingTolerance = 2.0

	respawnTicks         = 120 // 2 s at 60 Hz
	invulnerabilityTicks = 180 // 3 s

	goalRadius          = 48.0
	stageAdvanceTicks   = 180
	stageAdvanceSafety  = 300
	stageOverGraceTicks = 180

	breakScoreBonus = 100

	defaultLives = 3

	// MaxActors bounds the world; spawn requests beyond it are rejected
	// outright with no partial mutation.
	MaxActors = 256

	enemyPatrolMargin = 32.0

	// Spawn placement search.
	spawnSeparation   = 64.0
	spawnRingStep     = 48.0
	spawnMaxRings     = 4
	spawnSurfaceBandY = 48.0

	// Vertical slack below the stage before an actor counts as out of bounds.
	fallRemovalMargin = 160.0
)
