package sim

// phaseInput converts latched player intents and enemy patrol state into
// velocities. Dead players (waiting on a respawn) contribute nothing.
func (w *World) phaseInput() {
	for _, actor := range w.actors {
		if actor.Removed {
			continue
		}
		switch actor.Kind {
		case KindPlayer:
			p := actor.Player
			if p.RespawnTicks > 0 || p.Lives <= 0 {
				p.jumpQueued = false
				actor.Body.VX = 0
				continue
			}
			actor.Body.VX = float64(p.HeldDirection) * moveSpeed
			if p.jumpQueued {
				if p.OnGround || p.CoyoteTicks > 0 {
					actor.Body.VY = jumpSpeed
					p.OnGround = false
					p.CoyoteTicks = 0
				}
				p.jumpQueued = false
			}
		case KindEnemy:
			actor.Body.VX = float64(actor.Enemy.Direction) * actor.Enemy.Speed
		}
	}
}
