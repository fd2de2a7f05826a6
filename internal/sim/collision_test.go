package sim

import (
	"testing"

	"cliffhop/server/internal/stage"
)

func breakableStage(maxHits int) stage.Document {
	doc := groundStage()
	doc.Platforms = append(doc.Platforms, stage.PlatformDecl{
		X: 300, Y: 472, Width: 96, Breakable: true, MaxHits: maxHits,
	})
	return doc
}

func findBreakable(t *testing.T, w *World) *Actor {
	t.Helper()
	for _, actor := range w.actors {
		if actor.Kind == KindBreakablePlatform {
			return actor
		}
	}
	t.Fatalf("breakable platform missing from world")
	return nil
}

func dropOnto(t *testing.T, w *World, actor *Actor, x, y float64) {
	t.Helper()
	teleport(actor, x, y)
	actor.Player.OnGround = false
	actor.Player.CoyoteTicks = 0
	for i := 0; i < 2*TickRate; i++ {
		w.Step()
		if actor.Player.OnGround {
			return
		}
	}
	t.Fatalf("actor %s never landed from (%v, %v), y=%v", actor.ID, x, y, actor.Body.Y)
}

func TestBreakablePlatformBreaksOnExactHitLimit(t *testing.T) {
	w := newTestWorld(t, breakableStage(3))
	actor := join(t, w, "p1")
	bp := findBreakable(t, w)

	for hit := 1; hit <= 3; hit++ {
		dropOnto(t, w, actor, 300, 400)
		if bp.Breakable.HitCount != hit {
			t.Fatalf("expected hit count %d, got %d", hit, bp.Breakable.HitCount)
		}
		if hit < 3 && bp.Breakable.Broken {
			t.Fatalf("platform broke early at hit %d", hit)
		}
	}
	if !bp.Breakable.Broken {
		t.Fatalf("expected platform broken after %d hits", bp.Breakable.MaxHits)
	}
	if actor.Player.Score != breakScoreBonus {
		t.Fatalf("expected break bonus %d, got score %d", breakScoreBonus, actor.Player.Score)
	}
	// The breaking hit removes the platform from the world, not just its
	// support.
	if _, ok := w.byID[bp.ID]; ok {
		t.Fatalf("broken platform still present in the world")
	}
	for _, snap := range w.Snapshot().Actors {
		if snap.ID == bp.ID {
			t.Fatalf("broken platform still present in the snapshot")
		}
	}
}

func TestBrokenPlatformStopsSupporting(t *testing.T) {
	w := newTestWorld(t, breakableStage(1))
	actor := join(t, w, "p1")
	bp := findBreakable(t, w)

	teleport(actor, 300, 400)
	actor.Player.OnGround = false
	groundY := 672.0 - platformHalfH - playerHalf
	landed := false
	for i := 0; i < 3*TickRate; i++ {
		w.Step()
		if actor.Player.OnGround && actor.Body.Y == groundY {
			landed = true
			break
		}
	}
	if !bp.Breakable.Broken {
		t.Fatalf("expected single-hit platform to break on landing")
	}
	if !landed {
		t.Fatalf("expected player to fall through to the ground, y=%v", actor.Body.Y)
	}
}

func TestSimultaneousLandingsEachCountOneHit(t *testing.T) {
	w := newTestWorld(t, breakableStage(3))
	first := join(t, w, "p1")
	second := join(t, w, "p2")
	bp := findBreakable(t, w)

	teleport(first, 280, 400)
	teleport(second, 320, 400)
	first.Player.OnGround = false
	second.Player.OnGround = false
	for i := 0; i < 2*TickRate; i++ {
		w.Step()
		if first.Player.OnGround && second.Player.OnGround {
			break
		}
	}
	if !first.Player.OnGround || !second.Player.OnGround {
		t.Fatalf("both players should have landed")
	}
	if bp.Breakable.HitCount != 2 {
		t.Fatalf("two players landing in one tick must count two hits, got %d", bp.Breakable.HitCount)
	}
	if bp.Breakable.Broken {
		t.Fatalf("platform must survive below its hit limit")
	}

	// A third landing, by either player, finishes the job on the next pass.
	dropOnto(t, w, first, 300, 400)
	if !bp.Breakable.Broken {
		t.Fatalf("expected the third hit to break the platform, hits=%d", bp.Breakable.HitCount)
	}
}

func TestJumpPassesThroughPlatformFromBelow(t *testing.T) {
	w := newTestWorld(t, breakableStage(3))
	actor := join(t, w, "p1")
	bp := findBreakable(t, w)

	// Rise through the breakable from underneath; upward motion never lands.
	teleport(actor, 300, 520)
	actor.Player.OnGround = false
	actor.Body.VY = jumpSpeed
	w.Step()
	if bp.Breakable.HitCount != 0 {
		t.Fatalf("upward pass must not damage the platform, hits=%d", bp.Breakable.HitCount)
	}
	if actor.Body.VY >= 0 {
		t.Fatalf("expected continued upward motion, vy=%v", actor.Body.VY)
	}
}
