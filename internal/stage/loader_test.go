package stage

import (
	"math"
	"testing"
)

func TestParseEmbeddedDefaults(t *testing.T) {
	stages, err := Parse(defaultStagesYAML, nil)
	if err != nil {
		t.Fatalf("embedded stages failed to parse: %v", err)
	}
	if len(stages) != 2 {
		t.Fatalf("expected 2 default stages, got %d", len(stages))
	}
	for _, doc := range stages {
		if doc.Goal == (Point{}) {
			t.Fatalf("stage %s missing goal", doc.Name)
		}
		if len(doc.Platforms) == 0 {
			t.Fatalf("stage %s has no platforms", doc.Name)
		}
	}
}

func TestParseDefaultsMalformedEntries(t *testing.T) {
	data := []byte(`
stages:
  - name: broken
    platforms:
      - { x: 100, y: 200, width: -5 }
      - { x: 300, y: 100, breakable: true }
    enemies:
      - { x: 50, y: 50, speed: -1, direction: 7 }
`)
	stages, err := Parse(data, nil)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	doc := stages[0]
	if doc.Width != DefaultWidth || doc.Height != DefaultHeight {
		t.Fatalf("expected defaulted dimensions, got %vx%v", doc.Width, doc.Height)
	}
	if doc.Platforms[0].Width != DefaultPlatformWidth {
		t.Fatalf("expected defaulted platform width, got %v", doc.Platforms[0].Width)
	}
	if doc.Platforms[1].MaxHits != DefaultMaxHits {
		t.Fatalf("expected breakable default maxHits, got %d", doc.Platforms[1].MaxHits)
	}
	enemy := doc.Enemies[0]
	if enemy.Speed != DefaultEnemySpeed {
		t.Fatalf("expected defaulted enemy speed, got %v", enemy.Speed)
	}
	if enemy.Direction != 1 {
		t.Fatalf("expected defaulted direction 1, got %d", enemy.Direction)
	}
	if doc.Goal == (Point{}) {
		t.Fatalf("expected a defaulted goal point")
	}
}

func TestParseClampsOutOfBounds(t *testing.T) {
	data := []byte(`
stages:
  - name: clamped
    width: 400
    height: 300
    spawn: { x: 9999, y: -50 }
    goal: { x: 350, y: 40 }
    platforms:
      - { x: -20, y: 5000, width: 64 }
`)
	stages, err := Parse(data, nil)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	doc := stages[0]
	if doc.Spawn.X > doc.Width || doc.Spawn.Y < 0 {
		t.Fatalf("spawn not clamped: %+v", doc.Spawn)
	}
	p := doc.Platforms[0]
	if p.X < 0 || p.Y > doc.Height {
		t.Fatalf("platform not clamped: %+v", p)
	}
}

func TestParseDropsNonFiniteEntries(t *testing.T) {
	data := []byte(`
stages:
  - name: finite
    platforms:
      - { x: .nan, y: 100 }
      - { x: 100, y: 100 }
`)
	stages, err := Parse(data, nil)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(stages[0].Platforms) != 1 {
		t.Fatalf("expected non-finite platform to be dropped, kept %d", len(stages[0].Platforms))
	}
	if math.IsNaN(stages[0].Platforms[0].X) {
		t.Fatalf("kept platform has NaN position")
	}
}

func TestParseRejectsEmptyFile(t *testing.T) {
	if _, err := Parse([]byte("stages: []"), nil); err == nil {
		t.Fatalf("expected error for empty stage list")
	}
}

func TestParseRenamesDuplicateStages(t *testing.T) {
	data := []byte(`
stages:
  - name: twin
    goal: { x: 10, y: 10 }
  - name: twin
    goal: { x: 10, y: 10 }
`)
	stages, err := Parse(data, nil)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if stages[0].Name == stages[1].Name {
		t.Fatalf("expected duplicate stage names to be disambiguated")
	}
}
