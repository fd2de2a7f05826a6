package stage

import (
	_ "embed"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"cliffhop/server/internal/telemetry"
)

//go:embed stages.yaml
var defaultStagesYAML []byte

// Load reads a stage file from disk, falling back to the embedded default set
// when path is empty. Every stage is normalized before it is returned.
func Load(path string, logger telemetry.Logger) ([]Document, error) {
	data := defaultStagesYAML
	if path != "" {
		read, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read stage file %s: %w", path, err)
		}
		data = read
	}
	return Parse(data, logger)
}

// Parse decodes and normalizes a stage file. Malformed entries are defaulted
// and logged, never fatal; an empty or unreadable file is the only error.
func Parse(data []byte, logger telemetry.Logger) ([]Document, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse stage file: %w", err)
	}
	if len(file.Stages) == 0 {
		return nil, fmt.Errorf("stage file declares no stages")
	}
	stages := make([]Document, 0, len(file.Stages))
	seen := make(map[string]struct{}, len(file.Stages))
	for i := range file.Stages {
		doc := normalize(file.Stages[i], i, logger)
		if _, dup := seen[doc.Name]; dup {
			if logger != nil {
				logger.Printf("stage %q: duplicate name, renaming to %s-%d", doc.Name, doc.Name, i)
			}
			doc.Name = fmt.Sprintf("%s-%d", doc.Name, i)
		}
		seen[doc.Name] = struct{}{}
		stages = append(stages, doc)
	}
	return stages, nil
}

func normalize(doc Document, index int, logger telemetry.Logger) Document {
	warn := func(format string, args ...any) {
		if logger != nil {
			logger.Printf("stage %d: "+format, append([]any{index}, args...)...)
		}
	}

	if doc.Name == "" {
		doc.Name = fmt.Sprintf("stage-%d", index+1)
		warn("missing name, using %s", doc.Name)
	}
	if doc.Width <= 0 || !isFinite(doc.Width) {
		doc.Width = DefaultWidth
	}
	if doc.Height <= 0 || !isFinite(doc.Height) {
		doc.Height = DefaultHeight
	}

	doc.Spawn = clampPoint(doc.Spawn, doc.Width, doc.Height)
	if doc.Goal == (Point{}) {
		doc.Goal = Point{X: doc.Width - 64, Y: 64}
		warn("missing goal, defaulting to (%.0f, %.0f)", doc.Goal.X, doc.Goal.Y)
	}
	doc.Goal = clampPoint(doc.Goal, doc.Width, doc.Height)

	kept := doc.Platforms[:0]
	for i, p := range doc.Platforms {
		if !isFinite(p.X) || !isFinite(p.Y) {
			warn("platform %d: non-finite position, dropping", i)
			continue
		}
		if p.Width <= 0 || p.Width > maxPlatformWidth || !isFinite(p.Width) {
			p.Width = DefaultPlatformWidth
		}
		if p.Breakable && p.MaxHits <= 0 {
			p.MaxHits = DefaultMaxHits
		}
		p.X = clamp(p.X, 0, doc.Width)
		p.Y = clamp(p.Y, 0, doc.Height)
		kept = append(kept, p)
	}
	doc.Platforms = kept

	keptEnemies := doc.Enemies[:0]
	for i, e := range doc.Enemies {
		if !isFinite(e.X) || !isFinite(e.Y) {
			warn("enemy %d: non-finite position, dropping", i)
			continue
		}
		if e.Speed <= 0 || e.Speed > maxEnemySpeed || !isFinite(e.Speed) {
			e.Speed = DefaultEnemySpeed
		}
		if e.Direction != -1 && e.Direction != 1 {
			e.Direction = 1
		}
		e.X = clamp(e.X, 0, doc.Width)
		e.Y = clamp(e.Y, 0, doc.Height)
		keptEnemies = append(keptEnemies, e)
	}
	doc.Enemies = keptEnemies

	return doc
}

func clampPoint(p Point, width, height float64) Point {
	if !isFinite(p.X) {
		p.X = width / 2
	}
	if !isFinite(p.Y) {
		p.Y = height / 2
	}
	p.X = clamp(p.X, 0, width)
	p.Y = clamp(p.Y, 0, height)
	return p
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
