package stage

// Point is a stage-space coordinate.
type Point struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// PlatformDecl declares one platform in a stage document.
type PlatformDecl struct {
	X         float64 `yaml:"x" json:"x" jsonschema:"description=Platform center x"`
	Y         float64 `yaml:"y" json:"y" jsonschema:"description=Platform center y"`
	Width     float64 `yaml:"width,omitempty" json:"width,omitempty" jsonschema:"description=Platform width in pixels,minimum=0"`
	Breakable bool    `yaml:"breakable,omitempty" json:"breakable,omitempty"`
	MaxHits   int     `yaml:"maxHits,omitempty" json:"maxHits,omitempty" jsonschema:"description=Landings required to break the platform,minimum=0"`
}

// EnemyDecl declares one patrolling enemy.
type EnemyDecl struct {
	X         float64 `yaml:"x" json:"x"`
	Y         float64 `yaml:"y" json:"y"`
	Speed     float64 `yaml:"speed,omitempty" json:"speed,omitempty" jsonschema:"description=Patrol speed in pixels per second,minimum=0"`
	Direction int     `yaml:"direction,omitempty" json:"direction,omitempty" jsonschema:"description=Initial patrol direction; -1 or 1"`
}

// Document is one designer-authored stage. The loader bounds-checks and
// defaults malformed entries instead of aborting the load, so the simulation
// always receives a playable stage.
type Document struct {
	Name      string         `yaml:"name" json:"name" jsonschema:"description=Unique stage identifier"`
	Width     float64        `yaml:"width,omitempty" json:"width,omitempty"`
	Height    float64        `yaml:"height,omitempty" json:"height,omitempty"`
	Spawn     Point          `yaml:"spawn" json:"spawn" jsonschema:"description=Base player spawn point"`
	Goal      Point          `yaml:"goal" json:"goal" jsonschema:"description=The single goal point of the stage"`
	Platforms []PlatformDecl `yaml:"platforms" json:"platforms"`
	Enemies   []EnemyDecl    `yaml:"enemies,omitempty" json:"enemies,omitempty"`
}

// File is the on-disk document format: an ordered list of stages.
type File struct {
	Stages []Document `yaml:"stages" json:"stages" jsonschema:"description=Stages in play order"`
}

// Defaults applied to malformed or omitted entry fields.
const (
	DefaultWidth         = 960.0
	DefaultHeight        = 720.0
	DefaultPlatformWidth = 96.0
	DefaultEnemySpeed    = 60.0
	DefaultMaxHits       = 3
	maxPlatformWidth     = 640.0
	maxEnemySpeed        = 600.0
)
