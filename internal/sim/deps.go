package sim

import (
	"cliffhop/server/internal/telemetry"
	"cliffhop/server/logging"
)

// Recorder receives completed-tick summaries for durable storage. Calls are
// fire-and-forget: implementations must not block the tick loop.
type Recorder interface {
	RecordTick(tick uint64, stage string, actors int, events []Event)
	RecordStageResult(stage string, playerID string, score int, deaths int, stageTicks uint64, won bool)
}

// Deps carries shared infrastructure dependencies required by the simulation
// engine. Any field may be nil; the engine degrades to no-ops.
type Deps struct {
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Publisher logging.Publisher
	Clock     logging.Clock
	Recorder  Recorder
}
