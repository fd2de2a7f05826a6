package broadcast

import (
	"encoding/json"
	"hash/crc32"
	"math"
	"sort"

	"cliffhop/server/internal/sim"
)

const (
	// DefaultKeyframeInterval is how often a full snapshot replaces the delta
	// stream. Keyframes carry an integrity checksum so clients can detect
	// mirror drift.
	DefaultKeyframeInterval = 30

	// changeEpsilon suppresses numeric churn below the client's render
	// resolution. Drift accumulates against the last sent value, so the
	// client mirror never lags a field by more than the epsilon.
	changeEpsilon = 0.05
)

// StatePayload is the per-tick state message. On keyframes Actors holds every
// live actor and Checksum covers them all; otherwise Actors holds only actors
// that changed since they were last sent.
type StatePayload struct {
	Tick       uint64              `json:"tick"`
	Stage      string              `json:"stage"`
	StageIndex int                 `json:"stageIndex"`
	StageOver  bool                `json:"stageOver,omitempty"`
	GameWon    bool                `json:"gameWon,omitempty"`
	Keyframe   bool                `json:"keyframe,omitempty"`
	Checksum   uint32              `json:"checksum,omitempty"`
	Actors     []sim.ActorSnapshot `json:"actors,omitempty"`
	Removed    []string            `json:"removed,omitempty"`
	Events     []sim.Event         `json:"events,omitempty"`
}

// Serializer tracks what each field looked like when last transmitted and
// emits delta or keyframe payloads. It is not safe for concurrent use; the
// dispatcher owns one and feeds it from the tick callback.
type Serializer struct {
	interval int
	last     map[string]sim.ActorSnapshot
	started  bool
	skipped  uint64
}

// NewSerializer builds a serializer with the given keyframe interval. An
// interval below 1 falls back to the default.
func NewSerializer(interval int) *Serializer {
	if interval < 1 {
		interval = DefaultKeyframeInterval
	}
	return &Serializer{
		interval: interval,
		last:     make(map[string]sim.ActorSnapshot),
	}
}

// SkippedActors reports actors dropped from payloads due to non-finite state.
func (s *Serializer) SkippedActors() uint64 { return s.skipped }

// Build produces the state payload for one completed tick. The first call and
// every interval-th tick emit a keyframe.
func (s *Serializer) Build(snap sim.Snapshot, events []sim.Event) StatePayload {
	keyframe := !s.started || snap.Tick%uint64(s.interval) == 0
	payload := StatePayload{
		Tick:       snap.Tick,
		Stage:      snap.Stage,
		StageIndex: snap.StageIndex,
		StageOver:  snap.StageOver,
		GameWon:    snap.GameWon,
		Events:     events,
	}
	seen := make(map[string]struct{}, len(snap.Actors))
	var checksum uint32
	for _, actor := range snap.Actors {
		if !finiteActor(actor) {
			// One bad actor must not take the whole broadcast down.
			s.skipped++
			continue
		}
		seen[actor.ID] = struct{}{}
		changed := keyframe
		if !changed {
			prev, ok := s.last[actor.ID]
			changed = !ok || actorChanged(prev, actor)
		}
		wire := rounded(actor)
		if keyframe {
			checksum ^= ActorChecksum(wire)
		}
		if changed {
			payload.Actors = append(payload.Actors, wire)
			s.last[actor.ID] = actor
		}
	}
	for id := range s.last {
		if _, ok := seen[id]; !ok {
			payload.Removed = append(payload.Removed, id)
			delete(s.last, id)
		}
	}
	sort.Strings(payload.Removed)
	if keyframe {
		payload.Keyframe = true
		payload.Checksum = checksum
	}
	s.started = true
	return payload
}

// Reset drops the last-sent memory so the next Build emits a keyframe. Used
// when a client attaches mid-game and needs a full picture.
func (s *Serializer) Reset() {
	s.last = make(map[string]sim.ActorSnapshot)
	s.started = false
}

// ActorChecksum hashes one wire actor. Keyframe checksums XOR the per-actor
// hashes so the result is independent of actor order.
func ActorChecksum(actor sim.ActorSnapshot) uint32 {
	data, err := json.Marshal(actor)
	if err != nil {
		return 0
	}
	return crc32.ChecksumIEEE(data)
}

func actorChanged(prev, next sim.ActorSnapshot) bool {
	if prev.Kind != next.Kind ||
		prev.PlayerID != next.PlayerID ||
		prev.Lives != next.Lives ||
		prev.Deaths != next.Deaths ||
		prev.Score != next.Score ||
		prev.StageTimeTicks != next.StageTimeTicks ||
		prev.OnGround != next.OnGround ||
		prev.Invulnerable != next.Invulnerable ||
		prev.Dead != next.Dead ||
		prev.GoalReached != next.GoalReached ||
		prev.Direction != next.Direction ||
		prev.HitCount != next.HitCount ||
		prev.MaxHits != next.MaxHits ||
		prev.Broken != next.Broken {
		return true
	}
	return exceeds(prev.X, next.X) ||
		exceeds(prev.Y, next.Y) ||
		exceeds(prev.VX, next.VX) ||
		exceeds(prev.VY, next.VY) ||
		exceeds(prev.Width, next.Width)
}

func exceeds(a, b float64) bool {
	return math.Abs(a-b) > changeEpsilon
}

func rounded(actor sim.ActorSnapshot) sim.ActorSnapshot {
	actor.X = round1(actor.X)
	actor.Y = round1(actor.Y)
	actor.VX = round1(actor.VX)
	actor.VY = round1(actor.VY)
	actor.Width = round1(actor.Width)
	return actor
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func finiteActor(actor sim.ActorSnapshot) bool {
	for _, v := range []float64{actor.X, actor.Y, actor.VX, actor.VY, actor.Width} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
