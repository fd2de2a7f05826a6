package server

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"cliffhop/server/internal/protocol"
	"cliffhop/server/internal/sim"
	"cliffhop/server/internal/stage"
)

func hubStage() stage.Document {
	return stage.Document{
		Name:   "lobby",
		Width:  960,
		Height: 720,
		Spawn:  stage.Point{X: 100, Y: 648},
		Goal:   stage.Point{X: 900, Y: 648},
		Platforms: []stage.PlatformDecl{
			{X: 480, Y: 672, Width: 960},
		},
	}
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	world, err := sim.NewWorld([]stage.Document{hubStage()}, sim.Deps{})
	if err != nil {
		t.Fatalf("NewWorld: %v", err)
	}
	cfg := DefaultConfig()
	cfg.SweepInterval = time.Hour
	return NewHub(world, cfg)
}

func (h *Hub) step(t *testing.T, tick uint64) sim.LoopStepResult {
	t.Helper()
	result := h.loop.Advance(sim.LoopTickContext{Tick: tick, Now: time.Now()})
	h.afterStep(result)
	return result
}

func findPlayer(result sim.LoopStepResult, playerID string) (sim.ActorSnapshot, bool) {
	for _, actor := range result.Snapshot.Actors {
		if actor.PlayerID == playerID {
			return actor, true
		}
	}
	return sim.ActorSnapshot{}, false
}

func decodeFrame(t *testing.T, frame []byte) protocol.Envelope {
	t.Helper()
	env, err := protocol.Decode(frame)
	if err != nil {
		t.Fatalf("decode reply frame: %v", err)
	}
	return env
}

func TestHelloOpensSessionAndJoinsPlayer(t *testing.T) {
	h := newTestHub(t)
	welcome, sess, perr := h.Hello(protocol.HelloPayload{Name: "ada"})
	if perr != nil {
		t.Fatalf("hello rejected: %v", perr)
	}
	if sess == nil || welcome.Session != sess.ID {
		t.Fatalf("welcome session %q does not match opened session", welcome.Session)
	}
	if !strings.HasPrefix(welcome.PlayerID, "ada-") {
		t.Fatalf("player id = %q, want ada- prefix", welcome.PlayerID)
	}
	if welcome.TickRate != sim.TickRate || welcome.Version != protocol.Version {
		t.Fatalf("welcome = %+v, want tick rate %d version %d", welcome, sim.TickRate, protocol.Version)
	}
	if got := h.sessions.Count(); got != 1 {
		t.Fatalf("session count = %d, want 1", got)
	}
	result := h.step(t, 1)
	if _, ok := findPlayer(result, welcome.PlayerID); !ok {
		t.Fatalf("player %q missing from snapshot after join", welcome.PlayerID)
	}
}

func TestHelloRejectedAtActorLimit(t *testing.T) {
	h := newTestHub(t)
	h.actorCount.Store(sim.MaxActors)
	_, _, perr := h.Hello(protocol.HelloPayload{Name: "late"})
	if perr == nil || perr.Code != protocol.CodeActorLimit {
		t.Fatalf("perr = %v, want %s", perr, protocol.CodeActorLimit)
	}
	if got := h.sessions.Count(); got != 0 {
		t.Fatalf("session count = %d, want 0 after rejected hello", got)
	}
}

func TestEnvelopeWithoutSessionIsFatal(t *testing.T) {
	h := newTestHub(t)
	payload, _ := json.Marshal(protocol.InputPayload{Action: protocol.ActionJump})
	frames, closeConn := h.HandleEnvelope(protocol.Envelope{
		Ver:     protocol.Version,
		Type:    protocol.TypeInput,
		Payload: payload,
	})
	if !closeConn {
		t.Fatalf("expected connection close for unauthenticated input")
	}
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1 error reply", len(frames))
	}
	env := decodeFrame(t, frames[0])
	if env.Type != protocol.TypeError {
		t.Fatalf("reply type = %q, want %q", env.Type, protocol.TypeError)
	}
	var perr protocol.Error
	if err := json.Unmarshal(env.Payload, &perr); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if perr.Code != protocol.CodeAuthenticationFailed {
		t.Fatalf("code = %s, want %s", perr.Code, protocol.CodeAuthenticationFailed)
	}
}

func TestUnsupportedVersionRejected(t *testing.T) {
	h := newTestHub(t)
	frames, closeConn := h.HandleEnvelope(protocol.Envelope{Ver: 99, Type: protocol.TypeInput})
	if closeConn {
		t.Fatalf("version mismatch should not close the connection")
	}
	env := decodeFrame(t, frames[0])
	var perr protocol.Error
	if err := json.Unmarshal(env.Payload, &perr); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if perr.Code != protocol.CodeUnsupportedVersion {
		t.Fatalf("code = %s, want %s", perr.Code, protocol.CodeUnsupportedVersion)
	}
}

func TestInputRoutedToJoinedPlayer(t *testing.T) {
	h := newTestHub(t)
	welcome, _, perr := h.Hello(protocol.HelloPayload{Name: "mover"})
	if perr != nil {
		t.Fatalf("hello rejected: %v", perr)
	}
	h.step(t, 1)

	payload, _ := json.Marshal(protocol.InputPayload{Action: protocol.ActionMove, Direction: 1})
	frames, closeConn := h.HandleEnvelope(protocol.Envelope{
		Ver:     protocol.Version,
		Type:    protocol.TypeInput,
		Seq:     1,
		SentAt:  time.Now().UnixMilli(),
		Session: welcome.Session,
		Payload: payload,
	})
	if closeConn || len(frames) != 0 {
		t.Fatalf("valid input produced frames=%d close=%v", len(frames), closeConn)
	}
	result := h.step(t, 2)
	player, ok := findPlayer(result, welcome.PlayerID)
	if !ok || player.VX <= 0 {
		t.Fatalf("player did not start moving right: %+v", player)
	}
}

func TestBatchRejectsWhollyOnBadEntry(t *testing.T) {
	h := newTestHub(t)
	welcome, _, perr := h.Hello(protocol.HelloPayload{Name: "batcher"})
	if perr != nil {
		t.Fatalf("hello rejected: %v", perr)
	}
	h.step(t, 1)

	good, _ := json.Marshal(protocol.InputPayload{Action: protocol.ActionJump})
	batch, _ := json.Marshal(protocol.BatchPayload{Messages: []protocol.SubMessage{
		{Type: protocol.TypeInput, Payload: good},
		{Type: protocol.TypeGoodbye},
	}})
	frames, _ := h.HandleEnvelope(protocol.Envelope{
		Ver:     protocol.Version,
		Type:    protocol.TypeBatch,
		Seq:     1,
		SentAt:  time.Now().UnixMilli(),
		Session: welcome.Session,
		Payload: batch,
	})
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1 rejection", len(frames))
	}
	env := decodeFrame(t, frames[0])
	if env.Type != protocol.TypeError {
		t.Fatalf("reply type = %q, want %q", env.Type, protocol.TypeError)
	}
	if got := h.loop.Pending(); got != 0 {
		t.Fatalf("pending = %d, want 0: no command from a rejected batch may land", got)
	}
}

func TestBatchEnqueuesAllInputs(t *testing.T) {
	h := newTestHub(t)
	welcome, _, perr := h.Hello(protocol.HelloPayload{Name: "batcher"})
	if perr != nil {
		t.Fatalf("hello rejected: %v", perr)
	}
	h.step(t, 1)

	move, _ := json.Marshal(protocol.InputPayload{Action: protocol.ActionMove, Direction: -1})
	jump, _ := json.Marshal(protocol.InputPayload{Action: protocol.ActionJump})
	batch, _ := json.Marshal(protocol.BatchPayload{Messages: []protocol.SubMessage{
		{Type: protocol.TypeInput, Payload: move},
		{Type: protocol.TypeInput, Payload: jump},
	}})
	frames, closeConn := h.HandleEnvelope(protocol.Envelope{
		Ver:     protocol.Version,
		Type:    protocol.TypeBatch,
		Seq:     1,
		SentAt:  time.Now().UnixMilli(),
		Session: welcome.Session,
		Payload: batch,
	})
	if closeConn || len(frames) != 0 {
		t.Fatalf("valid batch produced frames=%d close=%v", len(frames), closeConn)
	}
	if got := h.loop.Pending(); got != 2 {
		t.Fatalf("pending = %d, want 2", got)
	}
}

func TestGoodbyeClosesSessionAndConnection(t *testing.T) {
	h := newTestHub(t)
	welcome, _, perr := h.Hello(protocol.HelloPayload{Name: "leaver"})
	if perr != nil {
		t.Fatalf("hello rejected: %v", perr)
	}
	h.step(t, 1)

	frames, closeConn := h.HandleEnvelope(protocol.Envelope{
		Ver:     protocol.Version,
		Type:    protocol.TypeGoodbye,
		Seq:     1,
		SentAt:  time.Now().UnixMilli(),
		Session: welcome.Session,
	})
	if !closeConn {
		t.Fatalf("goodbye must close the connection")
	}
	if len(frames) != 1 || decodeFrame(t, frames[0]).Type != protocol.TypeServerBye {
		t.Fatalf("expected a single serverGoodbye reply")
	}
	if got := h.sessions.Count(); got != 0 {
		t.Fatalf("session count = %d, want 0", got)
	}
	result := h.step(t, 2)
	if _, ok := findPlayer(result, welcome.PlayerID); ok {
		t.Fatalf("player still present in snapshot after goodbye")
	}
}

func TestStatusRequestReturnsDiagnostics(t *testing.T) {
	h := newTestHub(t)
	welcome, _, perr := h.Hello(protocol.HelloPayload{Name: "ops"})
	if perr != nil {
		t.Fatalf("hello rejected: %v", perr)
	}
	h.step(t, 1)

	frames, closeConn := h.HandleEnvelope(protocol.Envelope{
		Ver:     protocol.Version,
		Type:    protocol.TypeStatusReq,
		Seq:     1,
		SentAt:  time.Now().UnixMilli(),
		Session: welcome.Session,
	})
	if closeConn || len(frames) != 1 {
		t.Fatalf("statusRequest frames=%d close=%v", len(frames), closeConn)
	}
	env := decodeFrame(t, frames[0])
	if env.Type != protocol.TypeDiagnostic {
		t.Fatalf("reply type = %q, want %q", env.Type, protocol.TypeDiagnostic)
	}
	var diag DiagnosticsPayload
	if err := json.Unmarshal(env.Payload, &diag); err != nil {
		t.Fatalf("decode diagnostics: %v", err)
	}
	if diag.Tick != 1 || diag.Sessions != 1 || diag.Actors != 2 {
		t.Fatalf("diagnostics = %+v, want tick 1, 1 session, platform plus player", diag)
	}
}

func TestGoodbyeInsideBatchRejected(t *testing.T) {
	h := newTestHub(t)
	welcome, _, perr := h.Hello(protocol.HelloPayload{Name: "sneaky"})
	if perr != nil {
		t.Fatalf("hello rejected: %v", perr)
	}
	batch, _ := json.Marshal(protocol.BatchPayload{Messages: []protocol.SubMessage{
		{Type: protocol.TypeStatusReq},
	}})
	frames, _ := h.HandleEnvelope(protocol.Envelope{
		Ver:     protocol.Version,
		Type:    protocol.TypeBatch,
		Seq:     1,
		SentAt:  time.Now().UnixMilli(),
		Session: welcome.Session,
		Payload: batch,
	})
	env := decodeFrame(t, frames[0])
	var rejected protocol.Error
	if err := json.Unmarshal(env.Payload, &rejected); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if rejected.Code != protocol.CodeUnknownType {
		t.Fatalf("code = %s, want %s", rejected.Code, protocol.CodeUnknownType)
	}
}

func TestSecondHelloOnOpenConnectionRejected(t *testing.T) {
	h := newTestHub(t)
	welcome, _, perr := h.Hello(protocol.HelloPayload{Name: "twice"})
	if perr != nil {
		t.Fatalf("hello rejected: %v", perr)
	}
	frames, closeConn := h.HandleEnvelope(protocol.Envelope{
		Ver:     protocol.Version,
		Type:    protocol.TypeHello,
		Session: welcome.Session,
	})
	if !closeConn || len(frames) != 1 {
		t.Fatalf("second hello frames=%d close=%v, want fatal rejection", len(frames), closeConn)
	}
}
