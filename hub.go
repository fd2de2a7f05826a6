package server

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"cliffhop/server/internal/broadcast"
	"cliffhop/server/internal/protocol"
	"cliffhop/server/internal/session"
	"cliffhop/server/internal/sim"
	"cliffhop/server/internal/telemetry"
	"cliffhop/server/logging"
	lifecyclelog "cliffhop/server/logging/lifecycle"
	networklog "cliffhop/server/logging/network"
)

// Config tunes hub orchestration.
type Config struct {
	TickRate        int
	CommandCapacity int
	PerActorLimit   int
	QueueWarnStep   int

	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	SweepInterval time.Duration

	KeyframeInterval int
	BufferThreshold  int

	Session session.Config
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		TickRate:         sim.TickRate,
		CommandCapacity:  1024,
		PerActorLimit:    8,
		QueueWarnStep:    256,
		ProbeInterval:    15 * time.Second,
		ProbeTimeout:     10 * time.Second,
		SweepInterval:    time.Second,
		KeyframeInterval: broadcast.DefaultKeyframeInterval,
		Session:          session.DefaultConfig(),
	}
}

// Hub wires the simulation loop, session table, and broadcast dispatcher
// together. Connection goroutines talk to the hub; only the tick goroutine
// talks to the world.
type Hub struct {
	cfg        Config
	loop       *sim.Loop
	sessions   *session.Manager
	dispatcher *broadcast.Dispatcher
	deps       sim.Deps

	outSeq     atomic.Uint64
	actorCount atomic.Int64
	lastResult atomic.Pointer[sim.LoopStepResult]
	faulted    atomic.Bool
	startedAt  time.Time
}

// NewHub builds a hub over a ready world.
func NewHub(world *sim.World, cfg Config) *Hub {
	deps := world.Deps()
	h := &Hub{
		cfg:      cfg,
		sessions: session.NewManager(cfg.Session, deps.Clock),
		deps:     deps,
	}
	h.dispatcher = broadcast.NewDispatcher(broadcast.Config{
		KeyframeInterval: cfg.KeyframeInterval,
		BufferThreshold:  cfg.BufferThreshold,
	}, deps.Logger, deps.Metrics, deps.Publisher, h.onClientDrop)
	h.loop = sim.NewLoop(world, sim.LoopConfig{
		TickRate:        cfg.TickRate,
		CommandCapacity: cfg.CommandCapacity,
		PerActorLimit:   cfg.PerActorLimit,
		WarningStep:     cfg.QueueWarnStep,
	}, sim.LoopHooks{
		AfterStep: h.afterStep,
		OnFault:   h.onFault,
	})
	return h
}

// Loop exposes the tick driver for the process runner.
func (h *Hub) Loop() *sim.Loop { return h.loop }

// Sessions exposes the session table for diagnostics handlers.
func (h *Hub) Sessions() *session.Manager { return h.sessions }

// Run drives the tick loop and the session sweeper until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.startedAt = h.now()
	stop := make(chan struct{})
	go h.loop.Run(stop)

	sweep := time.NewTicker(h.sweepInterval())
	defer sweep.Stop()
	for {
		select {
		case <-ctx.Done():
			close(stop)
			return
		case <-sweep.C:
			h.probeAndSweep()
		}
	}
}

// Shutdown notifies every client and closes all sessions.
func (h *Hub) Shutdown() {
	frame, err := h.encode(protocol.TypeServerBye, protocol.NoticePayload{
		Code:    "shutdown",
		Message: "server shutting down",
	})
	if err == nil {
		h.dispatcher.BroadcastControl(frame)
	}
	for _, s := range h.sessions.All() {
		h.closeSession(s.ID, "shutdown")
	}
}

// Hello performs the handshake. It mints a player identity, opens a session,
// and stages the join for the next tick.
func (h *Hub) Hello(payload protocol.HelloPayload) (protocol.WelcomePayload, *session.Session, *protocol.Error) {
	if h.actorCount.Load() >= sim.MaxActors {
		return protocol.WelcomePayload{}, nil, protocol.NewError(protocol.CodeActorLimit, "world is full")
	}
	playerID := mintPlayerID(payload.Name)
	sess := h.sessions.Open(playerID, payload.Token)
	if ok, reason := h.loop.Enqueue(sim.Command{
		Type:     sim.CommandJoin,
		ActorID:  playerID,
		IssuedAt: h.now(),
		Join:     &sim.JoinCommand{PlayerID: playerID},
	}); !ok {
		h.sessions.Close(sess.ID)
		return protocol.WelcomePayload{}, nil, protocol.NewError(protocol.CodeActorLimit, "join rejected: %s", reason)
	}
	networklog.SessionOpened(context.Background(), h.deps.Publisher, h.loop.Tick(),
		logging.EntityRef{ID: sess.ID, Kind: logging.EntityKindSession},
		networklog.SessionPayload{TTLSeconds: int(h.sessions.TTL().Seconds())})
	if h.deps.Metrics != nil {
		h.deps.Metrics.Store(telemetry.KeySessionsOpen, uint64(h.sessions.Count()))
	}
	welcome := protocol.WelcomePayload{
		Session:    sess.ID,
		PlayerID:   playerID,
		Version:    protocol.Version,
		Features:   protocol.Features,
		TTLSeconds: int(h.sessions.TTL().Seconds()),
		TickRate:   h.cfg.TickRate,
	}
	return welcome, sess, nil
}

// Attach registers a delivery target for an open session.
func (h *Hub) Attach(client broadcast.Client) {
	h.dispatcher.Attach(client)
}

// Disconnect tears a session down after its connection is gone.
func (h *Hub) Disconnect(sessionID, reason string) {
	h.dispatcher.Detach(sessionID)
	h.closeSession(sessionID, reason)
}

// HandleEnvelope validates and routes one inbound message. It returns frames
// to write back and whether the connection must close afterwards.
func (h *Hub) HandleEnvelope(env protocol.Envelope) (frames [][]byte, closeConn bool) {
	if env.Ver != 0 && env.Ver != protocol.Version {
		return h.rejectFrames(env, protocol.NewError(protocol.CodeUnsupportedVersion, "protocol version %d unsupported, want %d", env.Ver, protocol.Version))
	}
	if env.Type == protocol.TypeHello {
		// A second HELLO on a live connection is a protocol violation.
		return h.rejectFrames(env, protocol.NewError(protocol.CodeAuthenticationFailed, "session already established"))
	}
	sess, perr := h.sessions.Validate(env)
	if perr != nil {
		return h.rejectFrames(env, perr)
	}
	switch env.Type {
	case protocol.TypeInput:
		return h.handleInput(env, sess)
	case protocol.TypeBatch:
		return h.handleBatch(env, sess)
	case protocol.TypePong:
		payload, err := protocol.DecodePayload[protocol.PongPayload](env)
		if err != nil {
			return h.rejectFrames(env, protocol.NewError(protocol.CodeMalformed, "%v", err))
		}
		h.sessions.RecordPong(sess.ID, payload.ProbeID)
		return nil, false
	case protocol.TypeGoodbye:
		frame, err := h.encode(protocol.TypeServerBye, protocol.NoticePayload{Code: "goodbye", Message: "bye"})
		h.Disconnect(sess.ID, "goodbye")
		if err != nil {
			return nil, true
		}
		return [][]byte{frame}, true
	case protocol.TypeStatusReq:
		frame, err := h.encode(protocol.TypeDiagnostic, h.Diagnostics())
		if err != nil {
			return nil, false
		}
		return [][]byte{frame}, false
	default:
		return h.rejectFrames(env, protocol.NewError(protocol.CodeUnknownType, "unknown message type %q", env.Type))
	}
}

func (h *Hub) handleInput(env protocol.Envelope, sess *session.Session) ([][]byte, bool) {
	payload, err := protocol.DecodePayload[protocol.InputPayload](env)
	if err != nil {
		return h.rejectFrames(env, protocol.NewError(protocol.CodeMalformed, "%v", err))
	}
	cmd, perr := h.inputCommand(sess, payload)
	if perr != nil {
		return h.rejectFrames(env, perr)
	}
	if ok, reason := h.loop.Enqueue(cmd); !ok {
		frame, encErr := h.encode(protocol.TypeNotice, protocol.NoticePayload{
			Code:    "command_dropped",
			Message: fmt.Sprintf("input dropped: %s", reason),
		})
		if encErr != nil {
			return nil, false
		}
		return [][]byte{frame}, false
	}
	return nil, false
}

// handleBatch validates every sub-message before enqueueing any, so a batch
// either lands whole or not at all.
func (h *Hub) handleBatch(env protocol.Envelope, sess *session.Session) ([][]byte, bool) {
	payload, err := protocol.DecodePayload[protocol.BatchPayload](env)
	if err != nil {
		return h.rejectFrames(env, protocol.NewError(protocol.CodeMalformed, "%v", err))
	}
	if len(payload.Messages) > protocol.MaxBatchSize {
		return h.rejectFrames(env, protocol.NewError(protocol.CodeBatchTooLarge, "batch of %d exceeds limit %d", len(payload.Messages), protocol.MaxBatchSize))
	}
	commands := make([]sim.Command, 0, len(payload.Messages))
	pongs := make([]protocol.PongPayload, 0)
	for i, msg := range payload.Messages {
		sub := protocol.Envelope{Type: msg.Type, Payload: msg.Payload}
		switch msg.Type {
		case protocol.TypeInput:
			input, err := protocol.DecodePayload[protocol.InputPayload](sub)
			if err != nil {
				return h.rejectFrames(env, protocol.NewError(protocol.CodeMalformed, "batch entry %d: %v", i, err))
			}
			cmd, perr := h.inputCommand(sess, input)
			if perr != nil {
				return h.rejectFrames(env, perr)
			}
			commands = append(commands, cmd)
		case protocol.TypePong:
			pong, err := protocol.DecodePayload[protocol.PongPayload](sub)
			if err != nil {
				return h.rejectFrames(env, protocol.NewError(protocol.CodeMalformed, "batch entry %d: %v", i, err))
			}
			pongs = append(pongs, pong)
		default:
			return h.rejectFrames(env, protocol.NewError(protocol.CodeUnknownType, "batch entry %d: type %q not allowed in batch", i, msg.Type))
		}
	}
	for _, pong := range pongs {
		h.sessions.RecordPong(sess.ID, pong.ProbeID)
	}
	for _, cmd := range commands {
		if ok, reason := h.loop.Enqueue(cmd); !ok {
			frame, encErr := h.encode(protocol.TypeNotice, protocol.NoticePayload{
				Code:    "command_dropped",
				Message: fmt.Sprintf("batch input dropped: %s", reason),
			})
			if encErr != nil {
				return nil, false
			}
			return [][]byte{frame}, false
		}
	}
	return nil, false
}

func (h *Hub) inputCommand(sess *session.Session, payload protocol.InputPayload) (sim.Command, *protocol.Error) {
	var action sim.InputAction
	switch payload.Action {
	case protocol.ActionMove:
		action = sim.InputMove
		if payload.Direction < -1 || payload.Direction > 1 {
			return sim.Command{}, protocol.NewError(protocol.CodeMalformed, "direction %d out of range", payload.Direction)
		}
	case protocol.ActionJump:
		action = sim.InputJump
	default:
		return sim.Command{}, protocol.NewError(protocol.CodeMalformed, "unknown input action %q", payload.Action)
	}
	return sim.Command{
		Type:       sim.CommandInput,
		ActorID:    sess.PlayerID,
		OriginTick: h.loop.Tick(),
		IssuedAt:   h.now(),
		Input:      &sim.InputCommand{Action: action, Direction: payload.Direction},
	}, nil
}

// Diagnostics summarises the live process for statusRequest and the HTTP
// surface.
func (h *Hub) Diagnostics() DiagnosticsPayload {
	d := DiagnosticsPayload{
		Tick:     h.loop.Tick(),
		Paused:   h.loop.Paused(),
		Faulted:  h.faulted.Load(),
		Sessions: h.sessions.Count(),
		Clients:  h.dispatcher.ClientCount(),
		Pending:  h.loop.Pending(),
		UptimeMS: h.now().Sub(h.startedAt).Milliseconds(),
	}
	if result := h.lastResult.Load(); result != nil {
		d.Stage = result.Snapshot.Stage
		d.Actors = len(result.Snapshot.Actors)
		d.GameWon = result.Snapshot.GameWon
	}
	return d
}

// LastSnapshot returns the most recent completed-tick snapshot, if any.
func (h *Hub) LastSnapshot() (sim.Snapshot, bool) {
	result := h.lastResult.Load()
	if result == nil {
		return sim.Snapshot{}, false
	}
	return result.Snapshot, true
}

// DiagnosticsPayload is the wire form of Diagnostics.
type DiagnosticsPayload struct {
	Tick     uint64 `json:"tick"`
	Stage    string `json:"stage,omitempty"`
	Paused   bool   `json:"paused"`
	Faulted  bool   `json:"faulted,omitempty"`
	GameWon  bool   `json:"gameWon,omitempty"`
	Actors   int    `json:"actors"`
	Sessions int    `json:"sessions"`
	Clients  int    `json:"clients"`
	Pending  int    `json:"pending"`
	UptimeMS int64  `json:"uptimeMs"`
}

func (h *Hub) afterStep(result sim.LoopStepResult) {
	h.lastResult.Store(&result)
	h.actorCount.Store(int64(len(result.Snapshot.Actors)))
	h.dispatcher.BroadcastStep(result)
}

// onFault runs after the loop paused itself on an escaped panic. Clients get
// a diagnostic so they can show a "simulation halted" state instead of
// timing out.
func (h *Hub) onFault(tick uint64, recovered any) {
	h.faulted.Store(true)
	lifecyclelog.SimulationPaused(context.Background(), h.deps.Publisher, tick, fmt.Sprint(recovered))
	frame, err := h.encode(protocol.TypeDiagnostic, h.Diagnostics())
	if err != nil {
		return
	}
	h.dispatcher.BroadcastControl(frame)
}

func (h *Hub) onClientDrop(sessionID, reason string) {
	h.closeSession(sessionID, reason)
}

func (h *Hub) closeSession(sessionID, reason string) {
	s, ok := h.sessions.Close(sessionID)
	if !ok {
		return
	}
	h.loop.Enqueue(sim.Command{
		Type:     sim.CommandLeave,
		ActorID:  s.PlayerID,
		IssuedAt: h.now(),
		Leave:    &sim.LeaveCommand{PlayerID: s.PlayerID},
	})
	networklog.SessionClosed(context.Background(), h.deps.Publisher, h.loop.Tick(),
		logging.EntityRef{ID: sessionID, Kind: logging.EntityKindSession}, reason)
	if h.deps.Metrics != nil {
		h.deps.Metrics.Store(telemetry.KeySessionsOpen, uint64(h.sessions.Count()))
	}
}

// probeAndSweep sends due heartbeat probes and enforces idle and probe
// timeouts.
func (h *Hub) probeAndSweep() {
	for _, s := range h.sessions.ProbeDue(h.cfg.ProbeInterval) {
		frame, err := h.encode(protocol.TypePing, protocol.PingPayload{
			ProbeID:    h.sessions.ProbeID(s.ID),
			ServerTime: h.now().UnixMilli(),
		})
		if err != nil {
			continue
		}
		h.dispatcher.Send(s.ID, frame)
	}
	warn, closed := h.sessions.Sweep(h.cfg.ProbeTimeout)
	for _, s := range warn {
		frame, err := h.encode(protocol.TypeNotice, protocol.NoticePayload{
			Code:    "idle_warning",
			Message: "session will close soon without activity",
		})
		if err != nil {
			continue
		}
		h.dispatcher.Send(s.ID, frame)
	}
	for _, s := range closed {
		frame, err := h.encode(protocol.TypeServerBye, protocol.NoticePayload{
			Code:    "timeout",
			Message: "session closed for inactivity",
		})
		if err == nil {
			h.dispatcher.Send(s.ID, frame)
		}
		h.dispatcher.Detach(s.ID)
		// Sweep already removed the session; stage the leave directly.
		h.loop.Enqueue(sim.Command{
			Type:     sim.CommandLeave,
			ActorID:  s.PlayerID,
			IssuedAt: h.now(),
			Leave:    &sim.LeaveCommand{PlayerID: s.PlayerID},
		})
		networklog.SessionClosed(context.Background(), h.deps.Publisher, h.loop.Tick(),
			logging.EntityRef{ID: s.ID, Kind: logging.EntityKindSession}, "timeout")
	}
	if h.deps.Metrics != nil {
		h.deps.Metrics.Store(telemetry.KeySessionsOpen, uint64(h.sessions.Count()))
	}
}

// rejectFrames builds the structured error reply and records the rejection.
func (h *Hub) rejectFrames(env protocol.Envelope, perr *protocol.Error) ([][]byte, bool) {
	if env.Seq != 0 {
		perr = perr.WithCorrelation(fmt.Sprintf("seq-%d", env.Seq))
	}
	if h.deps.Metrics != nil {
		h.deps.Metrics.Add(telemetry.KeyMessagesRejected, 1)
	}
	networklog.MessageRejected(context.Background(), h.deps.Publisher, h.loop.Tick(),
		logging.EntityRef{ID: env.Session, Kind: logging.EntityKindSession},
		networklog.RejectPayload{Code: string(perr.Code), Sequence: env.Seq})
	frame, err := h.encode(protocol.TypeError, perr)
	if err != nil {
		return nil, perr.Fatal()
	}
	return [][]byte{frame}, perr.Fatal()
}

// EncodeFrame frames an outbound payload with the hub's sequence counter.
// The websocket handler uses it for handshake replies.
func (h *Hub) EncodeFrame(msgType string, payload any) ([]byte, error) {
	return h.encode(msgType, payload)
}

func (h *Hub) encode(msgType string, payload any) ([]byte, error) {
	return protocol.Encode(msgType, h.outSeq.Add(1), h.now().UnixMilli(), payload)
}

func (h *Hub) now() time.Time {
	if h.deps.Clock != nil {
		return h.deps.Clock.Now()
	}
	return time.Now()
}

func (h *Hub) sweepInterval() time.Duration {
	if h.cfg.SweepInterval > 0 {
		return h.cfg.SweepInterval
	}
	return time.Second
}

func mintPlayerID(name string) string {
	suffix := strings.Split(uuid.NewString(), "-")[0]
	name = strings.TrimSpace(name)
	if name == "" {
		return "guest-" + suffix
	}
	cleaned := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			cleaned = append(cleaned, r)
		}
	}
	if len(cleaned) == 0 {
		return "guest-" + suffix
	}
	if len(cleaned) > 24 {
		cleaned = cleaned[:24]
	}
	return string(cleaned) + "-" + suffix
}
