package ws

import (
	nethttp "net/http"
	"time"

	"github.com/gorilla/websocket"

	"cliffhop/server"
	"cliffhop/server/internal/protocol"
	"cliffhop/server/internal/telemetry"
)

const (
	defaultQueueDepth   = 64
	defaultHelloTimeout = 10 * time.Second
	defaultWriteTimeout = 5 * time.Second
)

// HandlerConfig tunes per-connection behaviour.
type HandlerConfig struct {
	Logger       telemetry.Logger
	QueueDepth   int
	HelloTimeout time.Duration
	WriteTimeout time.Duration
}

// Handler upgrades HTTP requests to websocket sessions. The first client
// frame must be a HELLO; everything after rides the validated envelope path.
type Handler struct {
	hub      *server.Hub
	cfg      HandlerConfig
	upgrader websocket.Upgrader
}

func NewHandler(hub *server.Hub, cfg HandlerConfig) *Handler {
	if cfg.HelloTimeout <= 0 {
		cfg.HelloTimeout = defaultHelloTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}
	return &Handler{hub: hub, cfg: cfg, upgrader: upgrader}
}

func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logf("upgrade failed: %v", err)
		return
	}

	sessionID, sub, ok := h.handshake(conn)
	if !ok {
		conn.Close()
		return
	}
	defer sub.Close()

	h.hub.Attach(sub)
	reason := h.readLoop(conn, sub, sessionID)
	h.hub.Disconnect(sessionID, reason)
}

// handshake performs the HELLO exchange on a fresh connection. It returns
// the opened session id and a running subscriber on success.
func (h *Handler) handshake(conn *websocket.Conn) (string, *Subscriber, bool) {
	conn.SetReadDeadline(time.Now().Add(h.cfg.HelloTimeout))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		return "", nil, false
	}
	conn.SetReadDeadline(time.Time{})

	env, err := protocol.Decode(payload)
	if err != nil {
		h.writeReject(conn, protocol.NewError(protocol.CodeMalformed, "%v", err))
		return "", nil, false
	}
	if env.Type != protocol.TypeHello {
		h.writeReject(conn, protocol.NewError(protocol.CodeAuthenticationFailed, "first message must be hello, got %q", env.Type))
		return "", nil, false
	}
	hello, err := protocol.DecodePayload[protocol.HelloPayload](env)
	if err != nil && len(env.Payload) > 0 {
		h.writeReject(conn, protocol.NewError(protocol.CodeMalformed, "%v", err))
		return "", nil, false
	}

	welcome, sess, perr := h.hub.Hello(hello)
	if perr != nil {
		h.writeReject(conn, perr)
		return "", nil, false
	}

	sub := newSubscriber(sess.ID, conn, h.cfg.QueueDepth, h.cfg.WriteTimeout, h.cfg.Logger)
	go sub.writeLoop()

	frame, err := h.hub.EncodeFrame(protocol.TypeWelcome, welcome)
	if err != nil {
		h.logf("encode welcome for %s: %v", sess.ID, err)
		h.hub.Disconnect(sess.ID, "handshake_failed")
		sub.Close()
		return "", nil, false
	}
	if err := sub.Deliver(frame); err != nil {
		h.hub.Disconnect(sess.ID, "handshake_failed")
		sub.Close()
		return "", nil, false
	}
	return sess.ID, sub, true
}

// readLoop pumps inbound frames through the hub until the connection drops
// or the hub asks for a close. It returns the disconnect reason.
func (h *Handler) readLoop(conn *websocket.Conn, sub *Subscriber, sessionID string) string {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return "read_error"
		}
		env, err := protocol.Decode(payload)
		if err != nil {
			frame, encErr := h.hub.EncodeFrame(protocol.TypeError, protocol.NewError(protocol.CodeMalformed, "%v", err))
			if encErr == nil {
				sub.Deliver(frame)
			}
			continue
		}
		if env.Session == "" {
			env.Session = sessionID
		}
		frames, closeConn := h.hub.HandleEnvelope(env)
		for _, frame := range frames {
			if err := sub.Deliver(frame); err != nil {
				return "write_backlog"
			}
		}
		if closeConn {
			sub.Flush(h.cfg.WriteTimeout)
			return "protocol_close"
		}
	}
}

// writeReject answers a failed handshake directly; no subscriber exists yet.
func (h *Handler) writeReject(conn *websocket.Conn, perr *protocol.Error) {
	frame, err := h.hub.EncodeFrame(protocol.TypeError, perr)
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
	conn.WriteMessage(websocket.TextMessage, frame)
}

func (h *Handler) logf(format string, args ...any) {
	if h.cfg.Logger != nil {
		h.cfg.Logger.Printf(format, args...)
	}
}
