package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"cliffhop/server"
	"cliffhop/server/internal/protocol"
	"cliffhop/server/internal/sim"
	"cliffhop/server/internal/stage"
)

func testHub(t *testing.T) *server.Hub {
	t.Helper()
	doc := stage.Document{
		Name:   "lobby",
		Width:  960,
		Height: 720,
		Spawn:  stage.Point{X: 100, Y: 648},
		Goal:   stage.Point{X: 900, Y: 648},
		Platforms: []stage.PlatformDecl{
			{X: 480, Y: 672, Width: 960},
		},
	}
	world, err := sim.NewWorld([]stage.Document{doc}, sim.Deps{})
	if err != nil {
		t.Fatalf("NewWorld: %v", err)
	}
	cfg := server.DefaultConfig()
	cfg.SweepInterval = time.Hour
	return server.NewHub(world, cfg)
}

func dialTestServer(t *testing.T, hub *server.Hub) *websocket.Conn {
	t.Helper()
	handler := NewHandler(hub, HandlerConfig{})
	srv := httptest.NewServer(http.HandlerFunc(handler.Handle))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, env protocol.Envelope) {
	t.Helper()
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write envelope: %v", err)
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	env, err := protocol.Decode(payload)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return env
}

func helloAndWelcome(t *testing.T, conn *websocket.Conn, name string) protocol.WelcomePayload {
	t.Helper()
	payload, _ := json.Marshal(protocol.HelloPayload{Name: name})
	sendEnvelope(t, conn, protocol.Envelope{Ver: protocol.Version, Type: protocol.TypeHello, Payload: payload})
	env := readEnvelope(t, conn)
	if env.Type != protocol.TypeWelcome {
		t.Fatalf("reply type = %q, want %q", env.Type, protocol.TypeWelcome)
	}
	welcome, err := protocol.DecodePayload[protocol.WelcomePayload](env)
	if err != nil {
		t.Fatalf("decode welcome: %v", err)
	}
	return welcome
}

func TestHandshakeMintsSession(t *testing.T) {
	hub := testHub(t)
	conn := dialTestServer(t, hub)

	welcome := helloAndWelcome(t, conn, "ada")
	if welcome.Session == "" || welcome.PlayerID == "" {
		t.Fatalf("welcome missing identifiers: %+v", welcome)
	}
	if welcome.TickRate != sim.TickRate {
		t.Fatalf("tick rate = %d, want %d", welcome.TickRate, sim.TickRate)
	}
	if got := hub.Sessions().Count(); got != 1 {
		t.Fatalf("session count = %d, want 1", got)
	}
}

func TestFirstMessageMustBeHello(t *testing.T) {
	hub := testHub(t)
	conn := dialTestServer(t, hub)

	payload, _ := json.Marshal(protocol.InputPayload{Action: protocol.ActionJump})
	sendEnvelope(t, conn, protocol.Envelope{Ver: protocol.Version, Type: protocol.TypeInput, Payload: payload})

	env := readEnvelope(t, conn)
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
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("connection should be closed after rejected handshake")
	}
}

func TestMalformedFrameGetsErrorReply(t *testing.T) {
	hub := testHub(t)
	conn := dialTestServer(t, hub)
	helloAndWelcome(t, conn, "ada")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	env := readEnvelope(t, conn)
	if env.Type != protocol.TypeError {
		t.Fatalf("reply type = %q, want %q", env.Type, protocol.TypeError)
	}
	var perr protocol.Error
	if err := json.Unmarshal(env.Payload, &perr); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if perr.Code != protocol.CodeMalformed {
		t.Fatalf("code = %s, want %s", perr.Code, protocol.CodeMalformed)
	}
}

func TestGoodbyeClosesConnection(t *testing.T) {
	hub := testHub(t)
	conn := dialTestServer(t, hub)
	welcome := helloAndWelcome(t, conn, "leaver")

	sendEnvelope(t, conn, protocol.Envelope{
		Ver:     protocol.Version,
		Type:    protocol.TypeGoodbye,
		Seq:     1,
		SentAt:  time.Now().UnixMilli(),
		Session: welcome.Session,
	})
	env := readEnvelope(t, conn)
	if env.Type != protocol.TypeServerBye {
		t.Fatalf("reply type = %q, want %q", env.Type, protocol.TypeServerBye)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("connection should be closed after goodbye")
	}
	deadline := time.Now().Add(time.Second)
	for hub.Sessions().Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("session count = %d, want 0", hub.Sessions().Count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEnvelopeInheritsConnectionSession(t *testing.T) {
	hub := testHub(t)
	conn := dialTestServer(t, hub)
	helloAndWelcome(t, conn, "implicit")

	// No session field; the handler stamps the connection's session before
	// the gate validates the envelope.
	sendEnvelope(t, conn, protocol.Envelope{
		Ver:    protocol.Version,
		Type:   protocol.TypeStatusReq,
		Seq:    1,
		SentAt: time.Now().UnixMilli(),
	})
	env := readEnvelope(t, conn)
	if env.Type != protocol.TypeDiagnostic {
		t.Fatalf("reply type = %q, want %q", env.Type, protocol.TypeDiagnostic)
	}
}
