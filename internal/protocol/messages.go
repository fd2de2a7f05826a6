package protocol

import (
	"encoding/json"
	"fmt"
)

const (
	// Version tracks the wire-protocol revision expected by clients.
	Version = 1

	// MaxBatchSize bounds the sub-messages a single batch envelope may carry.
	MaxBatchSize = 16
)

// Client message type identifiers.
const (
	TypeHello     = "hello"
	TypeInput     = "input"
	TypePong      = "pong"
	TypeBatch     = "batch"
	TypeGoodbye   = "goodbye"
	TypeStatusReq = "statusRequest"
)

// Server message type identifiers.
const (
	TypeWelcome    = "welcome"
	TypeState      = "state"
	TypeKeyframe   = "keyframe"
	TypeEvent      = "event"
	TypePing       = "ping"
	TypeError      = "error"
	TypeNotice     = "notice"
	TypeServerBye  = "serverGoodbye"
	TypeDiagnostic = "diagnostic"
)

// Envelope frames every message in both directions. Beyond HELLO, inbound
// envelopes must carry a live session id; Checksum is optional but verified
// when present.
type Envelope struct {
	Ver      int             `json:"ver"`
	Type     string          `json:"type"`
	Seq      uint64          `json:"seq,omitempty"`
	SentAt   int64           `json:"sentAt,omitempty"`
	Checksum uint32          `json:"checksum,omitempty"`
	Session  string          `json:"session,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// SubMessage is one entry of a batch payload. Sub-messages inherit the outer
// envelope's session and sequence bookkeeping.
type SubMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// BatchPayload carries an ordered list of sub-messages.
type BatchPayload struct {
	Messages []SubMessage `json:"messages"`
}

// HelloPayload opens the handshake. Token is optional and elevates the rate
// limit when it matches the configured verified token.
type HelloPayload struct {
	Name         string `json:"name,omitempty"`
	Token        string `json:"token,omitempty"`
	WantFeatures bool   `json:"wantFeatures,omitempty"`
}

// WelcomePayload answers a HELLO with the minted session and negotiated
// protocol surface.
type WelcomePayload struct {
	Session    string   `json:"session"`
	PlayerID   string   `json:"playerId"`
	Version    int      `json:"version"`
	Features   []string `json:"features,omitempty"`
	TTLSeconds int      `json:"ttlSeconds"`
	TickRate   int      `json:"tickRate"`
}

// InputAction enumerates the intent kinds a client may submit.
type InputAction string

const (
	ActionMove InputAction = "move"
	ActionJump InputAction = "jump"
)

// InputPayload carries one intent. Direction is meaningful for move only and
// must be -1, 0, or 1.
type InputPayload struct {
	Action    InputAction `json:"action"`
	Direction int         `json:"direction,omitempty"`
}

// PongPayload answers a server heartbeat probe.
type PongPayload struct {
	ProbeID    uint64 `json:"probeId"`
	ClientTime int64  `json:"clientTime,omitempty"`
}

// PingPayload is the server-issued heartbeat probe.
type PingPayload struct {
	ProbeID    uint64 `json:"probeId"`
	ServerTime int64  `json:"serverTime"`
}

// NoticePayload delivers advisory text, e.g. the idle warning before close.
type NoticePayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EventPayload broadcasts one-shot gameplay events (goal reached, game won,
// stage over, diagnostics).
type EventPayload struct {
	Name  string         `json:"name"`
	Actor string         `json:"actor,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// Decode parses an envelope from raw bytes without validating it; the session
// gate performs validation so rejects can carry structured errors.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return env, nil
}

// Encode frames an outbound payload, stamping version and checksum.
func Encode(msgType string, seq uint64, sentAt int64, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
		}
		raw = data
	}
	env := Envelope{
		Ver:      Version,
		Type:     msgType,
		Seq:      seq,
		SentAt:   sentAt,
		Payload:  raw,
		Checksum: PayloadChecksum(raw),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", msgType, err)
	}
	return data, nil
}

// DecodePayload unmarshals an envelope payload into the typed struct.
func DecodePayload[T any](env Envelope) (T, error) {
	var payload T
	if len(env.Payload) == 0 {
		return payload, fmt.Errorf("%s: empty payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return payload, fmt.Errorf("%s payload: %w", env.Type, err)
	}
	return payload, nil
}

// Features advertised in the WELCOME payload.
var Features = []string{"delta-state", "batch", "heartbeat", "checksum"}
