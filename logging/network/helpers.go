package network

import (
	"context"

	"cliffhop/server/logging"
)

const (
	// EventSessionOpened is emitted after a successful HELLO handshake.
	EventSessionOpened logging.EventType = "network.session_opened"
	// EventSessionClosed is emitted when a session ends for any reason.
	EventSessionClosed logging.EventType = "network.session_closed"
	// EventMessageRejected is emitted when envelope validation fails.
	EventMessageRejected logging.EventType = "network.message_rejected"
	// EventSlowClientDropped is emitted when a connection exceeds the outbound buffer threshold.
	EventSlowClientDropped logging.EventType = "network.slow_client_dropped"
)

// SessionPayload captures the lifetime bounds negotiated for a session.
type SessionPayload struct {
	TTLSeconds int    `json:"ttlSeconds,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

func SessionOpened(ctx context.Context, pub logging.Publisher, tick uint64, session logging.EntityRef, payload SessionPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSessionOpened,
		Tick:     tick,
		Actor:    session,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}

func SessionClosed(ctx context.Context, pub logging.Publisher, tick uint64, session logging.EntityRef, reason string) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSessionClosed,
		Tick:     tick,
		Actor:    session,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Payload:  SessionPayload{Reason: reason},
	})
}

// RejectPayload mirrors the structured error returned to the client.
type RejectPayload struct {
	Code     string `json:"code"`
	Sequence uint64 `json:"sequence,omitempty"`
}

func MessageRejected(ctx context.Context, pub logging.Publisher, tick uint64, session logging.EntityRef, payload RejectPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventMessageRejected,
		Tick:     tick,
		Actor:    session,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}

// BufferPayload records how far past the threshold a connection drifted.
type BufferPayload struct {
	BufferedBytes int `json:"bufferedBytes"`
	Threshold     int `json:"threshold"`
}

func SlowClientDropped(ctx context.Context, pub logging.Publisher, tick uint64, session logging.EntityRef, payload BufferPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSlowClientDropped,
		Tick:     tick,
		Actor:    session,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}
