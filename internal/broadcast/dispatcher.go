package broadcast

import (
	"context"
	"errors"
	"sync"

	"cliffhop/server/internal/protocol"
	"cliffhop/server/internal/sim"
	"cliffhop/server/internal/telemetry"
	"cliffhop/server/logging"
	networklog "cliffhop/server/logging/network"
)

// ErrClientSaturated is returned by Deliver when the client's outbound buffer
// is over its threshold. The dispatcher detaches the client in response.
var ErrClientSaturated = errors.New("broadcast: client outbound buffer full")

// Client is one delivery target. Deliver must not block the tick loop: it
// either hands the frame to the connection's writer or fails fast.
type Client interface {
	SessionID() string
	Deliver(frame []byte) error
	BufferedBytes() int
}

// Config tunes the dispatcher.
type Config struct {
	KeyframeInterval int
	// BufferThreshold is the outbound backlog, in bytes, at which a client is
	// considered too slow to keep and is dropped.
	BufferThreshold int
}

// DefaultBufferThreshold matches one keyframe burst for a full world plus
// slack.
const DefaultBufferThreshold = 64 * 1024

// Dispatcher fans completed ticks out to attached clients. The frame is
// marshalled once per tick regardless of client count.
type Dispatcher struct {
	mu         sync.Mutex
	serializer *Serializer
	clients    map[string]Client
	seq        uint64
	threshold  int

	logger    telemetry.Logger
	metrics   telemetry.Metrics
	publisher logging.Publisher
	onDrop    func(sessionID, reason string)
}

// NewDispatcher builds a dispatcher. onDrop is invoked, outside the
// dispatcher lock, whenever a client is detached for falling behind; the hub
// uses it to close the session.
func NewDispatcher(cfg Config, logger telemetry.Logger, metrics telemetry.Metrics, publisher logging.Publisher, onDrop func(sessionID, reason string)) *Dispatcher {
	threshold := cfg.BufferThreshold
	if threshold <= 0 {
		threshold = DefaultBufferThreshold
	}
	return &Dispatcher{
		serializer: NewSerializer(cfg.KeyframeInterval),
		clients:    make(map[string]Client),
		threshold:  threshold,
		logger:     logger,
		metrics:    metrics,
		publisher:  publisher,
		onDrop:     onDrop,
	}
}

// Attach registers a client and forces the next payload to be a keyframe so
// the newcomer gets a complete picture.
func (d *Dispatcher) Attach(c Client) {
	if d == nil || c == nil {
		return
	}
	d.mu.Lock()
	d.clients[c.SessionID()] = c
	d.serializer.Reset()
	d.mu.Unlock()
}

// Detach removes a client without closing it.
func (d *Dispatcher) Detach(sessionID string) {
	if d == nil {
		return
	}
	d.mu.Lock()
	delete(d.clients, sessionID)
	d.mu.Unlock()
}

// ClientCount reports attached clients.
func (d *Dispatcher) ClientCount() int {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.clients)
}

// Send delivers a frame to a single attached client. It reports false when
// the client is unknown or its buffer rejected the frame.
func (d *Dispatcher) Send(sessionID string, frame []byte) bool {
	if d == nil {
		return false
	}
	d.mu.Lock()
	client, ok := d.clients[sessionID]
	d.mu.Unlock()
	if !ok {
		return false
	}
	return client.Deliver(frame) == nil
}

// BroadcastControl sends a pre-encoded frame to every attached client without
// touching the serializer. Used for diagnostics and shutdown notices.
func (d *Dispatcher) BroadcastControl(frame []byte) {
	if d == nil {
		return
	}
	d.mu.Lock()
	clients := make([]Client, 0, len(d.clients))
	for _, client := range d.clients {
		clients = append(clients, client)
	}
	d.mu.Unlock()
	for _, client := range clients {
		_ = client.Deliver(frame)
	}
}

// BroadcastStep serialises one completed tick and sends it to every attached
// client. Clients whose outbound buffers are saturated are dropped.
func (d *Dispatcher) BroadcastStep(result sim.LoopStepResult) {
	if d == nil {
		return
	}
	d.mu.Lock()
	payload := d.serializer.Build(result.Snapshot, result.Events)
	d.seq++
	seq := d.seq
	msgType := protocol.TypeState
	if payload.Keyframe {
		msgType = protocol.TypeKeyframe
	}
	frame, err := protocol.Encode(msgType, seq, result.Now.UnixMilli(), payload)
	if err != nil {
		d.mu.Unlock()
		if d.logger != nil {
			d.logger.Printf("tick %d state encode failed: %v", result.Tick, err)
		}
		return
	}
	type drop struct {
		id     string
		reason string
		buffer int
	}
	var drops []drop
	for id, client := range d.clients {
		if client.BufferedBytes() > d.threshold {
			drops = append(drops, drop{id: id, reason: "slow_client", buffer: client.BufferedBytes()})
			continue
		}
		if err := client.Deliver(frame); err != nil {
			reason := "deliver_failed"
			if errors.Is(err, ErrClientSaturated) {
				reason = "slow_client"
			}
			drops = append(drops, drop{id: id, reason: reason, buffer: client.BufferedBytes()})
		}
	}
	for _, dr := range drops {
		delete(d.clients, dr.id)
	}
	clientCount := len(d.clients)
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.Add(telemetry.KeyBroadcastBytes, uint64(len(frame)*clientCount))
		d.metrics.Add(telemetry.KeyBroadcastEntities, uint64(len(payload.Actors)))
	}
	for _, dr := range drops {
		if d.logger != nil {
			d.logger.Printf("dropping client session=%s reason=%s buffered=%d", dr.id, dr.reason, dr.buffer)
		}
		if dr.reason == "slow_client" {
			networklog.SlowClientDropped(context.Background(), d.publisher, result.Tick,
				logging.EntityRef{ID: dr.id, Kind: logging.EntityKindSession},
				networklog.BufferPayload{BufferedBytes: dr.buffer, Threshold: d.threshold})
		}
		if d.onDrop != nil {
			d.onDrop(dr.id, dr.reason)
		}
	}
}
