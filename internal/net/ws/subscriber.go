package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"cliffhop/server/internal/broadcast"
	"cliffhop/server/internal/telemetry"
)

// Subscriber adapts one websocket connection to the broadcast dispatcher.
// Deliver never blocks: frames queue onto a bounded channel that a dedicated
// writer goroutine drains, so one stalled socket cannot hold up the tick.
type Subscriber struct {
	sessionID string
	conn      *websocket.Conn
	outbound  chan []byte
	buffered  atomic.Int64

	writeTimeout time.Duration
	logger       telemetry.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

func newSubscriber(sessionID string, conn *websocket.Conn, queueDepth int, writeTimeout time.Duration, logger telemetry.Logger) *Subscriber {
	if queueDepth <= 0 {
		queueDepth = defaultQueueDepth
	}
	return &Subscriber{
		sessionID:    sessionID,
		conn:         conn,
		outbound:     make(chan []byte, queueDepth),
		writeTimeout: writeTimeout,
		logger:       logger,
		closed:       make(chan struct{}),
	}
}

// SessionID identifies the session this subscriber serves.
func (s *Subscriber) SessionID() string { return s.sessionID }

// Deliver queues a frame for the writer goroutine. A full queue means the
// client is not keeping up with the tick stream.
func (s *Subscriber) Deliver(frame []byte) error {
	select {
	case <-s.closed:
		return broadcast.ErrClientSaturated
	default:
	}
	select {
	case s.outbound <- frame:
		s.buffered.Add(int64(len(frame)))
		return nil
	default:
		return broadcast.ErrClientSaturated
	}
}

// BufferedBytes reports bytes queued but not yet written to the socket.
func (s *Subscriber) BufferedBytes() int {
	return int(s.buffered.Load())
}

// Flush waits for the writer to drain queued frames, up to timeout. Used
// before an orderly close so farewell frames reach the client.
func (s *Subscriber) Flush(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for s.buffered.Load() > 0 && time.Now().Before(deadline) {
		select {
		case <-s.closed:
			return
		case <-time.After(time.Millisecond):
		}
	}
}

// Close releases the writer goroutine and the underlying connection. Safe to
// call multiple times.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.conn != nil {
			s.conn.Close()
		}
	})
}

// writeLoop drains the outbound queue onto the socket until the subscriber
// closes or a write fails.
func (s *Subscriber) writeLoop() {
	for {
		select {
		case <-s.closed:
			return
		case frame := <-s.outbound:
			if s.writeTimeout > 0 {
				s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			}
			err := s.conn.WriteMessage(websocket.TextMessage, frame)
			s.buffered.Add(-int64(len(frame)))
			if err != nil {
				if s.logger != nil {
					s.logger.Printf("ws write to %s failed: %v", s.sessionID, err)
				}
				s.Close()
				return
			}
		}
	}
}

var _ broadcast.Client = (*Subscriber)(nil)
