package sim

import (
	"sync"

	"cliffhop/server/internal/telemetry"
)

// CommandBuffer is the staging ring between connection goroutines and the
// tick. Producers push concurrently; the tick goroutine drains the whole
// batch at once, so every tick observes commands in arrival order.
type CommandBuffer struct {
	mu      sync.Mutex
	ring    []Command
	start   int
	length  int
	metrics telemetry.Metrics
}

// NewCommandBuffer builds a ring holding at most capacity commands. Occupancy
// and overflow land in the shared telemetry counters when metrics is non-nil.
func NewCommandBuffer(capacity int, metrics telemetry.Metrics) *CommandBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &CommandBuffer{
		ring:    make([]Command, capacity),
		metrics: metrics,
	}
}

// Capacity reports the fixed size of the ring.
func (b *CommandBuffer) Capacity() int {
	if b == nil {
		return 0
	}
	return len(b.ring)
}

// Push stages one command for the next tick. A full ring rejects the command
// and counts the overflow so the hub can surface backpressure to the client.
func (b *CommandBuffer) Push(cmd Command) bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.length == len(b.ring) {
		if b.metrics != nil {
			b.metrics.Add(telemetry.KeyCommandOverflow, 1)
		}
		return false
	}
	b.ring[(b.start+b.length)%len(b.ring)] = cmd
	b.length++
	if b.metrics != nil {
		b.metrics.Store(telemetry.KeyPendingCommands, uint64(b.length))
	}
	return true
}

// Drain hands back every staged command in FIFO order and empties the ring.
// Drained slots are zeroed so payload pointers do not outlive their tick.
func (b *CommandBuffer) Drain() []Command {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.length == 0 {
		return nil
	}
	batch := make([]Command, 0, b.length)
	for i := 0; i < b.length; i++ {
		idx := (b.start + i) % len(b.ring)
		batch = append(batch, b.ring[idx])
		b.ring[idx] = Command{}
	}
	b.start = 0
	b.length = 0
	if b.metrics != nil {
		b.metrics.Store(telemetry.KeyPendingCommands, 0)
	}
	return batch
}

// Len reports how many commands are currently staged.
func (b *CommandBuffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.length
}
