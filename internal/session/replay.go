package session

// ReplayWindow tracks the most recent sequence numbers accepted for a
// session. Older entries age out as newer sequences arrive, so an
// out-of-window replay is accepted again; the window is a dedupe buffer, not
// a permanent ledger.
type ReplayWindow struct {
	capacity int
	order    []uint64
	head     int
	count    int
	seen     map[uint64]struct{}
}

func NewReplayWindow(capacity int) *ReplayWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &ReplayWindow{
		capacity: capacity,
		order:    make([]uint64, capacity),
		seen:     make(map[uint64]struct{}, capacity),
	}
}

// Observe records a sequence number. It returns false when the sequence is
// already present in the window (a duplicate delivery).
func (w *ReplayWindow) Observe(seq uint64) bool {
	if w == nil {
		return true
	}
	if _, dup := w.seen[seq]; dup {
		return false
	}
	if w.count == w.capacity {
		oldest := w.order[w.head]
		delete(w.seen, oldest)
		w.order[w.head] = seq
		w.head = (w.head + 1) % w.capacity
	} else {
		idx := (w.head + w.count) % w.capacity
		w.order[idx] = seq
		w.count++
	}
	w.seen[seq] = struct{}{}
	return true
}

// Len reports how many sequences the window currently remembers.
func (w *ReplayWindow) Len() int {
	if w == nil {
		return 0
	}
	return w.count
}
