package session

import "time"

// RateBucket counts accepted messages inside a fixed window. The zero value
// is ready to use.
type RateBucket struct {
	windowStart time.Time
	count       int
}

// Allow consumes one slot from the bucket, rolling the window forward when it
// has elapsed. It returns false once limit is exceeded within the window.
func (b *RateBucket) Allow(now time.Time, limit int, window time.Duration) bool {
	if b == nil || limit <= 0 {
		return true
	}
	if window <= 0 {
		window = time.Second
	}
	if b.windowStart.IsZero() || now.Sub(b.windowStart) >= window {
		b.windowStart = now
		b.count = 0
	}
	if b.count >= limit {
		return false
	}
	b.count++
	return true
}

// Remaining reports the slots left in the current window.
func (b *RateBucket) Remaining(now time.Time, limit int, window time.Duration) int {
	if b == nil || limit <= 0 {
		return 0
	}
	if b.windowStart.IsZero() || now.Sub(b.windowStart) >= window {
		return limit
	}
	remaining := limit - b.count
	if remaining < 0 {
		return 0
	}
	return remaining
}
