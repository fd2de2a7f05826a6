package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"cliffhop/server/internal/protocol"
	"cliffhop/server/logging"
)

// Config tunes session lifetimes and admission limits.
type Config struct {
	TTL            time.Duration
	IdleTimeout    time.Duration
	IdleWarning    time.Duration
	SkewTolerance  time.Duration
	ReplayCapacity int
	RateLimit      int
	RateWindow     time.Duration
	VerifiedToken  string
}

func DefaultConfig() Config {
	return Config{
		TTL:            10 * time.Minute,
		IdleTimeout:    60 * time.Second,
		IdleWarning:    45 * time.Second,
		SkewTolerance:  5 * time.Second,
		ReplayCapacity: 256,
		RateLimit:      30,
		RateWindow:     time.Second,
	}
}

// Session binds one connection to its replay window, rate bucket, and expiry.
type Session struct {
	ID         string
	PlayerID   string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastActive time.Time
	Verified   bool

	replay *ReplayWindow
	bucket RateBucket

	probeID      uint64
	probeSentAt  time.Time
	awaitingPong bool
	idleWarned   bool
}

// Manager owns the session table. All methods are safe for concurrent use;
// connection read goroutines and the tick loop both touch it.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	clock    logging.Clock
	sessions map[string]*Session
	byPlayer map[string]string
}

func NewManager(cfg Config, clock logging.Clock) *Manager {
	if clock == nil {
		clock = logging.SystemClock{}
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.ReplayCapacity <= 0 {
		cfg.ReplayCapacity = DefaultConfig().ReplayCapacity
	}
	if cfg.SkewTolerance <= 0 {
		cfg.SkewTolerance = DefaultConfig().SkewTolerance
	}
	return &Manager{
		cfg:      cfg,
		clock:    clock,
		sessions: make(map[string]*Session),
		byPlayer: make(map[string]string),
	}
}

// Open mints a session for a player. An existing session for the same player
// is replaced; the caller is responsible for closing its connection.
func (m *Manager) Open(playerID string, token string) *Session {
	now := m.clock.Now()
	s := &Session{
		ID:         uuid.NewString(),
		PlayerID:   playerID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.cfg.TTL),
		LastActive: now,
		Verified:   m.cfg.VerifiedToken != "" && token == m.cfg.VerifiedToken,
		replay:     NewReplayWindow(m.cfg.ReplayCapacity),
	}
	m.mu.Lock()
	if prevID, ok := m.byPlayer[playerID]; ok {
		delete(m.sessions, prevID)
	}
	m.sessions[s.ID] = s
	m.byPlayer[playerID] = s.ID
	m.mu.Unlock()
	return s
}

// Lookup returns the session for an id when it exists and has not expired.
func (m *Manager) Lookup(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	if m.clock.Now().After(s.ExpiresAt) {
		return nil, false
	}
	return s, true
}

// TTL reports the configured session time-to-live.
func (m *Manager) TTL() time.Duration {
	return m.cfg.TTL
}

// Count reports live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Validate gates an inbound envelope: live session, timestamp skew, checksum,
// duplicate sequence, and rate limit, in that order. A nil return means the
// message may proceed; validation never mutates the world.
func (m *Manager) Validate(env protocol.Envelope) (*Session, *protocol.Error) {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[env.Session]
	if !ok {
		if env.Session == "" {
			return nil, protocol.NewError(protocol.CodeAuthenticationFailed, "message requires a session; send hello first")
		}
		return nil, protocol.NewError(protocol.CodeAuthenticationFailed, "unknown session %q", env.Session)
	}
	if now.After(s.ExpiresAt) {
		delete(m.sessions, s.ID)
		delete(m.byPlayer, s.PlayerID)
		return nil, protocol.NewError(protocol.CodeSessionExpired, "session expired at %s", s.ExpiresAt.Format(time.RFC3339))
	}

	// A session message with no sequence or timestamp would bypass the replay
	// and skew gates entirely, so both fields are mandatory once a session is
	// bound.
	if env.Seq == 0 {
		return nil, protocol.NewError(protocol.CodeMalformed, "session message requires a positive seq")
	}
	if env.SentAt == 0 {
		return nil, protocol.NewError(protocol.CodeMalformed, "session message requires sentAt")
	}

	sent := time.UnixMilli(env.SentAt)
	if d := now.Sub(sent); d > m.cfg.SkewTolerance || d < -m.cfg.SkewTolerance {
		return nil, protocol.NewError(protocol.CodeTimestampSkew, "timestamp outside ±%s tolerance", m.cfg.SkewTolerance).
			WithContext("skewMillis", d.Milliseconds())
	}

	if !protocol.VerifyChecksum(env) {
		return nil, protocol.NewError(protocol.CodeChecksumMismatch, "payload checksum mismatch").
			WithContext("declared", env.Checksum)
	}

	// Rate limiting runs before the replay window so a rejected message does
	// not consume its sequence number; the client can resend it after backoff.
	if !s.Verified && !s.bucket.Allow(now, m.cfg.RateLimit, m.cfg.RateWindow) {
		return nil, protocol.NewError(protocol.CodeRateLimited, "rate limit of %d messages per %s exceeded", m.cfg.RateLimit, m.cfg.RateWindow)
	}

	if !s.replay.Observe(env.Seq) {
		return nil, protocol.NewError(protocol.CodeDuplicate, "sequence %d already processed", env.Seq).
			WithContext("seq", env.Seq)
	}

	// Any valid message extends the session and clears an idle warning.
	s.LastActive = now
	s.ExpiresAt = now.Add(m.cfg.TTL)
	s.idleWarned = false
	return s, nil
}

// Close removes a session. It returns the removed session so callers can
// unbind its player actor.
func (m *Manager) Close(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	delete(m.sessions, id)
	if m.byPlayer[s.PlayerID] == id {
		delete(m.byPlayer, s.PlayerID)
	}
	return s, true
}

// ProbeDue returns sessions whose heartbeat probe should be (re)sent, minting
// a new probe id for each. interval is the probe cadence.
func (m *Manager) ProbeDue(interval time.Duration) []*Session {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	due := make([]*Session, 0)
	for _, s := range m.sessions {
		if s.awaitingPong {
			continue
		}
		if s.probeSentAt.IsZero() || now.Sub(s.probeSentAt) >= interval {
			s.probeID++
			s.probeSentAt = now
			s.awaitingPong = true
			due = append(due, s)
		}
	}
	return due
}

// ProbeID reports the most recently issued probe id for a session.
func (m *Manager) ProbeID(id string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s.probeID
	}
	return 0
}

// RecordPong clears the outstanding probe when the id matches.
func (m *Manager) RecordPong(id string, probeID uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || !s.awaitingPong || probeID != s.probeID {
		return false
	}
	s.awaitingPong = false
	return true
}

// Sweep scans for heartbeat timeouts, idle sessions, and TTL expiry.
// probeTimeout is how long a probe may remain unanswered.
func (m *Manager) Sweep(probeTimeout time.Duration) (warn, closed []*Session) {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		switch {
		case now.After(s.ExpiresAt):
			closed = append(closed, s)
		case s.awaitingPong && now.Sub(s.probeSentAt) > probeTimeout:
			closed = append(closed, s)
		case m.cfg.IdleTimeout > 0 && now.Sub(s.LastActive) > m.cfg.IdleTimeout:
			closed = append(closed, s)
		case m.cfg.IdleWarning > 0 && !s.idleWarned && now.Sub(s.LastActive) > m.cfg.IdleWarning:
			s.idleWarned = true
			warn = append(warn, s)
		}
	}
	for _, s := range closed {
		delete(m.sessions, s.ID)
		if m.byPlayer[s.PlayerID] == s.ID {
			delete(m.byPlayer, s.PlayerID)
		}
	}
	return warn, closed
}

// All returns a copy of the live session list, for shutdown and diagnostics.
func (m *Manager) All() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	return all
}

// Summary is an immutable view of one session, safe to read after the
// manager's lock is released.
type Summary struct {
	ID         string
	PlayerID   string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastActive time.Time
	Verified   bool
}

// Summaries snapshots every live session under the lock. Introspection
// handlers use this instead of All so they never race the sweep and validate
// paths, which mutate expiry fields in place.
func (m *Manager) Summaries() []Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Summary, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, Summary{
			ID:         s.ID,
			PlayerID:   s.PlayerID,
			CreatedAt:  s.CreatedAt,
			ExpiresAt:  s.ExpiresAt,
			LastActive: s.LastActive,
			Verified:   s.Verified,
		})
	}
	return out
}
