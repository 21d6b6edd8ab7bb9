package session

import (
	"sync"
	"time"

	"github.com/feral-file/territory-arbiter/internal/domain"
)

const (
	DEFAULT_CAPACITY = 20
	DEFAULT_TTL      = 30 * time.Minute
)

// Config holds session tracking configuration
type Config struct {
	// Capacity is the number of reports kept per user
	Capacity int
	// TTL is the inactivity period after which a fresh session starts
	TTL time.Duration
}

// Violations counts flagged reports per heuristic within a session
type Violations struct {
	Speed          int `json:"speed"`
	Teleport       int `json:"teleport"`
	DeviceMismatch int `json:"device_mismatch"`
	ClockSkew      int `json:"clock_skew"`
}

// Total returns the number of flagged violations
func (v Violations) Total() int {
	return v.Speed + v.Teleport + v.DeviceMismatch + v.ClockSkew
}

// Snapshot is an immutable copy of a session's trust state
type Snapshot struct {
	UserID                string                  `json:"user_id"`
	StartedAt             time.Time               `json:"started_at"`
	LastSeenAt            time.Time               `json:"last_seen_at"`
	TrustScore            int                     `json:"trust_score"`
	Violations            Violations              `json:"violations"`
	LastDeviceFingerprint string                  `json:"last_device_fingerprint"`
	Reports               []domain.LocationReport `json:"reports"`
}

// Tracker maintains the sliding window of recent reports per user
//
//go:generate mockgen -source=tracker.go -destination=../mocks/session_tracker.go -package=mocks -mock_names=Tracker=MockSessionTracker
type Tracker interface {
	// Record appends a report to its user's session. Reports older than the newest
	// recorded one are ignored and recorded=false is returned.
	Record(report domain.LocationReport) (snapshot Snapshot, recorded bool)
	// Update runs fn with exclusive access to the user's session, starting a fresh
	// session first when the previous one has been idle longer than the TTL
	Update(userID string, now time.Time, fn func(s *TrustState) error) (Snapshot, error)
	// Get returns the live session of a user, if any
	Get(userID string, now time.Time) (Snapshot, bool)
	// ExpireIdle evicts sessions idle longer than the TTL and returns how many were removed
	ExpireIdle(now time.Time) int
	// Len returns the number of tracked sessions
	Len() int
}

type entry struct {
	mu      sync.Mutex
	state   *TrustState
	removed bool
}

type tracker struct {
	config Config

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewTracker creates an in-memory session tracker
func NewTracker(cfg Config) Tracker {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DEFAULT_CAPACITY
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DEFAULT_TTL
	}
	return &tracker{
		config:   cfg,
		sessions: make(map[string]*entry),
	}
}

// Record appends report to the user's session
func (t *tracker) Record(report domain.LocationReport) (Snapshot, bool) {
	var recorded bool
	snapshot, _ := t.Update(report.UserID, report.ServerReceivedAt, func(s *TrustState) error {
		recorded = s.Append(report)
		return nil
	})
	return snapshot, recorded
}

// Update gives fn exclusive access to the session of userID
func (t *tracker) Update(userID string, now time.Time, fn func(s *TrustState) error) (Snapshot, error) {
	for {
		e := t.entryFor(userID, now)

		e.mu.Lock()
		if e.removed {
			// Evicted between lookup and lock, take the replacement
			e.mu.Unlock()
			continue
		}
		if t.expired(e.state, now) {
			e.state = newTrustState(userID, t.config.Capacity, now)
		}

		err := fn(e.state)
		snapshot := e.state.snapshot()
		e.mu.Unlock()

		return snapshot, err
	}
}

// Get returns the live session of a user
func (t *tracker) Get(userID string, now time.Time) (Snapshot, bool) {
	t.mu.Lock()
	e, ok := t.sessions[userID]
	t.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed || t.expired(e.state, now) {
		return Snapshot{}, false
	}
	return e.state.snapshot(), true
}

// ExpireIdle evicts idle sessions
func (t *tracker) ExpireIdle(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for userID, e := range t.sessions {
		e.mu.Lock()
		if t.expired(e.state, now) {
			e.removed = true
			delete(t.sessions, userID)
			removed++
		}
		e.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked sessions
func (t *tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

func (t *tracker) entryFor(userID string, now time.Time) *entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.sessions[userID]
	if !ok {
		e = &entry{state: newTrustState(userID, t.config.Capacity, now)}
		t.sessions[userID] = e
	}
	return e
}

func (t *tracker) expired(s *TrustState, now time.Time) bool {
	return now.Sub(s.LastSeenAt) > t.config.TTL
}
