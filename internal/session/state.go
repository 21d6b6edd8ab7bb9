package session

import (
	"time"

	"github.com/feral-file/territory-arbiter/internal/domain"
)

// TrustState is the mutable per-user session. It is only handed out under the
// owning user's lock through Tracker.Update.
type TrustState struct {
	UserID     string
	StartedAt  time.Time
	LastSeenAt time.Time
	TrustScore int
	Violations Violations

	// LastDeviceFingerprint is the fingerprint of the newest accepted report
	LastDeviceFingerprint string
	// ConsecutiveSpeedAnomalies counts back-to-back reports over the speed limit
	ConsecutiveSpeedAnomalies int

	reports []domain.LocationReport
	head    int
	size    int
}

func newTrustState(userID string, capacity int, now time.Time) *TrustState {
	return &TrustState{
		UserID:     userID,
		StartedAt:  now,
		LastSeenAt: now,
		TrustScore: domain.NEUTRAL_TRUST_SCORE,
		reports:    make([]domain.LocationReport, capacity),
	}
}

// Last returns the newest recorded report
func (s *TrustState) Last() (domain.LocationReport, bool) {
	if s.size == 0 {
		return domain.LocationReport{}, false
	}
	idx := (s.head + s.size - 1) % len(s.reports)
	return s.reports[idx], true
}

// Reports returns the recorded reports, oldest first
func (s *TrustState) Reports() []domain.LocationReport {
	out := make([]domain.LocationReport, 0, s.size)
	for i := 0; i < s.size; i++ {
		out = append(out, s.reports[(s.head+i)%len(s.reports)])
	}
	return out
}

// Len returns the number of recorded reports
func (s *TrustState) Len() int {
	return s.size
}

// IsStale reports whether report is not newer than the newest recorded one.
// Replays of the newest report are stale too.
func (s *TrustState) IsStale(report domain.LocationReport) bool {
	last, ok := s.Last()
	return ok && !report.ClientTimestamp.After(last.ClientTimestamp)
}

// IsReplay reports whether report repeats the newest recorded one. Receipt time is ignored.
func (s *TrustState) IsReplay(report domain.LocationReport) bool {
	last, ok := s.Last()
	return ok &&
		report.ClientTimestamp.Equal(last.ClientTimestamp) &&
		report.Location == last.Location &&
		report.ReportedAccuracyMeters == last.ReportedAccuracyMeters &&
		report.DeviceFingerprint() == last.DeviceFingerprint()
}

// Append records report, evicting the oldest one when full. Stale reports are dropped.
func (s *TrustState) Append(report domain.LocationReport) bool {
	if s.IsStale(report) {
		return false
	}

	if s.size < len(s.reports) {
		s.reports[(s.head+s.size)%len(s.reports)] = report
		s.size++
	} else {
		s.reports[s.head] = report
		s.head = (s.head + 1) % len(s.reports)
	}

	s.LastDeviceFingerprint = report.DeviceFingerprint()
	if report.ServerReceivedAt.After(s.LastSeenAt) {
		s.LastSeenAt = report.ServerReceivedAt
	}
	return true
}

// SetScore stores score clamped to the trust range
func (s *TrustState) SetScore(score int) {
	s.TrustScore = max(domain.MIN_TRUST_SCORE, min(domain.MAX_TRUST_SCORE, score))
}

func (s *TrustState) snapshot() Snapshot {
	return Snapshot{
		UserID:                s.UserID,
		StartedAt:             s.StartedAt,
		LastSeenAt:            s.LastSeenAt,
		TrustScore:            s.TrustScore,
		Violations:            s.Violations,
		LastDeviceFingerprint: s.LastDeviceFingerprint,
		Reports:               s.Reports(),
	}
}
