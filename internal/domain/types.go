package domain

import (
	"strings"
	"time"
)

// Location is a WGS84 coordinate in decimal degrees
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the coordinate lies inside the WGS84 range
func (l Location) Valid() bool {
	return l.Lat >= -90 && l.Lat <= 90 && l.Lon >= -180 && l.Lon <= 180
}

// Territory is a claimable place in the world. It is created once by seeding and
// afterwards mutated only through committed arbiter writes.
type Territory struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Center        Location   `json:"center"`
	RadiusMeters  float64    `json:"radius_meters"`
	GeohashPrefix string     `json:"geohash_prefix"`
	OwnerID       *string    `json:"owner_id,omitempty"`
	AllianceID    *string    `json:"alliance_id,omitempty"`
	Level         int        `json:"level"`
	Version       int64      `json:"version"`
	LastClaimedAt *time.Time `json:"last_claimed_at,omitempty"`
	// ContestedUntil locks the territory against non-privileged reclaims while in the future
	ContestedUntil *time.Time `json:"contested_until,omitempty"`
}

// IsOwnedBy reports whether userID is the committed owner
func (t *Territory) IsOwnedBy(userID string) bool {
	return t.OwnerID != nil && *t.OwnerID == userID
}

// Owner returns the owner id or an empty string when unclaimed
func (t *Territory) Owner() string {
	if t.OwnerID == nil {
		return ""
	}
	return *t.OwnerID
}

// Clone returns a deep copy so callers can mutate without touching shared state
func (t *Territory) Clone() *Territory {
	if t == nil {
		return nil
	}
	c := *t
	c.OwnerID = cloneString(t.OwnerID)
	c.AllianceID = cloneString(t.AllianceID)
	c.LastClaimedAt = cloneTime(t.LastClaimedAt)
	c.ContestedUntil = cloneTime(t.ContestedUntil)
	return &c
}

// LocationReport is a single self-reported position from a client device
type LocationReport struct {
	UserID                 string    `json:"user_id"`
	DeviceID               string    `json:"device_id"`
	Location               Location  `json:"location"`
	ReportedAccuracyMeters float64   `json:"reported_accuracy_meters"`
	ClientTimestamp        time.Time `json:"client_timestamp"`
	ServerReceivedAt       time.Time `json:"server_received_at"`
}

// DeviceFingerprint returns the normalized device family used for mismatch detection
func (r LocationReport) DeviceFingerprint() string {
	return strings.ToLower(strings.TrimSpace(r.DeviceID))
}

// ClaimAttempt is the transient value object for one arbitration call
type ClaimAttempt struct {
	TerritoryID    string
	UserID         string
	AllianceID     *string
	Report         LocationReport
	IdempotencyKey string
	// Privileged attempts bypass the contested-window lock
	Privileged bool
}

// ReasonCode is the outcome of a claim attempt as exposed to callers
type ReasonCode string

const (
	ReasonClaimed          ReasonCode = "claimed"
	ReasonRefreshed        ReasonCode = "refreshed"
	ReasonAbandoned        ReasonCode = "abandoned"
	ReasonOutOfRange       ReasonCode = "out_of_range"
	ReasonTrustRejected    ReasonCode = "trust_rejected"
	ReasonLocked           ReasonCode = "locked"
	ReasonConflict         ReasonCode = "conflict"
	ReasonOutOfState       ReasonCode = "out_of_state"
	ReasonNotFound         ReasonCode = "not_found"
	ReasonStoreUnavailable ReasonCode = "store_unavailable"
)

// Retryable reports whether the client may resubmit the same request unchanged
func (r ReasonCode) Retryable() bool {
	return r == ReasonConflict || r == ReasonStoreUnavailable
}

// ClaimResult is returned for every claim attempt
type ClaimResult struct {
	Success          bool       `json:"success"`
	OwnerID          string     `json:"owner_id,omitempty"`
	TerritoryVersion int64      `json:"territory_version"`
	TrustScore       int        `json:"trust_score"`
	Reason           ReasonCode `json:"reason_code"`
}

// Err maps an unsuccessful result to its sentinel error
func (r *ClaimResult) Err() error {
	if r == nil || r.Success {
		return nil
	}
	switch r.Reason {
	case ReasonOutOfRange:
		return ErrOutOfRange
	case ReasonTrustRejected:
		return ErrTrustRejected
	case ReasonLocked:
		return ErrLocked
	case ReasonConflict:
		return ErrConflict
	case ReasonOutOfState:
		return ErrOutOfState
	case ReasonNotFound:
		return ErrTerritoryNotFound
	case ReasonStoreUnavailable:
		return ErrStoreUnavailable
	}
	return nil
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
