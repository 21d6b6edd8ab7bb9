package domain

import "time"

// EventTypeOwnershipChanged is the event type of TerritoryOwnershipChanged
const EventTypeOwnershipChanged = "territory.ownership_changed"

// TerritoryOwnershipChanged is emitted after a committed ownership transition.
// NewOwner is empty when a territory collapses back to unclaimed.
type TerritoryOwnershipChanged struct {
	EventID     string     `json:"event_id"`
	TerritoryID string     `json:"territory_id"`
	OldOwner    string     `json:"old_owner,omitempty"`
	NewOwner    string     `json:"new_owner,omitempty"`
	Version     int64      `json:"version"`
	Reason      ReasonCode `json:"reason"`
	OccurredAt  time.Time  `json:"occurred_at"`
}
