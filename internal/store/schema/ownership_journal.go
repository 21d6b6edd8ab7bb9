package schema

import (
	"time"

	"gorm.io/datatypes"
)

// OwnershipJournal represents the ownership_journal table - append-only audit log of ownership changes
type OwnershipJournal struct {
	// Cursor is an auto-incrementing sequence number for ordering
	Cursor int64 `gorm:"column:\"cursor\";primaryKey;autoIncrement"`
	// TerritoryID is the territory whose ownership changed
	TerritoryID string `gorm:"column:territory_id;not null;type:text;index"`
	// EventID is the id of the ownership event emitted for this change
	EventID  string  `gorm:"column:event_id;not null;type:text"`
	OldOwner *string `gorm:"column:old_owner;type:text"`
	NewOwner *string `gorm:"column:new_owner;type:text"`
	// Version is the territory version committed by the change
	Version int64 `gorm:"column:version;not null"`
	// Reason is the transition reason code (claimed, abandoned)
	Reason string `gorm:"column:reason;not null;type:text"`
	// ChangedAt is the time the change was committed
	ChangedAt time.Time `gorm:"column:changed_at;not null;default:now();type:timestamptz"`
	// Meta carries the claim context (trust score, privileged flag, alliance)
	Meta datatypes.JSON `gorm:"column:meta;type:jsonb"`
}

// TableName specifies the table name for the OwnershipJournal model
func (OwnershipJournal) TableName() string {
	return "ownership_journal"
}
