package schema

import "time"

// Territory represents the territories table - the versioned ownership document of a claimable place
type Territory struct {
	// ID is the stable territory identifier assigned at seeding time
	ID string `gorm:"column:id;primaryKey;type:text"`
	// Name is the display name
	Name string `gorm:"column:name;not null;type:text"`
	// Lat and Lon are the WGS84 center of the geofence
	Lat float64 `gorm:"column:lat;not null"`
	Lon float64 `gorm:"column:lon;not null"`
	// RadiusMeters is the geofence radius around the center
	RadiusMeters float64 `gorm:"column:radius_meters;not null"`
	// GeohashPrefix is the precomputed geohash cell of the center
	GeohashPrefix string `gorm:"column:geohash_prefix;not null;type:text;index"`
	// OwnerID is the committed owner (nil when unclaimed)
	OwnerID *string `gorm:"column:owner_id;type:text"`
	// AllianceID is the owner's alliance at claim time
	AllianceID *string `gorm:"column:alliance_id;type:text"`
	Level      int     `gorm:"column:level;not null;default:1"`
	// Version increases by one on every committed mutation and guards conditional writes
	Version int64 `gorm:"column:version;not null;default:0"`
	// LastClaimedAt is the time of the last claim or owner refresh
	LastClaimedAt *time.Time `gorm:"column:last_claimed_at;type:timestamptz;index"`
	// ContestedUntil is the end of the post-claim grace window
	ContestedUntil *time.Time `gorm:"column:contested_until;type:timestamptz"`
	CreatedAt      time.Time  `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;not null;default:now()"`
}

// TableName specifies the table name for the Territory model
func (Territory) TableName() string {
	return "territories"
}
