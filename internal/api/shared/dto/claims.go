package dto

import (
	"time"

	"github.com/feral-file/territory-arbiter/internal/domain"
)

// ClaimRequest is the body of POST /api/v1/claims
type ClaimRequest struct {
	TerritoryID string `json:"territory_id" binding:"required,max=128"`
	// UserID defaults to the JWT subject. Operator calls must set it.
	UserID          string    `json:"user_id" binding:"max=128"`
	DeviceID        string    `json:"device_id" binding:"required,max=256"`
	Lat             *float64  `json:"lat" binding:"required,gte=-90,lte=90"`
	Lon             *float64  `json:"lon" binding:"required,gte=-180,lte=180"`
	Accuracy        float64   `json:"accuracy" binding:"gte=0"`
	ClientTimestamp time.Time `json:"client_timestamp" binding:"required"`
	IdempotencyKey  string    `json:"idempotency_key" binding:"max=256"`
	AllianceID      *string   `json:"alliance_id,omitempty" binding:"omitempty,max=128"`
	// Privileged is honoured for API key callers only
	Privileged bool `json:"privileged"`
}

// ToAttempt builds the arbitration attempt of the request
func (r ClaimRequest) ToAttempt(userID string, privileged bool, receivedAt time.Time) domain.ClaimAttempt {
	return domain.ClaimAttempt{
		TerritoryID: r.TerritoryID,
		UserID:      userID,
		AllianceID:  r.AllianceID,
		Report: domain.LocationReport{
			UserID:                 userID,
			DeviceID:               r.DeviceID,
			Location:               domain.Location{Lat: *r.Lat, Lon: *r.Lon},
			ReportedAccuracyMeters: r.Accuracy,
			ClientTimestamp:        r.ClientTimestamp,
			ServerReceivedAt:       receivedAt,
		},
		IdempotencyKey: r.IdempotencyKey,
		Privileged:     privileged,
	}
}
