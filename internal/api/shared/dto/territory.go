package dto

import (
	"time"

	"github.com/feral-file/territory-arbiter/internal/domain"
	"github.com/feral-file/territory-arbiter/internal/geo"
	"github.com/feral-file/territory-arbiter/internal/store"
	"github.com/feral-file/territory-arbiter/internal/territory"
)

// TerritoryResponse is a territory document with its derived lifecycle state
type TerritoryResponse struct {
	*domain.Territory
	State territory.State `json:"state"`
}

// NearbyTerritory is a territory found by a proximity query
type NearbyTerritory struct {
	TerritoryResponse
	DistanceMeters float64 `json:"distance_meters"`
}

// NearbyResponse is the body of GET /api/v1/territories/nearby
type NearbyResponse struct {
	Territories []NearbyTerritory `json:"territories"`
}

// HistoryResponse is the body of GET /api/v1/territories/:id/history
type HistoryResponse struct {
	TerritoryID string                  `json:"territory_id"`
	Entries     []store.OwnershipRecord `json:"entries"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status               string `json:"status"`
	Service              string `json:"service"`
	IndexedTerritories   int    `json:"indexed_territories"`
	WebsocketSubscribers int    `json:"websocket_subscribers"`
}

// NewTerritoryResponse derives the state of t at now
func NewTerritoryResponse(t *domain.Territory, machine *territory.Machine, now time.Time) TerritoryResponse {
	return TerritoryResponse{
		Territory: t,
		State:     machine.StateOf(t, now),
	}
}

// NewNearbyResponse maps index hits, keeping their distance order
func NewNearbyResponse(hits []geo.Hit, machine *territory.Machine, now time.Time) NearbyResponse {
	territories := make([]NearbyTerritory, 0, len(hits))
	for _, hit := range hits {
		territories = append(territories, NearbyTerritory{
			TerritoryResponse: NewTerritoryResponse(hit.Territory, machine, now),
			DistanceMeters:    hit.DistanceMeters,
		})
	}
	return NearbyResponse{Territories: territories}
}
