package store

import (
	"context"
	"time"

	"github.com/feral-file/territory-arbiter/internal/domain"
)

// OwnershipChange describes an ownership-changing write, journaled with it atomically
type OwnershipChange struct {
	EventID   string
	OldOwner  *string
	NewOwner  *string
	Reason    domain.ReasonCode
	ChangedAt time.Time
	// Meta is free-form claim context stored alongside the journal entry
	Meta map[string]interface{}
}

// OwnershipRecord is a journaled ownership change
type OwnershipRecord struct {
	Cursor      int64                  `json:"cursor"`
	TerritoryID string                 `json:"territory_id"`
	EventID     string                 `json:"event_id"`
	OldOwner    *string                `json:"old_owner,omitempty"`
	NewOwner    *string                `json:"new_owner,omitempty"`
	Version     int64                  `json:"version"`
	Reason      domain.ReasonCode      `json:"reason"`
	ChangedAt   time.Time              `json:"changed_at"`
	Meta        map[string]interface{} `json:"meta,omitempty"`
}

// Store defines the versioned backing store of territories
//
//go:generate mockgen -source=store.go -destination=../mocks/store.go -package=mocks -mock_names=Store=MockStore
type Store interface {
	// Read returns the current territory document, or domain.ErrTerritoryNotFound
	Read(ctx context.Context, id string) (*domain.Territory, error)
	// ConditionalWrite replaces the territory with next only if the stored version still
	// equals expectedVersion. It returns false when the version moved. When change is
	// non-nil it is journaled in the same transaction.
	ConditionalWrite(ctx context.Context, next *domain.Territory, expectedVersion int64, change *OwnershipChange) (bool, error)
	// Create inserts a new territory, or returns domain.ErrTerritoryAlreadyExists
	Create(ctx context.Context, t *domain.Territory) error
	// List pages through territories ordered by id
	List(ctx context.Context, afterID string, limit int) ([]*domain.Territory, error)
	// ListInactive returns owned territories last claimed at or before claimedBefore, oldest first
	ListInactive(ctx context.Context, claimedBefore time.Time, limit int) ([]*domain.Territory, error)
	// ListOwnershipHistory returns the newest journal entries of a territory first
	ListOwnershipHistory(ctx context.Context, territoryID string, limit int) ([]OwnershipRecord, error)
}

func validateWrite(next *domain.Territory, expectedVersion int64) error {
	if next == nil || next.ID == "" {
		return errInvalidTerritory
	}
	if next.Version != expectedVersion+1 {
		return errVersionNotIncremented
	}
	return nil
}
