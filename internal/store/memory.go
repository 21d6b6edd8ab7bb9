package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/feral-file/territory-arbiter/internal/domain"
)

// memoryStore keeps territories in process. It backs local development and tests and
// honours the same conditional write contract as the PostgreSQL store.
type memoryStore struct {
	mu          sync.Mutex
	territories map[string]*domain.Territory
	journal     []OwnershipRecord
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() Store {
	return &memoryStore{
		territories: make(map[string]*domain.Territory),
	}
}

func (s *memoryStore) Read(_ context.Context, id string) (*domain.Territory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.territories[id]
	if !ok {
		return nil, domain.ErrTerritoryNotFound
	}
	return t.Clone(), nil
}

func (s *memoryStore) ConditionalWrite(_ context.Context, next *domain.Territory, expectedVersion int64, change *OwnershipChange) (bool, error) {
	if err := validateWrite(next, expectedVersion); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.territories[next.ID]
	if !ok || current.Version != expectedVersion {
		return false, nil
	}

	stored := next.Clone()
	// Identity fields are immutable after seeding
	stored.Name = current.Name
	stored.Center = current.Center
	stored.RadiusMeters = current.RadiusMeters
	stored.GeohashPrefix = current.GeohashPrefix
	s.territories[next.ID] = stored

	if change != nil {
		s.journal = append(s.journal, OwnershipRecord{
			Cursor:      int64(len(s.journal) + 1),
			TerritoryID: next.ID,
			EventID:     change.EventID,
			OldOwner:    cloneString(change.OldOwner),
			NewOwner:    cloneString(change.NewOwner),
			Version:     next.Version,
			Reason:      change.Reason,
			ChangedAt:   change.ChangedAt,
			Meta:        change.Meta,
		})
	}
	return true, nil
}

func (s *memoryStore) Create(_ context.Context, t *domain.Territory) error {
	if t == nil || t.ID == "" {
		return errInvalidTerritory
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.territories[t.ID]; ok {
		return domain.ErrTerritoryAlreadyExists
	}
	s.territories[t.ID] = t.Clone()
	return nil
}

func (s *memoryStore) List(_ context.Context, afterID string, limit int) ([]*domain.Territory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.territories))
	for id := range s.territories {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	territories := make([]*domain.Territory, 0, len(ids))
	for _, id := range ids {
		territories = append(territories, s.territories[id].Clone())
	}
	return territories, nil
}

func (s *memoryStore) ListInactive(_ context.Context, claimedBefore time.Time, limit int) ([]*domain.Territory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var territories []*domain.Territory
	for _, t := range s.territories {
		if t.OwnerID == nil {
			continue
		}
		if t.LastClaimedAt == nil || !t.LastClaimedAt.After(claimedBefore) {
			territories = append(territories, t.Clone())
		}
	}

	sort.Slice(territories, func(i, j int) bool {
		a, b := territories[i].LastClaimedAt, territories[j].LastClaimedAt
		switch {
		case a == nil && b == nil:
			return territories[i].ID < territories[j].ID
		case a == nil:
			return true
		case b == nil:
			return false
		case a.Equal(*b):
			return territories[i].ID < territories[j].ID
		}
		return a.Before(*b)
	})
	if limit > 0 && len(territories) > limit {
		territories = territories[:limit]
	}
	return territories, nil
}

func (s *memoryStore) ListOwnershipHistory(_ context.Context, territoryID string, limit int) ([]OwnershipRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []OwnershipRecord
	for i := len(s.journal) - 1; i >= 0; i-- {
		if s.journal[i].TerritoryID != territoryID {
			continue
		}
		records = append(records, s.journal[i])
		if limit > 0 && len(records) == limit {
			break
		}
	}
	return records, nil
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
