package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/territory-arbiter/internal/domain"
)

// StoreTestSuite provides the interface for running store tests against different implementations
type StoreTestSuite struct {
	// InitDB should be called before each test to initialize the database
	InitDB func(t *testing.T) Store
	// CleanupDB should be called after each test to clean up the database
	CleanupDB func(t *testing.T)
}

var suiteNow = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

// =============================================================================
// Test Data Builders
// =============================================================================

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

// buildTestTerritory creates an unclaimed territory at version 0
func buildTestTerritory(id string) *domain.Territory {
	return &domain.Territory{
		ID:            id,
		Name:          "Territory " + id,
		Center:        domain.Location{Lat: 45.4642, Lon: 9.19},
		RadiusMeters:  75,
		GeohashPrefix: "u0nd9h",
		Level:         1,
	}
}

// claimed returns the next version of t owned by owner
func claimed(t *domain.Territory, owner string, at time.Time) *domain.Territory {
	next := t.Clone()
	next.OwnerID = strPtr(owner)
	next.Version = t.Version + 1
	next.LastClaimedAt = timePtr(at)
	next.ContestedUntil = timePtr(at.Add(5 * time.Minute))
	return next
}

func mustCreate(t *testing.T, s Store, territory *domain.Territory) {
	t.Helper()
	require.NoError(t, s.Create(context.Background(), territory))
}

// =============================================================================
// Test: Create / Read
// =============================================================================

func testCreateAndRead(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("created territory is readable", func(t *testing.T) {
		mustCreate(t, s, buildTestTerritory("create-1"))

		got, err := s.Read(ctx, "create-1")
		require.NoError(t, err)
		assert.Equal(t, "Territory create-1", got.Name)
		assert.Equal(t, 45.4642, got.Center.Lat)
		assert.Equal(t, 75.0, got.RadiusMeters)
		assert.Equal(t, "u0nd9h", got.GeohashPrefix)
		assert.Equal(t, int64(0), got.Version)
		assert.Nil(t, got.OwnerID)
	})

	t.Run("duplicate id is rejected", func(t *testing.T) {
		mustCreate(t, s, buildTestTerritory("create-2"))
		err := s.Create(ctx, buildTestTerritory("create-2"))
		assert.ErrorIs(t, err, domain.ErrTerritoryAlreadyExists)
	})

	t.Run("missing territory", func(t *testing.T) {
		_, err := s.Read(ctx, "does-not-exist")
		assert.ErrorIs(t, err, domain.ErrTerritoryNotFound)
	})

	t.Run("empty id is invalid", func(t *testing.T) {
		assert.Error(t, s.Create(ctx, &domain.Territory{}))
	})
}

// =============================================================================
// Test: ConditionalWrite
// =============================================================================

func testConditionalWrite(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("matching version commits and journals", func(t *testing.T) {
		current := buildTestTerritory("cas-1")
		mustCreate(t, s, current)

		next := claimed(current, "alice", suiteNow)
		next.AllianceID = strPtr("north")
		ok, err := s.ConditionalWrite(ctx, next, 0, &OwnershipChange{
			EventID:   "evt-1",
			NewOwner:  strPtr("alice"),
			Reason:    domain.ReasonClaimed,
			ChangedAt: suiteNow,
			Meta:      map[string]interface{}{"trust_score": float64(80)},
		})
		require.NoError(t, err)
		require.True(t, ok)

		got, err := s.Read(ctx, "cas-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Version)
		assert.Equal(t, "alice", got.Owner())
		assert.Equal(t, "north", *got.AllianceID)
		require.NotNil(t, got.LastClaimedAt)
		assert.True(t, suiteNow.Equal(*got.LastClaimedAt))
		require.NotNil(t, got.ContestedUntil)
		assert.True(t, suiteNow.Add(5*time.Minute).Equal(*got.ContestedUntil))

		history, err := s.ListOwnershipHistory(ctx, "cas-1", 10)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, "evt-1", history[0].EventID)
		assert.Nil(t, history[0].OldOwner)
		assert.Equal(t, "alice", *history[0].NewOwner)
		assert.Equal(t, int64(1), history[0].Version)
		assert.Equal(t, domain.ReasonClaimed, history[0].Reason)
		assert.Equal(t, float64(80), history[0].Meta["trust_score"])
	})

	t.Run("stale version is refused without side effects", func(t *testing.T) {
		current := buildTestTerritory("cas-2")
		mustCreate(t, s, current)

		first := claimed(current, "alice", suiteNow)
		ok, err := s.ConditionalWrite(ctx, first, 0, &OwnershipChange{EventID: "evt-a", NewOwner: strPtr("alice"), Reason: domain.ReasonClaimed, ChangedAt: suiteNow})
		require.NoError(t, err)
		require.True(t, ok)

		// bob read version 0 before alice committed
		second := claimed(current, "bob", suiteNow)
		ok, err = s.ConditionalWrite(ctx, second, 0, &OwnershipChange{EventID: "evt-b", NewOwner: strPtr("bob"), Reason: domain.ReasonClaimed, ChangedAt: suiteNow})
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := s.Read(ctx, "cas-2")
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Owner())
		assert.Equal(t, int64(1), got.Version)

		history, err := s.ListOwnershipHistory(ctx, "cas-2", 10)
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})

	t.Run("write without change is not journaled", func(t *testing.T) {
		current := buildTestTerritory("cas-3")
		mustCreate(t, s, current)

		ok, err := s.ConditionalWrite(ctx, claimed(current, "alice", suiteNow), 0, nil)
		require.NoError(t, err)
		require.True(t, ok)

		history, err := s.ListOwnershipHistory(ctx, "cas-3", 10)
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("version must increase by one", func(t *testing.T) {
		current := buildTestTerritory("cas-4")
		mustCreate(t, s, current)

		next := current.Clone()
		_, err := s.ConditionalWrite(ctx, next, 0, nil)
		assert.Error(t, err)

		next.Version = 2
		_, err = s.ConditionalWrite(ctx, next, 0, nil)
		assert.Error(t, err)
	})

	t.Run("missing territory is not written", func(t *testing.T) {
		ok, err := s.ConditionalWrite(ctx, claimed(buildTestTerritory("cas-missing"), "alice", suiteNow), 0, nil)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("release clears the owner", func(t *testing.T) {
		current := buildTestTerritory("cas-5")
		mustCreate(t, s, current)

		owned := claimed(current, "alice", suiteNow)
		owned.AllianceID = strPtr("north")
		ok, err := s.ConditionalWrite(ctx, owned, 0, nil)
		require.NoError(t, err)
		require.True(t, ok)

		released := owned.Clone()
		released.Version = 2
		released.OwnerID = nil
		released.AllianceID = nil
		released.ContestedUntil = nil
		ok, err = s.ConditionalWrite(ctx, released, 1, &OwnershipChange{
			EventID:   "evt-release",
			OldOwner:  strPtr("alice"),
			Reason:    domain.ReasonAbandoned,
			ChangedAt: suiteNow.Add(time.Hour),
		})
		require.NoError(t, err)
		require.True(t, ok)

		got, err := s.Read(ctx, "cas-5")
		require.NoError(t, err)
		assert.Nil(t, got.OwnerID)
		assert.Nil(t, got.AllianceID)
		assert.Nil(t, got.ContestedUntil)
		assert.Equal(t, int64(2), got.Version)
	})
}

// =============================================================================
// Test: List
// =============================================================================

func testList(t *testing.T, s Store) {
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		mustCreate(t, s, buildTestTerritory(fmt.Sprintf("list-%d", i)))
	}

	page, err := s.List(ctx, "list-", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "list-0", page[0].ID)
	assert.Equal(t, "list-1", page[1].ID)

	page, err = s.List(ctx, "list-1", 10)
	require.NoError(t, err)
	var ids []string
	for _, territory := range page {
		ids = append(ids, territory.ID)
	}
	assert.Subset(t, ids, []string{"list-2", "list-3", "list-4"})
	assert.NotContains(t, ids, "list-1")
}

// =============================================================================
// Test: ListInactive
// =============================================================================

func testListInactive(t *testing.T, s Store) {
	ctx := context.Background()

	claim := func(id, owner string, at time.Time) {
		current := buildTestTerritory(id)
		mustCreate(t, s, current)
		ok, err := s.ConditionalWrite(ctx, claimed(current, owner, at), 0, nil)
		require.NoError(t, err)
		require.True(t, ok)
	}

	mustCreate(t, s, buildTestTerritory("inactive-unclaimed"))
	claim("inactive-old", "alice", suiteNow.Add(-10*24*time.Hour))
	claim("inactive-older", "bob", suiteNow.Add(-20*24*time.Hour))
	claim("inactive-edge", "carol", suiteNow.Add(-7*24*time.Hour))
	claim("inactive-recent", "dave", suiteNow.Add(-time.Hour))

	cutoff := suiteNow.Add(-7 * 24 * time.Hour)
	territories, err := s.ListInactive(ctx, cutoff, 100)
	require.NoError(t, err)

	var ids []string
	for _, territory := range territories {
		ids = append(ids, territory.ID)
	}
	assert.Equal(t, []string{"inactive-older", "inactive-old", "inactive-edge"}, ids)

	territories, err = s.ListInactive(ctx, cutoff, 1)
	require.NoError(t, err)
	require.Len(t, territories, 1)
	assert.Equal(t, "inactive-older", territories[0].ID)
}

// =============================================================================
// Test: ListOwnershipHistory
// =============================================================================

func testListOwnershipHistory(t *testing.T, s Store) {
	ctx := context.Background()

	current := buildTestTerritory("history-1")
	mustCreate(t, s, current)

	owners := []string{"alice", "bob", "carol"}
	var previous *string
	for i, owner := range owners {
		next := claimed(current, owner, suiteNow.Add(time.Duration(i)*time.Hour))
		ok, err := s.ConditionalWrite(ctx, next, current.Version, &OwnershipChange{
			EventID:   fmt.Sprintf("evt-%d", i),
			OldOwner:  previous,
			NewOwner:  strPtr(owner),
			Reason:    domain.ReasonClaimed,
			ChangedAt: suiteNow.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
		require.True(t, ok)
		current = next
		previous = strPtr(owner)
	}

	history, err := s.ListOwnershipHistory(ctx, "history-1", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "carol", *history[0].NewOwner)
	assert.Equal(t, "bob", *history[0].OldOwner)
	assert.Equal(t, int64(3), history[0].Version)
	assert.Equal(t, "bob", *history[1].NewOwner)
	assert.Greater(t, history[0].Cursor, history[1].Cursor)

	empty, err := s.ListOwnershipHistory(ctx, "history-none", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// RunStoreTests runs all store tests with the given suite
func RunStoreTests(t *testing.T, initDB func(t *testing.T) Store, cleanupDB func(t *testing.T)) {
	suite := StoreTestSuite{InitDB: initDB, CleanupDB: cleanupDB}

	tests := []struct {
		name string
		fn   func(t *testing.T, s Store)
	}{
		{name: "CreateAndRead", fn: testCreateAndRead},
		{name: "ConditionalWrite", fn: testConditionalWrite},
		{name: "List", fn: testList},
		{name: "ListInactive", fn: testListInactive},
		{name: "ListOwnershipHistory", fn: testListOwnershipHistory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := suite.InitDB(t)
			defer suite.CleanupDB(t)
			tt.fn(t, s)
		})
	}
}
