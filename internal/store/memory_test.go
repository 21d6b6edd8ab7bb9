package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initMemoryTestDB(t *testing.T) Store {
	return NewMemoryStore()
}

func cleanupMemoryTestDB(t *testing.T) {}

// TestMemoryStore runs all store tests against the in-memory store
func TestMemoryStore(t *testing.T) {
	RunStoreTests(t, initMemoryTestDB, cleanupMemoryTestDB)
}

func TestMemoryStore_ConcurrentConditionalWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	current := buildTestTerritory("race-1")
	require.NoError(t, s.Create(ctx, current))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for _, owner := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		wg.Add(1)
		go func(owner string) {
			defer wg.Done()
			ok, err := s.ConditionalWrite(ctx, claimed(current, owner, suiteNow), 0, nil)
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}(owner)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	got, err := s.Read(ctx, "race-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Create(ctx, buildTestTerritory("copy-1")))

	got, err := s.Read(ctx, "copy-1")
	require.NoError(t, err)
	got.Name = "mutated"
	got.OwnerID = strPtr("mallory")

	again, err := s.Read(ctx, "copy-1")
	require.NoError(t, err)
	assert.Equal(t, "Territory copy-1", again.Name)
	assert.Nil(t, again.OwnerID)
}
