package territory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/territory-arbiter/internal/domain"
	"github.com/feral-file/territory-arbiter/internal/territory"
)

var now = time.Date(2026, 7, 4, 18, 30, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func newMachine() *territory.Machine {
	return territory.NewMachine(territory.Config{
		GracePeriod:  5 * time.Minute,
		AbandonAfter: 72 * time.Hour,
	})
}

func unclaimed() *domain.Territory {
	return &domain.Territory{ID: "t-1", Name: "Ferry Building", Version: 4}
}

func ownedBy(owner string, claimedAgo, contestedFor time.Duration) *domain.Territory {
	t := unclaimed()
	t.OwnerID = strPtr(owner)
	t.LastClaimedAt = timePtr(now.Add(-claimedAgo))
	t.ContestedUntil = timePtr(now.Add(contestedFor))
	return t
}

func TestMachine_StateOf(t *testing.T) {
	m := newMachine()

	tests := []struct {
		name      string
		territory *domain.Territory
		expected  territory.State
	}{
		{name: "no owner", territory: unclaimed(), expected: territory.StateUnclaimed},
		{name: "inside grace window", territory: ownedBy("alice", time.Minute, 4*time.Minute), expected: territory.StateContested},
		{name: "grace window ends exactly now", territory: ownedBy("alice", 5*time.Minute, 0), expected: territory.StateOwned},
		{name: "active owner", territory: ownedBy("alice", 24*time.Hour, -time.Hour), expected: territory.StateOwned},
		{name: "inactive owner", territory: ownedBy("alice", 72*time.Hour, -71*time.Hour), expected: territory.StateAbandoned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, m.StateOf(tt.territory, now))
		})
	}
}

func TestMachine_Claim(t *testing.T) {
	m := newMachine()

	tests := []struct {
		name      string
		territory *domain.Territory
		req       territory.Request
		allowed   bool
		to        territory.State
		reason    domain.ReasonCode
	}{
		{
			name:      "unclaimed enters grace window",
			territory: unclaimed(),
			req:       territory.Request{UserID: "bob"},
			allowed:   true,
			to:        territory.StateContested,
			reason:    domain.ReasonClaimed,
		},
		{
			name:      "owner refresh inside grace window",
			territory: ownedBy("alice", time.Minute, 4*time.Minute),
			req:       territory.Request{UserID: "alice"},
			allowed:   true,
			to:        territory.StateContested,
			reason:    domain.ReasonRefreshed,
		},
		{
			name:      "owner refresh after grace window",
			territory: ownedBy("alice", time.Hour, -time.Hour),
			req:       territory.Request{UserID: "alice"},
			allowed:   true,
			to:        territory.StateOwned,
			reason:    domain.ReasonRefreshed,
		},
		{
			name:      "other user locked out of grace window",
			territory: ownedBy("alice", time.Minute, 4*time.Minute),
			req:       territory.Request{UserID: "bob", CanReclaim: true},
			to:        territory.StateContested,
			reason:    domain.ReasonLocked,
		},
		{
			name:      "privileged reclaim inside grace window",
			territory: ownedBy("alice", time.Minute, 4*time.Minute),
			req:       territory.Request{UserID: "bob", CanReclaim: true, Privileged: true},
			allowed:   true,
			to:        territory.StateContested,
			reason:    domain.ReasonClaimed,
		},
		{
			name:      "privileged without reclaim trust",
			territory: ownedBy("alice", time.Minute, 4*time.Minute),
			req:       territory.Request{UserID: "bob", Privileged: true},
			to:        territory.StateContested,
			reason:    domain.ReasonOutOfState,
		},
		{
			name:      "owned needs reclaim trust",
			territory: ownedBy("alice", time.Hour, -time.Hour),
			req:       territory.Request{UserID: "bob"},
			to:        territory.StateOwned,
			reason:    domain.ReasonOutOfState,
		},
		{
			name:      "owned taken with reclaim trust",
			territory: ownedBy("alice", time.Hour, -time.Hour),
			req:       territory.Request{UserID: "bob", CanReclaim: true},
			allowed:   true,
			to:        territory.StateContested,
			reason:    domain.ReasonClaimed,
		},
		{
			name:      "abandoned is claimable at the claim bar",
			territory: ownedBy("alice", 100*time.Hour, -99*time.Hour),
			req:       territory.Request{UserID: "bob"},
			allowed:   true,
			to:        territory.StateContested,
			reason:    domain.ReasonClaimed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := m.Claim(tt.territory, tt.req, now)
			assert.Equal(t, tt.allowed, tr.Allowed)
			assert.Equal(t, tt.to, tr.To)
			assert.Equal(t, tt.reason, tr.Reason)
		})
	}
}

func TestMachine_ApplyClaim(t *testing.T) {
	m := newMachine()
	current := unclaimed()
	req := territory.Request{UserID: "bob", AllianceID: strPtr("north")}

	next, err := m.Apply(current, m.Claim(current, req, now), req, now)
	require.NoError(t, err)

	assert.Equal(t, int64(5), next.Version)
	assert.Equal(t, "bob", next.Owner())
	assert.Equal(t, "north", *next.AllianceID)
	assert.Equal(t, now, *next.LastClaimedAt)
	assert.Equal(t, now.Add(5*time.Minute), *next.ContestedUntil)
	assert.Equal(t, territory.StateContested, m.StateOf(next, now))
	assert.Equal(t, territory.StateOwned, m.StateOf(next, now.Add(5*time.Minute)))

	// Input untouched
	assert.Nil(t, current.OwnerID)
	assert.Equal(t, int64(4), current.Version)
}

func TestMachine_ApplyRefreshKeepsGraceWindow(t *testing.T) {
	m := newMachine()
	current := ownedBy("alice", time.Minute, 4*time.Minute)
	req := territory.Request{UserID: "alice"}

	next, err := m.Apply(current, m.Claim(current, req, now), req, now)
	require.NoError(t, err)

	assert.Equal(t, current.Version+1, next.Version)
	assert.Equal(t, now, *next.LastClaimedAt)
	assert.Equal(t, *current.ContestedUntil, *next.ContestedUntil)
}

func TestMachine_Abandon(t *testing.T) {
	m := newMachine()

	// Owner absent past the timeout: Abandoned, then released to Unclaimed
	stale := ownedBy("alice", 80*time.Hour, -79*time.Hour)
	stale.AllianceID = strPtr("north")
	tr := m.Abandon(stale, now)
	require.True(t, tr.Allowed)
	assert.Equal(t, territory.StateAbandoned, tr.From)
	assert.Equal(t, territory.StateUnclaimed, tr.To)

	next, err := m.Apply(stale, tr, territory.Request{}, now)
	require.NoError(t, err)
	assert.Nil(t, next.OwnerID)
	assert.Nil(t, next.AllianceID)
	assert.Nil(t, next.ContestedUntil)
	assert.Equal(t, stale.Version+1, next.Version)
	assert.Equal(t, territory.StateUnclaimed, m.StateOf(next, now))

	// The released territory is claimable by anyone clearing the claim bar
	claim := m.Claim(next, territory.Request{UserID: "bob"}, now)
	assert.True(t, claim.Allowed)

	// Active owners are not abandoned
	active := ownedBy("alice", time.Hour, -time.Hour)
	tr = m.Abandon(active, now)
	assert.False(t, tr.Allowed)
	assert.Equal(t, domain.ReasonOutOfState, tr.Reason)

	_, err = m.Apply(active, tr, territory.Request{}, now)
	assert.Error(t, err)
}
