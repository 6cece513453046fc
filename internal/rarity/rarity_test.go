package rarity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_CalibratingThenReady(t *testing.T) {
	now := time.Unix(1700000000, 0)
	clock := now
	c := newCensus(60, func() time.Time { return clock })

	assert.Equal(t, Calibrating, c.State())

	clock = now.Add(61 * time.Second)
	assert.Equal(t, Ready, c.State())
}

func TestRarityRank_UnseenSpeciesNotFound(t *testing.T) {
	c := New(0)
	_, found := c.RarityRank(999, 0, false, GlobalAreaName)
	assert.False(t, found)
}

func TestRarityRank_PendingBeforeRecalculate(t *testing.T) {
	c := New(0)
	c.AddSpawn("25", GlobalAreaName, time.Now().Add(time.Hour))

	rank, found := c.RarityRank(25, 0, false, GlobalAreaName)
	require.True(t, found)
	assert.GreaterOrEqual(t, rank, pendingRankOffset)
}

func TestRecalculate_RarestIsRankOne(t *testing.T) {
	c := New(0)
	c.AddSpawn("25", GlobalAreaName, time.Now().Add(time.Hour))
	c.AddSpawn("10", GlobalAreaName, time.Now().Add(time.Hour))
	c.AddSpawn("10", GlobalAreaName, time.Now().Add(time.Hour))

	c.Recalculate()

	rank25, found := c.RarityRank(25, 0, false, GlobalAreaName)
	require.True(t, found)
	rank10, found := c.RarityRank(10, 0, false, GlobalAreaName)
	require.True(t, found)

	assert.Equal(t, 1, rank25, "species with a single active spawn is rarer")
	assert.Equal(t, 2, rank10)
}

func TestRarityRank_FormFallback(t *testing.T) {
	c := New(0)
	c.AddSpawn("150", GlobalAreaName, time.Now().Add(time.Hour))
	c.Recalculate()

	// Asking for an unseen form of a species tracked without a form
	// falls back to the any-form key (§4.2 lookup order).
	rank, found := c.RarityRank(150, 5, true, GlobalAreaName)
	require.True(t, found)
	assert.Equal(t, 1, rank)
}

func TestCleanupExpired_DropsPastDespawns(t *testing.T) {
	c := New(0)
	now := time.Now()
	c.AddSpawn("25", GlobalAreaName, now.Add(-time.Minute))
	c.AddSpawn("25", GlobalAreaName, now.Add(time.Hour))

	c.CleanupExpired(now)

	c.Recalculate()
	rank, found := c.RarityRank(25, 0, false, GlobalAreaName)
	require.True(t, found)
	assert.Equal(t, 1, rank)
}

func TestAreaRanks_LimitTrimsLowestRanksFirst(t *testing.T) {
	c := New(0)
	for _, id := range []string{"1", "2", "3"} {
		c.AddSpawn(id, GlobalAreaName, time.Now().Add(time.Hour))
	}
	c.Recalculate()

	ranks := c.AreaRanks(GlobalAreaName, 1)
	assert.Len(t, ranks, 1)
}
