package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirtbags/pcapdb/internal/metrics"
)

func TestReserveSlotRoundRobinsAcrossDisks(t *testing.T) {
	c := NewMemCatalog([]Disk{
		{UUID: "disk-a", Root: "/data/a"},
		{UUID: "disk-b", Root: "/data/b"},
	})

	now := time.Unix(1000, 0)
	first, err := c.ReserveSlot(context.Background(), now, now)
	require.NoError(t, err)
	second, err := c.ReserveSlot(context.Background(), now, now)
	require.NoError(t, err)
	third, err := c.ReserveSlot(context.Background(), now, now)
	require.NoError(t, err)

	assert.Equal(t, "disk-a", first.DiskUUID)
	assert.Equal(t, "disk-b", second.DiskUUID)
	assert.Equal(t, "disk-a", third.DiskUUID)
	assert.NotEqual(t, first.IndexID, second.IndexID)
}

func TestReserveSlotFailsWithNoDisks(t *testing.T) {
	c := NewMemCatalog(nil)
	_, err := c.ReserveSlot(context.Background(), time.Now(), time.Now())
	assert.Error(t, err)
}

func TestMarkIndexReadyAndSaveStats(t *testing.T) {
	c := NewMemCatalog([]Disk{{UUID: "disk-a", Root: "/data/a"}})
	ctx := context.Background()
	now := time.Unix(1000, 0)

	info, err := c.ReserveSlot(ctx, now, now)
	require.NoError(t, err)
	assert.False(t, c.IsReady(info.IndexID))

	stats := metrics.NewChainStats()
	stats.CapturedPkts = 10
	require.NoError(t, c.SaveStats(ctx, info, stats))
	require.NoError(t, c.MarkIndexReady(ctx, info))

	assert.True(t, c.IsReady(info.IndexID))
	got, ok := c.Stats(info.IndexID)
	require.True(t, ok)
	assert.EqualValues(t, 10, got.CapturedPkts)
}
