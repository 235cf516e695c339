package cache

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cms-analytics-server/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testRecords(providerID string) []domain.ProviderRecord {
	return []domain.ProviderRecord{{
		ProviderID:    providerID,
		RegionCode:    "CA",
		ProcedureCode: "99213",
		Period:        domain.Period{Year: 2022, Quarter: 1},
		CostCents:     12550,
		QualityScore:  80,
	}}
}

func TestSnapshotCache_PutAndGet(t *testing.T) {
	c, err := NewSnapshotCache(domain.CacheConfig{Enabled: true, SnapshotEntries: 4}, testLogger())
	require.NoError(t, err)

	_, ok := c.Get("snap-1")
	assert.False(t, ok)

	records := testRecords("P1")
	c.Put("snap-1", records)

	got, ok := c.Get("snap-1")
	require.True(t, ok)
	assert.Equal(t, records, got)
	assert.Equal(t, 1, c.Len())
}

func TestSnapshotCache_EvictsOldest(t *testing.T) {
	c, err := NewSnapshotCache(domain.CacheConfig{Enabled: true, SnapshotEntries: 2}, testLogger())
	require.NoError(t, err)

	c.Put("snap-1", testRecords("P1"))
	c.Put("snap-2", testRecords("P2"))
	c.Put("snap-3", testRecords("P3"))

	_, ok := c.Get("snap-1")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok = c.Get("snap-3")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestSnapshotCache_Disabled(t *testing.T) {
	c, err := NewSnapshotCache(domain.CacheConfig{Enabled: false}, testLogger())
	require.NoError(t, err)

	c.Put("snap-1", testRecords("P1"))
	_, ok := c.Get("snap-1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestSnapshotCache_MinimumSize(t *testing.T) {
	c, err := NewSnapshotCache(domain.CacheConfig{Enabled: true, SnapshotEntries: 0}, testLogger())
	require.NoError(t, err)

	c.Put("snap-1", testRecords("P1"))
	_, ok := c.Get("snap-1")
	assert.True(t, ok)
}
