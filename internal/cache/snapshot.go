// Package cache holds an in-process LRU of normalized dataset snapshots,
// keyed by snapshot ID. Repeated analytics requests against an unchanged
// dataset skip re-loading and re-normalizing; peer groups and analytics
// results are never cached here.
package cache

import (
	"github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/cms-analytics-server/internal/domain"
)

// SnapshotCache is safe for concurrent use; entries are immutable once
// stored.
type SnapshotCache struct {
	lru     *lru.Cache[string, []domain.ProviderRecord]
	logger  *logrus.Logger
	enabled bool
}

// NewSnapshotCache creates a cache holding up to entries snapshots. A
// disabled cache is a valid no-op instance.
func NewSnapshotCache(cfg domain.CacheConfig, logger *logrus.Logger) (*SnapshotCache, error) {
	c := &SnapshotCache{logger: logger, enabled: cfg.Enabled}
	if !cfg.Enabled {
		return c, nil
	}

	entries := cfg.SnapshotEntries
	if entries < 1 {
		entries = 1
	}
	l, err := lru.New[string, []domain.ProviderRecord](entries)
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

// Get returns the cached records for a snapshot ID.
func (c *SnapshotCache) Get(snapshotID string) ([]domain.ProviderRecord, bool) {
	if !c.enabled {
		return nil, false
	}
	records, ok := c.lru.Get(snapshotID)
	if ok {
		c.logger.WithField("snapshot_id", snapshotID).Debug("Snapshot cache hit")
	}
	return records, ok
}

// Put stores the records for a snapshot ID.
func (c *SnapshotCache) Put(snapshotID string, records []domain.ProviderRecord) {
	if !c.enabled {
		return
	}
	c.lru.Add(snapshotID, records)
}

// Len returns the number of cached snapshots.
func (c *SnapshotCache) Len() int {
	if !c.enabled {
		return 0
	}
	return c.lru.Len()
}
