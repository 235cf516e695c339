// Package store persists ingested dataset snapshots: normalized provider
// records grouped under the dataset version they were fetched from. Only
// ingested data is stored; analytics responses and peer groups are never
// persisted.
package store

import (
	"context"
	"time"

	"github.com/cms-analytics-server/internal/domain"
)

// Snapshot describes one ingested batch of normalized records.
type Snapshot struct {
	ID             string    `json:"id"` // uuid assigned at ingest
	DatasetVersion string    `json:"dataset_version"`
	FetchedAt      time.Time `json:"fetched_at"`
	RecordCount    int       `json:"record_count"`
}

// Store is the persistence interface for dataset snapshots. SQLite backs
// local/CLI runs, PostgreSQL backs server deployments.
type Store interface {
	// SaveSnapshot persists the snapshot metadata and its records
	// atomically.
	SaveSnapshot(ctx context.Context, snap *Snapshot, records []domain.ProviderRecord) error

	// LoadSnapshot returns the records of the given snapshot, ordered by
	// provider ID, procedure code and period. Returns domain.ErrNotFound
	// for unknown IDs.
	LoadSnapshot(ctx context.Context, id string) ([]domain.ProviderRecord, error)

	// LatestSnapshot returns the most recently fetched snapshot, or
	// domain.ErrNotFound when the store is empty.
	LatestSnapshot(ctx context.Context) (*Snapshot, error)

	// ListSnapshots returns up to limit snapshots, newest first.
	ListSnapshots(ctx context.Context, limit int) ([]*Snapshot, error)

	// Close releases the underlying database handle.
	Close() error
}
