package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/cms-analytics-server/internal/domain"
)

// PostgresStore implements Store using PostgreSQL. It expects the schema to
// already exist (created via migrations; see internal/database).
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an existing database handle.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// SaveSnapshot persists the snapshot and its records in one transaction.
func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap *Snapshot, records []domain.ProviderRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	snap.RecordCount = len(records)
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO snapshots (id, dataset_version, fetched_at, record_count) VALUES ($1, $2, $3, $4)",
		snap.ID, snap.DatasetVersion, snap.FetchedAt, snap.RecordCount,
	); err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO provider_records
		(snapshot_id, provider_id, provider_name, region_code, procedure_code,
		 period_year, period_quarter, cost_cents, volume, quality_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`)
	if err != nil {
		return fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		r := &records[i]
		if _, err := stmt.ExecContext(ctx,
			snap.ID, r.ProviderID, r.ProviderName, r.RegionCode, r.ProcedureCode,
			r.Period.Year, r.Period.Quarter, r.CostCents, r.Volume, r.QualityScore,
		); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", r.RecordKey(), err)
		}
	}

	return tx.Commit()
}

// LoadSnapshot returns the records of one snapshot.
func (s *PostgresStore) LoadSnapshot(ctx context.Context, id string) ([]domain.ProviderRecord, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM snapshots WHERE id = $1", id).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check snapshot: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("snapshot %s: %w", id, domain.ErrNotFound)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT provider_id, provider_name, region_code, procedure_code,
		       period_year, period_quarter, cost_cents, volume, quality_score
		FROM provider_records
		WHERE snapshot_id = $1
		ORDER BY provider_id, procedure_code, period_year, period_quarter`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// LatestSnapshot returns the most recently fetched snapshot.
func (s *PostgresStore) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, dataset_version, fetched_at, record_count
		FROM snapshots ORDER BY fetched_at DESC LIMIT 1`).
		Scan(&snap.ID, &snap.DatasetVersion, &snap.FetchedAt, &snap.RecordCount)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots returns up to limit snapshots, newest first.
func (s *PostgresStore) ListSnapshots(ctx context.Context, limit int) ([]*Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dataset_version, fetched_at, record_count
		FROM snapshots ORDER BY fetched_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*Snapshot
	for rows.Next() {
		snap := &Snapshot{}
		if err := rows.Scan(&snap.ID, &snap.DatasetVersion, &snap.FetchedAt, &snap.RecordCount); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// Close closes the database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
