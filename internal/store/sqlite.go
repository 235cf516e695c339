package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/cms-analytics-server/internal/domain"
)

// SQLiteStore implements Store using an embedded SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite snapshot store. It creates the
// database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// createSchema creates the snapshot tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		dataset_version TEXT NOT NULL,
		fetched_at DATETIME NOT NULL,
		record_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS provider_records (
		snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
		provider_id TEXT NOT NULL,
		provider_name TEXT DEFAULT '',
		region_code TEXT NOT NULL,
		procedure_code TEXT NOT NULL,
		period_year INTEGER NOT NULL,
		period_quarter INTEGER NOT NULL,
		cost_cents INTEGER NOT NULL,
		volume INTEGER NOT NULL DEFAULT 0,
		quality_score REAL NOT NULL,
		PRIMARY KEY (snapshot_id, provider_id, procedure_code, period_year, period_quarter)
	);

	CREATE INDEX IF NOT EXISTS idx_records_provider ON provider_records(snapshot_id, provider_id);
	CREATE INDEX IF NOT EXISTS idx_snapshots_fetched ON snapshots(fetched_at);
	`

	_, err := db.Exec(schema)
	return err
}

// SaveSnapshot persists the snapshot and its records in one transaction.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *Snapshot, records []domain.ProviderRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	snap.RecordCount = len(records)
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO snapshots (id, dataset_version, fetched_at, record_count) VALUES (?, ?, ?, ?)",
		snap.ID, snap.DatasetVersion, snap.FetchedAt, snap.RecordCount,
	); err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO provider_records
		(snapshot_id, provider_id, provider_name, region_code, procedure_code,
		 period_year, period_quarter, cost_cents, volume, quality_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
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
func (s *SQLiteStore) LoadSnapshot(ctx context.Context, id string) ([]domain.ProviderRecord, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM snapshots WHERE id = ?", id).Scan(&exists)
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
		WHERE snapshot_id = ?
		ORDER BY provider_id, procedure_code, period_year, period_quarter`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// LatestSnapshot returns the most recently fetched snapshot.
func (s *SQLiteStore) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
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
func (s *SQLiteStore) ListSnapshots(ctx context.Context, limit int) ([]*Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dataset_version, fetched_at, record_count
		FROM snapshots ORDER BY fetched_at DESC LIMIT ?`, limit)
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
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanRecords reads provider records from a result set. Shared by both
// store implementations; the column order is fixed by their queries.
func scanRecords(rows *sql.Rows) ([]domain.ProviderRecord, error) {
	var records []domain.ProviderRecord
	for rows.Next() {
		var r domain.ProviderRecord
		if err := rows.Scan(
			&r.ProviderID, &r.ProviderName, &r.RegionCode, &r.ProcedureCode,
			&r.Period.Year, &r.Period.Quarter, &r.CostCents, &r.Volume, &r.QualityScore,
		); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
