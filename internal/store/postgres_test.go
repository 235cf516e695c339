package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cms-analytics-server/internal/domain"
)

func createMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectPing()
	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	return store, mock
}

func TestNewPostgresStore_NilConnection(t *testing.T) {
	_, err := NewPostgresStore(nil)
	assert.Error(t, err)
}

func TestPostgresStore_SaveSnapshot(t *testing.T) {
	store, mock := createMockStore(t)
	ctx := context.Background()

	records := testRecords()
	snap := testSnapshot("snap-1", time.Now().UTC())

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO snapshots")).
		WithArgs(snap.ID, snap.DatasetVersion, snap.FetchedAt, len(records)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO provider_records"))
	for _, r := range records {
		prep.ExpectExec().
			WithArgs(snap.ID, r.ProviderID, r.ProviderName, r.RegionCode, r.ProcedureCode,
				r.Period.Year, r.Period.Quarter, r.CostCents, r.Volume, r.QualityScore).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	err := store.SaveSnapshot(ctx, snap, records)
	require.NoError(t, err)
	assert.Equal(t, len(records), snap.RecordCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveSnapshot_RollbackOnFailure(t *testing.T) {
	store, mock := createMockStore(t)
	ctx := context.Background()

	snap := testSnapshot("snap-1", time.Now().UTC())

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO snapshots")).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := store.SaveSnapshot(ctx, snap, nil)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadSnapshot(t *testing.T) {
	store, mock := createMockStore(t)
	ctx := context.Background()

	records := testRecords()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(1) FROM snapshots")).
		WithArgs("snap-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	rows := sqlmock.NewRows([]string{
		"provider_id", "provider_name", "region_code", "procedure_code",
		"period_year", "period_quarter", "cost_cents", "volume", "quality_score",
	})
	for _, r := range records {
		rows.AddRow(r.ProviderID, r.ProviderName, r.RegionCode, r.ProcedureCode,
			r.Period.Year, r.Period.Quarter, r.CostCents, r.Volume, r.QualityScore)
	}
	mock.ExpectQuery(regexp.QuoteMeta("FROM provider_records")).
		WithArgs("snap-1").
		WillReturnRows(rows)

	loaded, err := store.LoadSnapshot(ctx, "snap-1")
	require.NoError(t, err)
	assert.Equal(t, records, loaded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadSnapshot_NotFound(t *testing.T) {
	store, mock := createMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(1) FROM snapshots")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, err := store.LoadSnapshot(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostgresStore_LatestSnapshot(t *testing.T) {
	store, mock := createMockStore(t)

	fetchedAt := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FROM snapshots ORDER BY fetched_at DESC LIMIT 1")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "dataset_version", "fetched_at", "record_count"}).
			AddRow("snap-2", "2022-R1", fetchedAt, 42))

	snap, err := store.LatestSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "snap-2", snap.ID)
	assert.Equal(t, 42, snap.RecordCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestSnapshot_Empty(t *testing.T) {
	store, mock := createMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM snapshots ORDER BY fetched_at DESC LIMIT 1")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "dataset_version", "fetched_at", "record_count"}))

	_, err := store.LatestSnapshot(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostgresStore_ListSnapshots(t *testing.T) {
	store, mock := createMockStore(t)

	fetchedAt := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FROM snapshots ORDER BY fetched_at DESC LIMIT $1")).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "dataset_version", "fetched_at", "record_count"}).
			AddRow("snap-b", "2022-R1", fetchedAt, 10).
			AddRow("snap-a", "2022-R1", fetchedAt.Add(-time.Hour), 8))

	snaps, err := store.ListSnapshots(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "snap-b", snaps[0].ID)
	assert.Equal(t, "snap-a", snaps[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
