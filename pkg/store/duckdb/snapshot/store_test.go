package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/de-tools/market-atlas/pkg/models/store"
	"github.com/de-tools/market-atlas/pkg/store/duckdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	db    *sql.DB
	store Store
}

func setupTestDB(t *testing.T) *sql.DB {
	db, err := duckdb.NewDB(duckdb.Settings{DbPath: ":memory:"})
	require.NoError(t, err)
	return db
}

func setupFixture(t *testing.T) *fixture {
	db := setupTestDB(t)
	store, err := NewStore(db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return &fixture{
		db:    db,
		store: store,
	}
}

func ptr[T any](v T) *T {
	return &v
}

func TestNewStore(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := setupFixture(t)
		assert.NotNil(t, f.store)
	})

	t.Run("nil db", func(t *testing.T) {
		store, err := NewStore(nil)
		assert.Error(t, err)
		assert.Nil(t, store)
	})
}

func TestSnapshotStore_Append(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 3, 3, 0, 0, 0, time.UTC)

	t.Run("assigns increasing ids", func(t *testing.T) {
		id1, err := f.store.Append(ctx, store.Snapshot{
			ReportID: ptr("r1"), SubjectID: "s1", MetricName: "domain_authority", Value: ptr(42.0), CapturedAt: at,
		})
		require.NoError(t, err)

		id2, err := f.store.Append(ctx, store.Snapshot{
			ReportID: ptr("r1"), SubjectID: "s1", MetricName: "total_backlinks", Value: ptr(1200.0), CapturedAt: at,
		})
		require.NoError(t, err)
		assert.Greater(t, id2, id1)
	})

	t.Run("rejects duplicate subject metric instant", func(t *testing.T) {
		_, err := f.store.Append(ctx, store.Snapshot{
			ReportID: ptr("r1"), SubjectID: "s1", MetricName: "domain_authority", Value: ptr(99.0), CapturedAt: at,
		})
		assert.ErrorIs(t, err, ErrDuplicate)

		snaps, err := f.store.ListForReport(ctx, "r1")
		require.NoError(t, err)
		var values []float64
		for _, s := range snaps {
			if s.MetricName == "domain_authority" {
				values = append(values, *s.Value)
			}
		}
		assert.Equal(t, []float64{42}, values)
	})

	t.Run("keeps null value and raw payload", func(t *testing.T) {
		_, err := f.store.Append(ctx, store.Snapshot{
			SubjectID: "s2", MetricName: "ig_reach", Raw: ptr(`{"reach":null}`), CapturedAt: at,
		})
		require.NoError(t, err)

		history, err := f.store.History(ctx, "s2", "ig_reach", 10)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Nil(t, history[0].Value)
		assert.Nil(t, history[0].ReportID)
		require.NotNil(t, history[0].Raw)
		assert.JSONEq(t, `{"reach":null}`, *history[0].Raw)
	})
}

func TestSnapshotStore_ListForReport(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 3, 3, 0, 0, 0, time.UTC)

	for i, rid := range []*string{ptr("r1"), ptr("r2"), nil, ptr("r1")} {
		_, err := f.store.Append(ctx, store.Snapshot{
			ReportID:   rid,
			SubjectID:  "s1",
			MetricName: "twitter_followers",
			Value:      ptr(float64(100 + i)),
			CapturedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	snaps, err := f.store.ListForReport(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, 100.0, *snaps[0].Value)
	assert.Equal(t, 103.0, *snaps[1].Value)
	assert.Equal(t, base.Add(3*time.Minute), snaps[1].CapturedAt.UTC())
}

func TestSnapshotStore_History(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 3, 3, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := f.store.Append(ctx, store.Snapshot{
			SubjectID:  "s1",
			MetricName: "ig_followers",
			Value:      ptr(float64(i)),
			CapturedAt: base.AddDate(0, 0, 7*i),
		})
		require.NoError(t, err)
	}

	history, err := f.store.History(ctx, "s1", "ig_followers", 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, 4.0, *history[0].Value)
	assert.Equal(t, 2.0, *history[2].Value)
}

func TestSnapshotStore_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s, err := NewStore(db)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, report_id").
		WithArgs("r1").
		WillReturnError(errors.New("connection reset"))

	_, err = s.ListForReport(context.Background(), "r1")
	assert.ErrorContains(t, err, "query report snapshots")
	assert.NoError(t, mock.ExpectationsWereMet())
}
