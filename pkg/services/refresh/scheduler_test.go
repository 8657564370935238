package refresh

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/market-atlas/pkg/models/store"
	"github.com/de-tools/market-atlas/pkg/store/duckdb"
	"github.com/de-tools/market-atlas/pkg/store/duckdb/report"
)

type mockResubmitter struct {
	mock.Mock
}

func (m *mockResubmitter) Resubmit(ctx context.Context, reportID string) (string, error) {
	args := m.Called(ctx, reportID)
	return args.String(0), args.Error(1)
}

type fixture struct {
	reports report.Store
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := duckdb.NewDB(duckdb.Settings{DbPath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reports, err := report.NewStore(db)
	require.NoError(t, err)
	return &fixture{reports: reports}
}

func (f *fixture) readyReport(t *testing.T, id, owner string, at time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.reports.CreateReport(ctx,
		store.Subject{ID: owner, Name: owner, Kind: "owner", Credentials: map[string]string{}, CreatedAt: at},
		store.Report{ID: id, OwnerID: owner, OwnerSite: "https://" + owner + ".com", Status: "queued", CreatedAt: at},
		nil,
	))
	require.NoError(t, f.reports.TransitionStatus(ctx, id, "queued", "collecting", nil))
	require.NoError(t, f.reports.TransitionStatus(ctx, id, "collecting", "ready", nil))
}

func TestNewScheduler(t *testing.T) {
	f := setupFixture(t)

	s, err := NewScheduler(f.reports, &mockResubmitter{}, "")
	require.NoError(t, err)
	monday := s.Next(time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 6, 9, 3, 0, 0, 0, time.UTC), monday)

	_, err = NewScheduler(f.reports, &mockResubmitter{}, "every tuesday")
	assert.Error(t, err)

	_, err = NewScheduler(nil, &mockResubmitter{}, "")
	assert.Error(t, err)
}

func TestScheduler_RefreshAll(t *testing.T) {
	f := setupFixture(t)
	t0 := time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC)
	f.readyReport(t, "r1", "acme", t0)
	f.readyReport(t, "r2", "acme", t0.Add(time.Hour))
	f.readyReport(t, "r3", "globex", t0)

	engine := &mockResubmitter{}
	engine.On("Resubmit", mock.Anything, "r2").Return("r4", nil).Once()
	engine.On("Resubmit", mock.Anything, "r3").Return("", errors.New("queue down")).Once()

	s, err := NewScheduler(f.reports, engine, DefaultSchedule)
	require.NoError(t, err)

	started, err := s.RefreshAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"r4"}, started)
	engine.AssertExpectations(t)
	engine.AssertNotCalled(t, "Resubmit", mock.Anything, "r1")
}

func TestScheduler_RunStopsWithContext(t *testing.T) {
	f := setupFixture(t)
	s, err := NewScheduler(f.reports, &mockResubmitter{}, DefaultSchedule)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
