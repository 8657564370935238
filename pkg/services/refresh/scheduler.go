package refresh

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/de-tools/market-atlas/pkg/store/duckdb/report"
)

const DefaultSchedule = "0 3 * * 1"

// Resubmitter starts a fresh report from an existing one.
type Resubmitter interface {
	Resubmit(ctx context.Context, reportID string) (string, error)
}

// Scheduler periodically re-runs the latest ready report of every owner.
type Scheduler struct {
	reports  report.Store
	engine   Resubmitter
	schedule cron.Schedule
	spec     string
}

func NewScheduler(reports report.Store, engine Resubmitter, spec string) (*Scheduler, error) {
	if reports == nil || engine == nil {
		return nil, fmt.Errorf("report store and engine are required")
	}
	if spec == "" {
		spec = DefaultSchedule
	}
	expr := spec
	if !strings.HasPrefix(expr, "CRON_TZ=") && !strings.HasPrefix(expr, "TZ=") {
		expr = "CRON_TZ=UTC " + expr
	}
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	return &Scheduler{reports: reports, engine: engine, schedule: schedule, spec: spec}, nil
}

// Next returns the next run after t, evaluated in UTC.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.UTC())
}

// Run blocks until ctx is done, refreshing on every tick of the schedule.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	c := cron.New(cron.WithLocation(time.UTC))
	c.Schedule(s.schedule, cron.FuncJob(func() {
		if _, err := s.RefreshAll(ctx); err != nil {
			logger.Error().Err(err).Msg("weekly refresh failed")
		}
	}))
	c.Start()
	logger.Info().Str("schedule", s.spec).Time("next", s.Next(time.Now())).Msg("refresh scheduler started")

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// RefreshAll resubmits every owner's latest ready report and returns the new report ids.
// A failure for one owner does not stop the others.
func (s *Scheduler) RefreshAll(ctx context.Context) ([]string, error) {
	logger := zerolog.Ctx(ctx)

	latest, err := s.reports.LatestReadyPerOwner(ctx)
	if err != nil {
		return nil, fmt.Errorf("list latest reports: %w", err)
	}

	started := make([]string, 0, len(latest))
	for _, r := range latest {
		id, err := s.engine.Resubmit(ctx, r.ID)
		if err != nil {
			logger.Warn().Err(err).Str("owner", r.OwnerID).Str("report", r.ID).Msg("refresh skipped")
			continue
		}
		started = append(started, id)
	}
	logger.Info().Int("owners", len(latest)).Int("started", len(started)).Msg("refresh complete")
	return started, nil
}
