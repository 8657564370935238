package collector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/de-tools/market-atlas/pkg/adapters"
	"github.com/de-tools/market-atlas/pkg/metrics"
	"github.com/de-tools/market-atlas/pkg/models/domain"
	"github.com/de-tools/market-atlas/pkg/services/credentials"
	"github.com/de-tools/market-atlas/pkg/services/providers"
	"github.com/de-tools/market-atlas/pkg/store/duckdb/report"
	"github.com/de-tools/market-atlas/pkg/store/duckdb/snapshot"
)

// BearerSource supplies user-granted tokens for private providers.
type BearerSource interface {
	Bearer(ctx context.Context, subjectID string, p domain.Provider) (string, error)
}

type Config struct {
	AdapterTimeout time.Duration
	MaxParallel    int
}

func DefaultConfig() Config {
	return Config{
		AdapterTimeout: 15 * time.Second,
		MaxParallel:    4,
	}
}

type Collector struct {
	reports   report.Store
	snapshots snapshot.Store
	adapters  *providers.Set
	tokens    BearerSource
	config    Config
	now       func() time.Time
}

func NewCollector(
	reports report.Store,
	snapshots snapshot.Store,
	adapterSet *providers.Set,
	tokens BearerSource,
	config Config,
) (*Collector, error) {
	if reports == nil || snapshots == nil {
		return nil, fmt.Errorf("report and snapshot stores are required")
	}
	if adapterSet == nil {
		adapterSet = providers.NewSet()
	}
	if config.MaxParallel <= 0 {
		config.MaxParallel = 1
	}
	return &Collector{
		reports:   reports,
		snapshots: snapshots,
		adapters:  adapterSet,
		tokens:    tokens,
		config:    config,
		now:       time.Now,
	}, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSucceeded
	outcomeFailed
)

func (o outcome) String() string {
	switch o {
	case outcomeSucceeded:
		return "ok"
	case outcomeFailed:
		return "error"
	default:
		return "skipped"
	}
}

type adapterRun struct {
	adapter  providers.Adapter
	outcome  outcome
	written  int
	rejected int
}

// Collect runs every applicable adapter of the phase for one subject and appends
// their readings under a single capture instant. An empty reportID records
// untagged snapshots for trend history. Adapter failures are isolated; only a
// missing subject or report is returned as an error.
func (c *Collector) Collect(ctx context.Context, reportID, subjectID string, phase domain.Phase) (domain.CollectResult, error) {
	if !phase.Valid() {
		return domain.CollectResult{}, fmt.Errorf("unknown phase %q", phase)
	}

	stored, err := c.reports.GetSubject(ctx, subjectID)
	if err != nil {
		return domain.CollectResult{}, fmt.Errorf("load subject: %w", err)
	}
	subject := adapters.MapStoreSubjectToDomain(stored)
	creds := subject.Credentials

	if reportID != "" {
		r, err := c.reports.GetReport(ctx, reportID)
		if err != nil {
			return domain.CollectResult{}, fmt.Errorf("load report: %w", err)
		}
		if subject.Kind == domain.SubjectKindOwner && r.OwnerSite != "" {
			creds = creds.Merge(domain.Credentials{domain.FieldWebsite: r.OwnerSite})
		}
	}

	capturedAt := c.now().UTC().Truncate(time.Microsecond)
	logger := zerolog.Ctx(ctx).With().
		Str("report", reportID).
		Str("subject", subjectID).
		Str("phase", string(phase)).
		Logger()
	ctx = logger.WithContext(ctx)

	applicable, skipped := c.adapters.Applicable(phase, creds)

	runs := make([]*adapterRun, len(applicable))
	var g errgroup.Group
	g.SetLimit(c.config.MaxParallel)
	for i, a := range applicable {
		run := &adapterRun{adapter: a}
		runs[i] = run
		g.Go(func() error {
			c.runAdapter(ctx, run, reportID, subject, creds, capturedAt)
			return nil
		})
	}
	_ = g.Wait()

	result := domain.CollectResult{
		ReportID:   reportID,
		SubjectID:  subjectID,
		Phase:      phase,
		CapturedAt: capturedAt,
	}
	for _, a := range skipped {
		result.Skipped = append(result.Skipped, a.Name())
		metrics.RecordAdapterCall(string(a.Name()), outcomeSkipped.String(), 0)
	}
	for _, run := range runs {
		switch run.outcome {
		case outcomeSucceeded:
			result.Succeeded = append(result.Succeeded, run.adapter.Name())
		case outcomeFailed:
			result.Failed = append(result.Failed, run.adapter.Name())
		default:
			result.Skipped = append(result.Skipped, run.adapter.Name())
		}
		result.Written += run.written
		result.Rejected += run.rejected
	}

	logger.Info().
		Int("succeeded", len(result.Succeeded)).
		Int("failed", len(result.Failed)).
		Int("skipped", len(result.Skipped)).
		Int("written", result.Written).
		Msg("collection finished")
	return result, nil
}

func (c *Collector) runAdapter(
	ctx context.Context,
	run *adapterRun,
	reportID string,
	subject *domain.Subject,
	creds domain.Credentials,
	capturedAt time.Time,
) {
	a := run.adapter
	logger := zerolog.Ctx(ctx).With().Str("provider", string(a.Name())).Logger()

	req := providers.Request{
		SubjectName: subject.DisplayName(),
		Credentials: creds,
		Now:         capturedAt,
	}

	if a.Phase() == domain.PhasePrivate {
		bearer, err := c.bearer(ctx, subject.ID, a.Name())
		if errors.Is(err, credentials.ErrNoCredential) {
			logger.Info().Err(err).Msg("no credential, skipping")
			run.outcome = outcomeSkipped
			return
		}
		if err != nil {
			logger.Warn().Err(err).Msg("credential lookup failed")
			run.outcome = outcomeFailed
			metrics.RecordAdapterCall(string(a.Name()), run.outcome.String(), 0)
			return
		}
		req.Bearer = bearer
	}

	callCtx, cancel := context.WithTimeout(ctx, c.config.AdapterTimeout)
	started := time.Now()
	readings, err := safeFetch(callCtx, a, req)
	cancel()
	if err != nil {
		logger.Warn().Err(err).Dur("elapsed", time.Since(started)).Msg("adapter failed")
		run.outcome = outcomeFailed
		metrics.RecordAdapterCall(string(a.Name()), run.outcome.String(), time.Since(started))
		return
	}

	run.outcome = outcomeSucceeded
	metrics.RecordAdapterCall(string(a.Name()), run.outcome.String(), time.Since(started))

	var rid *string
	if reportID != "" {
		rid = &reportID
	}

	names := make([]string, 0, len(readings))
	for name := range readings {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		reading := readings[name]
		_, err := c.snapshots.Append(ctx, adapters.MapDomainSnapshotToStore(domain.Snapshot{
			ReportID:   rid,
			SubjectID:  subject.ID,
			Metric:     name,
			Value:      reading.Value,
			Raw:        reading.Raw,
			CapturedAt: capturedAt,
		}))
		switch {
		case errors.Is(err, snapshot.ErrDuplicate):
			run.rejected++
			metrics.RecordRejectedSnapshot()
			logger.Warn().Str("metric", name).Msg("duplicate snapshot rejected")
		case err != nil:
			run.rejected++
			logger.Error().Err(err).Str("metric", name).Msg("failed to write snapshot")
		default:
			run.written++
			metrics.RecordSnapshot(name)
		}
	}
}

func (c *Collector) bearer(ctx context.Context, subjectID string, p domain.Provider) (string, error) {
	if c.tokens == nil {
		return "", credentials.ErrNoCredential
	}
	return c.tokens.Bearer(ctx, subjectID, p)
}

// safeFetch turns an adapter panic into an AdapterError.
func safeFetch(ctx context.Context, a providers.Adapter, req providers.Request) (readings domain.Readings, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &providers.AdapterError{Provider: a.Name(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	readings, err = a.Fetch(ctx, req)
	if err != nil {
		var ae *providers.AdapterError
		if !errors.As(err, &ae) {
			err = &providers.AdapterError{Provider: a.Name(), Err: err}
		}
	}
	return readings, err
}
