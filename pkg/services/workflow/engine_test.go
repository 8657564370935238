package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/market-atlas/pkg/adapters"
	"github.com/de-tools/market-atlas/pkg/models/domain"
	"github.com/de-tools/market-atlas/pkg/models/store"
	"github.com/de-tools/market-atlas/pkg/services/collector"
	"github.com/de-tools/market-atlas/pkg/services/kpi"
	"github.com/de-tools/market-atlas/pkg/services/providers"
	"github.com/de-tools/market-atlas/pkg/services/queue"
	"github.com/de-tools/market-atlas/pkg/services/render"
	"github.com/de-tools/market-atlas/pkg/services/summary"
	"github.com/de-tools/market-atlas/pkg/store/duckdb"
	"github.com/de-tools/market-atlas/pkg/store/duckdb/report"
	"github.com/de-tools/market-atlas/pkg/store/duckdb/snapshot"
	workflowstore "github.com/de-tools/market-atlas/pkg/store/duckdb/workflow"
)

const ownerID = "owner-1"

type call struct {
	subjectID string
	phase     domain.Phase
}

// fakeCollector writes a fixed reading per subject and phase.
type fakeCollector struct {
	snapshots snapshot.Store
	values    map[domain.Phase]map[string]float64
	failFor   map[string]int

	mu       sync.Mutex
	calls    []call
	failures map[string]int
}

func (f *fakeCollector) Collect(ctx context.Context, reportID, subjectID string, phase domain.Phase) (domain.CollectResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{subjectID: subjectID, phase: phase})
	if f.failures == nil {
		f.failures = map[string]int{}
	}
	if f.failFor[subjectID] > f.failures[subjectID] {
		f.failures[subjectID]++
		f.mu.Unlock()
		return domain.CollectResult{}, errors.New("store unavailable")
	}
	f.mu.Unlock()

	res := domain.CollectResult{ReportID: reportID, SubjectID: subjectID, Phase: phase}
	at := time.Now().UTC().Truncate(time.Microsecond)
	for metric, v := range f.values[phase] {
		if phase == domain.PhasePrivate && subjectID != ownerID {
			continue
		}
		value := v
		if subjectID != ownerID {
			value = v / 2
		}
		_, err := f.snapshots.Append(ctx, store.Snapshot{
			ReportID:   &reportID,
			SubjectID:  subjectID,
			MetricName: metric,
			Value:      &value,
			CapturedAt: at,
		})
		if err != nil {
			return res, err
		}
		res.Written++
	}
	return res, nil
}

func (f *fakeCollector) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]call, len(f.calls))
	copy(out, f.calls)
	return out
}

type fakeRenderer struct {
	err       error
	collector *fakeCollector

	mu            sync.Mutex
	inputs        []render.Input
	callsAtRender int
}

func (f *fakeRenderer) Render(_ context.Context, in render.Input) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	f.callsAtRender = len(f.collector.recorded())
	if f.err != nil {
		return "", &render.RenderError{ReportID: in.ReportID, Err: f.err}
	}
	return "/tmp/" + render.ArtifactKey(in.ReportID), nil
}

type fakeSummarizer struct {
	err error

	mu     sync.Mutex
	brands []string
}

func (f *fakeSummarizer) Summarize(_ context.Context, _ domain.Table, brand string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.brands = append(f.brands, brand)
	if f.err != nil {
		return "", &summary.SummarizeError{Err: f.err}
	}
	return "- grow reviews", nil
}

func (f *fakeSummarizer) calledWith() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.brands...)
}

type fixture struct {
	deps       Dependencies
	engine     *DefaultEngine
	collector  *fakeCollector
	renderer   *fakeRenderer
	summarizer *fakeSummarizer
	queue      *queue.MemoryQueue
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := duckdb.NewDB(duckdb.Settings{DbPath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reports, err := report.NewStore(db)
	require.NoError(t, err)
	snapshots, err := snapshot.NewStore(db)
	require.NoError(t, err)
	workflows, err := workflowstore.NewStore(db)
	require.NoError(t, err)

	collector := &fakeCollector{
		snapshots: snapshots,
		values: map[domain.Phase]map[string]float64{
			domain.PhasePublic:  {"domain_authority": 40, "twitter_followers": 1000},
			domain.PhasePrivate: {"ga_sessions": 500},
		},
	}
	f := &fixture{
		collector:  collector,
		renderer:   &fakeRenderer{collector: collector},
		summarizer: &fakeSummarizer{},
		queue:      queue.NewMemoryQueue(4, 3),
	}
	f.deps = Dependencies{
		DB:         db,
		Reports:    reports,
		Snapshots:  snapshots,
		Workflows:  workflows,
		Collector:  collector,
		Reducer:    kpi.NewReducer(kpi.DefaultRegistry()),
		Renderer:   f.renderer,
		Summarizer: f.summarizer,
		Queue:      f.queue,
	}
	f.engine, err = NewEngine(f.deps, DefaultConfig())
	require.NoError(t, err)
	return f
}

// run resumes before the consumers start, so nothing the test submits afterwards
// is dispatched twice.
func (f *fixture) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.engine.Resume(ctx))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.queue.Consume(ctx, f.engine.Handle)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func validInput() domain.SubmitInput {
	return domain.SubmitInput{
		OwnerID:   ownerID,
		OwnerName: "Acme",
		OwnerSite: "https://acme.com",
		Owner:     domain.Credentials{domain.FieldGA4Property: "1234"},
		Competitors: []domain.CompetitorInput{
			{Credentials: domain.Credentials{domain.FieldWebsite: "https://www.b.com", domain.FieldTwitter: "bco"}},
		},
	}
}

func (f *fixture) awaitStatus(t *testing.T, id string, want domain.ReportStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		s, err := f.engine.Status(context.Background(), id)
		return err == nil && s == want
	}, 10*time.Second, 10*time.Millisecond)
}

func TestEngine_HappyPath(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.run(t)

	id, err := f.engine.Submit(ctx, validInput())
	require.NoError(t, err)

	status, err := f.engine.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ReportStatusQueued, status)

	require.NoError(t, f.engine.Start(ctx, id))
	f.awaitStatus(t, id, domain.ReportStatusReady)

	r, err := f.engine.Report(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "- grow reviews", r.AIInsight)
	assert.Equal(t, "/tmp/reports/"+id+".html", r.ArtifactLocation)
	assert.NotEmpty(t, r.Result)

	table, err := f.engine.Table(ctx, id)
	require.NoError(t, err)
	require.Len(t, table.Columns, 2)
	assert.Equal(t, "Acme", table.Columns[0].Name)
	assert.Equal(t, ownerID, table.Columns[0].SubjectID)
	assert.Equal(t, "b.com", table.Columns[1].Name)
	assert.Len(t, table.Rows, kpi.DefaultRegistry().Len())

	da, _ := table.Cell("domain_authority", ownerID)
	require.NotNil(t, da)
	assert.Equal(t, 40.0, *da)
	compDA, _ := table.Cell("domain_authority", table.Columns[1].SubjectID)
	require.NotNil(t, compDA)
	assert.Equal(t, 20.0, *compDA)

	sessions, _ := table.Cell("ga_sessions", ownerID)
	require.NotNil(t, sessions)
	assert.Equal(t, 500.0, *sessions)
	compSessions, ok := table.Cell("ga_sessions", table.Columns[1].SubjectID)
	assert.True(t, ok)
	assert.Nil(t, compSessions)

	assert.Equal(t, []string{"Acme"}, f.summarizer.calledWith())
}

func TestEngine_StageOrdering(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.run(t)

	in := validInput()
	in.Competitors = append(in.Competitors, domain.CompetitorInput{
		Name:        "C Corp",
		Credentials: domain.Credentials{domain.FieldWebsite: "c.io"},
	})
	id, err := f.engine.Submit(ctx, in)
	require.NoError(t, err)
	require.NoError(t, f.engine.Start(ctx, id))
	f.awaitStatus(t, id, domain.ReportStatusReady)

	calls := f.collector.recorded()
	require.Len(t, calls, 4)
	for _, c := range calls[:3] {
		assert.Equal(t, domain.PhasePublic, c.phase)
	}
	assert.Equal(t, call{subjectID: ownerID, phase: domain.PhasePrivate}, calls[3])

	f.renderer.mu.Lock()
	defer f.renderer.mu.Unlock()
	require.Len(t, f.renderer.inputs, 1)
	assert.Equal(t, 4, f.renderer.callsAtRender)
}

func TestEngine_TransientCollectionFailureIsRetried(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.collector.failFor = map[string]int{ownerID: 1}
	f.run(t)

	id, err := f.engine.Submit(ctx, validInput())
	require.NoError(t, err)
	require.NoError(t, f.engine.Start(ctx, id))
	f.awaitStatus(t, id, domain.ReportStatusReady)

	table, err := f.engine.Table(ctx, id)
	require.NoError(t, err)
	da, _ := table.Cell("domain_authority", ownerID)
	require.NotNil(t, da)
	assert.Equal(t, 40.0, *da)
}

func TestEngine_PersistentCollectionFailureStillFinishes(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.collector.failFor = map[string]int{ownerID: 100}
	f.run(t)

	id, err := f.engine.Submit(ctx, validInput())
	require.NoError(t, err)
	require.NoError(t, f.engine.Start(ctx, id))
	f.awaitStatus(t, id, domain.ReportStatusReady)

	table, err := f.engine.Table(ctx, id)
	require.NoError(t, err)
	da, _ := table.Cell("domain_authority", ownerID)
	assert.Nil(t, da)
	compDA, _ := table.Cell("domain_authority", table.Columns[1].SubjectID)
	require.NotNil(t, compDA)
	assert.Equal(t, 20.0, *compDA)
}

func TestEngine_RenderFailureFailsReport(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.renderer.err = errors.New("disk full")
	f.run(t)

	id, err := f.engine.Submit(ctx, validInput())
	require.NoError(t, err)
	require.NoError(t, f.engine.Start(ctx, id))
	f.awaitStatus(t, id, domain.ReportStatusError)

	r, err := f.engine.Report(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, r.Error)
	assert.Contains(t, *r.Error, "disk full")

	_, err = f.engine.Table(ctx, id)
	assert.ErrorIs(t, err, ErrReportFailed)

	_, err = f.engine.Trends(ctx, id)
	assert.ErrorIs(t, err, ErrNotReady)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, f.summarizer.calledWith())
}

func TestEngine_SummaryFailureIsSoft(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.summarizer.err = errors.New("upstream 503")
	f.run(t)

	id, err := f.engine.Submit(ctx, validInput())
	require.NoError(t, err)
	require.NoError(t, f.engine.Start(ctx, id))
	f.awaitStatus(t, id, domain.ReportStatusReady)

	r, err := f.engine.Report(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "", r.AIInsight)
	assert.Nil(t, r.Error)
}

func TestEngine_StartTwice(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	id, err := f.engine.Submit(ctx, validInput())
	require.NoError(t, err)
	require.NoError(t, f.engine.Start(ctx, id))
	assert.Equal(t, 2, f.queue.Len())

	err = f.engine.Start(ctx, id)
	assert.ErrorIs(t, err, ErrNotQueued)
	assert.Equal(t, 2, f.queue.Len())

	err = f.engine.Start(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEngine_SubmitValidation(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    func() domain.SubmitInput
		field string
	}{
		{
			name:  "missing owner site",
			in:    func() domain.SubmitInput { in := validInput(); in.OwnerSite = " "; return in },
			field: "owner_site",
		},
		{
			name:  "missing owner id",
			in:    func() domain.SubmitInput { in := validInput(); in.OwnerID = ""; return in },
			field: "owner_id",
		},
		{
			name: "social handle without site",
			in: func() domain.SubmitInput {
				in := validInput()
				in.Competitors = []domain.CompetitorInput{{Credentials: domain.Credentials{domain.FieldTwitter: "x"}}}
				return in
			},
			field: "competitors[0].site",
		},
		{
			name: "too many competitors",
			in: func() domain.SubmitInput {
				in := validInput()
				for _, site := range []string{"c.com", "d.com"} {
					in.Competitors = append(in.Competitors, domain.CompetitorInput{
						Credentials: domain.Credentials{domain.FieldWebsite: site},
					})
				}
				return in
			},
			field: "competitors",
		},
		{
			name: "unknown owner field",
			in: func() domain.SubmitInput {
				in := validInput()
				in.Owner = domain.Credentials{"tiktok": "acme"}
				return in
			},
			field: "owner_credentials.tiktok",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Submit(ctx, tt.in())
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}

	reports, err := f.deps.Reports.ListReports(ctx, string(domain.ReportStatusQueued))
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestEngine_EmptyCompetitorsAreDropped(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	in := validInput()
	in.Competitors = append(in.Competitors, domain.CompetitorInput{}, domain.CompetitorInput{Credentials: domain.Credentials{}})
	id, err := f.engine.Submit(ctx, in)
	require.NoError(t, err)

	subjects, err := f.deps.Reports.ListSubjects(ctx, id)
	require.NoError(t, err)
	assert.Len(t, subjects, 2)
}

func TestEngine_TableWhileCollecting(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	id, err := f.engine.Submit(ctx, validInput())
	require.NoError(t, err)

	table, err := f.engine.Table(ctx, id)
	require.NoError(t, err)
	assert.Len(t, table.Rows, kpi.DefaultRegistry().Len())
	for _, row := range table.Rows {
		for _, c := range row.Cells {
			assert.Nil(t, c)
		}
	}

	_, err = f.engine.Table(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEngine_ResumeAfterRestart(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	id, err := f.engine.Submit(ctx, validInput())
	require.NoError(t, err)
	require.NoError(t, f.engine.Start(ctx, id))
	require.NoError(t, f.queue.Close())

	deps := f.deps
	f.queue = queue.NewMemoryQueue(2, 3)
	deps.Queue = f.queue
	restarted, err := NewEngine(deps, DefaultConfig())
	require.NoError(t, err)
	f.engine = restarted

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- restarted.Run(runCtx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	f.awaitStatus(t, id, domain.ReportStatusReady)
	assert.Len(t, f.collector.recorded(), 3)
}

func TestEngine_Trends(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.run(t)

	first, err := f.engine.Submit(ctx, validInput())
	require.NoError(t, err)
	require.NoError(t, f.engine.Start(ctx, first))
	f.awaitStatus(t, first, domain.ReportStatusReady)

	rows, err := f.engine.Trends(ctx, first)
	require.NoError(t, err)
	for _, r := range rows {
		assert.Nil(t, r.Previous)
		assert.Equal(t, domain.DirectionFlat, r.Trend.Direction)
	}

	f.collector.mu.Lock()
	f.collector.values[domain.PhasePublic]["domain_authority"] = 44
	f.collector.mu.Unlock()

	second, err := f.engine.Resubmit(ctx, first)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	f.awaitStatus(t, second, domain.ReportStatusReady)

	rows, err = f.engine.Trends(ctx, second)
	require.NoError(t, err)
	var found int
	for _, r := range rows {
		if r.Key != "domain_authority" {
			continue
		}
		found++
		require.NotNil(t, r.Previous)
		assert.Equal(t, domain.DirectionUp, r.Trend.Direction)
		assert.Equal(t, 10.0, r.Trend.DeltaPct)
	}
	assert.Equal(t, 2, found)

	table, err := f.engine.Table(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "b.com", table.Columns[1].Name)
}

func TestEngine_HistoryAndCredentials(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.run(t)

	id, err := f.engine.Submit(ctx, validInput())
	require.NoError(t, err)
	require.NoError(t, f.engine.Start(ctx, id))
	f.awaitStatus(t, id, domain.ReportStatusReady)

	history, err := f.engine.History(ctx, ownerID, "domain_authority", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].Value)
	assert.Equal(t, 40.0, *history[0].Value)

	_, err = f.engine.History(ctx, "nobody", "domain_authority", 10)
	assert.ErrorIs(t, err, ErrNotFound)

	err = f.engine.UpdateCredentials(ctx, ownerID, domain.Credentials{domain.FieldShopifyShop: "acme"})
	require.NoError(t, err)
	subject, err := f.deps.Reports.GetSubject(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, "acme", subject.Credentials["shopify_shop"])
	assert.Equal(t, "1234", subject.Credentials["ga4_property"])

	var verr *ValidationError
	err = f.engine.UpdateCredentials(ctx, ownerID, domain.Credentials{"myspace": "x"})
	assert.ErrorAs(t, err, &verr)
}

func TestNewEngine_Validation(t *testing.T) {
	_, err := NewEngine(Dependencies{}, DefaultConfig())
	assert.Error(t, err)
}

// flakyWorkflows fails the first CompleteTask calls.
type flakyWorkflows struct {
	workflowstore.Store

	mu       sync.Mutex
	failures int
}

func (w *flakyWorkflows) CompleteTask(ctx context.Context, taskID string) (workflowstore.Progress, error) {
	w.mu.Lock()
	if w.failures > 0 {
		w.failures--
		w.mu.Unlock()
		return workflowstore.Progress{}, errors.New("store unavailable")
	}
	w.mu.Unlock()
	return w.Store.CompleteTask(ctx, taskID)
}

func TestEngine_ExhaustedBookkeepingFailsReport(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	deps := f.deps
	deps.Workflows = &flakyWorkflows{Store: f.deps.Workflows, failures: DefaultConfig().MaxAttempts}
	engine, err := NewEngine(deps, DefaultConfig())
	require.NoError(t, err)
	f.engine = engine
	f.run(t)

	in := validInput()
	in.Competitors = nil
	id, err := f.engine.Submit(ctx, in)
	require.NoError(t, err)
	require.NoError(t, f.engine.Start(ctx, id))
	f.awaitStatus(t, id, domain.ReportStatusError)

	r, err := f.engine.Report(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, r.Error)
	assert.Contains(t, *r.Error, "store unavailable")

	require.Eventually(t, func() bool {
		open, err := f.deps.Workflows.ListOpenTasks(ctx, id)
		return err == nil && len(open) == 0 && f.queue.Len() == 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.Len(t, f.collector.recorded(), DefaultConfig().MaxAttempts)
	assert.Empty(t, f.summarizer.calledWith())
}

func TestEngine_RedeliveredTaskAdvancesStage(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	id, err := f.engine.Submit(ctx, validInput())
	require.NoError(t, err)
	require.NoError(t, f.engine.Start(ctx, id))
	require.Equal(t, 2, f.queue.Len())

	open, err := f.deps.Workflows.ListOpenTasks(ctx, id)
	require.NoError(t, err)
	require.Len(t, open, 2)
	for _, task := range open {
		_, err := f.deps.Workflows.CompleteTask(ctx, task.ID)
		require.NoError(t, err)
	}

	redelivered := adapters.MapStoreWorkflowTaskToDomain(open[0])
	for i := 0; i < 2; i++ {
		require.NoError(t, f.engine.Handle(ctx, redelivered))
	}

	groups, err := f.deps.Workflows.ListGroups(ctx, id)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, string(domain.StagePrivate), groups[1].Stage)
	assert.Equal(t, 3, f.queue.Len())
	assert.Empty(t, f.collector.recorded())
}

// stubAdapter serves one public metric and fails for a chosen subject.
type stubAdapter struct {
	name    domain.Provider
	metric  string
	value   float64
	failFor string
}

func (s *stubAdapter) Name() domain.Provider    { return s.name }
func (s *stubAdapter) Phase() domain.Phase      { return domain.PhasePublic }
func (s *stubAdapter) Requires() []domain.Field { return []domain.Field{domain.FieldWebsite} }

func (s *stubAdapter) Fetch(_ context.Context, req providers.Request) (domain.Readings, error) {
	if req.SubjectName == s.failFor {
		return nil, &providers.AdapterError{Provider: s.name, Err: &providers.StatusError{Code: 429, Body: "slow down"}}
	}
	return domain.Readings{s.metric: {Value: domain.Float(s.value)}}, nil
}

func TestEngine_CompetitorAdapterFailureIsIsolated(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	set := providers.NewSet(
		&stubAdapter{name: domain.Provider("moz"), metric: "domain_authority", value: 40},
		&stubAdapter{name: domain.Provider("dataforseo"), metric: "estimated_org_visits", value: 900, failFor: "b.com"},
	)
	c, err := collector.NewCollector(f.deps.Reports, f.deps.Snapshots, set, nil, collector.Config{
		AdapterTimeout: time.Second,
		MaxParallel:    2,
	})
	require.NoError(t, err)

	deps := f.deps
	deps.Collector = c
	engine, err := NewEngine(deps, DefaultConfig())
	require.NoError(t, err)
	f.engine = engine
	f.run(t)

	id, err := f.engine.Submit(ctx, validInput())
	require.NoError(t, err)
	require.NoError(t, f.engine.Start(ctx, id))
	f.awaitStatus(t, id, domain.ReportStatusReady)

	table, err := f.engine.Table(ctx, id)
	require.NoError(t, err)
	require.Len(t, table.Columns, 2)
	competitor := table.Columns[1].SubjectID

	for _, subject := range []string{ownerID, competitor} {
		da, ok := table.Cell("domain_authority", subject)
		require.True(t, ok)
		require.NotNil(t, da, subject)
		assert.Equal(t, 40.0, *da)
	}

	visits, _ := table.Cell("estimated_org_visits", ownerID)
	require.NotNil(t, visits)
	assert.Equal(t, 900.0, *visits)
	compVisits, ok := table.Cell("estimated_org_visits", competitor)
	assert.True(t, ok)
	assert.Nil(t, compVisits)

	history, err := f.engine.History(ctx, competitor, "estimated_org_visits", 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}
