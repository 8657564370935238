package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/de-tools/market-atlas/pkg/adapters"
	"github.com/de-tools/market-atlas/pkg/metrics"
	"github.com/de-tools/market-atlas/pkg/models/api"
	"github.com/de-tools/market-atlas/pkg/models/domain"
	"github.com/de-tools/market-atlas/pkg/models/store"
	"github.com/de-tools/market-atlas/pkg/services/kpi"
	"github.com/de-tools/market-atlas/pkg/services/queue"
	"github.com/de-tools/market-atlas/pkg/services/render"
	"github.com/de-tools/market-atlas/pkg/services/summary"
	"github.com/de-tools/market-atlas/pkg/store/duckdb"
	"github.com/de-tools/market-atlas/pkg/store/duckdb/report"
	"github.com/de-tools/market-atlas/pkg/store/duckdb/snapshot"
	workflowstore "github.com/de-tools/market-atlas/pkg/store/duckdb/workflow"
)

// Engine drives reports from submission to a rendered, summarised KPI table.
type Engine interface {
	Submit(ctx context.Context, in domain.SubmitInput) (string, error)
	Start(ctx context.Context, reportID string) error
	Status(ctx context.Context, reportID string) (domain.ReportStatus, error)
	Report(ctx context.Context, reportID string) (*domain.Report, error)
	Table(ctx context.Context, reportID string) (domain.Table, error)
	Trends(ctx context.Context, reportID string) ([]domain.TrendRow, error)
	History(ctx context.Context, subjectID, metric string, limit int) ([]domain.Snapshot, error)
	UpdateCredentials(ctx context.Context, subjectID string, creds domain.Credentials) error
	// Resubmit clones a report's owner and competitors into a new report and starts it.
	Resubmit(ctx context.Context, reportID string) (string, error)
	Resume(ctx context.Context) error
	Handle(ctx context.Context, task domain.Task) error
	Run(ctx context.Context) error
}

// Collector runs one collection phase for one subject.
type Collector interface {
	Collect(ctx context.Context, reportID, subjectID string, phase domain.Phase) (domain.CollectResult, error)
}

type Config struct {
	MaxCompetitors int
	MaxAttempts    int
}

func DefaultConfig() Config {
	return Config{MaxCompetitors: 2, MaxAttempts: 3}
}

type Dependencies struct {
	DB         *sql.DB
	Reports    report.Store
	Snapshots  snapshot.Store
	Workflows  workflowstore.Store
	Collector  Collector
	Reducer    *kpi.Reducer
	Renderer   render.Renderer
	Summarizer summary.Summarizer
	Queue      queue.Queue
}

type DefaultEngine struct {
	db         *sql.DB
	reports    report.Store
	snapshots  snapshot.Store
	workflows  workflowstore.Store
	collector  Collector
	reducer    *kpi.Reducer
	renderer   render.Renderer
	summarizer summary.Summarizer
	queue      queue.Queue
	config     Config
	now        func() time.Time
}

func NewEngine(deps Dependencies, config Config) (*DefaultEngine, error) {
	switch {
	case deps.DB == nil:
		return nil, fmt.Errorf("database connection is nil")
	case deps.Reports == nil, deps.Snapshots == nil, deps.Workflows == nil:
		return nil, fmt.Errorf("stores are required")
	case deps.Collector == nil, deps.Renderer == nil, deps.Summarizer == nil, deps.Queue == nil:
		return nil, fmt.Errorf("collector, renderer, summarizer and queue are required")
	}
	if deps.Reducer == nil {
		deps.Reducer = kpi.NewReducer(kpi.DefaultRegistry())
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}

	return &DefaultEngine{
		db:         deps.DB,
		reports:    deps.Reports,
		snapshots:  deps.Snapshots,
		workflows:  deps.Workflows,
		collector:  deps.Collector,
		reducer:    deps.Reducer,
		renderer:   deps.Renderer,
		summarizer: deps.Summarizer,
		queue:      deps.Queue,
		config:     config,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

func (e *DefaultEngine) Submit(ctx context.Context, in domain.SubmitInput) (string, error) {
	in, err := validateSubmission(in, e.config.MaxCompetitors)
	if err != nil {
		return "", err
	}

	now := e.now()
	reportID := uuid.NewString()

	ownerName := in.OwnerName
	if ownerName == "" {
		ownerName = domain.SiteName(in.OwnerSite)
	}
	ownerCreds := in.Owner.Merge(domain.Credentials{domain.FieldWebsite: in.OwnerSite})
	owner := domain.Subject{
		ID:          in.OwnerID,
		Name:        ownerName,
		Kind:        domain.SubjectKindOwner,
		Credentials: ownerCreds,
		CreatedAt:   now,
	}

	competitors := make([]store.Subject, 0, len(in.Competitors))
	for i, c := range in.Competitors {
		s := domain.Subject{
			ID:          uuid.NewString(),
			Name:        c.Name,
			Kind:        domain.SubjectKindCompetitor,
			ReportID:    reportID,
			Credentials: c.Credentials.Merge(nil),
			CreatedAt:   now,
		}
		s.Name = s.DisplayName()
		competitors = append(competitors, adapters.MapDomainSubjectToStore(s, i+1))
	}

	err = duckdb.RunInTx(ctx, e.db, func(ctx context.Context) error {
		err := e.reports.CreateReport(ctx, adapters.MapDomainSubjectToStore(owner, 0), store.Report{
			ID:        reportID,
			OwnerID:   in.OwnerID,
			OwnerSite: in.OwnerSite,
			Status:    string(domain.ReportStatusQueued),
			CreatedAt: now,
		}, competitors)
		if err != nil {
			return err
		}
		updates := make(map[string]string, len(ownerCreds))
		for k, v := range ownerCreds {
			updates[string(k)] = v
		}
		return e.reports.UpdateCredentials(ctx, in.OwnerID, updates)
	})
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}

	metrics.RecordTransition(string(domain.ReportStatusQueued))
	zerolog.Ctx(ctx).Info().
		Str("report", reportID).
		Str("owner", in.OwnerID).
		Int("competitors", len(competitors)).
		Msg("report submitted")
	return reportID, nil
}

// Start moves a queued report to collecting and dispatches the public stage.
// Any other status yields ErrNotQueued; a second workflow is never launched.
func (e *DefaultEngine) Start(ctx context.Context, reportID string) error {
	err := e.reports.TransitionStatus(ctx, reportID,
		string(domain.ReportStatusQueued), string(domain.ReportStatusCollecting), nil)
	if errors.Is(err, report.ErrStatusConflict) {
		return fmt.Errorf("%w: %s", ErrNotQueued, reportID)
	}
	if err != nil {
		return err
	}
	metrics.RecordTransition(string(domain.ReportStatusCollecting))

	if err := e.schedule(ctx, reportID, domain.StagePublic); err != nil {
		e.fail(ctx, reportID, err)
		return err
	}
	zerolog.Ctx(ctx).Info().Str("report", reportID).Msg("report started")
	return nil
}

func (e *DefaultEngine) Status(ctx context.Context, reportID string) (domain.ReportStatus, error) {
	r, err := e.Report(ctx, reportID)
	if err != nil {
		return "", err
	}
	return r.Status, nil
}

func (e *DefaultEngine) Report(ctx context.Context, reportID string) (*domain.Report, error) {
	r, err := e.reports.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	return adapters.MapStoreReportToDomain(r), nil
}

// Table returns the cached table of a ready report, reduces afresh while the
// report is still in flight, and refuses failed reports.
func (e *DefaultEngine) Table(ctx context.Context, reportID string) (domain.Table, error) {
	r, err := e.Report(ctx, reportID)
	if err != nil {
		return domain.Table{}, err
	}

	switch r.Status {
	case domain.ReportStatusError:
		return domain.Table{}, fmt.Errorf("%w: %s", ErrReportFailed, reportID)
	case domain.ReportStatusReady:
		if len(r.Result) > 0 {
			if t, err := decodeTable(r.Result); err == nil {
				return t, nil
			}
			zerolog.Ctx(ctx).Warn().Str("report", reportID).Msg("cached table unreadable, reducing")
		}
	}
	return e.reduce(ctx, r)
}

func (e *DefaultEngine) Trends(ctx context.Context, reportID string) ([]domain.TrendRow, error) {
	r, err := e.Report(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if r.Status != domain.ReportStatusReady {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotReady, reportID, r.Status)
	}

	current, err := e.Table(ctx, reportID)
	if err != nil {
		return nil, err
	}

	var previous domain.Table
	prev, err := e.reports.PreviousReady(ctx, r.OwnerID, r.CreatedAt)
	switch {
	case errors.Is(err, report.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		if previous, err = e.Table(ctx, prev.ID); err != nil {
			return nil, err
		}
	}
	return kpi.Compare(previous, current), nil
}

func (e *DefaultEngine) History(ctx context.Context, subjectID, metric string, limit int) ([]domain.Snapshot, error) {
	if _, err := e.reports.GetSubject(ctx, subjectID); err != nil {
		return nil, err
	}
	rows, err := e.snapshots.History(ctx, subjectID, metric, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Snapshot, 0, len(rows))
	for _, s := range rows {
		out = append(out, adapters.MapStoreSnapshotToDomain(s))
	}
	return out, nil
}

func (e *DefaultEngine) UpdateCredentials(ctx context.Context, subjectID string, creds domain.Credentials) error {
	fields := map[string]string{}
	updates := make(map[string]string, len(creds))
	for f, v := range creds {
		if !domain.IsKnownField(f) {
			fields[string(f)] = "is not a known field"
			continue
		}
		updates[string(f)] = v
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return e.reports.UpdateCredentials(ctx, subjectID, updates)
}

func (e *DefaultEngine) Resubmit(ctx context.Context, reportID string) (string, error) {
	r, err := e.reports.GetReport(ctx, reportID)
	if err != nil {
		return "", err
	}
	subjects, err := e.reports.ListSubjects(ctx, reportID)
	if err != nil {
		return "", err
	}

	in := domain.SubmitInput{OwnerID: r.OwnerID, OwnerSite: r.OwnerSite}
	for _, s := range subjects {
		subject := adapters.MapStoreSubjectToDomain(&s)
		if subject.Kind == domain.SubjectKindOwner {
			continue
		}
		in.Competitors = append(in.Competitors, domain.CompetitorInput{
			Name:        subject.Name,
			Credentials: subject.Credentials,
		})
	}

	newID, err := e.Submit(ctx, in)
	if err != nil {
		return "", err
	}
	if err := e.Start(ctx, newID); err != nil {
		return newID, err
	}
	return newID, nil
}

// Run resumes in-flight reports and then consumes tasks until ctx is done.
func (e *DefaultEngine) Run(ctx context.Context) error {
	if err := e.Resume(ctx); err != nil {
		return fmt.Errorf("resume workflows: %w", err)
	}
	return e.queue.Consume(ctx, e.Handle)
}

// Resume re-dispatches the unfinished work of collecting reports: open tasks are
// published again and a completed stage without a successor is advanced.
func (e *DefaultEngine) Resume(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	collecting, err := e.reports.ListReports(ctx, string(domain.ReportStatusCollecting))
	if err != nil {
		return err
	}

	for _, r := range collecting {
		if err := e.resumeReport(ctx, r.ID); err != nil {
			logger.Error().Err(err).Str("report", r.ID).Msg("failed to resume report")
			e.fail(ctx, r.ID, err)
		}
	}
	if len(collecting) > 0 {
		logger.Info().Int("reports", len(collecting)).Msg("resumed in-flight reports")
	}
	return nil
}

func (e *DefaultEngine) resumeReport(ctx context.Context, reportID string) error {
	groups, err := e.workflows.ListGroups(ctx, reportID)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		return e.schedule(ctx, reportID, domain.StagePublic)
	}

	open, err := e.workflows.ListOpenTasks(ctx, reportID)
	if err != nil {
		return err
	}
	for _, t := range open {
		if err := e.queue.Publish(ctx, adapters.MapStoreWorkflowTaskToDomain(t)); err != nil {
			return &PhaseSchedulingError{ReportID: reportID, Stage: domain.Stage(t.Stage), Err: err}
		}
	}
	if len(open) > 0 {
		return nil
	}

	last := latestGroup(groups)
	if last.Pending > 0 {
		return nil
	}
	next, ok := domain.Stage(last.Stage).Next()
	if !ok {
		// summarize finished but the final transition did not land
		return e.markReady(ctx, reportID)
	}
	return e.schedule(ctx, reportID, next)
}

func latestGroup(groups []store.WorkflowGroup) store.WorkflowGroup {
	rank := make(map[domain.Stage]int, len(domain.StageOrder))
	for i, s := range domain.StageOrder {
		rank[s] = i
	}
	last := groups[0]
	for _, g := range groups[1:] {
		if rank[domain.Stage(g.Stage)] > rank[domain.Stage(last.Stage)] {
			last = g
		}
	}
	return last
}

// schedule creates the stage's task group and publishes its tasks. A group that
// already exists for the stage is left alone.
func (e *DefaultEngine) schedule(ctx context.Context, reportID string, stage domain.Stage) error {
	tasks, err := e.tasksFor(ctx, reportID, stage)
	if err != nil {
		return &PhaseSchedulingError{ReportID: reportID, Stage: stage, Err: err}
	}

	groupID := uuid.NewString()
	rows := make([]store.WorkflowTask, 0, len(tasks))
	for i := range tasks {
		tasks[i].GroupID = groupID
		rows = append(rows, adapters.MapDomainTaskToStore(tasks[i]))
	}

	_, created, err := e.workflows.CreateGroup(ctx, store.WorkflowGroup{
		ID:       groupID,
		ReportID: reportID,
		Stage:    string(stage),
	}, rows)
	if err != nil {
		return &PhaseSchedulingError{ReportID: reportID, Stage: stage, Err: err}
	}
	if !created {
		zerolog.Ctx(ctx).Debug().Str("report", reportID).Str("stage", string(stage)).Msg("stage already scheduled")
		return nil
	}

	for _, t := range tasks {
		if err := e.queue.Publish(ctx, t); err != nil {
			return &PhaseSchedulingError{ReportID: reportID, Stage: stage, Err: err}
		}
	}
	zerolog.Ctx(ctx).Info().
		Str("report", reportID).
		Str("stage", string(stage)).
		Int("tasks", len(tasks)).
		Msg("stage scheduled")
	return nil
}

func (e *DefaultEngine) tasksFor(ctx context.Context, reportID string, stage domain.Stage) ([]domain.Task, error) {
	newTask := func(kind domain.TaskKind, subjectID string, phase domain.Phase) domain.Task {
		return domain.Task{
			ID:        uuid.NewString(),
			ReportID:  reportID,
			Kind:      kind,
			Stage:     stage,
			SubjectID: subjectID,
			Phase:     phase,
		}
	}

	switch stage {
	case domain.StagePublic:
		subjects, err := e.reports.ListSubjects(ctx, reportID)
		if err != nil {
			return nil, err
		}
		tasks := make([]domain.Task, 0, len(subjects))
		for _, s := range subjects {
			tasks = append(tasks, newTask(domain.TaskKindCollect, s.ID, domain.PhasePublic))
		}
		return tasks, nil
	case domain.StagePrivate:
		r, err := e.reports.GetReport(ctx, reportID)
		if err != nil {
			return nil, err
		}
		return []domain.Task{newTask(domain.TaskKindCollect, r.OwnerID, domain.PhasePrivate)}, nil
	case domain.StageFinalize:
		return []domain.Task{newTask(domain.TaskKindFinalize, "", "")}, nil
	case domain.StageSummarize:
		return []domain.Task{newTask(domain.TaskKindSummarize, "", "")}, nil
	default:
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
}

// reduce builds the table from every snapshot tagged with the report.
func (e *DefaultEngine) reduce(ctx context.Context, r *domain.Report) (domain.Table, error) {
	subjects, err := e.reports.ListSubjects(ctx, r.ID)
	if err != nil {
		return domain.Table{}, err
	}
	columns := make([]domain.Column, 0, len(subjects))
	for _, s := range subjects {
		subject := adapters.MapStoreSubjectToDomain(&s)
		if subject.Kind == domain.SubjectKindOwner && subject.Name == "" {
			subject.Name = domain.SiteName(r.OwnerSite)
		}
		columns = append(columns, domain.Column{SubjectID: subject.ID, Name: subject.DisplayName()})
	}

	rows, err := e.snapshots.ListForReport(ctx, r.ID)
	if err != nil {
		return domain.Table{}, err
	}
	snaps := make([]domain.Snapshot, 0, len(rows))
	for _, s := range rows {
		snaps = append(snaps, adapters.MapStoreSnapshotToDomain(s))
	}
	return e.reducer.Reduce(columns, snaps), nil
}

func encodeTable(t domain.Table) (string, error) {
	b, err := json.Marshal(adapters.MapDomainTableToAPI(t))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeTable(raw []byte) (domain.Table, error) {
	var t api.KPITable
	if err := json.Unmarshal(raw, &t); err != nil {
		return domain.Table{}, err
	}
	return adapters.MapAPITableToDomain(t), nil
}
