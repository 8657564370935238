package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/de-tools/market-atlas/pkg/adapters"
	"github.com/de-tools/market-atlas/pkg/metrics"
	"github.com/de-tools/market-atlas/pkg/models/domain"
	"github.com/de-tools/market-atlas/pkg/services/render"
	"github.com/de-tools/market-atlas/pkg/store/duckdb/report"
	workflowstore "github.com/de-tools/market-atlas/pkg/store/duckdb/workflow"
)

// Handle executes one queued task. Returning an error asks the queue to redeliver.
// On the last delivery an error is not returned: the report fails and the task is
// closed so the queue never drops a task with its report still collecting.
func (e *DefaultEngine) Handle(ctx context.Context, task domain.Task) error {
	logger := zerolog.Ctx(ctx).With().
		Str("report", task.ReportID).
		Str("task", task.ID).
		Str("kind", string(task.Kind)).
		Int("attempt", task.Attempt).
		Logger()
	ctx = logger.WithContext(ctx)

	err := e.handle(ctx, task)
	if err == nil {
		return nil
	}
	if task.Attempt+1 < e.config.MaxAttempts {
		metrics.RecordTask(string(task.Kind), "retry")
		return err
	}

	e.abandon(ctx, task, err)
	return nil
}

func (e *DefaultEngine) handle(ctx context.Context, task domain.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.ID, r)
		}
	}()
	logger := zerolog.Ctx(ctx)

	stored, err := e.workflows.GetTask(ctx, task.ID)
	if errors.Is(err, workflowstore.ErrTaskNotFound) {
		logger.Warn().Msg("dropping unknown task")
		metrics.RecordTask(string(task.Kind), "dropped")
		return nil
	}
	if err != nil {
		return err
	}
	if stored.Done {
		// A redelivery after the counter moved may still owe the next stage.
		logger.Debug().Msg("task already done")
		metrics.RecordTask(string(task.Kind), "duplicate")
		return e.complete(ctx, task)
	}

	r, err := e.reports.GetReport(ctx, task.ReportID)
	if errors.Is(err, report.ErrNotFound) {
		logger.Warn().Msg("report gone, closing task")
		return e.close(ctx, task)
	}
	if err != nil {
		return err
	}
	if domain.ReportStatus(r.Status) != domain.ReportStatusCollecting {
		logger.Debug().Str("status", r.Status).Msg("report not collecting, closing task")
		return e.close(ctx, task)
	}

	switch task.Kind {
	case domain.TaskKindCollect:
		err = e.collect(ctx, task)
	case domain.TaskKindFinalize:
		e.finalize(ctx, adapters.MapStoreReportToDomain(r))
	case domain.TaskKindSummarize:
		e.summarize(ctx, adapters.MapStoreReportToDomain(r))
	default:
		e.fail(ctx, task.ReportID, fmt.Errorf("unknown task kind %q", task.Kind))
		return e.close(ctx, task)
	}
	if err != nil {
		return err
	}

	metrics.RecordTask(string(task.Kind), "done")
	return e.complete(ctx, task)
}

// abandon gives up on a task whose bookkeeping keeps failing. The report moves
// to ERROR and the task is closed on a best-effort basis.
func (e *DefaultEngine) abandon(ctx context.Context, task domain.Task, cause error) {
	logger := zerolog.Ctx(ctx)
	logger.Error().Err(cause).Msg("task attempts exhausted")
	metrics.RecordTask(string(task.Kind), "abandoned")

	e.fail(ctx, task.ReportID, &PhaseSchedulingError{ReportID: task.ReportID, Stage: task.Stage, Err: cause})
	if _, err := e.workflows.CompleteTask(ctx, task.ID); err != nil {
		logger.Warn().Err(err).Msg("could not close abandoned task")
	}
}

// collect runs one subject's phase. Adapter failures never reach here; only a
// broken report or store does. Transient errors are retried until the attempts
// run out, after which the task counts as done so the barrier still releases.
func (e *DefaultEngine) collect(ctx context.Context, task domain.Task) error {
	logger := zerolog.Ctx(ctx)

	res, err := e.collector.Collect(ctx, task.ReportID, task.SubjectID, task.Phase)
	switch {
	case err == nil:
		logger.Info().
			Str("subject", task.SubjectID).
			Str("phase", string(task.Phase)).
			Int("written", res.Written).
			Int("failed", len(res.Failed)).
			Int("skipped", len(res.Skipped)).
			Msg("subject collected")
		return nil
	case errors.Is(err, report.ErrNotFound):
		e.fail(ctx, task.ReportID, err)
		return nil
	case task.Attempt+1 < e.config.MaxAttempts:
		logger.Warn().Err(err).Msg("collection failed, retrying")
		return err
	default:
		logger.Error().Err(err).Msg("collection failed, giving up on subject")
		return nil
	}
}

// finalize reduces, stores and renders the table. Any failure here fails the report.
func (e *DefaultEngine) finalize(ctx context.Context, r *domain.Report) {
	table, err := e.reduce(ctx, r)
	if err != nil {
		e.fail(ctx, r.ID, fmt.Errorf("reduce: %w", err))
		return
	}

	result, err := encodeTable(table)
	if err != nil {
		e.fail(ctx, r.ID, fmt.Errorf("encode table: %w", err))
		return
	}
	if err := e.reports.SetResult(ctx, r.ID, result); err != nil {
		e.fail(ctx, r.ID, fmt.Errorf("store table: %w", err))
		return
	}

	location, err := e.renderer.Render(ctx, render.Input{
		ReportID:    r.ID,
		Brand:       brand(table, r),
		OwnerSite:   r.OwnerSite,
		Table:       table,
		GeneratedAt: e.now(),
	})
	if err != nil {
		e.fail(ctx, r.ID, err)
		return
	}
	if err := e.reports.SetArtifact(ctx, r.ID, location); err != nil {
		e.fail(ctx, r.ID, fmt.Errorf("store artifact location: %w", err))
		return
	}
	zerolog.Ctx(ctx).Info().Str("artifact", location).Msg("report rendered")
}

// summarize attaches the narrative and marks the report ready. A summarizer
// failure leaves an empty insight and does not fail the report.
func (e *DefaultEngine) summarize(ctx context.Context, r *domain.Report) {
	logger := zerolog.Ctx(ctx)

	table, err := decodeTable(r.Result)
	if err != nil {
		if table, err = e.reduce(ctx, r); err != nil {
			e.fail(ctx, r.ID, fmt.Errorf("reduce: %w", err))
			return
		}
	}

	insight, err := e.summarizer.Summarize(ctx, table, brand(table, r))
	if err != nil {
		logger.Warn().Err(err).Msg("summary unavailable, continuing without insight")
		insight = ""
	}
	if err := e.reports.SetInsight(ctx, r.ID, insight); err != nil {
		logger.Warn().Err(err).Msg("failed to store insight")
	}

	if err := e.markReady(ctx, r.ID); err != nil {
		logger.Error().Err(err).Msg("failed to mark report ready")
	}
}

func (e *DefaultEngine) markReady(ctx context.Context, reportID string) error {
	err := e.reports.TransitionStatus(ctx, reportID,
		string(domain.ReportStatusCollecting), string(domain.ReportStatusReady), nil)
	if err != nil {
		return err
	}
	metrics.RecordTransition(string(domain.ReportStatusReady))
	zerolog.Ctx(ctx).Info().Str("report", reportID).Msg("report ready")
	return nil
}

// complete marks the task done and, once its group has drained, schedules the
// next stage. Scheduling is idempotent per stage, so a redelivered task may retry it.
func (e *DefaultEngine) complete(ctx context.Context, task domain.Task) error {
	progress, err := e.workflows.CompleteTask(ctx, task.ID)
	if err != nil {
		return err
	}
	if progress.Pending > 0 {
		return nil
	}

	next, ok := domain.Stage(progress.Stage).Next()
	if !ok {
		return nil
	}

	status, err := e.reports.GetReport(ctx, task.ReportID)
	if errors.Is(err, report.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load report before %s stage: %w", next, err)
	}
	if domain.ReportStatus(status.Status) != domain.ReportStatusCollecting {
		return nil
	}

	if err := e.schedule(ctx, task.ReportID, next); err != nil {
		e.fail(ctx, task.ReportID, err)
	}
	return nil
}

// close completes a task without running it so its group does not stall.
func (e *DefaultEngine) close(ctx context.Context, task domain.Task) error {
	metrics.RecordTask(string(task.Kind), "skipped")
	_, err := e.workflows.CompleteTask(ctx, task.ID)
	return err
}

// fail moves a collecting report to ERROR. Reports already terminal are left as they are.
func (e *DefaultEngine) fail(ctx context.Context, reportID string, cause error) {
	logger := zerolog.Ctx(ctx)

	reason := cause.Error()
	err := e.reports.TransitionStatus(ctx, reportID,
		string(domain.ReportStatusCollecting), string(domain.ReportStatusError), &reason)
	if err != nil {
		logger.Warn().Err(err).Str("report", reportID).Msg("could not mark report failed")
		return
	}
	metrics.RecordTransition(string(domain.ReportStatusError))
	logger.Error().Err(cause).Str("report", reportID).Msg("report failed")
}

func brand(t domain.Table, r *domain.Report) string {
	if len(t.Columns) > 0 && t.Columns[0].Name != "" {
		return t.Columns[0].Name
	}
	return domain.SiteName(r.OwnerSite)
}
