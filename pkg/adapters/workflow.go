package adapters

import (
	"github.com/de-tools/market-atlas/pkg/models/domain"
	"github.com/de-tools/market-atlas/pkg/models/store"
)

func MapStoreWorkflowGroupToDomain(g *store.WorkflowGroup) *domain.WorkflowGroup {
	if g == nil {
		return nil
	}

	return &domain.WorkflowGroup{
		ID:          g.ID,
		ReportID:    g.ReportID,
		Stage:       domain.Stage(g.Stage),
		Total:       g.Total,
		Pending:     g.Pending,
		CreatedAt:   g.CreatedAt,
		CompletedAt: g.CompletedAt,
	}
}

func MapStoreWorkflowTaskToDomain(t store.WorkflowTask) domain.Task {
	task := domain.Task{
		ID:       t.ID,
		GroupID:  t.GroupID,
		ReportID: t.ReportID,
		Kind:     domain.TaskKind(t.Kind),
		Stage:    domain.Stage(t.Stage),
	}
	if t.SubjectID != nil {
		task.SubjectID = *t.SubjectID
	}
	if t.Phase != nil {
		task.Phase = domain.Phase(*t.Phase)
	}
	return task
}

func MapDomainTaskToStore(t domain.Task) store.WorkflowTask {
	return store.WorkflowTask{
		ID:        t.ID,
		GroupID:   t.GroupID,
		ReportID:  t.ReportID,
		Kind:      string(t.Kind),
		Stage:     string(t.Stage),
		SubjectID: optionalString(t.SubjectID),
		Phase:     optionalString(string(t.Phase)),
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
