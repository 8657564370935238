package store

import "time"

type WorkflowGroup struct {
	ID          string
	ReportID    string
	Stage       string
	Total       int
	Pending     int
	CreatedAt   time.Time
	CompletedAt *time.Time
}

type WorkflowTask struct {
	ID         string
	GroupID    string
	ReportID   string
	Kind       string
	Stage      string
	SubjectID  *string
	Phase      *string
	Done       bool
	FinishedAt *time.Time
}
