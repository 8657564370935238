package domain

import "time"

// Stage is one link of the report chain. Each stage runs as a group of tasks joined by a barrier.
type Stage string

const (
	StagePublic    Stage = "public"
	StagePrivate   Stage = "private"
	StageFinalize  Stage = "finalize"
	StageSummarize Stage = "summarize"
)

var StageOrder = []Stage{StagePublic, StagePrivate, StageFinalize, StageSummarize}

// Next returns the stage that follows s, or false when s is the last one.
func (s Stage) Next() (Stage, bool) {
	for i, st := range StageOrder {
		if st == s && i+1 < len(StageOrder) {
			return StageOrder[i+1], true
		}
	}
	return "", false
}

type TaskKind string

const (
	TaskKindCollect   TaskKind = "collect"
	TaskKindFinalize  TaskKind = "finalize"
	TaskKindSummarize TaskKind = "summarize"
)

// Task is a queued unit of work. Attempt counts deliveries starting at zero.
type Task struct {
	ID        string   `json:"id"`
	GroupID   string   `json:"group_id"`
	ReportID  string   `json:"report_id"`
	Kind      TaskKind `json:"kind"`
	Stage     Stage    `json:"stage"`
	SubjectID string   `json:"subject_id,omitempty"`
	Phase     Phase    `json:"phase,omitempty"`
	Attempt   int      `json:"attempt"`
}

// GroupProgress is the outcome of marking a task done.
type GroupProgress struct {
	GroupID  string
	ReportID string
	Stage    Stage
	Pending  int
	// Counted is false when the task had already been marked done.
	Counted bool
}

type WorkflowGroup struct {
	ID          string
	ReportID    string
	Stage       Stage
	Total       int
	Pending     int
	CreatedAt   time.Time
	CompletedAt *time.Time
}

type Token struct {
	SubjectID    string
	Provider     Provider
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	Scope        string
}
