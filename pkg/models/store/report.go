package store

import "time"

type Subject struct {
	ID          string
	Name        string
	Kind        string
	ReportID    *string
	Position    int
	Credentials map[string]string
	CreatedAt   time.Time
}

type Report struct {
	ID               string
	OwnerID          string
	OwnerSite        string
	Status           string
	AIInsight        string
	Result           *string
	ArtifactLocation *string
	Error            *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Snapshot struct {
	ID         int64
	ReportID   *string
	SubjectID  string
	MetricName string
	Value      *float64
	Raw        *string
	CapturedAt time.Time
}

type Token struct {
	SubjectID    string
	Provider     string
	AccessToken  string
	RefreshToken *string
	ExpiresAt    *time.Time
	Scope        string
	UpdatedAt    time.Time
}
