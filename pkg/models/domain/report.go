package domain

import (
	"encoding/json"
	"time"
)

type ReportStatus string

const (
	ReportStatusQueued     ReportStatus = "queued"
	ReportStatusCollecting ReportStatus = "collecting"
	ReportStatusReady      ReportStatus = "ready"
	ReportStatusError      ReportStatus = "error"
)

func (s ReportStatus) Terminal() bool {
	return s == ReportStatusReady || s == ReportStatusError
}

// Report is the unit of work: one owner, zero or more competitors, and the derived outputs.
type Report struct {
	ID               string
	OwnerID          string
	OwnerSite        string
	Status           ReportStatus
	AIInsight        string
	Result           json.RawMessage
	ArtifactLocation string
	Error            *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CompetitorInput is a competitor as supplied at submission time.
type CompetitorInput struct {
	Name        string
	Credentials Credentials
}

type SubmitInput struct {
	OwnerID     string
	OwnerName   string
	OwnerSite   string
	Owner       Credentials
	Competitors []CompetitorInput
}
