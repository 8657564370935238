package api

import "time"

type CompetitorInput struct {
	Name      string `json:"name,omitempty"`
	Site      string `json:"site,omitempty"`
	Twitter   string `json:"twitter,omitempty"`
	Instagram string `json:"instagram,omitempty"`
	Facebook  string `json:"facebook,omitempty"`
}

type SubmitReportRequest struct {
	OwnerID     string            `json:"owner_id"`
	OwnerName   string            `json:"owner_name"`
	OwnerSite   string            `json:"owner_site"`
	Owner       map[string]string `json:"owner_credentials,omitempty"`
	Competitors []CompetitorInput `json:"competitors,omitempty"`
}

type SubmitReportResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type Report struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"owner_id"`
	OwnerSite        string    `json:"owner_site"`
	Status           string    `json:"status"`
	AIInsight        string    `json:"ai_insight"`
	ArtifactLocation string    `json:"artifact_location,omitempty"`
	Error            string    `json:"error,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type Column struct {
	SubjectID string `json:"subject_id"`
	Name      string `json:"name"`
}

// KPIRow values follow the table's column order; missing cells are null.
type KPIRow struct {
	Key    string     `json:"key"`
	Label  string     `json:"label"`
	Values []*float64 `json:"values"`
}

type KPITable struct {
	Columns []Column `json:"columns"`
	Rows    []KPIRow `json:"rows"`
}

type Trend struct {
	Key       string   `json:"key"`
	Label     string   `json:"label"`
	SubjectID string   `json:"subject_id"`
	Subject   string   `json:"subject"`
	Previous  *float64 `json:"previous"`
	Current   *float64 `json:"current"`
	Direction string   `json:"direction"`
	DeltaPct  float64  `json:"delta_pct"`
}

type Snapshot struct {
	ID         int64    `json:"id"`
	ReportID   string   `json:"report_id,omitempty"`
	Metric     string   `json:"metric"`
	Value      *float64 `json:"value"`
	CapturedAt string   `json:"captured_at"`
}

type TokenRequest struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Scope        string     `json:"scope,omitempty"`
}

type Error struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}
