package adapters

import (
	"encoding/json"
	"time"

	"github.com/de-tools/market-atlas/pkg/models/api"
	"github.com/de-tools/market-atlas/pkg/models/domain"
	"github.com/de-tools/market-atlas/pkg/models/store"
)

func MapStoreSnapshotToDomain(s store.Snapshot) domain.Snapshot {
	var raw json.RawMessage
	if s.Raw != nil {
		raw = json.RawMessage(*s.Raw)
	}

	return domain.Snapshot{
		ID:         s.ID,
		ReportID:   s.ReportID,
		SubjectID:  s.SubjectID,
		Metric:     s.MetricName,
		Value:      s.Value,
		Raw:        raw,
		CapturedAt: s.CapturedAt,
	}
}

func MapDomainSnapshotToStore(s domain.Snapshot) store.Snapshot {
	var raw *string
	if len(s.Raw) > 0 {
		r := string(s.Raw)
		raw = &r
	}

	return store.Snapshot{
		ID:         s.ID,
		ReportID:   s.ReportID,
		SubjectID:  s.SubjectID,
		MetricName: s.Metric,
		Value:      s.Value,
		Raw:        raw,
		CapturedAt: s.CapturedAt,
	}
}

func MapDomainSnapshotToAPI(s domain.Snapshot) api.Snapshot {
	return api.Snapshot{
		ID:         s.ID,
		ReportID:   derefString(s.ReportID),
		Metric:     s.Metric,
		Value:      s.Value,
		CapturedAt: s.CapturedAt.UTC().Format(time.RFC3339),
	}
}

func MapDomainTableToAPI(t domain.Table) api.KPITable {
	out := api.KPITable{
		Columns: make([]api.Column, 0, len(t.Columns)),
		Rows:    make([]api.KPIRow, 0, len(t.Rows)),
	}
	for _, c := range t.Columns {
		out.Columns = append(out.Columns, api.Column{SubjectID: c.SubjectID, Name: c.Name})
	}
	for _, r := range t.Rows {
		out.Rows = append(out.Rows, api.KPIRow{Key: r.Key, Label: r.Label, Values: r.Cells})
	}
	return out
}

func MapAPITableToDomain(t api.KPITable) domain.Table {
	out := domain.Table{
		Columns: make([]domain.Column, 0, len(t.Columns)),
		Rows:    make([]domain.Row, 0, len(t.Rows)),
	}
	for _, c := range t.Columns {
		out.Columns = append(out.Columns, domain.Column{SubjectID: c.SubjectID, Name: c.Name})
	}
	for _, r := range t.Rows {
		out.Rows = append(out.Rows, domain.Row{Key: r.Key, Label: r.Label, Cells: r.Values})
	}
	return out
}

func MapDomainTrendsToAPI(rows []domain.TrendRow) []api.Trend {
	out := make([]api.Trend, 0, len(rows))
	for _, r := range rows {
		out = append(out, api.Trend{
			Key:       r.Key,
			Label:     r.Label,
			SubjectID: r.SubjectID,
			Subject:   r.Subject,
			Previous:  r.Previous,
			Current:   r.Current,
			Direction: string(r.Trend.Direction),
			DeltaPct:  r.Trend.DeltaPct,
		})
	}
	return out
}

func MapStoreTokenToDomain(t *store.Token) *domain.Token {
	if t == nil {
		return nil
	}
	return &domain.Token{
		SubjectID:    t.SubjectID,
		Provider:     domain.Provider(t.Provider),
		AccessToken:  t.AccessToken,
		RefreshToken: derefString(t.RefreshToken),
		ExpiresAt:    t.ExpiresAt,
		Scope:        t.Scope,
	}
}

func MapDomainTokenToStore(t domain.Token) store.Token {
	return store.Token{
		SubjectID:    t.SubjectID,
		Provider:     string(t.Provider),
		AccessToken:  t.AccessToken,
		RefreshToken: optionalString(t.RefreshToken),
		ExpiresAt:    t.ExpiresAt,
		Scope:        t.Scope,
	}
}
