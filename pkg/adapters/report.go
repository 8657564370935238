package adapters

import (
	"encoding/json"

	"github.com/de-tools/market-atlas/pkg/models/api"
	"github.com/de-tools/market-atlas/pkg/models/domain"
	"github.com/de-tools/market-atlas/pkg/models/store"
)

func MapStoreSubjectToDomain(s *store.Subject) *domain.Subject {
	if s == nil {
		return nil
	}

	creds := make(domain.Credentials, len(s.Credentials))
	for k, v := range s.Credentials {
		creds[domain.Field(k)] = v
	}

	return &domain.Subject{
		ID:          s.ID,
		Name:        s.Name,
		Kind:        domain.SubjectKind(s.Kind),
		ReportID:    derefString(s.ReportID),
		Credentials: creds,
		CreatedAt:   s.CreatedAt,
	}
}

func MapDomainSubjectToStore(s domain.Subject, position int) store.Subject {
	creds := make(map[string]string, len(s.Credentials))
	for k, v := range s.Credentials {
		if v != "" {
			creds[string(k)] = v
		}
	}

	return store.Subject{
		ID:          s.ID,
		Name:        s.Name,
		Kind:        string(s.Kind),
		ReportID:    optionalString(s.ReportID),
		Position:    position,
		Credentials: creds,
		CreatedAt:   s.CreatedAt,
	}
}

func MapStoreReportToDomain(r *store.Report) *domain.Report {
	if r == nil {
		return nil
	}

	var result json.RawMessage
	if r.Result != nil {
		result = json.RawMessage(*r.Result)
	}

	return &domain.Report{
		ID:               r.ID,
		OwnerID:          r.OwnerID,
		OwnerSite:        r.OwnerSite,
		Status:           domain.ReportStatus(r.Status),
		AIInsight:        r.AIInsight,
		Result:           result,
		ArtifactLocation: derefString(r.ArtifactLocation),
		Error:            r.Error,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func MapDomainReportToAPI(r *domain.Report) api.Report {
	return api.Report{
		ID:               r.ID,
		OwnerID:          r.OwnerID,
		OwnerSite:        r.OwnerSite,
		Status:           string(r.Status),
		AIInsight:        r.AIInsight,
		ArtifactLocation: r.ArtifactLocation,
		Error:            derefString(r.Error),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func MapAPISubmitToDomain(req api.SubmitReportRequest) domain.SubmitInput {
	in := domain.SubmitInput{
		OwnerID:   req.OwnerID,
		OwnerName: req.OwnerName,
		OwnerSite: req.OwnerSite,
		Owner:     mapAPICredentials(req.Owner),
	}
	for _, c := range req.Competitors {
		in.Competitors = append(in.Competitors, domain.CompetitorInput{
			Name: c.Name,
			Credentials: domain.Credentials{
				domain.FieldWebsite:   c.Site,
				domain.FieldTwitter:   c.Twitter,
				domain.FieldInstagram: c.Instagram,
				domain.FieldFacebook:  c.Facebook,
			},
		})
	}
	return in
}

func mapAPICredentials(in map[string]string) domain.Credentials {
	out := make(domain.Credentials, len(in))
	for k, v := range in {
		out[domain.Field(k)] = v
	}
	return out
}

func MapAPICredentialsToDomain(in map[string]string) domain.Credentials {
	return mapAPICredentials(in)
}
