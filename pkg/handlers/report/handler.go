package report

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/de-tools/market-atlas/pkg/adapters"
	"github.com/de-tools/market-atlas/pkg/models/api"
	"github.com/de-tools/market-atlas/pkg/models/domain"
	"github.com/de-tools/market-atlas/pkg/services/credentials"
	"github.com/de-tools/market-atlas/pkg/services/workflow"
)

const (
	defaultHistoryLimit = 52 // one year of weekly refreshes
	maxBodyBytes        = 1 << 20
)

// TokenWriter stores user-granted provider tokens.
type TokenWriter interface {
	Put(ctx context.Context, t domain.Token) error
}

type Handler struct {
	engine workflow.Engine
	tokens TokenWriter
}

func NewHandler(engine workflow.Engine, tokens TokenWriter) *Handler {
	return &Handler{
		engine: engine,
		tokens: tokens,
	}
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitReportRequest
	if !decode(w, r, &req) {
		return
	}

	id, err := h.engine.Submit(r.Context(), adapters.MapAPISubmitToDomain(req))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, api.SubmitReportResponse{ID: id, Status: string(domain.ReportStatusQueued)})
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "report")
	if err := h.engine.Start(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, api.SubmitReportResponse{ID: id, Status: string(domain.ReportStatusCollecting)})
}

func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.Report(r.Context(), chi.URLParam(r, "report"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, adapters.MapDomainReportToAPI(report))
}

func (h *Handler) GetKPITable(w http.ResponseWriter, r *http.Request) {
	table, err := h.engine.Table(r.Context(), chi.URLParam(r, "report"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, adapters.MapDomainTableToAPI(table))
}

func (h *Handler) GetTrends(w http.ResponseWriter, r *http.Request) {
	rows, err := h.engine.Trends(r.Context(), chi.URLParam(r, "report"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, adapters.MapDomainTrendsToAPI(rows))
}

func (h *Handler) GetMetricHistory(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject")
	metric := chi.URLParam(r, "metric")

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, &workflow.ValidationError{Fields: map[string]string{"limit": "must be a positive integer"}})
			return
		}
		limit = n
	}

	history, err := h.engine.History(r.Context(), subject, metric, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response := make([]api.Snapshot, 0, len(history))
	for _, s := range history {
		response = append(response, adapters.MapDomainSnapshotToAPI(s))
	}
	writeJSON(w, r, http.StatusOK, response)
}

func (h *Handler) UpdateCredentials(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if !decode(w, r, &req) {
		return
	}

	subject := chi.URLParam(r, "subject")
	if err := h.engine.UpdateCredentials(r.Context(), subject, adapters.MapAPICredentialsToDomain(req)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PutToken accepts either a grant name or the name of a private provider.
func (h *Handler) PutToken(w http.ResponseWriter, r *http.Request) {
	var req api.TokenRequest
	if !decode(w, r, &req) {
		return
	}

	grant := domain.Provider(strings.ToLower(chi.URLParam(r, "provider")))
	if g, ok := credentials.GrantFor(grant); ok {
		grant = g
	}

	fields := map[string]string{}
	if !credentials.IsGrant(grant) {
		fields["provider"] = "must be one of google, meta, shopify"
	}
	if strings.TrimSpace(req.AccessToken) == "" {
		fields["access_token"] = "is required"
	}
	if len(fields) > 0 {
		writeError(w, r, &workflow.ValidationError{Fields: fields})
		return
	}

	err := h.tokens.Put(r.Context(), domain.Token{
		SubjectID:    chi.URLParam(r, "subject"),
		Provider:     grant,
		AccessToken:  strings.TrimSpace(req.AccessToken),
		RefreshToken: req.RefreshToken,
		ExpiresAt:    req.ExpiresAt,
		Scope:        req.Scope,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decode(w http.ResponseWriter, r *http.Request, out any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(out); err != nil {
		writeJSON(w, r, http.StatusBadRequest, api.Error{Error: "malformed request body"})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *workflow.ValidationError

	switch {
	case errors.As(err, &verr):
		writeJSON(w, r, http.StatusBadRequest, api.Error{Error: "invalid request", Fields: verr.Fields})
	case errors.Is(err, workflow.ErrNotFound):
		writeJSON(w, r, http.StatusNotFound, api.Error{Error: err.Error()})
	case errors.Is(err, workflow.ErrNotQueued),
		errors.Is(err, workflow.ErrReportFailed),
		errors.Is(err, workflow.ErrNotReady):
		writeJSON(w, r, http.StatusConflict, api.Error{Error: err.Error()})
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		writeJSON(w, r, http.StatusInternalServerError, api.Error{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to encode response")
	}
}
