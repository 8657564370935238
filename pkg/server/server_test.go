package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/market-atlas/pkg/models/api"
	"github.com/de-tools/market-atlas/pkg/models/domain"
	"github.com/de-tools/market-atlas/pkg/services/workflow"
)

type mockEngine struct {
	mock.Mock
	workflow.Engine
}

func (m *mockEngine) Submit(ctx context.Context, in domain.SubmitInput) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

func (m *mockEngine) Start(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockEngine) Report(ctx context.Context, id string) (*domain.Report, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Report), args.Error(1)
}

func (m *mockEngine) Table(ctx context.Context, id string) (domain.Table, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Table), args.Error(1)
}

type mockTokens struct {
	mock.Mock
}

func (m *mockTokens) Put(ctx context.Context, t domain.Token) error {
	return m.Called(ctx, t).Error(0)
}

func TestWebAPI_Endpoints(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t))

	engine := new(mockEngine)
	tokens := new(mockTokens)

	router := ConfigureRouter(Config{
		Addr: ":8080",
		Dependencies: Dependencies{
			Engine: engine,
			Tokens: tokens,
			Logger: logger,
		},
	})
	testServer := httptest.NewServer(router)
	defer testServer.Close()

	tests := []struct {
		name           string
		method         string
		path           string
		body           string
		setupMocks     func()
		expectedStatus int
		expected       interface{}
		parseResponse  func([]byte) (interface{}, error)
	}{
		{
			name:   "SubmitReport",
			method: http.MethodPost,
			path:   "/api/v1/reports",
			body:   `{"owner_id":"o1","owner_site":"acme.com"}`,
			setupMocks: func() {
				engine.On("Submit", mock.Anything, mock.Anything).Return("r1", nil).Once()
			},
			expectedStatus: http.StatusCreated,
			expected:       api.SubmitReportResponse{ID: "r1", Status: "queued"},
			parseResponse:  unmarshalResponse[api.SubmitReportResponse](),
		},
		{
			name:   "StartReport",
			method: http.MethodPost,
			path:   "/api/v1/reports/r1/start",
			setupMocks: func() {
				engine.On("Start", mock.Anything, "r1").Return(nil).Once()
			},
			expectedStatus: http.StatusAccepted,
			expected:       api.SubmitReportResponse{ID: "r1", Status: "collecting"},
			parseResponse:  unmarshalResponse[api.SubmitReportResponse](),
		},
		{
			name:   "GetReport_NotFound",
			method: http.MethodGet,
			path:   "/api/v1/reports/missing",
			setupMocks: func() {
				engine.On("Report", mock.Anything, "missing").Return(nil, workflow.ErrNotFound).Once()
			},
			expectedStatus: http.StatusNotFound,
			expected:       api.Error{Error: workflow.ErrNotFound.Error()},
			parseResponse:  unmarshalResponse[api.Error](),
		},
		{
			name:   "GetKPITable",
			method: http.MethodGet,
			path:   "/api/v1/reports/r1/kpis",
			setupMocks: func() {
				engine.On("Table", mock.Anything, "r1").Return(domain.Table{
					Columns: []domain.Column{{SubjectID: "o1", Name: "Acme"}},
					Rows:    []domain.Row{{Key: "review_count", Label: "Review Count", Cells: []*float64{domain.Float(12)}}},
				}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expected: api.KPITable{
				Columns: []api.Column{{SubjectID: "o1", Name: "Acme"}},
				Rows:    []api.KPIRow{{Key: "review_count", Label: "Review Count", Values: []*float64{domain.Float(12)}}},
			},
			parseResponse: unmarshalResponse[api.KPITable](),
		},
		{
			name:           "Health",
			method:         http.MethodGet,
			path:           "/healthz",
			setupMocks:     func() {},
			expectedStatus: http.StatusOK,
			expected:       "",
			parseResponse: func(data []byte) (interface{}, error) {
				return string(data), nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setupMocks()

			req, err := http.NewRequest(tt.method, testServer.URL+tt.path, strings.NewReader(tt.body))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			got, err := tt.parseResponse(body)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	engine.AssertExpectations(t)
}

func TestWebAPI_Metrics(t *testing.T) {
	router := ConfigureRouter(Config{Dependencies: Dependencies{Engine: new(mockEngine), Tokens: new(mockTokens)}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestWebAPI_StartStopsWithContext(t *testing.T) {
	web := NewWebAPI(Config{
		Addr:         "127.0.0.1:0",
		Dependencies: Dependencies{Engine: new(mockEngine), Tokens: new(mockTokens), Logger: zerolog.Nop()},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, web.Start(ctx))
}

func unmarshalResponse[T any]() func([]byte) (interface{}, error) {
	return func(data []byte) (interface{}, error) {
		var result T
		err := json.Unmarshal(data, &result)
		return result, err
	}
}
