package summary

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/market-atlas/pkg/models/domain"
)

var table = domain.Table{
	Columns: []domain.Column{{SubjectID: "owner", Name: "Acme"}, {SubjectID: "comp", Name: "b.com"}},
	Rows: []domain.Row{
		{Key: "domain_authority", Label: "Domain Authority", Cells: []*float64{domain.Float(42), nil}},
	},
}

func TestClient_Summarize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultModel, req.Model)
		assert.Equal(t, 0.7, req.Temperature)
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, "system", req.Messages[0].Role)
			assert.Contains(t, req.Messages[1].Content, "Brand: Acme\nKPI_Table_JSON:\n")
			assert.Contains(t, req.Messages[1].Content, `"Domain Authority":[42,null]`)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"\n- Grow backlinks\n"}}]}`))
	}))
	t.Cleanup(server.Close)

	c := NewClient(Config{Endpoint: server.URL, APIKey: "key"})
	got, err := c.Summarize(context.Background(), table, "Acme")
	require.NoError(t, err)
	assert.Equal(t, "- Grow backlinks", got)
}

func TestClient_Failures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "upstream error", cfg: Config{Endpoint: server.URL, APIKey: "key"}},
		{name: "no api key", cfg: Config{Endpoint: server.URL}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.cfg).Summarize(context.Background(), table, "Acme")
			var se *SummarizeError
			assert.ErrorAs(t, err, &se)
		})
	}
}
