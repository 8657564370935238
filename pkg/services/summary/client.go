package summary

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/de-tools/market-atlas/pkg/models/domain"
	"github.com/de-tools/market-atlas/pkg/services/providers"
)

const (
	DefaultEndpoint = "https://api.deepseek.com/v1/chat/completions"
	DefaultModel    = "deepseek-chat"

	temperature = 0.7

	systemPrompt = "You are a senior growth strategist. Given a KPI comparison table (JSON) " +
		"for a brand and its competitors, return 3-5 concise, actionable recommendations " +
		"in Markdown bullets. Be crisp, quantitative, and avoid generic advice."
)

// SummarizeError is a failed summary. The workflow treats it as soft.
type SummarizeError struct {
	Err error
}

func (e *SummarizeError) Error() string {
	return fmt.Sprintf("summarize: %v", e.Err)
}

func (e *SummarizeError) Unwrap() error {
	return e.Err
}

type Summarizer interface {
	Summarize(ctx context.Context, table domain.Table, brand string) (string, error)
}

type Config struct {
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

type chatClient struct {
	cfg    Config
	client *providers.Client
}

// NewClient talks to an OpenAI-compatible chat completions endpoint.
func NewClient(cfg Config) Summarizer {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	opts := providers.DefaultClientOptions()
	opts.Timeout = cfg.Timeout
	return &chatClient{
		cfg:    cfg,
		client: providers.NewClient("summary", opts),
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

type tableJSON struct {
	Columns []string              `json:"columns"`
	Rows    map[string][]*float64 `json:"rows"`
}

func (c *chatClient) Summarize(ctx context.Context, table domain.Table, brand string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", &SummarizeError{Err: fmt.Errorf("api key not configured")}
	}

	payload := tableJSON{Rows: make(map[string][]*float64, len(table.Rows))}
	for _, col := range table.Columns {
		payload.Columns = append(payload.Columns, col.Name)
	}
	for _, row := range table.Rows {
		payload.Rows[row.Label] = row.Cells
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", &SummarizeError{Err: err}
	}

	var resp chatResponse
	_, err = c.client.PostJSON(ctx, c.cfg.Endpoint,
		http.Header{"Authorization": {"Bearer " + c.cfg.APIKey}},
		chatRequest{
			Model: c.cfg.Model,
			Messages: []message{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: fmt.Sprintf(
					"Brand: %s\nKPI_Table_JSON:\n%s\nPlease reply with markdown bullet points only.", brand, body)},
			},
			Temperature: temperature,
		}, &resp)
	if err != nil {
		return "", &SummarizeError{Err: err}
	}

	if len(resp.Choices) == 0 {
		return "", &SummarizeError{Err: fmt.Errorf("no choices in response")}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
