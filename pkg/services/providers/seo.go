package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"

	"github.com/de-tools/market-atlas/pkg/models/domain"
	"github.com/de-tools/market-atlas/pkg/services/config"
)

const (
	mozBaseURL        = "https://lsapi.seomoz.com/v2"
	serpstackBaseURL  = "https://api.serpstack.com"
	dataForSEOBaseURL = "https://api.dataforseo.com/v3"

	dataForSEOOK = 20000
)

func clientFor(p domain.Provider, profile config.Profile, opts ClientOptions) *Client {
	if r := profile.Float("rate"); r > 0 {
		opts.RatePerSecond = r
	}
	if b := profile.Int("burst"); b > 0 {
		opts.Burst = b
	}
	return NewClient(p, opts)
}

func join(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

type moz struct {
	baseAdapter
	client *Client
	base   string
	token  string
}

func NewMoz(profile config.Profile, opts ClientOptions) (Adapter, error) {
	token := profile.Get("token")
	if token == "" {
		return nil, ErrNotConfigured
	}
	return &moz{
		baseAdapter: baseAdapter{name: domain.ProviderMoz, phase: domain.PhasePublic, requires: []domain.Field{domain.FieldWebsite}},
		client:      clientFor(domain.ProviderMoz, profile, opts),
		base:        profile.GetOr("base_url", mozBaseURL),
		token:       token,
	}, nil
}

type mozURLMetrics struct {
	Results []struct {
		DomainAuthority *float64 `json:"domain_authority"`
	} `json:"results"`
}

type mozLinks struct {
	TotalCount *float64 `json:"total_count"`
}

func (m *moz) Fetch(ctx context.Context, req Request) (domain.Readings, error) {
	site := req.Credentials.Get(domain.FieldWebsite)
	header := http.Header{"x-moz-token": {m.token}}

	var metrics mozURLMetrics
	rawMetrics, err := m.client.PostJSON(ctx, join(m.base, "/url_metrics"), header, map[string]any{
		"targets": []string{site},
		"metrics": []string{"domain_authority"},
	}, &metrics)
	if err != nil {
		return nil, failure(m.name, fmt.Errorf("url metrics: %w", err))
	}

	var links mozLinks
	q := url.Values{"target": {site}, "limit": {"1"}}
	rawLinks, err := m.client.GetJSON(ctx, join(m.base, "/links"), q, header, &links)
	if err != nil {
		return nil, failure(m.name, fmt.Errorf("links: %w", err))
	}

	var da *float64
	if len(metrics.Results) > 0 && metrics.Results[0].DomainAuthority != nil {
		da = domain.Float(math.Round(*metrics.Results[0].DomainAuthority))
	}

	return domain.Readings{
		"domain_authority": value(da, rawMetrics),
		"total_backlinks":  value(links.TotalCount, rawLinks),
	}, nil
}

type serpstack struct {
	baseAdapter
	client    *Client
	base      string
	accessKey string
}

func NewSerpstack(profile config.Profile, opts ClientOptions) (Adapter, error) {
	key := profile.Get("access_key")
	if key == "" {
		return nil, ErrNotConfigured
	}
	return &serpstack{
		baseAdapter: baseAdapter{name: domain.ProviderSerpstack, phase: domain.PhasePublic, requires: []domain.Field{domain.FieldWebsite}},
		client:      clientFor(domain.ProviderSerpstack, profile, opts),
		base:        profile.GetOr("base_url", serpstackBaseURL),
		accessKey:   key,
	}, nil
}

type serpResponse struct {
	Success *bool `json:"success"`
	Error   *struct {
		Info string `json:"info"`
	} `json:"error"`
	AnswerBox *struct {
		Type string `json:"type"`
	} `json:"answer_box"`
	FeaturedSnippets []any `json:"featured_snippets"`
	LocalResults     []any `json:"local_results"`
}

func (s *serpstack) Fetch(ctx context.Context, req Request) (domain.Readings, error) {
	query := req.SubjectName
	if query == "" {
		query = domain.SiteName(req.Credentials.Get(domain.FieldWebsite))
	}

	var resp serpResponse
	q := url.Values{
		"access_key": {s.accessKey},
		"query":      {query},
		"gl":         {"us"},
	}
	raw, err := s.client.GetJSON(ctx, join(s.base, "/search"), q, nil, &resp)
	if err != nil {
		return nil, failure(s.name, err)
	}
	if resp.Success != nil && !*resp.Success {
		msg := "request rejected"
		if resp.Error != nil && resp.Error.Info != "" {
			msg = resp.Error.Info
		}
		return nil, failure(s.name, errors.New(msg))
	}

	featured := len(resp.FeaturedSnippets) > 0 || (resp.AnswerBox != nil && resp.AnswerBox.Type == "snippet")
	local := len(resp.LocalResults) > 0

	return domain.Readings{
		"serp_featured_snippet": value(flag(featured), raw),
		"serp_local_pack":       value(flag(local), raw),
	}, nil
}

func basicAuth(user, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+password))
}

func flag(b bool) *float64 {
	if b {
		return domain.Float(1)
	}
	return domain.Float(0)
}

type dataForSEO struct {
	baseAdapter
	client   *Client
	base     string
	login    string
	password string
}

func NewDataForSEO(profile config.Profile, opts ClientOptions) (Adapter, error) {
	login, password := profile.Get("login"), profile.Get("password")
	if login == "" || password == "" {
		return nil, ErrNotConfigured
	}
	return &dataForSEO{
		baseAdapter: baseAdapter{name: domain.ProviderDataForSEO, phase: domain.PhasePublic, requires: []domain.Field{domain.FieldWebsite}},
		client:      clientFor(domain.ProviderDataForSEO, profile, opts),
		base:        profile.GetOr("base_url", dataForSEOBaseURL),
		login:       login,
		password:    password,
	}, nil
}

type dataForSEOResponse struct {
	Tasks []struct {
		StatusCode    int    `json:"status_code"`
		StatusMessage string `json:"status_message"`
		Result        []struct {
			Items []struct {
				Target  string `json:"target"`
				Metrics struct {
					Organic *struct {
						ETV *float64 `json:"etv"`
					} `json:"organic"`
					Paid *struct {
						ETV *float64 `json:"etv"`
					} `json:"paid"`
				} `json:"metrics"`
			} `json:"items"`
		} `json:"result"`
	} `json:"tasks"`
}

func (d *dataForSEO) Fetch(ctx context.Context, req Request) (domain.Readings, error) {
	site := domain.SiteName(req.Credentials.Get(domain.FieldWebsite))

	var resp dataForSEOResponse
	raw, err := d.client.PostJSON(ctx, join(d.base, "/dataforseo_labs/google/bulk_traffic_estimation/live"),
		http.Header{"Authorization": {basicAuth(d.login, d.password)}},
		[]map[string]any{{
			"targets":       []string{site},
			"location_code": 2840,
			"language_code": "en",
			"item_types":    []string{"organic", "paid"},
		}}, &resp)
	if err != nil {
		return nil, failure(d.name, err)
	}

	if len(resp.Tasks) == 0 {
		return nil, failure(d.name, errors.New("empty task list"))
	}
	task := resp.Tasks[0]
	if task.StatusCode != dataForSEOOK {
		return nil, failure(d.name, fmt.Errorf("task status %d: %s", task.StatusCode, task.StatusMessage))
	}

	var organic, paid *float64
	if len(task.Result) > 0 && len(task.Result[0].Items) > 0 {
		m := task.Result[0].Items[0].Metrics
		if m.Organic != nil {
			organic = m.Organic.ETV
		}
		if m.Paid != nil {
			paid = m.Paid.ETV
		}
	}

	return domain.Readings{
		"estimated_org_visits":  value(organic, raw),
		"estimated_paid_visits": value(paid, raw),
	}, nil
}
