package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/de-tools/market-atlas/pkg/models/domain"
	"github.com/de-tools/market-atlas/pkg/services/config"
	"github.com/de-tools/market-atlas/pkg/services/kpi"
)

const (
	ga4BaseURL  = "https://analyticsdata.googleapis.com/v1beta"
	metaBaseURL = "https://graph.facebook.com/v19.0"
	gbpBaseURL  = "https://mybusiness.googleapis.com/v4"

	shopifyAPIVersion = "2024-01"
	shopifyWindow     = 30 * 24 * time.Hour
)

// ErrNoBearer is returned when a private adapter runs without a user token.
var ErrNoBearer = errors.New("missing access token")

func bearer(req Request) (http.Header, error) {
	if req.Bearer == "" {
		return nil, ErrNoBearer
	}
	return http.Header{"Authorization": {"Bearer " + req.Bearer}}, nil
}

type ga4 struct {
	baseAdapter
	client *Client
	base   string
}

func NewGA4(profile config.Profile, opts ClientOptions) (Adapter, error) {
	return &ga4{
		baseAdapter: baseAdapter{name: domain.ProviderGA4, phase: domain.PhasePrivate, requires: []domain.Field{domain.FieldGA4Property}},
		client:      clientFor(domain.ProviderGA4, profile, opts),
		base:        profile.GetOr("base_url", ga4BaseURL),
	}, nil
}

type ga4Report struct {
	Rows []struct {
		MetricValues []struct {
			Value string `json:"value"`
		} `json:"metricValues"`
	} `json:"rows"`
}

func (g *ga4) Fetch(ctx context.Context, req Request) (domain.Readings, error) {
	header, err := bearer(req)
	if err != nil {
		return nil, failure(g.name, err)
	}
	property := strings.TrimPrefix(req.Credentials.Get(domain.FieldGA4Property), "properties/")

	var resp ga4Report
	raw, err := g.client.PostJSON(ctx, join(g.base, "/properties/"+url.PathEscape(property)+":runReport"), header, map[string]any{
		"dateRanges": []map[string]string{{"startDate": "30daysAgo", "endDate": "yesterday"}},
		"metrics": []map[string]string{
			{"name": "sessions"},
			{"name": "totalUsers"},
			{"name": "ecommercePurchases"},
		},
	}, &resp)
	if err != nil {
		return nil, failure(g.name, err)
	}

	var sessions, users, purchases float64
	if len(resp.Rows) > 0 {
		vals := resp.Rows[0].MetricValues
		parse := func(i int) (float64, error) {
			if i >= len(vals) {
				return 0, nil
			}
			return strconv.ParseFloat(vals[i].Value, 64)
		}
		if sessions, err = parse(0); err != nil {
			return nil, failure(g.name, fmt.Errorf("sessions: %w", err))
		}
		if users, err = parse(1); err != nil {
			return nil, failure(g.name, fmt.Errorf("users: %w", err))
		}
		if purchases, err = parse(2); err != nil {
			return nil, failure(g.name, fmt.Errorf("purchases: %w", err))
		}
	}

	rate := 0.0
	if sessions > 0 {
		rate = kpi.Round(purchases/sessions*100, 2)
	}

	return domain.Readings{
		"ga_sessions":        value(domain.Float(sessions), raw),
		"ga_users":           value(domain.Float(users), raw),
		"ga_purchases":       value(domain.Float(purchases), raw),
		"ga_conversion_rate": value(domain.Float(rate), raw),
	}, nil
}

type metaInsights struct {
	baseAdapter
	client *Client
	base   string
}

func NewMetaInsights(profile config.Profile, opts ClientOptions) (Adapter, error) {
	return &metaInsights{
		baseAdapter: baseAdapter{name: domain.ProviderMetaInsights, phase: domain.PhasePrivate, requires: []domain.Field{domain.FieldInstagramBusiness}},
		client:      clientFor(domain.ProviderMetaInsights, profile, opts),
		base:        profile.GetOr("base_url", metaBaseURL),
	}, nil
}

type metaInsightsResponse struct {
	Data []struct {
		Name   string `json:"name"`
		Values []struct {
			Value *float64 `json:"value"`
		} `json:"values"`
	} `json:"data"`
}

func (m *metaInsights) Fetch(ctx context.Context, req Request) (domain.Readings, error) {
	if req.Bearer == "" {
		return nil, failure(m.name, ErrNoBearer)
	}
	igID := req.Credentials.Get(domain.FieldInstagramBusiness)

	var resp metaInsightsResponse
	raw, err := m.client.GetJSON(ctx, join(m.base, "/"+url.PathEscape(igID)+"/insights"), url.Values{
		"metric":       {"reach"},
		"period":       {"days_28"},
		"access_token": {req.Bearer},
	}, nil, &resp)
	if err != nil {
		return nil, failure(m.name, err)
	}

	var reach *float64
	for _, d := range resp.Data {
		if d.Name == "reach" && len(d.Values) > 0 {
			reach = d.Values[len(d.Values)-1].Value
		}
	}

	return domain.Readings{"ig_reach": value(reach, raw)}, nil
}

type googleBusiness struct {
	baseAdapter
	client *Client
	base   string
}

func NewGoogleBusiness(profile config.Profile, opts ClientOptions) (Adapter, error) {
	return &googleBusiness{
		baseAdapter: baseAdapter{name: domain.ProviderGoogleBusiness, phase: domain.PhasePrivate, requires: []domain.Field{domain.FieldGBPLocation}},
		client:      clientFor(domain.ProviderGoogleBusiness, profile, opts),
		base:        profile.GetOr("base_url", gbpBaseURL),
	}, nil
}

type gbpReviews struct {
	AverageRating    *float64 `json:"averageRating"`
	TotalReviewCount *float64 `json:"totalReviewCount"`
	Reviews          []struct {
		StarRating string `json:"starRating"`
	} `json:"reviews"`
}

var starRatings = map[string]float64{"ONE": 1, "TWO": 2, "THREE": 3, "FOUR": 4, "FIVE": 5}

func (g *googleBusiness) Fetch(ctx context.Context, req Request) (domain.Readings, error) {
	header, err := bearer(req)
	if err != nil {
		return nil, failure(g.name, err)
	}

	account, location, ok := strings.Cut(req.Credentials.Get(domain.FieldGBPLocation), "/")
	if !ok || account == "" || location == "" {
		return nil, failure(g.name, fmt.Errorf("location must be <account>/<location>"))
	}

	var resp gbpReviews
	path := fmt.Sprintf("/accounts/%s/locations/%s/reviews", url.PathEscape(account), url.PathEscape(location))
	raw, err := g.client.GetJSON(ctx, join(g.base, path), nil, header, &resp)
	if err != nil {
		return nil, failure(g.name, err)
	}

	avg, count := resp.AverageRating, resp.TotalReviewCount
	if avg == nil && len(resp.Reviews) > 0 {
		var sum, n float64
		for _, r := range resp.Reviews {
			if s, ok := starRatings[r.StarRating]; ok {
				sum += s
				n++
			}
		}
		if n > 0 {
			avg = domain.Float(sum / n)
		}
	}
	if count == nil {
		count = domain.Float(float64(len(resp.Reviews)))
	}
	if avg != nil {
		avg = domain.Float(kpi.Round(*avg, 2))
	}

	return domain.Readings{
		"avg_rating":   value(avg, raw),
		"review_count": value(count, raw),
	}, nil
}

type shopify struct {
	baseAdapter
	client *Client
	// base overrides https://{shop}; used against local fakes.
	base string
}

func NewShopify(profile config.Profile, opts ClientOptions) (Adapter, error) {
	return &shopify{
		baseAdapter: baseAdapter{name: domain.ProviderShopify, phase: domain.PhasePrivate, requires: []domain.Field{domain.FieldShopifyShop}},
		client:      clientFor(domain.ProviderShopify, profile, opts),
		base:        profile.Get("base_url"),
	}, nil
}

type shopifyOrders struct {
	Orders []struct {
		TotalPrice string `json:"total_price"`
	} `json:"orders"`
}

func (s *shopify) Fetch(ctx context.Context, req Request) (domain.Readings, error) {
	if req.Bearer == "" {
		return nil, failure(s.name, ErrNoBearer)
	}
	shop := domain.SiteName(req.Credentials.Get(domain.FieldShopifyShop))

	base := s.base
	if base == "" {
		base = "https://" + shop
	}

	now := req.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var resp shopifyOrders
	_, err := s.client.GetJSON(ctx, join(base, "/admin/api/"+shopifyAPIVersion+"/orders.json"), url.Values{
		"status":         {"any"},
		"created_at_min": {now.Add(-shopifyWindow).Format(time.RFC3339)},
		"fields":         {"total_price"},
	}, http.Header{"X-Shopify-Access-Token": {req.Bearer}}, &resp)
	if err != nil {
		return nil, failure(s.name, err)
	}

	var revenue float64
	for _, o := range resp.Orders {
		p, err := strconv.ParseFloat(o.TotalPrice, 64)
		if err != nil {
			return nil, failure(s.name, fmt.Errorf("order total %q: %w", o.TotalPrice, err))
		}
		revenue += p
	}
	orders := float64(len(resp.Orders))
	aov := 0.0
	if orders > 0 {
		aov = kpi.Round(revenue/orders, 2)
	}

	summary := rawOf(map[string]any{"orders": orders, "revenue": revenue})
	return domain.Readings{
		"shopify_revenue": value(domain.Float(kpi.Round(revenue, 2)), summary),
		"shopify_aov":     value(domain.Float(aov), summary),
	}, nil
}
