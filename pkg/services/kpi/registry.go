package kpi

import "fmt"

type Definition struct {
	Key       string
	Label     string
	Aggregate Aggregator
}

// Registry is the ordered, immutable list of KPIs a report shows. Order is row order.
type Registry struct {
	defs  []Definition
	index map[string]int
}

func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{
		defs:  make([]Definition, 0, len(defs)),
		index: make(map[string]int, len(defs)),
	}
	for _, d := range defs {
		if d.Key == "" {
			return nil, fmt.Errorf("kpi key cannot be empty")
		}
		if d.Aggregate == nil {
			return nil, fmt.Errorf("kpi %q has no aggregator", d.Key)
		}
		if _, exists := r.index[d.Key]; exists {
			return nil, fmt.Errorf("kpi %q is already registered", d.Key)
		}
		r.index[d.Key] = len(r.defs)
		r.defs = append(r.defs, d)
	}
	return r, nil
}

// DefaultRegistry returns the KPIs shown in the comparison report.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		Definition{Key: "domain_authority", Label: "Domain Authority", Aggregate: Max},
		Definition{Key: "total_backlinks", Label: "Total Backlinks", Aggregate: Max},
		Definition{Key: "estimated_org_visits", Label: "Estimated Organic Visits", Aggregate: Mean},
		Definition{Key: "estimated_paid_visits", Label: "Estimated Paid Visits", Aggregate: Mean},
		Definition{Key: "twitter_followers", Label: "Twitter Followers", Aggregate: Max},
		Definition{Key: "twitter_engagement_rate", Label: "Tweet Engagement %", Aggregate: Rounded(Mean, 2)},
		Definition{Key: "ig_followers", Label: "Instagram Followers", Aggregate: Max},
		Definition{Key: "ig_reach", Label: "IG Reach (30d)", Aggregate: Mean},
		Definition{Key: "facebook_followers", Label: "Facebook Followers", Aggregate: Max},
		Definition{Key: "mentions_volume", Label: "Brand Mentions (7d)", Aggregate: Sum},
		Definition{Key: "mentions_sentiment", Label: "Positive Mentions %", Aggregate: Rounded(Mean, 1)},
		Definition{Key: "ga_sessions", Label: "GA4 Sessions (30d)", Aggregate: Sum},
		Definition{Key: "ga_purchases", Label: "Purchases (30d)", Aggregate: Sum},
		Definition{Key: "ga_conversion_rate", Label: "Conversion Rate %", Aggregate: Rounded(Mean, 2)},
		Definition{Key: "avg_rating", Label: "Google Rating", Aggregate: Rounded(Max, 2)},
		Definition{Key: "review_count", Label: "Review Count", Aggregate: Max},
		Definition{Key: "shopify_revenue", Label: "Revenue (30d)", Aggregate: Sum},
		Definition{Key: "shopify_aov", Label: "Average Order Value", Aggregate: Rounded(Mean, 2)},
	)
	if err != nil {
		panic(err)
	}
	return r
}

// Definitions returns a copy of the registry in row order.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, len(r.defs))
	copy(out, r.defs)
	return out
}

func (r *Registry) Lookup(key string) (Definition, bool) {
	i, ok := r.index[key]
	if !ok {
		return Definition{}, false
	}
	return r.defs[i], true
}

func (r *Registry) Len() int {
	return len(r.defs)
}
