package domain

import (
	"encoding/json"
	"time"
)

// Phase separates collection that needs no user grant from collection that does.
type Phase string

const (
	PhasePublic  Phase = "public"
	PhasePrivate Phase = "private"
)

func (p Phase) Valid() bool {
	return p == PhasePublic || p == PhasePrivate
}

type Provider string

const (
	ProviderMoz                  Provider = "moz"
	ProviderSerpstack            Provider = "serpstack"
	ProviderDataForSEO           Provider = "dataforseo"
	ProviderTwitter              Provider = "twitter"
	ProviderSocialBladeInstagram Provider = "socialblade_instagram"
	ProviderSocialBladeFacebook  Provider = "socialblade_facebook"
	ProviderMention              Provider = "mention"
	ProviderGA4                  Provider = "ga4"
	ProviderMetaInsights         Provider = "meta_insights"
	ProviderGoogleBusiness       Provider = "google_business"
	ProviderShopify              Provider = "shopify"
)

// Reading is one value returned by a provider. Value is nil when the provider returned only raw data.
type Reading struct {
	Value *float64
	Raw   json.RawMessage
}

// Readings maps metric name to reading.
type Readings map[string]Reading

// Snapshot is an immutable stored reading.
type Snapshot struct {
	ID         int64
	ReportID   *string
	SubjectID  string
	Metric     string
	Value      *float64
	Raw        json.RawMessage
	CapturedAt time.Time
}

// CollectResult summarises one collection invocation for a subject and phase.
type CollectResult struct {
	ReportID   string
	SubjectID  string
	Phase      Phase
	CapturedAt time.Time
	Succeeded  []Provider
	Failed     []Provider
	Skipped    []Provider
	Written    int
	Rejected   int
}

func Float(v float64) *float64 {
	return &v
}
