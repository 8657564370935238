package domain

import (
	"net/url"
	"strings"
	"time"
)

// Field names a credential or identifier a subject may carry.
type Field string

const (
	FieldWebsite           Field = "website"
	FieldTwitter           Field = "twitter"
	FieldInstagram         Field = "instagram"
	FieldFacebook          Field = "facebook"
	FieldMentionAccount    Field = "mention_account"
	FieldMentionAlert      Field = "mention_alert"
	FieldGA4Property       Field = "ga4_property"
	FieldInstagramBusiness Field = "instagram_business"
	FieldGBPLocation       Field = "gbp_location"
	FieldShopifyShop       Field = "shopify_shop"
)

var KnownFields = []Field{
	FieldWebsite,
	FieldTwitter,
	FieldInstagram,
	FieldFacebook,
	FieldMentionAccount,
	FieldMentionAlert,
	FieldGA4Property,
	FieldInstagramBusiness,
	FieldGBPLocation,
	FieldShopifyShop,
}

func IsKnownField(f Field) bool {
	for _, k := range KnownFields {
		if k == f {
			return true
		}
	}
	return false
}

// Credentials holds a subject's identifiers keyed by field. Empty values are treated as absent.
type Credentials map[Field]string

func (c Credentials) Has(f Field) bool {
	return strings.TrimSpace(c[f]) != ""
}

func (c Credentials) Get(f Field) string {
	return strings.TrimSpace(c[f])
}

// HasAll reports whether every field in required is populated.
func (c Credentials) HasAll(required []Field) bool {
	for _, f := range required {
		if !c.Has(f) {
			return false
		}
	}
	return true
}

// Merge returns a copy of c overlaid with the non-empty values of other.
func (c Credentials) Merge(other Credentials) Credentials {
	out := make(Credentials, len(c)+len(other))
	for k, v := range c {
		out[k] = v
	}
	for k, v := range other {
		if strings.TrimSpace(v) != "" {
			out[k] = strings.TrimSpace(v)
		}
	}
	return out
}

type SubjectKind string

const (
	SubjectKindOwner      SubjectKind = "owner"
	SubjectKindCompetitor SubjectKind = "competitor"
)

type Subject struct {
	ID          string
	Name        string
	Kind        SubjectKind
	ReportID    string
	Credentials Credentials
	CreatedAt   time.Time
}

// DisplayName falls back to the website host when no name was given.
func (s Subject) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return SiteName(s.Credentials.Get(FieldWebsite))
}

// SiteName derives a short display name from a site URL: "https://www.b.com/x" -> "b.com".
func SiteName(site string) string {
	site = strings.TrimSpace(site)
	if site == "" {
		return ""
	}
	raw := site
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return site
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
