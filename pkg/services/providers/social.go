package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/de-tools/market-atlas/pkg/models/domain"
	"github.com/de-tools/market-atlas/pkg/services/config"
	"github.com/de-tools/market-atlas/pkg/services/kpi"
)

const (
	twitterBaseURL     = "https://api.twitter.com/2"
	socialBladeBaseURL = "https://business.socialblade.com/api/v1"
	mentionBaseURL     = "https://web.mention.net/api"

	mentionAPIVersion = "1.21"
	mentionWindow     = 7 * 24 * time.Hour
)

type twitter struct {
	baseAdapter
	client *Client
	base   string
	bearer string
}

func NewTwitter(profile config.Profile, opts ClientOptions) (Adapter, error) {
	bearer := profile.Get("bearer_token")
	if bearer == "" {
		return nil, ErrNotConfigured
	}
	return &twitter{
		baseAdapter: baseAdapter{name: domain.ProviderTwitter, phase: domain.PhasePublic, requires: []domain.Field{domain.FieldTwitter}},
		client:      clientFor(domain.ProviderTwitter, profile, opts),
		base:        profile.GetOr("base_url", twitterBaseURL),
		bearer:      bearer,
	}, nil
}

type twitterUser struct {
	Data *struct {
		PublicMetrics struct {
			FollowersCount float64 `json:"followers_count"`
			TweetCount     float64 `json:"tweet_count"`
			LikeCount      float64 `json:"like_count"`
		} `json:"public_metrics"`
	} `json:"data"`
}

func (t *twitter) Fetch(ctx context.Context, req Request) (domain.Readings, error) {
	handle := strings.TrimPrefix(req.Credentials.Get(domain.FieldTwitter), "@")

	var resp twitterUser
	raw, err := t.client.GetJSON(ctx, join(t.base, "/users/by/username/"+url.PathEscape(handle)),
		url.Values{"user.fields": {"public_metrics"}},
		http.Header{"Authorization": {"Bearer " + t.bearer}}, &resp)
	if err != nil {
		return nil, failure(t.name, err)
	}
	if resp.Data == nil {
		return nil, failure(t.name, fmt.Errorf("user %q not found", handle))
	}

	pm := resp.Data.PublicMetrics
	var engagement *float64
	if pm.TweetCount > 0 && pm.FollowersCount > 0 {
		engagement = domain.Float(kpi.Round(pm.LikeCount/pm.TweetCount/pm.FollowersCount*100, 2))
	}

	return domain.Readings{
		"twitter_followers":       value(domain.Float(pm.FollowersCount), raw),
		"twitter_engagement_rate": value(engagement, raw),
	}, nil
}

type socialBlade struct {
	baseAdapter
	client   *Client
	base     string
	clientID string
	token    string
	network  string
	field    domain.Field
}

func newSocialBlade(p domain.Provider, network string, field domain.Field, profile config.Profile, opts ClientOptions) (Adapter, error) {
	clientID, token := profile.Get("client_id"), profile.Get("token")
	if clientID == "" || token == "" {
		return nil, ErrNotConfigured
	}
	return &socialBlade{
		baseAdapter: baseAdapter{name: p, phase: domain.PhasePublic, requires: []domain.Field{field}},
		client:      clientFor(p, profile, opts),
		base:        profile.GetOr("base_url", socialBladeBaseURL),
		clientID:    clientID,
		token:       token,
		network:     network,
		field:       field,
	}, nil
}

func NewSocialBladeInstagram(profile config.Profile, opts ClientOptions) (Adapter, error) {
	return newSocialBlade(domain.ProviderSocialBladeInstagram, "instagram", domain.FieldInstagram, profile, opts)
}

func NewSocialBladeFacebook(profile config.Profile, opts ClientOptions) (Adapter, error) {
	return newSocialBlade(domain.ProviderSocialBladeFacebook, "facebook", domain.FieldFacebook, profile, opts)
}

type socialBladeResponse struct {
	Data struct {
		Statistics struct {
			Total struct {
				Followers       *float64 `json:"followers"`
				Likes           *float64 `json:"likes"`
				Followers30Days *float64 `json:"followers_30_days"`
			} `json:"total"`
		} `json:"statistics"`
	} `json:"data"`
}

func (s *socialBlade) Fetch(ctx context.Context, req Request) (domain.Readings, error) {
	user := strings.TrimPrefix(req.Credentials.Get(s.field), "@")

	var resp socialBladeResponse
	raw, err := s.client.GetJSON(ctx, join(s.base, "/"+s.network+"/"+url.PathEscape(user)),
		url.Values{"clientid": {s.clientID}, "token": {s.token}}, nil, &resp)
	if err != nil {
		return nil, failure(s.name, err)
	}

	total := resp.Data.Statistics.Total
	if s.network == "facebook" {
		followers := total.Followers
		if followers == nil {
			followers = total.Likes
		}
		return domain.Readings{"facebook_followers": value(followers, raw)}, nil
	}

	return domain.Readings{
		"ig_followers":  value(total.Followers, raw),
		"ig_growth_30d": value(total.Followers30Days, raw),
	}, nil
}

type mention struct {
	baseAdapter
	client *Client
	base   string
	token  string
}

func NewMention(profile config.Profile, opts ClientOptions) (Adapter, error) {
	token := profile.Get("token")
	if token == "" {
		return nil, ErrNotConfigured
	}
	return &mention{
		baseAdapter: baseAdapter{
			name:     domain.ProviderMention,
			phase:    domain.PhasePublic,
			requires: []domain.Field{domain.FieldMentionAccount, domain.FieldMentionAlert},
		},
		client: clientFor(domain.ProviderMention, profile, opts),
		base:   profile.GetOr("base_url", mentionBaseURL),
		token:  token,
	}, nil
}

type mentionResponse struct {
	Mentions []struct {
		Tone int `json:"tone"`
	} `json:"mentions"`
}

func (m *mention) Fetch(ctx context.Context, req Request) (domain.Readings, error) {
	account := req.Credentials.Get(domain.FieldMentionAccount)
	alert := req.Credentials.Get(domain.FieldMentionAlert)

	now := req.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var resp mentionResponse
	path := fmt.Sprintf("/accounts/%s/alerts/%s/mentions", url.PathEscape(account), url.PathEscape(alert))
	_, err := m.client.GetJSON(ctx, join(m.base, path),
		url.Values{"since": {now.Add(-mentionWindow).Format(time.RFC3339)}},
		http.Header{
			"Authorization":  {"Bearer " + m.token},
			"Accept-Version": {mentionAPIVersion},
		}, &resp)
	if err != nil {
		return nil, failure(m.name, err)
	}

	volume := float64(len(resp.Mentions))
	var positive float64
	for _, mt := range resp.Mentions {
		if mt.Tone == 1 {
			positive++
		}
	}

	var sentiment *float64
	if volume > 0 {
		sentiment = domain.Float(kpi.Round(positive/volume*100, 1))
	}

	summary := rawOf(map[string]any{"volume": volume, "positive": positive})
	return domain.Readings{
		"mentions_volume":    value(domain.Float(volume), summary),
		"mentions_sentiment": value(sentiment, summary),
	}, nil
}
