package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/de-tools/market-atlas/pkg/models/domain"
	"github.com/de-tools/market-atlas/pkg/services/providers"
)

const (
	GoogleTokenURL = "https://oauth2.googleapis.com/token"
	MetaGraphURL   = "https://graph.facebook.com/v19.0"

	metaDefaultLifetime = 60 * 24 * time.Hour
)

var errNoRefreshToken = errors.New("no refresh token")

type googleRefresher struct {
	cfg *oauth2.Config
}

// NewGoogleRefresher refreshes GA4 and Business Profile grants with the OAuth2 refresh token flow.
func NewGoogleRefresher(clientID, clientSecret, tokenURL string) Refresher {
	if tokenURL == "" {
		tokenURL = GoogleTokenURL
	}
	return &googleRefresher{cfg: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams},
	}}
}

func (g *googleRefresher) Refresh(ctx context.Context, t domain.Token) (domain.Token, error) {
	if t.RefreshToken == "" {
		return domain.Token{}, errNoRefreshToken
	}

	src := g.cfg.TokenSource(ctx, &oauth2.Token{
		RefreshToken: t.RefreshToken,
		Expiry:       time.Unix(1, 0),
	})
	fresh, err := src.Token()
	if err != nil {
		return domain.Token{}, err
	}

	out := t
	out.AccessToken = fresh.AccessToken
	if fresh.RefreshToken != "" {
		out.RefreshToken = fresh.RefreshToken
	}
	if !fresh.Expiry.IsZero() {
		exp := fresh.Expiry.UTC()
		out.ExpiresAt = &exp
	}
	return out, nil
}

type metaRefresher struct {
	client       *providers.Client
	base         string
	clientID     string
	clientSecret string
	now          func() time.Time
}

// NewMetaRefresher exchanges a long-lived Meta token for a new one before it lapses.
func NewMetaRefresher(clientID, clientSecret, base string) Refresher {
	if base == "" {
		base = MetaGraphURL
	}
	return &metaRefresher{
		client:       providers.NewClient(domain.ProviderMetaInsights, providers.DefaultClientOptions()),
		base:         base,
		clientID:     clientID,
		clientSecret: clientSecret,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

type metaExchange struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (m *metaRefresher) Refresh(ctx context.Context, t domain.Token) (domain.Token, error) {
	var resp metaExchange
	_, err := m.client.GetJSON(ctx, m.base+"/oauth/access_token", url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {m.clientID},
		"client_secret":     {m.clientSecret},
		"fb_exchange_token": {t.AccessToken},
	}, nil, &resp)
	if err != nil {
		return domain.Token{}, err
	}
	if resp.AccessToken == "" {
		return domain.Token{}, fmt.Errorf("exchange returned no token")
	}

	lifetime := metaDefaultLifetime
	if resp.ExpiresIn > 0 {
		lifetime = time.Duration(resp.ExpiresIn) * time.Second
	}
	exp := m.now().Add(lifetime)

	out := t
	out.AccessToken = resp.AccessToken
	out.ExpiresAt = &exp
	return out, nil
}

// DefaultRefreshers wires the refreshers for the configured OAuth apps. Shopify
// offline tokens do not expire and have none.
func DefaultRefreshers(googleID, googleSecret, metaID, metaSecret string) map[domain.Provider]Refresher {
	out := map[domain.Provider]Refresher{}
	if googleID != "" {
		out[GrantGoogle] = NewGoogleRefresher(googleID, googleSecret, "")
	}
	if metaID != "" {
		out[GrantMeta] = NewMetaRefresher(metaID, metaSecret, "")
	}
	return out
}
