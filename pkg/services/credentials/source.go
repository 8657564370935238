package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/de-tools/market-atlas/pkg/adapters"
	"github.com/de-tools/market-atlas/pkg/models/domain"
	"github.com/de-tools/market-atlas/pkg/store/duckdb/token"
)

// ErrNoCredential means the subject has not granted access to the provider.
var ErrNoCredential = errors.New("no credential")

// Grants are the names tokens are stored under. Several adapters share one grant.
const (
	GrantGoogle  domain.Provider = "google"
	GrantMeta    domain.Provider = "meta"
	GrantShopify domain.Provider = "shopify"
)

const refreshSkew = 5 * time.Minute

// GrantFor maps an adapter onto the grant whose token it uses.
func GrantFor(p domain.Provider) (domain.Provider, bool) {
	switch p {
	case domain.ProviderGA4, domain.ProviderGoogleBusiness:
		return GrantGoogle, true
	case domain.ProviderMetaInsights:
		return GrantMeta, true
	case domain.ProviderShopify:
		return GrantShopify, true
	default:
		return "", false
	}
}

func IsGrant(p domain.Provider) bool {
	return p == GrantGoogle || p == GrantMeta || p == GrantShopify
}

// Refresher exchanges a token that is about to expire for a fresh one.
type Refresher interface {
	Refresh(ctx context.Context, t domain.Token) (domain.Token, error)
}

// Source hands out bearer tokens for private providers and refreshes them shortly
// before they expire.
type Source struct {
	tokens     token.Store
	refreshers map[domain.Provider]Refresher
	now        func() time.Time
}

func NewSource(tokens token.Store, refreshers map[domain.Provider]Refresher) *Source {
	if refreshers == nil {
		refreshers = map[domain.Provider]Refresher{}
	}
	return &Source{
		tokens:     tokens,
		refreshers: refreshers,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Bearer returns a usable access token for the adapter's grant.
func (s *Source) Bearer(ctx context.Context, subjectID string, p domain.Provider) (string, error) {
	grant, ok := GrantFor(p)
	if !ok {
		return "", fmt.Errorf("%w: %s has no grant", ErrNoCredential, p)
	}

	stored, err := s.tokens.Get(ctx, subjectID, string(grant))
	if errors.Is(err, token.ErrNotFound) {
		return "", fmt.Errorf("%w: %s for subject %s", ErrNoCredential, grant, subjectID)
	}
	if err != nil {
		return "", err
	}
	t := *adapters.MapStoreTokenToDomain(stored)

	if !s.expiring(t) {
		return t.AccessToken, nil
	}

	refresher, ok := s.refreshers[grant]
	if !ok {
		if s.expired(t) {
			return "", fmt.Errorf("%w: %s token expired", ErrNoCredential, grant)
		}
		return t.AccessToken, nil
	}

	fresh, err := refresher.Refresh(ctx, t)
	if err != nil {
		if !s.expired(t) {
			zerolog.Ctx(ctx).Warn().Err(err).
				Str("subject", subjectID).
				Str("grant", string(grant)).
				Msg("token refresh failed, using current token")
			return t.AccessToken, nil
		}
		return "", fmt.Errorf("%w: refresh %s: %v", ErrNoCredential, grant, err)
	}

	fresh.SubjectID, fresh.Provider = t.SubjectID, t.Provider
	if err := s.tokens.Save(ctx, adapters.MapDomainTokenToStore(fresh)); err != nil {
		return "", fmt.Errorf("save refreshed token: %w", err)
	}
	return fresh.AccessToken, nil
}

// Put stores a token granted by the subject.
func (s *Source) Put(ctx context.Context, t domain.Token) error {
	if !IsGrant(t.Provider) {
		return fmt.Errorf("unknown grant %q", t.Provider)
	}
	if t.AccessToken == "" {
		return fmt.Errorf("access token is required")
	}
	if t.ExpiresAt != nil {
		utc := t.ExpiresAt.UTC()
		t.ExpiresAt = &utc
	}
	return s.tokens.Save(ctx, adapters.MapDomainTokenToStore(t))
}

func (s *Source) expiring(t domain.Token) bool {
	return t.ExpiresAt != nil && s.now().Add(refreshSkew).After(*t.ExpiresAt)
}

func (s *Source) expired(t domain.Token) bool {
	return t.ExpiresAt != nil && !s.now().Before(*t.ExpiresAt)
}
