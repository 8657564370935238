package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/market-atlas/pkg/models/domain"
	"github.com/de-tools/market-atlas/pkg/services/config"
)

type stubAdapter struct {
	baseAdapter
}

func (s stubAdapter) Fetch(context.Context, Request) (domain.Readings, error) {
	return domain.Readings{}, nil
}

func stub(name domain.Provider, phase domain.Phase, fields ...domain.Field) Adapter {
	return stubAdapter{baseAdapter{name: name, phase: phase, requires: fields}}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	factory := func(config.Profile, ClientOptions) (Adapter, error) { return stub("x", domain.PhasePublic), nil }

	require.NoError(t, r.Register("x", factory))
	assert.Error(t, r.Register("x", factory))
	assert.Error(t, r.Register("", factory))
	assert.Error(t, r.Register("y", nil))

	_, err := r.Create("missing", config.Profile{}, DefaultClientOptions())
	assert.Error(t, err)

	assert.Equal(t, []domain.Provider{"x"}, r.ListProviders())
}

func TestDefaultRegistry(t *testing.T) {
	var r Registry
	require.NotPanics(t, func() { r = DefaultRegistry() })
	providers := r.ListProviders()
	require.Len(t, providers, len(builtins))
	assert.Equal(t, domain.ProviderMoz, providers[0])
	assert.Equal(t, domain.ProviderShopify, providers[len(providers)-1])

	assert.PanicsWithError(t, `provider "moz" is already registered`, func() {
		mustRegister([]registration{
			{domain.ProviderMoz, NewMoz},
			{domain.ProviderMoz, NewMoz},
		})
	})
}

func TestBuild_SkipsUnconfigured(t *testing.T) {
	profiles, err := config.NewRegistryFromBytes([]byte("[moz]\ntoken = t\n\n[socialblade]\nclient_id = c\ntoken = t\n"))
	require.NoError(t, err)

	adapters, err := Build(context.Background(), DefaultRegistry(), profiles, DefaultClientOptions())
	require.NoError(t, err)

	var names []domain.Provider
	for _, a := range adapters {
		names = append(names, a.Name())
	}
	assert.Equal(t, []domain.Provider{
		domain.ProviderMoz,
		domain.ProviderSocialBladeInstagram,
		domain.ProviderSocialBladeFacebook,
		domain.ProviderGA4,
		domain.ProviderMetaInsights,
		domain.ProviderGoogleBusiness,
		domain.ProviderShopify,
	}, names)
}

func TestSet_Applicable(t *testing.T) {
	set := NewSet(
		stub("site", domain.PhasePublic, domain.FieldWebsite),
		stub("tw", domain.PhasePublic, domain.FieldTwitter),
		stub("both", domain.PhasePublic, domain.FieldMentionAccount, domain.FieldMentionAlert),
		stub("ga", domain.PhasePrivate, domain.FieldGA4Property),
	)

	run, skipped := set.Applicable(domain.PhasePublic, domain.Credentials{
		domain.FieldWebsite:        "acme.com",
		domain.FieldTwitter:        " ",
		domain.FieldMentionAccount: "a",
	})
	require.Len(t, run, 1)
	assert.Equal(t, domain.Provider("site"), run[0].Name())
	assert.Len(t, skipped, 2)

	run, skipped = set.Applicable(domain.PhasePrivate, domain.Credentials{domain.FieldGA4Property: "1"})
	assert.Len(t, run, 1)
	assert.Empty(t, skipped)
}
