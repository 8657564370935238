package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
[moz]
token = abc
base_url = http://localhost:9000
rate = 2.5
burst = 3

[serpstack]
access_key = k1

[empty]
`

func TestRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.ini")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	reg, err := NewRegistry(path)
	require.NoError(t, err)

	t.Run("profiles with keys", func(t *testing.T) {
		profiles, err := reg.GetProfiles(context.Background())
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"moz", "serpstack"}, profiles)
	})

	t.Run("profile values", func(t *testing.T) {
		p, err := reg.GetProfile(context.Background(), "moz")
		require.NoError(t, err)
		assert.Equal(t, "abc", p.Get("token"))
		assert.Equal(t, 2.5, p.Float("rate"))
		assert.Equal(t, 3, p.Int("burst"))
		assert.Equal(t, "fallback", p.GetOr("missing", "fallback"))
	})

	t.Run("missing profile", func(t *testing.T) {
		p, err := reg.GetProfile(context.Background(), "twitter")
		assert.Error(t, err)
		assert.Equal(t, "twitter", p.Name)
		assert.Empty(t, p.Get("bearer_token"))
	})
}

func TestNewRegistry_EmptyPath(t *testing.T) {
	reg, err := NewRegistry("")
	require.NoError(t, err)

	profiles, err := reg.GetProfiles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, profiles)
}
