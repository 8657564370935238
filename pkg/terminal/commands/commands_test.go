package commands

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/market-atlas/pkg/models/domain"
	"github.com/de-tools/market-atlas/pkg/runtime/app"
	"github.com/de-tools/market-atlas/pkg/runtime/terminal/export"
	"github.com/de-tools/market-atlas/pkg/services/kpi"
)

func TestParseCompetitor(t *testing.T) {
	tests := []struct {
		raw  string
		want domain.Credentials
	}{
		{raw: "b.com", want: domain.Credentials{domain.FieldWebsite: "b.com"}},
		{raw: "b.com,bco", want: domain.Credentials{domain.FieldWebsite: "b.com", domain.FieldTwitter: "bco"}},
		{raw: "b.com,,bco_ig,bco_fb", want: domain.Credentials{
			domain.FieldWebsite:   "b.com",
			domain.FieldInstagram: "bco_ig",
			domain.FieldFacebook:  "bco_fb",
		}},
		{raw: " b.com , bco ", want: domain.Credentials{domain.FieldWebsite: "b.com", domain.FieldTwitter: "bco"}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCompetitor(tt.raw).Credentials)
		})
	}
}

func TestKPIsCmd(t *testing.T) {
	var buf bytes.Buffer
	cmd := NewKPIsCmd(export.NewReporter(&buf))
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "domain_authority")
	assert.Equal(t, kpi.DefaultRegistry().Len(), bytes.Count(buf.Bytes(), []byte("\n")))
}

func TestCollectCmd_InvalidPhase(t *testing.T) {
	loaded := false
	load := func(context.Context) (*app.App, error) {
		loaded = true
		return nil, errors.New("unreachable")
	}

	cmd := NewCollectCmd(load, export.NewReporter(&bytes.Buffer{}))
	cmd.SetArgs([]string{"--report", "r1", "--subject", "o1", "--phase", "weekly"})
	cmd.SilenceUsage = true

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported phase")
	assert.False(t, loaded)
}

func TestSubmitCmd_RequiresFlags(t *testing.T) {
	load := func(context.Context) (*app.App, error) { return nil, errors.New("unreachable") }
	cmd := NewSubmitCmd(load, export.NewReporter(&bytes.Buffer{}))
	cmd.SetArgs([]string{"--owner", "o1"})
	cmd.SilenceUsage = true
	cmd.SetErr(&bytes.Buffer{})

	assert.Error(t, cmd.Execute())
}
