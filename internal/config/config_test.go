package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := NewDefaultConfig()
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, 10, cfg.Analysis.MaxDepth)
	assert.Equal(t, 500, cfg.Analysis.MaxModules)
	assert.Equal(t, 30*time.Second, cfg.Analysis.Timeout)
	assert.InDelta(t, 0.9, cfg.Analysis.ConfidenceDecay, 1e-9)
	assert.True(t, cfg.Analysis.CountLazyEdges)
	assert.False(t, cfg.Analysis.DecayByEdgeKind)
	assert.Equal(t, 100*time.Millisecond, cfg.Solver.Timeout)
	assert.Equal(t, "json", cfg.Report.Format)
	require.NoError(t, cfg.Validate())
}

func TestNewConfigFromViperOverrides(t *testing.T) {
	t.Parallel()

	v := viper.New()
	SetDefaults(v)
	v.Set("analysis.max_depth", 3)
	v.Set("analysis.confidence_decay", 0.5)
	v.Set("report.format", "sarif")

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Analysis.MaxDepth)
	assert.InDelta(t, 0.5, cfg.Analysis.ConfidenceDecay, 1e-9)
	assert.Equal(t, "sarif", cfg.Report.Format)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		mut  func(*Config)
	}{
		{"negative depth", func(c *Config) { c.Analysis.MaxDepth = -1 }},
		{"zero modules", func(c *Config) { c.Analysis.MaxModules = 0 }},
		{"zero workers", func(c *Config) { c.Analysis.Workers = 0 }},
		{"decay above one", func(c *Config) { c.Analysis.ConfidenceDecay = 1.5 }},
		{"bad format", func(c *Config) { c.Report.Format = "xml" }},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := NewDefaultConfig()
			tc.mut(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDepthZeroIsValid(t *testing.T) {
	t.Parallel()

	cfg := NewDefaultConfig()
	cfg.Analysis.MaxDepth = 0
	assert.NoError(t, cfg.Validate())
}
