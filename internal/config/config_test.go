package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Retention.NGlobal)
	assert.Equal(t, 5, cfg.Retention.K)
}

func TestLoad_YAMLFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	body := []byte(`
retention:
  n_global: 10
  k_per_strategy: 2
validation:
  permutation_trials: 500
  bootstrap_trials: 500
  bootstrap_ci_level: 0.90
`)
	require.NoError(t, os.WriteFile(path, body, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Retention.NGlobal)
	assert.Equal(t, 2, cfg.Retention.K)
	assert.Equal(t, 500, cfg.Validation.PermutationTrials)
	assert.InDelta(t, 0.90, cfg.Validation.BootstrapCILevel, 1e-9)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("AF_DRAWDOWN_EPSILON", "0.5")
	t.Setenv("BOOT_CI_WIDTH_MAX", "0.33")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, cfg.Execution.DrawdownEpsilon, 1e-9)
	assert.InDelta(t, 0.33, cfg.Validation.BootstrapWidthMax, 1e-9)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		expectErr string
	}{
		{
			name:      "zero n_global",
			mutate:    func(c *Config) { c.Retention.NGlobal = 0 },
			expectErr: "n_global must be positive",
		},
		{
			name:      "negative k_per_strategy",
			mutate:    func(c *Config) { c.Retention.K = -1 },
			expectErr: "k_per_strategy cannot be negative",
		},
		{
			name:      "ci level out of range",
			mutate:    func(c *Config) { c.Validation.BootstrapCILevel = 1.5 },
			expectErr: "bootstrap_ci_level must be in",
		},
		{
			name:      "registry enabled without dsn",
			mutate:    func(c *Config) { c.Registry.Enabled = true; c.Registry.DSN = "" },
			expectErr: "registry.dsn is required",
		},
		{
			name:      "cache enabled without addr",
			mutate:    func(c *Config) { c.Cache.Enabled = true; c.Cache.Addr = "" },
			expectErr: "cache.addr is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectErr)
		})
	}
}
