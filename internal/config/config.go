// Package config loads engine-wide configuration: retention policy,
// bootstrap/permutation defaults, execution defaults, and server settings,
// from YAML with environment-variable overrides layered on top.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Retention  RetentionConfig  `yaml:"retention"`
	Validation ValidationConfig `yaml:"validation"`
	Execution  ExecutionConfig  `yaml:"execution"`
	Registry   RegistryConfig   `yaml:"registry"`
	Cache      CacheConfig      `yaml:"cache"`
}

// ServerConfig configures the HTTP control plane (spec §6).
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ArtifactsDir    string `yaml:"artifacts_dir"`
	TimeframeStrict bool   `yaml:"timeframe_strict"`
}

// RetentionConfig mirrors internal/retention.Config (spec §4.11).
type RetentionConfig struct {
	NGlobal int `yaml:"n_global"`
	K       int `yaml:"k_per_strategy"`
}

// ValidationConfig defaults the permutation/bootstrap/walk-forward
// parameters (spec §4.7).
type ValidationConfig struct {
	PermutationTrials    int     `yaml:"permutation_trials"`
	BootstrapTrials      int     `yaml:"bootstrap_trials"`
	BootstrapCILevel     float64 `yaml:"bootstrap_ci_level"`
	BootstrapWidthMax    float64 `yaml:"bootstrap_width_max"`
	BootstrapStrictWidth bool    `yaml:"bootstrap_strict_width"`
	WalkForwardSegments  int     `yaml:"walk_forward_segments"`
	RiskFreeRate         float64 `yaml:"risk_free_rate"`
}

// ExecutionConfig holds the drawdown epsilon and the optimization
// combination cap.
type ExecutionConfig struct {
	DrawdownEpsilon       float64 `yaml:"drawdown_epsilon"`
	OptimizationMaxCombos int     `yaml:"optimization_max_combinations"`
}

// RegistryConfig configures the Postgres-backed run registry (spec §4.12).
type RegistryConfig struct {
	DSN            string `yaml:"dsn"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        bool   `yaml:"enabled"`
}

// CacheConfig configures the Redis-backed feature cache (spec §4.3).
type CacheConfig struct {
	Addr    string `yaml:"addr"`
	Enabled bool   `yaml:"enabled"`
}

// Default returns the configuration's baked-in defaults, applied before a
// YAML file and environment overrides are layered on.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ArtifactsDir:    "./artifacts",
			TimeframeStrict: false,
		},
		Retention: RetentionConfig{
			NGlobal: 50,
			K:       5,
		},
		Validation: ValidationConfig{
			PermutationTrials:    1000,
			BootstrapTrials:      1000,
			BootstrapCILevel:     0.95,
			BootstrapWidthMax:    0.20,
			BootstrapStrictWidth: false,
			WalkForwardSegments:  0,
			RiskFreeRate:         0.0,
		},
		Execution: ExecutionConfig{
			DrawdownEpsilon:       1e-9,
			OptimizationMaxCombos: 256,
		},
		Registry: RegistryConfig{
			TimeoutSeconds: 5,
			Enabled:        false,
		},
		Cache: CacheConfig{
			Enabled: false,
		},
	}
}

// Load reads configPath (if non-empty) over Default(), then applies
// environment-variable overrides, matching the teacher's two-layer
// file-then-env pattern in internal/config/providers.go.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read engine config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse engine config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides layers the AF_* / BOOT_* environment variables named in
// the ambient-stack expansion over whatever the YAML file set.
func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("AF_TIMEFRAME_STRICT"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Server.TimeframeStrict = b
		}
	}
	if v, ok := os.LookupEnv("AF_DRAWDOWN_EPSILON"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Execution.DrawdownEpsilon = f
		}
	}
	if v, ok := os.LookupEnv("AF_OPTIMIZATION_MAX_COMBINATIONS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Execution.OptimizationMaxCombos = n
		}
	}
	if v, ok := os.LookupEnv("BOOT_CI_WIDTH_MAX"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Validation.BootstrapWidthMax = f
		}
	}
	if v, ok := os.LookupEnv("AF_REGISTRY_DSN"); ok {
		cfg.Registry.DSN = v
	}
	if v, ok := os.LookupEnv("AF_CACHE_ADDR"); ok {
		cfg.Cache.Addr = v
	}
}

// Validate ensures the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Retention.NGlobal <= 0 {
		return fmt.Errorf("retention.n_global must be positive, got %d", c.Retention.NGlobal)
	}
	if c.Retention.K < 0 {
		return fmt.Errorf("retention.k_per_strategy cannot be negative, got %d", c.Retention.K)
	}
	if c.Validation.PermutationTrials <= 0 {
		return fmt.Errorf("validation.permutation_trials must be positive, got %d", c.Validation.PermutationTrials)
	}
	if c.Validation.BootstrapTrials <= 0 {
		return fmt.Errorf("validation.bootstrap_trials must be positive, got %d", c.Validation.BootstrapTrials)
	}
	if c.Validation.BootstrapCILevel <= 0 || c.Validation.BootstrapCILevel >= 1 {
		return fmt.Errorf("validation.bootstrap_ci_level must be in (0,1), got %f", c.Validation.BootstrapCILevel)
	}
	if c.Validation.WalkForwardSegments < 0 {
		return fmt.Errorf("validation.walk_forward_segments cannot be negative, got %d", c.Validation.WalkForwardSegments)
	}
	if c.Execution.OptimizationMaxCombos <= 0 {
		return fmt.Errorf("execution.optimization_max_combinations must be positive, got %d", c.Execution.OptimizationMaxCombos)
	}
	if c.Registry.Enabled && c.Registry.DSN == "" {
		return fmt.Errorf("registry.dsn is required when registry.enabled is true")
	}
	if c.Registry.TimeoutSeconds <= 0 {
		return fmt.Errorf("registry.timeout_seconds must be positive, got %d", c.Registry.TimeoutSeconds)
	}
	if c.Cache.Enabled && c.Cache.Addr == "" {
		return fmt.Errorf("cache.addr is required when cache.enabled is true")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr cannot be empty")
	}
	if c.Server.ArtifactsDir == "" {
		return fmt.Errorf("server.artifacts_dir cannot be empty")
	}
	return nil
}
