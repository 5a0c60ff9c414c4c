// Package config loads the ambient run configuration (server, data
// directory, worker pool, Monte Carlo / walk-forward toggles, and the
// default StrategyConfig used by `-once` single-run mode) from a YAML/JSON
// file with environment-variable overrides, using
// github.com/spf13/viper — declared in the teacher's go.mod but never
// actually consumed there (the teacher only ever parsed flags and env
// vars directly in main.go). This package is viper's first real caller.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/atlas-quant/backtestengine/pkg/types"
)

// RunConfig is the top-level configuration for the backtester binary.
type RunConfig struct {
	Server      types.ServerConfig      `mapstructure:"server"`
	Data        types.DataConfig        `mapstructure:"data"`
	WalkForward types.WalkForwardConfig `mapstructure:"walkForward"`
	MonteCarlo  types.MonteCarloConfig  `mapstructure:"monteCarlo"`
	Workers     WorkersConfig           `mapstructure:"workers"`

	// Commission is read as a decimal string so config files can pin an
	// exact fractional commission rate (e.g. "0.001") without the binary
	// float-rounding a hand-typed literal; it is converted to float64
	// once at load time; the core engine itself is float64-only, per
	// SPEC_FULL.md §3's decimal-at-the-boundary decision.
	Commission string `mapstructure:"commission"`

	Strategy types.StrategyConfig `mapstructure:"strategy"`
}

// WorkersConfig configures internal/workers.Pool.
type WorkersConfig struct {
	Count      int `mapstructure:"count"`
	QueueDepth int `mapstructure:"queueDepth"`
}

// CommissionRate parses RunConfig.Commission, defaulting to zero if unset.
func (c *RunConfig) CommissionRate() (float64, error) {
	if c.Commission == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(c.Commission)
	if err != nil {
		return 0, fmt.Errorf("config: invalid commission %q: %w", c.Commission, err)
	}
	rate, _ := d.Float64()
	return rate, nil
}

func defaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 15*time.Second)
	v.SetDefault("server.writeTimeout", 15*time.Second)
	v.SetDefault("server.maxConnections", 100)
	v.SetDefault("server.enableMetrics", true)
	v.SetDefault("server.metricsPort", 9090)

	v.SetDefault("data.dataDir", "./data")

	v.SetDefault("workers.count", 4)
	v.SetDefault("workers.queueDepth", 64)

	v.SetDefault("walkForward.enabled", false)
	v.SetDefault("walkForward.windowDays", 90)
	v.SetDefault("walkForward.stepDays", 30)
	v.SetDefault("walkForward.minSamples", 30)

	v.SetDefault("monteCarlo.enabled", false)
	v.SetDefault("monteCarlo.iterations", 1000)
	v.SetDefault("monteCarlo.confidenceLevel", 0.95)

	v.SetDefault("commission", "0")
}

// Load reads RunConfig from path (YAML, JSON, or TOML, detected by
// extension), applying defaults first and letting environment variables
// prefixed BACKTESTER_ override any key (nested keys use "_" in place of
// ".", e.g. BACKTESTER_SERVER_PORT).
func Load(path string) (*RunConfig, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("BACKTESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg RunConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &cfg, nil
}
