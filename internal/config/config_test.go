package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Workers.Count)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "server:\n  port: 9100\nworkers:\n  count: 8\ncommission: \"0.001\"\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Workers.Count)

	rate, err := cfg.CommissionRate()
	require.NoError(t, err)
	assert.InDelta(t, 0.001, rate, 1e-9)
}

func TestCommissionRateDefaultsToZero(t *testing.T) {
	cfg := &RunConfig{}
	rate, err := cfg.CommissionRate()
	require.NoError(t, err)
	assert.Equal(t, 0.0, rate)
}
