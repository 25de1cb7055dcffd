package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/converter-bench/benchtop/config"
	"github.com/converter-bench/benchtop/instrument"
	"github.com/converter-bench/benchtop/interlock"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, found, err := config.Load(filepath.Join(t.TempDir(), "no-such.json"))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, config.Default(), cfg)
	assert.Equal(t, ":8000", cfg.Addr)
	assert.Equal(t, "Master_Log.xlsx", cfg.Workbook)
	assert.Equal(t, interlock.DefaultScopeAmplitudeV, cfg.Limits.ScopeAmplitudeV)
}

func TestLoadJSONOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	blob := `{
		"addr": ":9001",
		"oscilloscope_ip": "192.168.0.10:5555",
		"power_supply_ip": "192.168.0.11:5555",
		"limits": {"supply_voltage_v": 24}
	}`
	require.NoError(t, os.WriteFile(path, []byte(blob), 0644))

	cfg, found, err := config.Load(path)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, ":9001", cfg.Addr)
	assert.Equal(t, "192.168.0.10:5555", cfg.OscilloscopeIP)
	assert.Equal(t, "192.168.0.11:5555", cfg.PowerSupplyIP)
	assert.Equal(t, 24.0, cfg.Limits.SupplyVoltageV)
	// untouched keys keep their defaults
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, interlock.DefaultScopeAmplitudeV, cfg.Limits.ScopeAmplitudeV)
}

func TestLoadYAMLByExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	blob := "addr: \":7000\"\nworkbook: bench.xlsx\n"
	require.NoError(t, os.WriteFile(path, []byte(blob), 0644))

	cfg, found, err := config.Load(path)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, "bench.xlsx", cfg.Workbook)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, found, err := config.Load(path)
	assert.True(t, found)
	assert.Error(t, err)
}

func TestPolicyUsesConfiguredCeilings(t *testing.T) {
	cfg := config.Default()
	cfg.Limits.SupplyVoltageV = 12

	p := cfg.Policy()
	assert.True(t, p.Evaluate(instrument.PowerSupply, interlock.ParamVoltage, 12).Accepted)
	assert.False(t, p.Evaluate(instrument.PowerSupply, interlock.ParamVoltage, 12.5).Accepted)
	assert.True(t, p.Evaluate(instrument.Oscilloscope, interlock.ParamAmplitude, 20).Accepted)
}
