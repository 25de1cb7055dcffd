// Package config loads the bench configuration: instrument addresses,
// interlock ceilings, listen address, and export targets.  Defaults
// are layered under an optional json or yaml file; a missing file is
// reported, not fatal.
package config

import (
	"os"
	"path/filepath"

	"github.com/knadh/koanf"
	kjson "github.com/knadh/koanf/parsers/json"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	"github.com/converter-bench/benchtop/instrument"
	"github.com/converter-bench/benchtop/interlock"
)

// Limits holds the interlock ceiling overrides, volts.
type Limits struct {
	ScopeAmplitudeV float64 `koanf:"scope_amplitude_v" yaml:"scope_amplitude_v"`
	SupplyVoltageV  float64 `koanf:"supply_voltage_v" yaml:"supply_voltage_v"`
}

// Config is the full daemon configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `koanf:"addr" yaml:"addr"`

	// LogLevel is a logrus level name.
	LogLevel string `koanf:"log_level" yaml:"log_level"`

	// OscilloscopeIP and PowerSupplyIP pre-populate the connect
	// targets; either may be empty.
	OscilloscopeIP string `koanf:"oscilloscope_ip" yaml:"oscilloscope_ip"`
	PowerSupplyIP  string `koanf:"power_supply_ip" yaml:"power_supply_ip"`

	// Workbook is the master spreadsheet sessions append to.
	Workbook string `koanf:"workbook" yaml:"workbook"`

	// TranscriptDir receives flat text exports.
	TranscriptDir string `koanf:"transcript_dir" yaml:"transcript_dir"`

	Limits Limits `koanf:"limits" yaml:"limits"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Addr:          ":8000",
		LogLevel:      "info",
		Workbook:      "Master_Log.xlsx",
		TranscriptDir: ".",
		Limits: Limits{
			ScopeAmplitudeV: interlock.DefaultScopeAmplitudeV,
			SupplyVoltageV:  interlock.DefaultSupplyVoltageV,
		},
	}
}

// Load reads the configuration at path over the defaults.  The second
// return reports whether the file was found; its absence is not an
// error, the caller proceeds with defaults and reports it.
func Load(path string) (Config, bool, error) {
	cfg := Default()
	k := koanf.New(".")
	if err := k.Load(structs.Provider(cfg, "koanf"), nil); err != nil {
		return cfg, false, err
	}
	found := true
	if _, err := os.Stat(path); os.IsNotExist(err) {
		found = false
	} else {
		var parser koanf.Parser = kjson.Parser()
		switch filepath.Ext(path) {
		case ".yml", ".yaml":
			parser = kyaml.Parser()
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return cfg, true, err
		}
	}
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, found, err
	}
	return cfg, found, nil
}

// Policy builds the interlock policy from the configured ceilings.
func (c Config) Policy() *interlock.Policy {
	p := interlock.NewPolicy()
	p.SetCeiling(instrument.Oscilloscope, interlock.ParamAmplitude, c.Limits.ScopeAmplitudeV)
	p.SetCeiling(instrument.PowerSupply, interlock.ParamVoltage, c.Limits.SupplyVoltageV)
	return p
}
