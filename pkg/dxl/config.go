package dxl

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// DefaultConfigFile is where the cmd tools look for bus settings.
const DefaultConfigFile = "dxl.json"

// fileConfig is the JSON shape of a Config. Durations are stored as
// milliseconds to keep the file hand-editable.
type fileConfig struct {
	Port            string  `json:"port,omitempty"`
	Baudrate        int     `json:"baudrate,omitempty"`
	ProtocolVersion float64 `json:"protocol_version,omitempty"`
	TimeoutMS       int     `json:"timeout_ms,omitempty"`
	RetryCount      int     `json:"retry_count,omitempty"`
	ScanStart       int     `json:"scan_start,omitempty"`
	ScanEnd         int     `json:"scan_end,omitempty"`
	PollIntervalMS  int     `json:"poll_interval_ms,omitempty"`
	MovingTolerance int64   `json:"moving_tolerance,omitempty"`
}

// LoadConfig loads bus settings from the default config file.
func LoadConfig() (Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads bus settings from a specific file. Missing fields
// keep their defaults.
func LoadConfigFrom(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("parse config JSON: %w", err)
	}
	cfg := Config{
		Port:            fc.Port,
		Baudrate:        fc.Baudrate,
		ProtocolVersion: fc.ProtocolVersion,
		Timeout:         time.Duration(fc.TimeoutMS) * time.Millisecond,
		RetryCount:      fc.RetryCount,
		ScanStart:       fc.ScanStart,
		ScanEnd:         fc.ScanEnd,
		PollInterval:    time.Duration(fc.PollIntervalMS) * time.Millisecond,
		MovingTolerance: fc.MovingTolerance,
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the settings to the default config file.
func (c Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo writes the settings to a specific file.
func (c Config) SaveTo(path string) error {
	fc := fileConfig{
		Port:            c.Port,
		Baudrate:        c.Baudrate,
		ProtocolVersion: c.ProtocolVersion,
		TimeoutMS:       int(c.Timeout / time.Millisecond),
		RetryCount:      c.RetryCount,
		ScanStart:       c.ScanStart,
		ScanEnd:         c.ScanEnd,
		PollIntervalMS:  int(c.PollInterval / time.Millisecond),
		MovingTolerance: c.MovingTolerance,
	}
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists reports whether the default config file is present.
func ConfigExists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}
