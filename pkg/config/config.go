// Package config loads the orchestrator's YAML configuration file into
// the recognized option set (spec §6.5), applying defaults for anything
// left unset.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SecurityConfig carries security.Level as a plain string for
// unmarshaling; validated against the three recognized values on load.
type SecurityConfig struct {
	Level string `yaml:"level"`
}

type ProvidersConfig struct {
	URLs                     []string `yaml:"urls"`
	TimeoutSeconds           int      `yaml:"timeout_seconds"`
	UnhealthyCooldownSeconds int      `yaml:"unhealthy_cooldown_seconds"`
	APIKey                   string   `yaml:"api_key"`
}

type CacheConfig struct {
	CoreCapabilities []string `yaml:"core_capabilities"`
	MaxEntries       int      `yaml:"max_entries"`
}

type LedgerConfig struct {
	StoragePath               string `yaml:"storage_path"`
	Difficulty                int    `yaml:"difficulty"`
	BlockCapacity             int    `yaml:"block_capacity"`
	BlockTimeTargetSeconds    int    `yaml:"block_time_target_seconds"`
	MaxTransactionWaitSeconds int    `yaml:"max_transaction_wait_seconds"`
	SigningKey                string `yaml:"signing_key"`
}

type ResourcesConfig struct {
	MemoryTotalMB  int `yaml:"memory_total_mb"`
	CPUCores       int `yaml:"cpu_cores"`
	StorageTotalMB int `yaml:"storage_total_mb"`
}

// Config is the orchestrator's full recognized configuration surface
// (spec §6.5).
type Config struct {
	Security  SecurityConfig  `yaml:"security"`
	Providers ProvidersConfig `yaml:"providers"`
	Cache     CacheConfig     `yaml:"cache"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Resources ResourcesConfig `yaml:"resources"`
}

// Default returns a Config populated with every spec §6.5 default.
func Default() Config {
	return Config{
		Security: SecurityConfig{Level: "standard"},
		Providers: ProvidersConfig{
			TimeoutSeconds:           30,
			UnhealthyCooldownSeconds: 60,
		},
		Cache: CacheConfig{
			CoreCapabilities: []string{"file_system", "ui_rendering", "text_generation"},
			MaxEntries:       20,
		},
		Ledger: LedgerConfig{
			Difficulty:                4,
			BlockCapacity:             100,
			BlockTimeTargetSeconds:    60,
			MaxTransactionWaitSeconds: 300,
		},
		Resources: ResourcesConfig{
			MemoryTotalMB:  8192,
			CPUCores:       4,
			StorageTotalMB: 10240,
		},
	}
}

// Load reads and parses a YAML configuration file, overlaying it onto the
// defaults. An empty path is not an error: the caller gets pure defaults.
// A path naming a file that cannot be read is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate rejects configuration combinations the orchestrator cannot act
// on, such as an unrecognized security level.
func (c Config) Validate() error {
	switch c.Security.Level {
	case "standard", "high", "maximum":
	default:
		return fmt.Errorf("security.level must be one of standard|high|maximum, got %q", c.Security.Level)
	}
	if c.Ledger.StoragePath == "" {
		return fmt.Errorf("ledger.storage_path is required")
	}
	return nil
}
