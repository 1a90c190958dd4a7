package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/scduck/scduck/internal/debug"
)

var v *viper.Viper

// Initialize sets up the viper configuration singleton. Should be called
// once at application startup, before any Get* function is used.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	configFileSet := false

	// 1. Walk up from CWD looking for a project-local .scduck/config.yaml,
	//    so commands work the same from any subdirectory of a project.
	cwd, err := os.Getwd()
	if err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			configPath := filepath.Join(dir, ".scduck", "config.yaml")
			if _, statErr := os.Stat(configPath); statErr == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
				break
			}
		}
	}

	// 2. User config directory (~/.config/scduck/config.yaml).
	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			configPath := filepath.Join(configDir, "scduck", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// Env vars take precedence over the config file: SCDUCK_DB,
	// SCDUCK_LOCK_TIMEOUT, etc.
	v.SetEnvPrefix("SCDUCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("db", "")
	v.SetDefault("json", false)
	v.SetDefault("lock-timeout", "30s")
	v.SetDefault("date-format", "2006-01-02")

	// Table presets let a project declare its versioned tables once in
	// config.yaml instead of passing --keys/--values flags on every sync:
	//
	//   tables:
	//     securities:
	//       keys: [security_id]
	//       values: [ticker, exchange, status]
	v.SetDefault("tables", map[string]any{})

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("config: reading %s: %w", v.ConfigFileUsed(), err)
		}
		debug.Logf("config: loaded from %s", v.ConfigFileUsed())
	} else {
		debug.Logf("config: no config.yaml found; using defaults and environment variables")
	}

	// 3. A project-local scduck.yaml holds only table presets, separate from
	// config.yaml's per-machine settings (db path, lock timeout) — meant to
	// be checked into the project repo and shared across machines.
	merged := map[string]TablePreset{}
	if err := v.UnmarshalKey("tables", &merged); err != nil {
		return fmt.Errorf("config: parsing tables section: %w", err)
	}
	if path, ok := findUpwards(cwd, "scduck.yaml"); ok {
		presets, err := loadTablePresetYAML(path)
		if err != nil {
			return err
		}
		for name, preset := range presets {
			merged[name] = preset
		}
		debug.Logf("config: merged table presets from %s", path)
	}

	// 4. A secondary TOML profile offers the same table-preset shape for
	// users who keep the rest of their tool configuration in TOML.
	if path, ok := findUpwards(cwd, "scduck.toml"); ok {
		presets, err := loadTablePresetTOML(path)
		if err != nil {
			return err
		}
		for name, preset := range presets {
			merged[name] = preset
		}
		debug.Logf("config: merged table presets from %s", path)
	}

	v.Set("tables", merged)

	return nil
}

// findUpwards looks for name in dir and each of its ancestors below the
// filesystem root (the root itself is not searched), returning the first
// match.
func findUpwards(dir, name string) (string, bool) {
	if dir == "" {
		return "", false
	}
	for d := dir; d != filepath.Dir(d); d = filepath.Dir(d) {
		candidate := filepath.Join(d, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
	}
	return "", false
}

// loadTablePresetYAML parses a scduck.yaml file of the form:
//
//	tables:
//	  securities:
//	    keys: [security_id]
//	    values: [ticker, exchange, status]
func loadTablePresetYAML(path string) (map[string]TablePreset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var doc struct {
		Tables map[string]TablePreset `yaml:"tables"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return doc.Tables, nil
}

// loadTablePresetTOML parses a scduck.toml file of the form:
//
//	[tables.securities]
//	keys = ["security_id"]
//	values = ["ticker", "exchange", "status"]
func loadTablePresetTOML(path string) (map[string]TablePreset, error) {
	var doc struct {
		Tables map[string]TablePreset `toml:"tables"`
	}
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return doc.Tables, nil
}

// TablePreset is one entry of the tables.<name> config section.
type TablePreset struct {
	Keys   []string `mapstructure:"keys" yaml:"keys" toml:"keys"`
	Values []string `mapstructure:"values" yaml:"values" toml:"values"`
}

// TablePresets returns every table declared under the tables config key,
// keyed by table name.
func TablePresets() (map[string]TablePreset, error) {
	if v == nil {
		return nil, nil
	}
	out := map[string]TablePreset{}
	if err := v.UnmarshalKey("tables", &out); err != nil {
		return nil, fmt.Errorf("config: parsing tables section: %w", err)
	}
	return out, nil
}

// GetString retrieves a string configuration value.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value.
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetDuration retrieves a duration configuration value.
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set overrides a configuration value on top of the file/env layers.
func Set(key string, value any) {
	if v != nil {
		v.Set(key, value)
	}
}

// AllSettings returns every resolved configuration setting as a map.
func AllSettings() map[string]any {
	if v == nil {
		return map[string]any{}
	}
	return v.AllSettings()
}
