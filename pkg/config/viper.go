package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/frames/pkg/dotdir"
)

// EnvPrefix prefixes every environment override, e.g. FRAMES_STORAGE_DRIVER.
const EnvPrefix = "FRAMES"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the FRAMES_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (FRAMES_STORAGE_DRIVER, FRAMES_API_LISTEN, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	for key, info := range configKeys {
		if info.list {
			v.SetDefault(key, []string{})
			continue
		}
		v.SetDefault(key, info.get(d))
	}
}

// FromViper resolves a Config from every source viper knows about. Values go
// through the same validating setters as "frames config set".
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := NewDefaultConfig()

	for _, key := range ValidConfigKeys() {
		info := configKeys[key]

		var raw string
		if info.list {
			raw = strings.Join(v.GetStringSlice(key), ",")
		} else {
			raw = v.GetString(key)
		}

		if raw == "" && !info.list {
			continue
		}
		if err := info.set(cfg, raw); err != nil {
			return nil, err
		}
	}

	if allowed := v.GetStringSlice("metadata.allowed"); len(allowed) > 0 {
		cfg.Metadata.Allowed = allowed
	}
	if forbidden := v.GetStringSlice("metadata.forbidden"); len(forbidden) > 0 {
		cfg.Metadata.Forbidden = forbidden
	}

	if err := v.UnmarshalKey("agents", &cfg.Agents); err != nil {
		return nil, fmt.Errorf("decoding agents: %w", err)
	}
	for i, a := range cfg.Agents {
		if a.ID == "" {
			return nil, fmt.Errorf("agents[%d]: id is required", i)
		}
	}

	return cfg, nil
}
