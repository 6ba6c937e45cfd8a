// Package config loads and persists the frames configuration file and
// exposes it through viper with environment and flag overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/frames/pkg/dotdir"
)

const (
	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

// Configer reads and writes config.toml in a resolved frames directory.
type Configer struct {
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	path, err := dotdir.NewManager().Path(override, dotdir.ConfigFile)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return &Configer{targetPath: path}, nil
}

// orderedKeys follows the TOML section layout.
var orderedKeys = []string{
	"storage.driver",
	"storage.sqlite_path",
	"storage.postgres_dsn",
	"storage.badger_path",
	"storage.libsql_path",
	"queue.workers",
	"queue.queue_size",
	"queue.max_retries",
	"queue.initial_backoff",
	"queue.max_backoff",
	"queue.provider_rps",
	"queue.provider_burst",
	"queue.default_timeout",
	"queue.history_size",
	"api.listen",
	"generator.provider",
	"generator.model",
	"generator.base_url",
	"generator.max_tokens",
	"metadata.max_keys",
	"metadata.max_value_bytes",
	"metadata.strict",
	"eventstream.provider",
	"eventstream.brokers",
	"eventstream.topic",
}

// ValidConfigKeys returns the list of all supported configuration key names
// in section order.
func ValidConfigKeys() []string {
	result := make([]string, 0, len(configKeys))
	seen := make(map[string]bool, len(configKeys))
	for _, k := range orderedKeys {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
			seen[k] = true
		}
	}
	for k := range configKeys {
		if !seen[k] {
			result = append(result, k)
		}
	}
	return result
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// Dir returns the resolved .frames/ directory, or "" when none was resolved.
func (c *Configer) Dir() string {
	if c.targetPath == "" {
		return ""
	}
	return filepath.Dir(c.targetPath)
}

// LoadConfig loads the configuration from config.toml in the target .frames/ directory.
// If the file does not exist, returns NewDefaultConfig() so callers always receive
// a fully-populated Config. Fields explicitly set in the file override the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills zero-value fields in cfg with values from NewDefaultConfig().
func applyDefaults(cfg *Config) {
	d := NewDefaultConfig()

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = d.Storage.Driver
	}

	q := &cfg.Queue
	if q.Workers == 0 {
		q.Workers = d.Queue.Workers
	}
	if q.QueueSize == 0 {
		q.QueueSize = d.Queue.QueueSize
	}
	if q.InitialBackoff == "" {
		q.InitialBackoff = d.Queue.InitialBackoff
	}
	if q.MaxBackoff == "" {
		q.MaxBackoff = d.Queue.MaxBackoff
	}
	if q.ProviderBurst == 0 {
		q.ProviderBurst = d.Queue.ProviderBurst
	}
	if q.DefaultTimeout == "" {
		q.DefaultTimeout = d.Queue.DefaultTimeout
	}
	if q.HistorySize == 0 {
		q.HistorySize = d.Queue.HistorySize
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = d.API.Listen
	}

	if cfg.Generator.Provider == "" {
		cfg.Generator.Provider = d.Generator.Provider
	}
	if cfg.Generator.MaxTokens == 0 {
		cfg.Generator.MaxTokens = d.Generator.MaxTokens
	}

	if cfg.Metadata.MaxKeys == 0 {
		cfg.Metadata.MaxKeys = d.Metadata.MaxKeys
	}
	if cfg.Metadata.MaxValueBytes == 0 {
		cfg.Metadata.MaxValueBytes = d.Metadata.MaxValueBytes
	}

	if cfg.EventStream.Provider == "" {
		cfg.EventStream.Provider = d.EventStream.Provider
	}
	if cfg.EventStream.Topic == "" {
		cfg.EventStream.Topic = d.EventStream.Topic
	}
}

// SaveConfig persists the configuration to config.toml in the target .frames/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// PresetConfig returns a default Config with the generator section filled in
// for the named provider preset.
func PresetConfig(name string) (*Config, error) {
	cfg := NewDefaultConfig()

	switch strings.ToLower(name) {
	case "static":
		return cfg, nil

	case "anthropic":
		cfg.Generator = GeneratorConfig{
			Provider:  "anthropic",
			Model:     "claude-sonnet-4-5",
			MaxTokens: defaultMaxTokens,
		}
		return cfg, nil

	case "openai":
		cfg.Generator = GeneratorConfig{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			MaxTokens: defaultMaxTokens,
		}
		return cfg, nil

	case "ollama":
		cfg.Generator = GeneratorConfig{
			Provider:  "ollama",
			Model:     "llama3.2",
			BaseURL:   "http://localhost:11434/v1",
			MaxTokens: defaultMaxTokens,
		}
		return cfg, nil

	default:
		return nil, fmt.Errorf("unknown preset: %q (available: %s)", name, strings.Join(ValidPresetNames(), ", "))
	}
}

// ValidPresetNames returns the list of recognized preset names.
func ValidPresetNames() []string {
	return []string{"static", "anthropic", "openai", "ollama"}
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	for i, a := range cfg.Agents {
		if a.ID == "" {
			return nil, fmt.Errorf("agents[%d]: id is required", i)
		}
	}

	return cfg, nil
}
