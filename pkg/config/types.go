package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/frames/pkg/metadata"
)

// Config represents the persistent frames configuration stored as config.toml
// in the .frames/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	Queue       QueueConfig       `toml:"queue"`
	API         APIConfig         `toml:"api"`
	Generator   GeneratorConfig   `toml:"generator"`
	Metadata    metadata.Config   `toml:"metadata"`
	EventStream EventStreamConfig `toml:"eventstream"`

	// Agents is the agent registry. An empty list accepts any well-formed
	// agent ID.
	Agents []AgentConfig `toml:"agents,omitempty"`
}

// StorageConfig selects and configures the storage driver.
type StorageConfig struct {
	// Driver is one of sqlite, postgres, badger, libsql or memory.
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
	BadgerPath  string `toml:"badger_path,omitempty"`
	LibSQLPath  string `toml:"libsql_path,omitempty"`
}

// QueueConfig holds generation queue settings. Durations are Go duration
// strings.
type QueueConfig struct {
	Workers        uint    `toml:"workers,omitempty"`
	QueueSize      uint    `toml:"queue_size,omitempty"`
	MaxRetries     uint    `toml:"max_retries,omitempty"`
	InitialBackoff string  `toml:"initial_backoff,omitempty"`
	MaxBackoff     string  `toml:"max_backoff,omitempty"`
	ProviderRPS    float64 `toml:"provider_rps,omitempty"`
	ProviderBurst  uint    `toml:"provider_burst,omitempty"`
	DefaultTimeout string  `toml:"default_timeout,omitempty"`
	HistorySize    uint    `toml:"history_size,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// GeneratorConfig selects the generation provider.
type GeneratorConfig struct {
	// Provider is one of static, anthropic, openai or ollama.
	Provider  string `toml:"provider,omitempty"`
	Model     string `toml:"model,omitempty"`
	BaseURL   string `toml:"base_url,omitempty"`
	MaxTokens uint   `toml:"max_tokens,omitempty"`
}

// EventStreamConfig selects where commit events are published.
type EventStreamConfig struct {
	// Provider is nop or kafka.
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// AgentConfig registers one agent.
type AgentConfig struct {
	ID          string `toml:"id" mapstructure:"id"`
	Description string `toml:"description,omitempty" mapstructure:"description"`
	Prompt      string `toml:"prompt,omitempty" mapstructure:"prompt"`
	Model       string `toml:"model,omitempty" mapstructure:"model"`
}

// Durations parses the queue's duration settings. Empty values are zero.
func (q QueueConfig) Durations() (initial, maxBackoff, timeout time.Duration, err error) {
	parse := func(key, v string) (time.Duration, error) {
		if v == "" {
			return 0, nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid value for queue.%s: %w", key, err)
		}
		return d, nil
	}
	if initial, err = parse("initial_backoff", q.InitialBackoff); err != nil {
		return
	}
	if maxBackoff, err = parse("max_backoff", q.MaxBackoff); err != nil {
		return
	}
	timeout, err = parse("default_timeout", q.DefaultTimeout)
	return
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
// valueKind is the type a key's command-line flag parses as.
type valueKind int

const (
	kindString valueKind = iota
	kindUint
	kindInt
	kindBool
)

type configKeyInfo struct {
	get  func(c *Config) string
	set  func(c *Config, v string) error
	kind valueKind

	// list keys hold comma separated values.
	list bool
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		kind: kindUint,
		get: func(c *Config) string { return strconv.FormatUint(uint64(*field(c)), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		kind: kindInt,
		get: func(c *Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fmt.Errorf("invalid value for %s: %q", name, v)
			}
			*field(c) = n
			return nil
		},
	}
}

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		kind: kindBool,
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

func durationKey(name string, field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			if v != "" {
				if _, err := time.ParseDuration(v); err != nil {
					return fmt.Errorf("invalid value for %s: %w", name, err)
				}
			}
			*field(c) = v
			return nil
		},
	}
}

func oneOfKey(name string, allowed []string, field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			for _, a := range allowed {
				if v == a {
					*field(c) = v
					return nil
				}
			}
			return fmt.Errorf("invalid value for %s: %q (available: %s)", name, v, strings.Join(allowed, ", "))
		},
	}
}

// StorageDrivers lists the accepted storage.driver values.
var StorageDrivers = []string{"sqlite", "postgres", "badger", "libsql", "memory"}

// GeneratorProviders lists the accepted generator.provider values.
var GeneratorProviders = []string{"static", "anthropic", "openai", "ollama"}

// EventStreamProviders lists the accepted eventstream.provider values.
var EventStreamProviders = []string{"nop", "kafka"}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.driver":       oneOfKey("storage.driver", StorageDrivers, func(c *Config) *string { return &c.Storage.Driver }),
	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),
	"storage.badger_path":  stringKey(func(c *Config) *string { return &c.Storage.BadgerPath }),
	"storage.libsql_path":  stringKey(func(c *Config) *string { return &c.Storage.LibSQLPath }),

	"queue.workers":         uintKey("queue.workers", func(c *Config) *uint { return &c.Queue.Workers }),
	"queue.queue_size":      uintKey("queue.queue_size", func(c *Config) *uint { return &c.Queue.QueueSize }),
	"queue.max_retries":     uintKey("queue.max_retries", func(c *Config) *uint { return &c.Queue.MaxRetries }),
	"queue.initial_backoff": durationKey("queue.initial_backoff", func(c *Config) *string { return &c.Queue.InitialBackoff }),
	"queue.max_backoff":     durationKey("queue.max_backoff", func(c *Config) *string { return &c.Queue.MaxBackoff }),
	"queue.provider_rps": {
		get: func(c *Config) string { return strconv.FormatFloat(c.Queue.ProviderRPS, 'g', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f < 0 {
				return fmt.Errorf("invalid value for queue.provider_rps: %q", v)
			}
			c.Queue.ProviderRPS = f
			return nil
		},
	},
	"queue.provider_burst":  uintKey("queue.provider_burst", func(c *Config) *uint { return &c.Queue.ProviderBurst }),
	"queue.default_timeout": durationKey("queue.default_timeout", func(c *Config) *string { return &c.Queue.DefaultTimeout }),
	"queue.history_size":    uintKey("queue.history_size", func(c *Config) *uint { return &c.Queue.HistorySize }),

	"api.listen": stringKey(func(c *Config) *string { return &c.API.Listen }),

	"generator.provider":   oneOfKey("generator.provider", GeneratorProviders, func(c *Config) *string { return &c.Generator.Provider }),
	"generator.model":      stringKey(func(c *Config) *string { return &c.Generator.Model }),
	"generator.base_url":   stringKey(func(c *Config) *string { return &c.Generator.BaseURL }),
	"generator.max_tokens": uintKey("generator.max_tokens", func(c *Config) *uint { return &c.Generator.MaxTokens }),

	"metadata.max_keys":        intKey("metadata.max_keys", func(c *Config) *int { return &c.Metadata.MaxKeys }),
	"metadata.max_value_bytes": intKey("metadata.max_value_bytes", func(c *Config) *int { return &c.Metadata.MaxValueBytes }),
	"metadata.strict":          boolKey("metadata.strict", func(c *Config) *bool { return &c.Metadata.Strict }),

	"eventstream.provider": oneOfKey("eventstream.provider", EventStreamProviders, func(c *Config) *string { return &c.EventStream.Provider }),
	"eventstream.brokers": {
		get: func(c *Config) string { return strings.Join(c.EventStream.Brokers, ",") },
		set: func(c *Config, v string) error {
			c.EventStream.Brokers = nil
			for b := range strings.SplitSeq(v, ",") {
				if b = strings.TrimSpace(b); b != "" {
					c.EventStream.Brokers = append(c.EventStream.Brokers, b)
				}
			}
			return nil
		},
		list: true,
	},
	"eventstream.topic": stringKey(func(c *Config) *string { return &c.EventStream.Topic }),
}
