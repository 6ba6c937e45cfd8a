package config

import (
	"maps"
	"slices"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --driver
// on both "frames serve" and "frames ingest").
type Flag struct {
	// Name is the long flag name (e.g. "driver").
	Name string

	// Shorthand is the one-letter short flag (e.g. "d"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "storage.driver").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddFlags and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagStorageDriver     = "driver"
	FlagSQLite            = "sqlite"
	FlagPostgres          = "postgres"
	FlagBadger            = "badger"
	FlagLibSQL            = "libsql"
	FlagListen            = "listen"
	FlagGeneratorProvider = "provider"
	FlagModel             = "model"
	FlagBaseURL           = "base-url"
	FlagWorkers           = "workers"
	FlagQueueSize         = "queue-size"
	FlagMaxRetries        = "max-retries"
	FlagEventStream       = "eventstream"
	FlagKafkaTopic        = "kafka-topic"
)

// StoreFlags configure the storage driver.
var StoreFlags = FlagSet{
	FlagStorageDriver: {Name: "driver", ViperKey: "storage.driver", Description: "Storage driver (sqlite, postgres, badger, libsql, memory)"},
	FlagSQLite:        {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to SQLite database"},
	FlagPostgres:      {Name: "postgres", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string"},
	FlagBadger:        {Name: "badger", ViperKey: "storage.badger_path", Description: "Path to Badger data directory"},
	FlagLibSQL:        {Name: "libsql", ViperKey: "storage.libsql_path", Description: "Path to libSQL database"},
}

// GenerationFlags configure the generator and queue.
var GenerationFlags = FlagSet{
	FlagGeneratorProvider: {Name: "provider", Shorthand: "p", ViperKey: "generator.provider", Description: "Generation provider (static, anthropic, openai, ollama)"},
	FlagModel:             {Name: "model", Shorthand: "m", ViperKey: "generator.model", Description: "Model used by the generation provider"},
	FlagBaseURL:           {Name: "base-url", ViperKey: "generator.base_url", Description: "Provider base URL override"},
	FlagWorkers:           {Name: "workers", ViperKey: "queue.workers", Description: "Concurrent generation workers"},
	FlagQueueSize:         {Name: "queue-size", ViperKey: "queue.queue_size", Description: "Pending generation requests accepted before rejecting"},
	FlagMaxRetries:        {Name: "max-retries", ViperKey: "queue.max_retries", Description: "Retries for transient provider failures"},
}

// ServeFlags configure the API server and event stream.
var ServeFlags = FlagSet{
	FlagListen:      {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for the API server to listen on"},
	FlagEventStream: {Name: "eventstream", ViperKey: "eventstream.provider", Description: "Commit event publisher (nop, kafka)"},
	FlagKafkaTopic:  {Name: "kafka-topic", ViperKey: "eventstream.topic", Description: "Kafka topic for commit events"},
}

// AddFlags registers the flags of fs named by keys on cmd, or every flag in
// fs when keys is empty. Name, shorthand and help come from the FlagSet
// entry. The default and the value type come from the config key the flag
// binds to, so "--workers many" fails when flags are parsed.
func AddFlags(cmd *cobra.Command, fs FlagSet, keys ...string) {
	if len(keys) == 0 {
		keys = fs.Keys()
	}
	defaults := NewDefaultConfig()

	for _, key := range keys {
		def, ok := fs[key]
		if !ok {
			continue
		}
		info, ok := configKeys[def.ViperKey]
		if !ok {
			continue
		}
		addFlag(cmd.Flags(), def, info.kind, info.get(defaults))
	}
}

func addFlag(flags *pflag.FlagSet, def Flag, kind valueKind, defaultVal string) {
	switch kind {
	case kindUint:
		n, _ := strconv.ParseUint(defaultVal, 10, 0)
		flags.UintP(def.Name, def.Shorthand, uint(n), def.Description)
	case kindInt:
		n, _ := strconv.Atoi(defaultVal)
		flags.IntP(def.Name, def.Shorthand, n, def.Description)
	case kindBool:
		b, _ := strconv.ParseBool(defaultVal)
		flags.BoolP(def.Name, def.Shorthand, b, def.Description)
	default:
		flags.StringP(def.Name, def.Shorthand, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// Keys returns the registry keys of fs in sorted order.
func (fs FlagSet) Keys() []string {
	return slices.Sorted(maps.Keys(fs))
}
