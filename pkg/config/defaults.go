package config

import (
	"github.com/papercomputeco/frames/pkg/eventstream/kafka"
	"github.com/papercomputeco/frames/pkg/metadata"
)

const (
	defaultStorageDriver = "sqlite"
	defaultAPIListen     = ":8081"

	defaultWorkers        = 4
	defaultQueueSize      = 256
	defaultMaxRetries     = 3
	defaultInitialBackoff = "500ms"
	defaultMaxBackoff     = "30s"
	defaultProviderBurst  = 1
	defaultTimeout        = "2m"
	defaultHistorySize    = 1024

	defaultGeneratorProvider = "static"
	defaultMaxTokens         = 1024

	defaultEventStreamProvider = "nop"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
		},
		Queue: QueueConfig{
			Workers:        defaultWorkers,
			QueueSize:      defaultQueueSize,
			MaxRetries:     defaultMaxRetries,
			InitialBackoff: defaultInitialBackoff,
			MaxBackoff:     defaultMaxBackoff,
			ProviderBurst:  defaultProviderBurst,
			DefaultTimeout: defaultTimeout,
			HistorySize:    defaultHistorySize,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Generator: GeneratorConfig{
			Provider:  defaultGeneratorProvider,
			MaxTokens: defaultMaxTokens,
		},
		Metadata: metadata.Config{
			MaxKeys:       metadata.DefaultMaxKeys,
			MaxValueBytes: metadata.DefaultMaxValueBytes,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    kafka.DefaultTopic,
		},
	}
}
