// Package api provides the HTTP query and generation API over a context store.
package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultWait = 30 * time.Second
	MaxWait     = 5 * time.Minute
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// DefaultWait bounds how long a sync generation request blocks when the
	// caller gives no timeout. MaxWait caps any caller supplied wait.
	DefaultWait time.Duration
	MaxWait     time.Duration

	// Gatherer backs /metrics. Defaults to the global registry.
	Gatherer prometheus.Gatherer

	// DisableMCP leaves /mcp unmounted.
	DisableMCP bool
}
