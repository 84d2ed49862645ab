package client

import (
	"github.com/dan-strohschein/qbdriver/logger"
	"github.com/dan-strohschein/qbdriver/metrics"
)

// ClientOptions configures the client behavior.
type ClientOptions struct {
	// BatchSize is the largest OR-group a delete purge carries; runs of
	// consecutive record ids longer than this become a range purge.
	// Default: 10
	BatchSize int

	// AliasCacheSize bounds the alias to dbid resolutions kept per app.
	// Default: 128
	AliasCacheSize int

	// DebugMode enables verbose error serialization with full cause chains.
	// Default: false
	DebugMode bool

	// Logger is the logger implementation to use.
	// If nil, a default logger at LogLevel is used.
	Logger logger.Logger

	// LogLevel sets the minimum log level (DEBUG, INFO, WARN, ERROR).
	// Default: "INFO"
	LogLevel string

	// Metrics receives call and planner counters. Nil disables them.
	Metrics *metrics.Metrics
}

// DefaultOptions returns ClientOptions with default values.
func DefaultOptions() ClientOptions {
	return ClientOptions{
		BatchSize:      10,
		AliasCacheSize: 128,
		DebugMode:      false,
		LogLevel:       "INFO",
	}
}
