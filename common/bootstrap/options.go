package bootstrap

import (
	"github.com/lyzr/claims/common/config"
	"github.com/lyzr/claims/common/db"
	"github.com/lyzr/claims/common/logger"
)

// Option configures the bootstrap process
type Option func(*options)

type options struct {
	skipDB        bool
	skipRedis     bool
	skipLedger    bool
	skipTelemetry bool
	readOnly      bool
	customLogger  *logger.Logger
	customConfig  *config.Config
	dbInitHook    func(*db.DB) error
}

// WithoutDB skips database initialization
func WithoutDB() Option {
	return func(o *options) {
		o.skipDB = true
	}
}

// WithoutRedis skips Redis initialization (no guard, divergence stream or cache)
func WithoutRedis() Option {
	return func(o *options) {
		o.skipRedis = true
	}
}

// WithoutLedger skips the ledger gateway
func WithoutLedger() Option {
	return func(o *options) {
		o.skipLedger = true
	}
}

// WithReadOnlyLedger connects the gateway without requiring PRIVATE_KEY
func WithReadOnlyLedger() Option {
	return func(o *options) {
		o.readOnly = true
	}
}

// WithoutTelemetry skips telemetry initialization
func WithoutTelemetry() Option {
	return func(o *options) {
		o.skipTelemetry = true
	}
}

// WithCustomLogger uses a custom logger instead of creating one
func WithCustomLogger(log *logger.Logger) Option {
	return func(o *options) {
		o.customLogger = log
	}
}

// WithCustomConfig uses a custom config instead of loading from env
func WithCustomConfig(cfg *config.Config) Option {
	return func(o *options) {
		o.customConfig = cfg
	}
}

// WithDBInitHook runs a custom function after DB initialization,
// e.g. applying the schema
func WithDBInitHook(hook func(*db.DB) error) Option {
	return func(o *options) {
		o.dbInitHook = hook
	}
}

func defaultOptions() *options {
	return &options{}
}
