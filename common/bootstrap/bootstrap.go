package bootstrap

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lyzr/claims/common/config"
	"github.com/lyzr/claims/common/db"
	"github.com/lyzr/claims/common/ledger"
	"github.com/lyzr/claims/common/logger"
	"github.com/lyzr/claims/common/redis"
	"github.com/lyzr/claims/common/telemetry"
)

// Setup initializes all service components
// This is the main entry point for all services
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	components := &Components{
		cleanupFuncs: make([]func() error, 0),
	}

	// 1. Load configuration
	var err error
	if options.customConfig != nil {
		components.Config = options.customConfig
	} else {
		components.Config, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	// 2. Initialize logger
	if options.customLogger != nil {
		components.Logger = options.customLogger
	} else {
		components.Logger = logger.New(
			components.Config.Service.LogLevel,
			components.Config.Service.LogFormat,
		)
	}

	components.Logger.Info("initializing service",
		"service", serviceName,
		"environment", components.Config.Service.Environment,
	)

	// Ledger settings are checked before anything connects
	if !options.skipLedger {
		if err := components.Config.ValidateLedger(!options.readOnly); err != nil {
			return nil, fmt.Errorf("invalid ledger configuration: %w", err)
		}
	}

	// 3. Initialize database (if not skipped)
	if !options.skipDB {
		components.Logger.Info("connecting to database")
		components.DB, err = db.New(ctx, components.Config, components.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		components.addCleanup(func() error {
			components.Logger.Info("closing database connection")
			components.DB.Close()
			return nil
		})

		if options.dbInitHook != nil {
			components.Logger.Info("running database init hook")
			if err := options.dbInitHook(components.DB); err != nil {
				components.Shutdown(ctx)
				return nil, fmt.Errorf("database init hook failed: %w", err)
			}
		}
	}

	// 4. Initialize Redis (if not skipped)
	if !options.skipRedis {
		components.Logger.Info("connecting to redis", "addr", components.Config.RedisAddr())
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     components.Config.RedisAddr(),
			Password: components.Config.Redis.Password,
			DB:       components.Config.Redis.DB,
		})
		components.Redis = redis.NewClient(rdb, components.Logger)

		if err := components.Redis.Ping(ctx); err != nil {
			rdb.Close()
			components.Shutdown(ctx)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		components.addCleanup(func() error {
			components.Logger.Info("closing redis connection")
			return rdb.Close()
		})
	}

	// 5. Initialize ledger gateway (if not skipped)
	if !options.skipLedger {
		components.Logger.Info("connecting to ledger")
		components.Ledger, err = ledger.Dial(ctx, components.Config, components.Logger)
		if err != nil {
			components.Shutdown(ctx)
			return nil, fmt.Errorf("failed to connect to ledger: %w", err)
		}

		components.addCleanup(func() error {
			components.Logger.Info("closing ledger connection")
			components.Ledger.Close()
			return nil
		})
	}

	// 6. Initialize telemetry (if not skipped)
	tcfg := components.Config.Telemetry
	if !options.skipTelemetry && (tcfg.EnablePprof || tcfg.EnableMetrics) {
		components.Logger.Info("initializing telemetry")
		pprofPort, metricsPort := 0, 0
		if tcfg.EnablePprof {
			pprofPort = tcfg.PprofPort
		}
		if tcfg.EnableMetrics {
			metricsPort = tcfg.MetricsPort
		}
		components.Telemetry = telemetry.New(pprofPort, metricsPort, components.Logger)
		components.Metrics = telemetry.NewMetrics(components.Telemetry.Registry())

		if err := components.Telemetry.Start(ctx); err != nil {
			// Don't fail startup if telemetry fails
			components.Logger.Warn("failed to start telemetry", "error", err)
		} else {
			components.addCleanup(func() error {
				stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return components.Telemetry.Stop(stopCtx)
			})
		}
	}

	components.Logger.Info("service initialization complete",
		"service", serviceName,
		"db", components.DB != nil,
		"redis", components.Redis != nil,
		"ledger", components.Ledger != nil,
		"telemetry", components.Telemetry != nil,
	)

	return components, nil
}

// MustSetup is like Setup but panics on error
// Useful for services that can't recover from initialization failure
func MustSetup(ctx context.Context, serviceName string, opts ...Option) *Components {
	components, err := Setup(ctx, serviceName, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to setup service %s: %v", serviceName, err))
	}
	return components
}

// Migrate is a DB init hook applying the embedded schema
func Migrate(ctx context.Context) func(*db.DB) error {
	return func(d *db.DB) error {
		return d.Migrate(ctx)
	}
}
