package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config holds all service configuration
type Config struct {
	Service    ServiceConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Ledger     LedgerConfig
	Reconciler ReconcilerConfig
	RateLimit  RateLimitConfig
	Intake     IntakeConfig
	Events     EventsConfig
	Telemetry  TelemetryConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
	// AllowMaintenance enables the delete endpoint and CLI command
	AllowMaintenance bool
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// LedgerConfig holds the contract connection and signing settings
type LedgerConfig struct {
	RPCURL          string
	ContractAddress string
	PrivateKey      string
	// ChainID of 0 asks the node
	ChainID             int64
	ConfirmationTimeout time.Duration
	PollInterval        time.Duration
	PaymentGasLimit     uint64
}

// ReconcilerConfig holds divergence stream settings
type ReconcilerConfig struct {
	Stream      string
	Group       string
	Consumer    string
	MaxAttempts int
	BlockFor    time.Duration
	// RetryBackoff doubles per failed attempt up to MaxRetryBackoff
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
}

// RateLimitConfig holds limits for transition endpoints
type RateLimitConfig struct {
	Enabled bool
	Global  int64
	Wallet  int64
	Window  time.Duration
}

// IntakeConfig holds extra CEL rules applied to new claims
type IntakeConfig struct {
	Rules []string
}

// EventsConfig holds the claim event push service settings.
// An empty AllowedOrigins accepts any origin.
type EventsConfig struct {
	AllowedOrigins []string
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof   bool
	PprofPort     int
	EnableMetrics bool
	MetricsPort   int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	hostname, _ := os.Hostname()

	cfg := &Config{
		Service: ServiceConfig{
			Name:             serviceName,
			Port:             getEnvInt("PORT", 8080),
			Environment:      getEnv("ENVIRONMENT", "development"),
			LogLevel:         getEnv("LOG_LEVEL", "info"),
			LogFormat:        getEnv("LOG_FORMAT", "text"),
			AllowMaintenance: getEnvBool("ALLOW_MAINTENANCE", false),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "claims"),
			User:        getEnv("POSTGRES_USER", "claims"),
			Password:    getEnv("POSTGRES_PASSWORD", "claims"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 20),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 2),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Ledger: LedgerConfig{
			RPCURL:              getEnv("LEDGER_RPC_URL", getEnv("SEPOLIA_RPC_URL", "")),
			ContractAddress:     getEnv("CONTRACT_ADDRESS", getEnv("NEXT_PUBLIC_CONTRACT_ADDRESS", "")),
			PrivateKey:          getEnv("PRIVATE_KEY", ""),
			ChainID:             int64(getEnvInt("LEDGER_CHAIN_ID", 0)),
			ConfirmationTimeout: getEnvDuration("LEDGER_CONFIRMATION_TIMEOUT", 3*time.Minute),
			PollInterval:        getEnvDuration("LEDGER_POLL_INTERVAL", 2*time.Second),
			PaymentGasLimit:     uint64(getEnvInt("LEDGER_PAYMENT_GAS_LIMIT", 300000)),
		},
		Reconciler: ReconcilerConfig{
			Stream:          getEnv("DIVERGENCE_STREAM", "claims.divergence"),
			Group:           getEnv("RECONCILER_GROUP", "reconciler"),
			Consumer:        getEnv("RECONCILER_CONSUMER", "reconciler-"+hostname),
			MaxAttempts:     getEnvInt("RECONCILER_MAX_ATTEMPTS", 5),
			BlockFor:        getEnvDuration("RECONCILER_BLOCK", 5*time.Second),
			RetryBackoff:    getEnvDuration("RECONCILER_RETRY_BACKOFF", 10*time.Second),
			MaxRetryBackoff: getEnvDuration("RECONCILER_MAX_RETRY_BACKOFF", 5*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Enabled: getEnvBool("RATE_LIMIT_ENABLED", true),
			Global:  int64(getEnvInt("RATE_LIMIT_GLOBAL", 300)),
			Wallet:  int64(getEnvInt("RATE_LIMIT_WALLET", 20)),
			Window:  getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Intake: IntakeConfig{
			Rules: getEnvSlice("CLAIM_INTAKE_RULES", nil),
		},
		Events: EventsConfig{
			AllowedOrigins: getEnvSlice("EVENTS_ALLOWED_ORIGINS", nil),
		},
		Telemetry: TelemetryConfig{
			EnablePprof:   getEnvBool("ENABLE_PPROF", false),
			PprofPort:     getEnvInt("PPROF_PORT", 6060),
			EnableMetrics: getEnvBool("ENABLE_METRICS", true),
			MetricsPort:   getEnvInt("METRICS_PORT", 9090),
		},
	}

	return cfg, cfg.Validate()
}

var privateKeyPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Reconciler.MaxAttempts < 1 {
		return fmt.Errorf("reconciler max attempts must be >= 1")
	}

	if c.Reconciler.RetryBackoff <= 0 || c.Reconciler.MaxRetryBackoff < c.Reconciler.RetryBackoff {
		return fmt.Errorf("reconciler retry backoff must be > 0 and <= max retry backoff")
	}

	return nil
}

// ValidateLedger checks the settings needed to talk to the contract.
// Only services that use the ledger call it.
func (c *Config) ValidateLedger(requireSigner bool) error {
	if c.Ledger.RPCURL == "" {
		return fmt.Errorf("LEDGER_RPC_URL (or SEPOLIA_RPC_URL) is required")
	}

	if !common.IsHexAddress(c.Ledger.ContractAddress) {
		return fmt.Errorf("CONTRACT_ADDRESS is not a valid address: %q", c.Ledger.ContractAddress)
	}

	if c.Ledger.PrivateKey == "" {
		if requireSigner {
			return fmt.Errorf("PRIVATE_KEY is required")
		}
	} else if !privateKeyPattern.MatchString(strings.TrimPrefix(c.Ledger.PrivateKey, "0x")) {
		// never echo the key
		return fmt.Errorf("PRIVATE_KEY must be 64 hex characters (%d given)", len(c.Ledger.PrivateKey))
	}

	if c.Ledger.ConfirmationTimeout <= 0 {
		return fmt.Errorf("LEDGER_CONFIRMATION_TIMEOUT must be positive")
	}

	if c.Ledger.PollInterval <= 0 || c.Ledger.PollInterval > c.Ledger.ConfirmationTimeout {
		return fmt.Errorf("LEDGER_POLL_INTERVAL must be positive and below the confirmation timeout")
	}

	return nil
}

// IsProduction reports whether internal error details must be hidden
func (c *Config) IsProduction() bool {
	return c.Service.Environment == "production"
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// RedisAddr returns host:port for go-redis
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvSlice splits on ';' since CEL expressions may contain commas
func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
