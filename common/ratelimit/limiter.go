package ratelimit

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed rate_limit.lua
var rateLimitScript string

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Result contains the result of a rate limit check
type Result struct {
	Allowed           bool
	CurrentCount      int64
	Limit             int64
	RetryAfterSeconds int64
}

// Limits configures the limiter. A limit of 0 disables that check.
type Limits struct {
	Global int64
	Wallet int64
	Window time.Duration
}

// RateLimiter is a fixed-window limiter run atomically in Redis via Lua
type RateLimiter struct {
	redis  redis.Scripter
	script *redis.Script
	limits Limits
	logger Logger
}

// NewRateLimiter creates a new rate limiter with the embedded Lua script
func NewRateLimiter(client redis.Scripter, limits Limits, logger Logger) *RateLimiter {
	if limits.Window < time.Second {
		limits.Window = time.Minute
	}
	return &RateLimiter{
		redis:  client,
		script: redis.NewScript(rateLimitScript),
		limits: limits,
		logger: logger,
	}
}

// Window returns the configured window
func (r *RateLimiter) Window() time.Duration {
	return r.limits.Window
}

// CheckGlobalLimit checks the service-wide limit on ledger-writing requests
func (r *RateLimiter) CheckGlobalLimit(ctx context.Context) (*Result, error) {
	return r.checkLimit(ctx, "rate_limit:global", r.limits.Global)
}

// CheckWalletLimit checks the limit for one wallet address
func (r *RateLimiter) CheckWalletLimit(ctx context.Context, wallet string) (*Result, error) {
	return r.checkLimit(ctx, WalletKey(wallet), r.limits.Wallet)
}

// WalletKey returns the counter key for a wallet
func WalletKey(wallet string) string {
	return fmt.Sprintf("rate_limit:wallet:%s", wallet)
}

func (r *RateLimiter) checkLimit(ctx context.Context, key string, limit int64) (*Result, error) {
	if limit <= 0 {
		return &Result{Allowed: true}, nil
	}

	windowSec := int64(r.limits.Window / time.Second)
	raw, err := r.script.Run(ctx, r.redis, []string{key}, limit, windowSec).Result()
	if err != nil {
		r.logger.Error("rate limit check failed", "key", key, "error", err)
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	result, err := parseResult(raw)
	if err != nil {
		return nil, err
	}

	if !result.Allowed {
		r.logger.Warn("rate limit exceeded",
			"key", key,
			"current", result.CurrentCount,
			"limit", limit,
			"retry_after", result.RetryAfterSeconds)
	}
	return result, nil
}

// parseResult reads the script's {allowed, current_count, limit, retry_after}
func parseResult(raw interface{}) (*Result, error) {
	values, ok := raw.([]interface{})
	if !ok || len(values) != 4 {
		return nil, errors.New("unexpected script result format")
	}

	ints := make([]int64, 4)
	for i, v := range values {
		n, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("unexpected script result element %d: %T", i, v)
		}
		ints[i] = n
	}

	return &Result{
		Allowed:           ints[0] == 1,
		CurrentCount:      ints[1],
		Limit:             ints[2],
		RetryAfterSeconds: ints[3],
	}, nil
}
