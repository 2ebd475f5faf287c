package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogger struct{}

func (l *testLogger) Info(msg string, keysAndValues ...interface{})  {}
func (l *testLogger) Error(msg string, keysAndValues ...interface{}) {}
func (l *testLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (l *testLogger) Debug(msg string, keysAndValues ...interface{}) {}

func TestParseResult(t *testing.T) {
	res, err := parseResult([]interface{}{int64(0), int64(21), int64(20), int64(37)})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(21), res.CurrentCount)
	assert.Equal(t, int64(20), res.Limit)
	assert.Equal(t, int64(37), res.RetryAfterSeconds)

	_, err = parseResult([]interface{}{int64(1)})
	assert.Error(t, err)
	_, err = parseResult([]interface{}{"1", int64(1), int64(1), int64(0)})
	assert.Error(t, err)
	_, err = parseResult("nope")
	assert.Error(t, err)
}

func TestDisabledLimitNeverCallsRedis(t *testing.T) {
	// nil client: any Redis call would panic
	r := NewRateLimiter(nil, Limits{}, &testLogger{})
	res, err := r.CheckWalletLimit(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, time.Minute, r.Window())
}

func TestRateLimiter_Redis(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skip("Redis not available:", err)
	}
	defer client.Close()

	wallet := "0x" + uuid.NewString()
	defer client.Del(context.Background(), WalletKey(wallet))

	r := NewRateLimiter(client, Limits{Wallet: 2, Window: 10 * time.Second}, &testLogger{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := r.CheckWalletLimit(ctx, wallet)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := r.CheckWalletLimit(ctx, wallet)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(3), res.CurrentCount)
	assert.Greater(t, res.RetryAfterSeconds, int64(0))
}
