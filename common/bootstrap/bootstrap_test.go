package bootstrap

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/claims/common/config"
	"github.com/lyzr/claims/common/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		Service: config.ServiceConfig{Name: "test", Environment: "test", LogLevel: "error", LogFormat: "json"},
	}
}

func TestSetup_SkipsEverything(t *testing.T) {
	log := logger.NewWithWriter(io.Discard, "error", "json")
	c, err := Setup(context.Background(), "test",
		WithCustomConfig(testConfig()),
		WithCustomLogger(log),
		WithoutDB(),
		WithoutRedis(),
		WithoutLedger(),
		WithoutTelemetry(),
	)
	require.NoError(t, err)

	assert.Nil(t, c.DB)
	assert.Nil(t, c.Redis)
	assert.Nil(t, c.Ledger)
	assert.Nil(t, c.Metrics)
	assert.NoError(t, c.Health(context.Background()))
	assert.NoError(t, c.Shutdown(context.Background()))
}

func TestSetup_RejectsMissingLedgerConfig(t *testing.T) {
	log := logger.NewWithWriter(io.Discard, "error", "json")
	_, err := Setup(context.Background(), "test",
		WithCustomConfig(testConfig()),
		WithCustomLogger(log),
		WithoutDB(),
		WithoutRedis(),
		WithoutTelemetry(),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid ledger configuration")
}

func TestShutdown_RunsCleanupLIFO(t *testing.T) {
	c := &Components{Logger: logger.NewWithWriter(io.Discard, "error", "json")}
	var order []int
	c.addCleanup(func() error { order = append(order, 1); return nil })
	c.addCleanup(func() error { order = append(order, 2); return nil })

	require.NoError(t, c.Shutdown(context.Background()))
	assert.Equal(t, []int{2, 1}, order)
}
