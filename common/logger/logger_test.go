package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLogger_ClaimAndTraceFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "info", "json")

	ctx := context.WithValue(context.Background(), TraceIDKey, "req-1")
	log.WithContext(ctx).WithClaimID(4567).Info("claim validated", "tx_hash", "0xabc")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "claim validated", line["msg"])
	assert.Equal(t, "req-1", line["trace_id"])
	assert.Equal(t, float64(4567), line["claim_id"])
	assert.Equal(t, "0xabc", line["tx_hash"])
}

func TestError_AttachesStack(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "info", "json")

	log.Error("mirror update failed", "claim_id", 1)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Contains(t, line["stack"], "goroutine")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn", "json")

	log.Info("dropped")
	assert.Zero(t, buf.Len())

	log.Warn("kept")
	assert.NotZero(t, buf.Len())
}
