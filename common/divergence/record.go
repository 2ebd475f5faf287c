package divergence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Stage says which mirror write failed after the ledger confirmed
type Stage string

const (
	StageMirrorCreate Stage = "mirror_create"
	StageMirrorUpdate Stage = "mirror_update"
	// StageUnconfirmed means the transaction was broadcast but its confirmation
	// was not observed; the record is deferred past the confirmation window.
	StageUnconfirmed Stage = "unconfirmed"
)

// RetryKey is the sorted set holding records scheduled for a later attempt,
// scored by their NotBefore time in unix milliseconds.
func RetryKey(stream string) string {
	return stream + ".retry"
}

// Record is a ledger-ahead-of-mirror event waiting for synchronize
type Record struct {
	ClaimID    int64     `json:"claim_id"`
	Kind       string    `json:"kind"`
	Stage      Stage     `json:"stage"`
	TxHash     string    `json:"tx_hash"`
	Error      string    `json:"error"`
	Attempts   int       `json:"attempts"`
	RecordedAt time.Time `json:"recorded_at"`
	NotBefore  time.Time `json:"not_before"`
}

// Due reports whether the record may be handled at now
func (r Record) Due(now time.Time) bool {
	return !r.NotBefore.After(now)
}

// StreamWriter appends entries to a Redis stream, or schedules them in a
// sorted set when they are not due yet
type StreamWriter interface {
	AddToStream(ctx context.Context, stream string, values map[string]interface{}) (string, error)
	AddToSortedSet(ctx context.Context, key string, score float64, member string) error
}

// Recorder appends divergence records to the reconciliation stream
type Recorder struct {
	writer StreamWriter
	stream string
	logger Logger
}

// NewRecorder creates a recorder writing to stream
func NewRecorder(writer StreamWriter, stream string, logger Logger) *Recorder {
	return &Recorder{writer: writer, stream: stream, logger: logger}
}

// Record appends rec to the stream, or to the retry set when rec.NotBefore
// is still ahead
func (r *Recorder) Record(ctx context.Context, rec Record) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}

	if !rec.Due(time.Now()) {
		data, err := marshal(rec)
		if err != nil {
			return err
		}
		if err := r.writer.AddToSortedSet(ctx, RetryKey(r.stream), score(rec.NotBefore), data); err != nil {
			return fmt.Errorf("failed to schedule divergence for claim %d: %w", rec.ClaimID, err)
		}
		r.logger.Warn("divergence scheduled",
			"claim_id", rec.ClaimID,
			"kind", rec.Kind,
			"stage", rec.Stage,
			"tx_hash", rec.TxHash,
			"not_before", rec.NotBefore)
		return nil
	}

	values, err := encode(rec)
	if err != nil {
		return err
	}

	id, err := r.writer.AddToStream(ctx, r.stream, values)
	if err != nil {
		return fmt.Errorf("failed to record divergence for claim %d: %w", rec.ClaimID, err)
	}

	r.logger.Warn("divergence recorded",
		"claim_id", rec.ClaimID,
		"kind", rec.Kind,
		"stage", rec.Stage,
		"tx_hash", rec.TxHash,
		"message_id", id)
	return nil
}

func marshal(rec Record) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal divergence record: %w", err)
	}
	return string(data), nil
}

func encode(rec Record) (map[string]interface{}, error) {
	data, err := marshal(rec)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"claim_id": rec.ClaimID,
		"record":   data,
	}, nil
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func decode(values map[string]interface{}) (Record, error) {
	raw, ok := values["record"].(string)
	if !ok {
		return Record{}, fmt.Errorf("message missing record field")
	}
	return unmarshal(raw)
}

func unmarshal(raw string) (Record, error) {
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Record{}, fmt.Errorf("failed to unmarshal divergence record: %w", err)
	}
	if rec.ClaimID <= 0 {
		return Record{}, fmt.Errorf("divergence record has invalid claim id %d", rec.ClaimID)
	}
	return rec, nil
}
