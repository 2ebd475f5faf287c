package divergence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Handler reconciles one claim; returning an error schedules another attempt
type Handler func(ctx context.Context, rec Record) error

// streamClient is the subset of *redis.Client the consumer needs
type streamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd
	ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
}

// ConsumerConfig configures a Consumer
type ConsumerConfig struct {
	Stream      string
	Group       string
	Consumer    string
	MaxAttempts int
	BlockFor    time.Duration
	// DeadLetter receives records that exhausted MaxAttempts; defaults to <stream>.dead
	DeadLetter string
	// RetryBackoff is the delay before the second attempt; it doubles per
	// attempt up to MaxRetryBackoff
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
}

// Consumer reads the divergence stream in a consumer group and runs handler per record
type Consumer struct {
	redis   streamClient
	cfg     ConsumerConfig
	handler Handler
	logger  Logger
	backoff time.Duration
	now     func() time.Time
}

// NewConsumer creates a divergence consumer
func NewConsumer(client streamClient, cfg ConsumerConfig, handler Handler, logger Logger) *Consumer {
	if cfg.DeadLetter == "" {
		cfg.DeadLetter = cfg.Stream + ".dead"
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BlockFor <= 0 {
		cfg.BlockFor = 5 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 10 * time.Second
	}
	if cfg.MaxRetryBackoff <= 0 {
		cfg.MaxRetryBackoff = 5 * time.Minute
	}
	if cfg.MaxRetryBackoff < cfg.RetryBackoff {
		cfg.MaxRetryBackoff = cfg.RetryBackoff
	}
	return &Consumer{
		redis:   client,
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		backoff: time.Second,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Start consumes until ctx is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("starting divergence consumer",
		"stream", c.cfg.Stream,
		"consumer_group", c.cfg.Group,
		"consumer_name", c.cfg.Consumer)

	err := c.redis.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("divergence consumer stopping")
			return nil
		default:
		}

		if err := c.promoteDue(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to promote scheduled divergences", "error", err)
		}

		if err := c.processNext(ctx); err != nil {
			if ctx.Err() != nil {
				c.logger.Info("divergence consumer stopping")
				return nil
			}
			c.logger.Error("failed to read divergence stream", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
		}
	}
}

// retryDelay is the wait after the given failed attempt
func (c *Consumer) retryDelay(attempts int) time.Duration {
	delay := c.cfg.RetryBackoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= c.cfg.MaxRetryBackoff {
			return c.cfg.MaxRetryBackoff
		}
	}
	return delay
}

// schedule parks rec in the retry set until rec.NotBefore
func (c *Consumer) schedule(ctx context.Context, rec Record) error {
	data, err := marshal(rec)
	if err != nil {
		return err
	}
	key := RetryKey(c.cfg.Stream)
	if err := c.redis.ZAdd(ctx, key, redis.Z{Score: score(rec.NotBefore), Member: data}).Err(); err != nil {
		return fmt.Errorf("failed to schedule divergence for claim %d: %w", rec.ClaimID, err)
	}
	return nil
}

// promoteDue moves records whose NotBefore has passed from the retry set back
// onto the stream. ZREM decides which consumer owns a member.
func (c *Consumer) promoteDue(ctx context.Context) error {
	key := RetryKey(c.cfg.Stream)
	members, err := c.redis.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(c.now().UnixMilli(), 10),
		Count: 10,
	}).Result()
	if err != nil {
		return fmt.Errorf("ZRANGEBYSCORE error: %w", err)
	}

	for _, member := range members {
		removed, err := c.redis.ZRem(ctx, key, member).Result()
		if err != nil {
			return fmt.Errorf("ZREM error: %w", err)
		}
		if removed == 0 {
			continue
		}

		rec, err := unmarshal(member)
		if err != nil {
			c.logger.Error("dropping malformed scheduled divergence", "error", err)
			continue
		}
		values, err := encode(rec)
		if err != nil {
			return err
		}
		if err := c.redis.XAdd(ctx, &redis.XAddArgs{Stream: c.cfg.Stream, Values: values}).Err(); err != nil {
			if zerr := c.schedule(ctx, rec); zerr != nil {
				c.logger.Error("lost scheduled divergence", "claim_id", rec.ClaimID, "tx_hash", rec.TxHash, "error", zerr)
			}
			return fmt.Errorf("XADD error: %w", err)
		}
		c.logger.Debug("divergence due", "claim_id", rec.ClaimID, "attempts", rec.Attempts)
	}
	return nil
}

func (c *Consumer) processNext(ctx context.Context) error {
	streams, err := c.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    10,
		Block:    c.cfg.BlockFor,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("XREADGROUP error: %w", err)
	}

	for _, stream := range streams {
		for _, message := range stream.Messages {
			c.handleMessage(ctx, message)

			// Retried and dead-lettered records live on as new entries; the original is always acked.
			if err := c.redis.XAck(ctx, c.cfg.Stream, c.cfg.Group, message.ID).Err(); err != nil {
				c.logger.Error("failed to ACK message", "message_id", message.ID, "error", err)
			}
		}
	}
	return nil
}

func (c *Consumer) handleMessage(ctx context.Context, message redis.XMessage) {
	rec, err := decode(message.Values)
	if err != nil {
		c.logger.Error("dropping malformed divergence message", "message_id", message.ID, "error", err)
		return
	}

	if !rec.Due(c.now()) {
		if err := c.schedule(ctx, rec); err != nil {
			c.logger.Error("failed to defer divergence record", "claim_id", rec.ClaimID, "error", err)
		}
		return
	}

	rec.Attempts++
	err = c.handler(ctx, rec)
	if err == nil {
		c.logger.Info("divergence reconciled",
			"claim_id", rec.ClaimID,
			"tx_hash", rec.TxHash,
			"attempts", rec.Attempts)
		return
	}
	rec.Error = err.Error()

	if rec.Attempts < c.cfg.MaxAttempts {
		rec.NotBefore = c.now().Add(c.retryDelay(rec.Attempts))
		c.logger.Warn("divergence reconcile failed, retrying later",
			"claim_id", rec.ClaimID,
			"attempts", rec.Attempts,
			"not_before", rec.NotBefore,
			"error", err)
		if err := c.schedule(ctx, rec); err != nil {
			c.logger.Error("failed to re-queue divergence record", "claim_id", rec.ClaimID, "error", err)
		}
		return
	}

	c.logger.Error("divergence gave up after max attempts",
		"claim_id", rec.ClaimID,
		"tx_hash", rec.TxHash,
		"attempts", rec.Attempts,
		"error", err)
	values, encErr := encode(rec)
	if encErr != nil {
		c.logger.Error("failed to encode divergence record", "claim_id", rec.ClaimID, "error", encErr)
		return
	}
	if err := c.redis.XAdd(ctx, &redis.XAddArgs{Stream: c.cfg.DeadLetter, Values: values}).Err(); err != nil {
		c.logger.Error("failed to dead-letter divergence record", "claim_id", rec.ClaimID, "stream", c.cfg.DeadLetter, "error", err)
	}
}
