package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInFlight means another transition of the same claim holds the guard
var ErrInFlight = errors.New("transition already in flight")

// ClaimGuard serialises transitions per claim across processes with a SETNX key.
// The token makes release safe after the TTL expired and someone else took over.
type ClaimGuard struct {
	client *Client
	ttl    time.Duration
}

// NewClaimGuard creates a guard whose keys expire after ttl
func NewClaimGuard(client *Client, ttl time.Duration) *ClaimGuard {
	return &ClaimGuard{client: client, ttl: ttl}
}

// GuardKey returns the Redis key guarding a claim
func GuardKey(claimID int64) string {
	return fmt.Sprintf("claims:inflight:%d", claimID)
}

// Acquire takes the guard or fails with ErrInFlight. The returned release
// function is safe to call once the caller is done.
func (g *ClaimGuard) Acquire(ctx context.Context, claimID int64) (func(), error) {
	key := GuardKey(claimID)
	token := uuid.NewString()

	ok, err := g.client.SetNX(ctx, key, token, g.ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: claim %d", ErrInFlight, claimID)
	}

	release := func() {
		// the caller's context may already be cancelled
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := g.client.CompareAndDelete(releaseCtx, key, token); err != nil {
			g.client.logger.Warn("failed to release claim guard", "claim_id", claimID, "error", err)
		}
	}
	return release, nil
}
