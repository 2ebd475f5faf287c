package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lyzr/claims/common/ledger"
	"github.com/lyzr/claims/common/models"
)

// SyncActor is recorded as the actor of reconciled history entries
const SyncActor = "ledger-sync"

const syncNotes = "reconciled from ledger"

// SyncAction says what synchronize did to the mirror
type SyncAction string

const (
	SyncCreated SyncAction = "created"
	SyncUpdated SyncAction = "updated"
	SyncNoop    SyncAction = "noop"
)

// SyncResult is the outcome of Synchronize
type SyncResult struct {
	Action    SyncAction             `json:"action"`
	Claim     *models.Claim          `json:"claim"`
	Canonical *ledger.CanonicalClaim `json:"ledger"`
}

// Synchronize rebuilds or corrects the mirror record from canonical ledger state.
// It never submits a ledger transaction, never moves the mirror backwards and
// writes nothing when the mirror already agrees, so running it twice is safe.
func (o *Orchestrator) Synchronize(ctx context.Context, claimID int64) (res *SyncResult, err error) {
	defer func() {
		switch {
		case err != nil:
			o.metrics.ObserveSynchronize(string(KindOf(err)))
		case res != nil:
			o.metrics.ObserveSynchronize(string(res.Action))
		}
	}()

	if claimID <= 0 {
		return nil, newError(KindInvalidInput, nil, "invalid claim id %d", claimID)
	}

	canonical, err := o.ledger.FetchClaim(ctx, claimID)
	if err != nil {
		return nil, fromLedger(err)
	}

	action := SyncUpdated
	mirror, err := o.store.FindByID(ctx, claimID)
	switch {
	case errors.Is(err, models.ErrClaimNotFound):
		mirror, err = o.importClaim(ctx, canonical)
		if errors.Is(err, models.ErrDuplicateClaim) {
			// someone else imported it in the meantime
			mirror, err = o.store.FindByID(ctx, claimID)
		} else if err == nil {
			action = SyncCreated
		}
		if err != nil {
			return nil, fromStore(err)
		}
	case err != nil:
		return nil, fromStore(err)
	}

	patch, changed, err := reconcilePatch(mirror, canonical)
	if err != nil {
		return nil, err
	}
	if !changed {
		if action == SyncUpdated {
			action = SyncNoop
		}
		o.logger.Info("claim synchronized", "claim_id", claimID, "action", action, "status", mirror.Status)
		return &SyncResult{Action: action, Claim: mirror, Canonical: canonical}, nil
	}

	updated, err := o.store.Update(ctx, claimID, patch, SyncActor)
	if err != nil {
		return nil, fromStore(err)
	}

	o.logger.Info("claim synchronized",
		"claim_id", claimID,
		"action", action,
		"from", mirror.Status,
		"to", updated.Status)
	o.publish(ctx, "claim.synchronized", updated, "")

	return &SyncResult{Action: action, Claim: updated, Canonical: canonical}, nil
}

// importClaim creates a mirror record for a claim only the ledger knows.
// The record starts as created; reconcilePatch then advances it with one history entry.
func (o *Orchestrator) importClaim(ctx context.Context, c *ledger.CanonicalClaim) (*models.Claim, error) {
	amountWei := decimal.Zero
	if c.AmountWei != nil {
		amountWei = decimal.NewFromBigInt(c.AmountWei, 0)
	}

	return o.store.Create(ctx, &models.NewClaim{
		ClaimID:      c.ClaimID,
		Requester:    c.Requester,
		Description:  c.Description,
		Amount:       c.Amount,
		AmountWei:    amountWei,
		ClaimType:    "ledger-import",
		PolicyNumber: fmt.Sprintf("POL-SYNC-%d", c.ClaimID),
		Status:       models.StatusCreated,
	}, "")
}

// reconcilePatch lists what differs between mirror and ledger.
// A mirror that is ahead of the ledger is reported, never rewound.
func reconcilePatch(mirror *models.Claim, c *ledger.CanonicalClaim) (*models.ClaimPatch, bool, error) {
	if mirror.Status != c.Status && !mirror.Status.CanAdvanceTo(c.Status) {
		return nil, false, newError(KindInvalidState, models.ErrInvalidTransition,
			"mirror shows claim %d as %s but the ledger has %s", mirror.ClaimID, mirror.Status, c.Status)
	}

	patch := &models.ClaimPatch{}
	changed := false

	if mirror.Status != c.Status {
		status := c.Status
		notes := syncNotes
		patch.Status = &status
		patch.Notes = &notes
		changed = true
	}
	if c.Description != "" && c.Description != mirror.Description {
		patch.Description = &c.Description
		changed = true
	}
	if !c.Amount.Equal(mirror.Amount) {
		amount := c.Amount
		patch.Amount = &amount
		changed = true
	}
	if c.AmountWei != nil {
		wei := decimal.NewFromBigInt(c.AmountWei, 0)
		if !wei.Equal(mirror.AmountWei) {
			patch.AmountWei = &wei
			changed = true
		}
	}
	// requesters resolved at intake (user wallet) differ from the ledger sender on purpose
	if mirror.Requester == "" && c.Requester != "" {
		patch.Requester = &c.Requester
		changed = true
	}
	if reviewer := c.ProcessedBy; reviewer != "" && (mirror.ReviewerAddress == nil || *mirror.ReviewerAddress != reviewer) {
		patch.ReviewerAddress = &reviewer
		changed = true
	}
	if c.AdminNotes != "" && (mirror.AdminNotes == nil || *mirror.AdminNotes != c.AdminNotes) {
		notes := c.AdminNotes
		patch.AdminNotes = &notes
		changed = true
	}

	return patch, changed, nil
}
