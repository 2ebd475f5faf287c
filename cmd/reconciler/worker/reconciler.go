package worker

import (
	"context"

	"github.com/lyzr/claims/common/divergence"
	"github.com/lyzr/claims/common/lifecycle"
	"github.com/lyzr/claims/common/logger"
)

// Synchronizer repairs a mirror record from the ledger
type Synchronizer interface {
	Synchronize(ctx context.Context, claimID int64) (*lifecycle.SyncResult, error)
}

// Reconciler turns divergence records into synchronize calls
type Reconciler struct {
	sync Synchronizer
	log  *logger.Logger
}

// NewReconciler creates a new reconciler
func NewReconciler(sync Synchronizer, log *logger.Logger) *Reconciler {
	return &Reconciler{sync: sync, log: log}
}

// Handle synchronizes the claim named by rec. Only failures that a later
// attempt could fix are returned, so the consumer re-queues just those.
func (r *Reconciler) Handle(ctx context.Context, rec divergence.Record) error {
	log := r.log.WithClaimID(rec.ClaimID)

	res, err := r.sync.Synchronize(ctx, rec.ClaimID)
	if err != nil {
		kind := lifecycle.KindOf(err)
		if retryable(kind) {
			log.Warn("synchronize failed, will retry",
				"kind", kind,
				"tx_hash", rec.TxHash,
				"attempts", rec.Attempts,
				"error", err)
			return err
		}
		if kind == lifecycle.KindNotFound && rec.Stage == divergence.StageUnconfirmed {
			log.Info("unconfirmed register never reached the ledger", "tx_hash", rec.TxHash)
			return nil
		}
		log.Error("synchronize failed permanently",
			"kind", kind,
			"tx_hash", rec.TxHash,
			"stage", rec.Stage,
			"error", err)
		return nil
	}

	log.Info("divergence reconciled",
		"action", res.Action,
		"status", res.Claim.Status,
		"tx_hash", rec.TxHash,
		"stage", rec.Stage)
	return nil
}

func retryable(kind lifecycle.Kind) bool {
	switch kind {
	case lifecycle.KindNetwork,
		lifecycle.KindConfirmationTimeout,
		lifecycle.KindStorageUnavailable,
		lifecycle.KindInProgress,
		lifecycle.KindDuplicate,
		lifecycle.KindInternal:
		return true
	}
	return false
}
