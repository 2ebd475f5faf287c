package worker

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lyzr/claims/common/divergence"
	"github.com/lyzr/claims/common/lifecycle"
	"github.com/lyzr/claims/common/logger"
	"github.com/lyzr/claims/common/models"
)

type fakeSync struct {
	err   error
	calls []int64
}

func (f *fakeSync) Synchronize(_ context.Context, claimID int64) (*lifecycle.SyncResult, error) {
	f.calls = append(f.calls, claimID)
	if f.err != nil {
		return nil, f.err
	}
	return &lifecycle.SyncResult{
		Action: lifecycle.SyncUpdated,
		Claim:  &models.Claim{ClaimID: claimID, Status: models.StatusApproved},
	}, nil
}

func TestReconciler_Handle(t *testing.T) {
	log := logger.NewWithWriter(io.Discard, "error", "json")
	rec := divergence.Record{ClaimID: 77, Kind: "approve", Stage: divergence.StageMirrorUpdate, TxHash: "0xabc"}

	cases := []struct {
		name    string
		err     error
		requeue bool
	}{
		{"success", nil, false},
		{"network", &lifecycle.Error{Kind: lifecycle.KindNetwork}, true},
		{"storage", &lifecycle.Error{Kind: lifecycle.KindStorageUnavailable}, true},
		{"guard held", &lifecycle.Error{Kind: lifecycle.KindInProgress}, true},
		{"mirror ahead", &lifecycle.Error{Kind: lifecycle.KindInvalidState}, false},
		{"not on ledger", &lifecycle.Error{Kind: lifecycle.KindNotFound}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			sync := &fakeSync{err: c.err}
			err := NewReconciler(sync, log).Handle(context.Background(), rec)

			assert.Equal(t, []int64{77}, sync.calls)
			if c.requeue {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestReconciler_UnconfirmedRecordSynchronizes(t *testing.T) {
	log := logger.NewWithWriter(io.Discard, "error", "json")
	rec := divergence.Record{ClaimID: 78, Kind: "register", Stage: divergence.StageUnconfirmed, TxHash: "0xdef"}

	sync := &fakeSync{}
	assert.NoError(t, NewReconciler(sync, log).Handle(context.Background(), rec))
	assert.Equal(t, []int64{78}, sync.calls)

	// the transaction was dropped: nothing to repair
	sync = &fakeSync{err: &lifecycle.Error{Kind: lifecycle.KindNotFound}}
	assert.NoError(t, NewReconciler(sync, log).Handle(context.Background(), rec))
}
