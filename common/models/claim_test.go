package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClaimStatus_CanAdvanceTo(t *testing.T) {
	tests := []struct {
		from, to ClaimStatus
		want     bool
	}{
		{StatusCreated, StatusValidated, true},
		{StatusCreated, StatusApproved, true},
		{StatusValidated, StatusApproved, true},
		{StatusValidated, StatusRejected, true},
		{StatusApproved, StatusPaid, true},
		{StatusCreated, StatusCreated, false},
		{StatusValidated, StatusCreated, false},
		{StatusApproved, StatusRejected, false},
		{StatusRejected, StatusApproved, false},
		{StatusRejected, StatusPaid, false},
		{StatusPaid, StatusCreated, false},
		{StatusPaid, StatusApproved, false},
		{ClaimStatus("bogus"), StatusValidated, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanAdvanceTo(tt.to))
		})
	}
}

func TestClaimStatus_TerminalStatesNeverMove(t *testing.T) {
	for _, terminal := range []ClaimStatus{StatusRejected, StatusPaid} {
		for _, next := range AllStatuses {
			assert.False(t, terminal.CanAdvanceTo(next), "%s -> %s", terminal, next)
		}
	}
}

func TestPredecessor(t *testing.T) {
	p, ok := Predecessor(StatusApproved)
	assert.True(t, ok)
	assert.Equal(t, StatusValidated, p)

	p, ok = Predecessor(StatusPaid)
	assert.True(t, ok)
	assert.Equal(t, StatusApproved, p)

	_, ok = Predecessor(StatusCreated)
	assert.False(t, ok)
}

func TestClaimPatch_HistoryTxHash(t *testing.T) {
	v, r, p := "0xv", "0xr", "0xp"

	assert.Nil(t, (&ClaimPatch{}).HistoryTxHash())
	assert.Equal(t, &p, (&ClaimPatch{PaymentTxHash: &p}).HistoryTxHash())
	assert.Equal(t, &r, (&ClaimPatch{ReviewTxHash: &r, PaymentTxHash: &p}).HistoryTxHash())
	assert.Equal(t, &v, (&ClaimPatch{ValidationTxHash: &v, ReviewTxHash: &r, PaymentTxHash: &p}).HistoryTxHash())
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "0xabcdef", NormalizeAddress("  0xAbCdEf "))
}
