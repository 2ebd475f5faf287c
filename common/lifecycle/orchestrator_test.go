package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/claims/common/divergence"
	"github.com/lyzr/claims/common/ledger"
	"github.com/lyzr/claims/common/models"
)

type harness struct {
	ledger *fakeLedger
	store  *memStore
	sink   *fakeSink
	guard  *fakeGuard
	events *fakeEvents
	orch   *Orchestrator
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		ledger: newFakeLedger(),
		store:  newMemStore(),
		sink:   &fakeSink{},
		guard:  &fakeGuard{},
		events: &fakeEvents{},
	}
	opts = append([]Option{
		WithDivergenceSink(h.sink),
		WithGuard(h.guard),
		WithEvents(h.events),
	}, opts...)

	orch, err := New(h.ledger, h.store, testLogger(), opts...)
	require.NoError(t, err)
	h.orch = orch
	return h
}

// seed puts a claim in the given status on both sides
func (h *harness) seed(id int64, status models.ClaimStatus, amount string) {
	amt := decimal.RequireFromString(amount)
	wei, _ := ledger.ToWei(amt)
	h.store.put(&models.Claim{
		ClaimID:        id,
		Requester:      outsider,
		Description:    "fender bender",
		Amount:         amt,
		AmountWei:      decimal.NewFromBigInt(wei, 0),
		ClaimType:      "auto",
		PolicyNumber:   "POL-2024-001",
		Status:         status,
		CreationTxHash: hashN(9000),
	})
	h.ledger.claims[id] = &ledger.CanonicalClaim{
		ClaimID:     id,
		Requester:   outsider,
		Description: "fender bender",
		Amount:      amt,
		AmountWei:   wei,
		Status:      status,
	}
}

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	require.Error(t, err)
	var e *Error
	require.True(t, errors.As(err, &e), "expected *lifecycle.Error, got %T: %v", err, err)
	require.Equal(t, kind, e.Kind, e.Error())
	return e
}

func validRequest() CreateRequest {
	return CreateRequest{
		PolicyNumber: "POL-2024-001",
		Description:  "fender bender",
		Amount:       decimal.RequireFromString("0.5"),
		ClaimType:    "auto",
	}
}

func TestCreate_RegistersThenMirrors(t *testing.T) {
	h := newHarness(t)

	out, err := h.orch.Create(context.Background(), validRequest())
	require.NoError(t, err)

	require.Len(t, h.ledger.submitted, 1)
	sub := h.ledger.submitted[0]
	assert.Equal(t, ledger.KindRegister, sub.Kind)
	assert.Equal(t, "500000000000000000", sub.AmountWei.String())

	c := out.Claim
	assert.Equal(t, sub.ClaimID, c.ClaimID)
	assert.Equal(t, models.StatusCreated, c.Status)
	assert.Equal(t, hashN(1), c.CreationTxHash)
	assert.Equal(t, out.Receipt.TxHash, c.CreationTxHash)
	assert.Empty(t, c.ChangeHistory)
	assert.True(t, c.Amount.Equal(decimal.RequireFromString("0.5")))
	// no explicit requester and no user: the register sender
	assert.Equal(t, signer, c.Requester)
	assert.Len(t, h.events.messages, 1)
}

func TestCreate_IntakeViolationNeverTouchesLedger(t *testing.T) {
	h := newHarness(t)

	req := validRequest()
	req.Amount = decimal.Zero
	_, err := h.orch.Create(context.Background(), req)
	requireKind(t, err, KindInvalidInput)

	req = validRequest()
	req.Requester = "not-an-address"
	_, err = h.orch.Create(context.Background(), req)
	requireKind(t, err, KindInvalidInput)

	req = validRequest()
	req.Amount = decimal.RequireFromString("0.0000000000000000001")
	_, err = h.orch.Create(context.Background(), req)
	requireKind(t, err, KindInvalidInput)

	assert.Equal(t, 0, h.ledger.submissions())
}

func TestCreate_RequesterResolution(t *testing.T) {
	wallet := "0x00000000000000000000000000000000000000DD"
	users := &fakeUsers{users: map[string]*models.User{
		"ana@example.com": {Email: "ana@example.com", WalletAddress: &wallet, Role: models.RoleClient, Active: true},
	}}
	h := newHarness(t, WithUsers(users))

	req := validRequest()
	req.AssignedEmail = "Ana@Example.com"
	out, err := h.orch.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "0x00000000000000000000000000000000000000dd", out.Claim.Requester)

	req = validRequest()
	req.AssignedEmail = "ana@example.com"
	req.Requester = reviewer
	out, err = h.orch.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, reviewer, out.Claim.Requester)

	req = validRequest()
	req.AssignedEmail = "nobody@example.com"
	out, err = h.orch.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, signer, out.Claim.Requester)
}

func TestCreate_RetriesTakenIDs(t *testing.T) {
	h := newHarness(t)
	fixed := time.UnixMilli(1_700_000_123_456)
	h.orch.now = func() time.Time { return fixed }
	suffixes := []int{1, 2, 3}
	h.orch.random = func(int) int {
		n := suffixes[0]
		suffixes = suffixes[1:]
		return n
	}
	h.store.taken[GenerateClaimID(fixed, func(int) int { return 1 })] = true
	h.store.taken[GenerateClaimID(fixed, func(int) int { return 2 })] = true

	out, err := h.orch.Create(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(123456*1000+3), out.Claim.ClaimID)
}

func TestCreate_GivesUpAfterMaxAttempts(t *testing.T) {
	h := newHarness(t)
	h.orch.now = func() time.Time { return time.UnixMilli(42) }
	h.orch.random = func(int) int { return 7 }
	h.store.taken[42*1000+7] = true

	_, err := h.orch.Create(context.Background(), validRequest())
	requireKind(t, err, KindInternal)
	assert.Equal(t, 0, h.ledger.submissions())
}

func TestCreate_MirrorFailureIsDivergence(t *testing.T) {
	h := newHarness(t)
	h.store.createErr = models.ErrStorageUnavailable

	_, err := h.orch.Create(context.Background(), validRequest())
	e := requireKind(t, err, KindDivergence)
	assert.Equal(t, hashN(1), e.TxHash)
	require.NotNil(t, e.Receipt)

	require.Len(t, h.sink.records, 1)
	assert.Equal(t, divergence.StageMirrorCreate, h.sink.records[0].Stage)
	assert.Equal(t, hashN(1), h.sink.records[0].TxHash)
}

func TestValidate_CreatedClaim(t *testing.T) {
	h := newHarness(t)
	h.seed(1001, models.StatusCreated, "0.5")

	out, err := h.orch.Validate(context.Background(), TransitionRequest{ClaimID: 1001})
	require.NoError(t, err)

	assert.Equal(t, models.StatusValidated, out.Claim.Status)
	require.Len(t, out.Claim.ChangeHistory, 1)
	entry := out.Claim.ChangeHistory[0]
	assert.Equal(t, models.StatusCreated, entry.PreviousStatus)
	assert.Equal(t, models.StatusValidated, entry.NewStatus)
	assert.Equal(t, signer, entry.Actor)
	require.NotNil(t, entry.TxHash)
	assert.Equal(t, out.Receipt.TxHash, *entry.TxHash)
	require.NotNil(t, out.Claim.ValidationTxHash)
}

func TestApprove_WrongStateNeverTouchesLedger(t *testing.T) {
	h := newHarness(t)
	h.seed(1002, models.StatusCreated, "0.5")

	_, err := h.orch.Approve(context.Background(), TransitionRequest{ClaimID: 1002, Notes: "ok"})
	requireKind(t, err, KindInvalidState)
	assert.Equal(t, 0, h.ledger.submissions())
}

func TestApprove_RevertLeavesMirrorUnchanged(t *testing.T) {
	h := newHarness(t)
	h.seed(1003, models.StatusValidated, "0.5")
	h.ledger.submitErr = &ledger.TxError{
		Kind:   ledger.ErrReverted,
		Method: "aprobarReclamo",
		Reason: "Solo administradores",
		Err:    errors.New("execution reverted: Solo administradores"),
	}

	_, err := h.orch.Approve(context.Background(), TransitionRequest{ClaimID: 1003, Notes: "ok"})
	e := requireKind(t, err, KindReverted)
	assert.Equal(t, "Solo administradores", e.Message)

	c, err := h.store.FindByID(context.Background(), 1003)
	require.NoError(t, err)
	assert.Equal(t, models.StatusValidated, c.Status)
	assert.Empty(t, c.ChangeHistory)
	assert.Empty(t, h.sink.records)
}

func TestApprove_RecordsReviewerAndNotes(t *testing.T) {
	h := newHarness(t)
	h.seed(1004, models.StatusValidated, "0.5")

	out, err := h.orch.Approve(context.Background(), TransitionRequest{ClaimID: 1004, Notes: "documents verified"})
	require.NoError(t, err)

	c := out.Claim
	assert.Equal(t, models.StatusApproved, c.Status)
	require.NotNil(t, c.ReviewerAddress)
	assert.Equal(t, signer, *c.ReviewerAddress)
	require.NotNil(t, c.AdminNotes)
	assert.Equal(t, "documents verified", *c.AdminNotes)
	require.NotNil(t, c.ReviewedAt)
	require.Len(t, c.ChangeHistory, 1)
	assert.Equal(t, "documents verified", *c.ChangeHistory[0].Notes)
	assert.Equal(t, ledger.KindApprove, h.ledger.submitted[0].Kind)
	assert.Equal(t, "documents verified", h.ledger.submitted[0].Notes)
}

func TestReject_RequiresReason(t *testing.T) {
	h := newHarness(t)
	h.seed(1005, models.StatusValidated, "0.5")

	_, err := h.orch.Reject(context.Background(), TransitionRequest{ClaimID: 1005, Notes: "  "})
	requireKind(t, err, KindInvalidInput)

	out, err := h.orch.Reject(context.Background(), TransitionRequest{ClaimID: 1005, Notes: "duplicate claim"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, out.Claim.Status)
}

func TestTerminalStatesNeverMove(t *testing.T) {
	h := newHarness(t)
	h.seed(1006, models.StatusRejected, "0.5")
	h.seed(1007, models.StatusPaid, "0.5")
	h.ledger.balance = big.NewInt(1e18)
	ctx := context.Background()

	for _, id := range []int64{1006, 1007} {
		_, err := h.orch.Validate(ctx, TransitionRequest{ClaimID: id})
		requireKind(t, err, KindInvalidState)
		_, err = h.orch.Approve(ctx, TransitionRequest{ClaimID: id})
		requireKind(t, err, KindInvalidState)
		_, err = h.orch.Reject(ctx, TransitionRequest{ClaimID: id, Notes: "no"})
		requireKind(t, err, KindInvalidState)
		_, err = h.orch.Pay(ctx, id, ContractFunded{})
		requireKind(t, err, KindInvalidState)
	}
	assert.Equal(t, 0, h.ledger.submissions())
}

func TestPay_ContractFundedInsufficientBalance(t *testing.T) {
	h := newHarness(t)
	h.seed(1008, models.StatusApproved, "0.5")
	h.ledger.balance = big.NewInt(1e17)

	_, err := h.orch.Pay(context.Background(), 1008, ContractFunded{})
	e := requireKind(t, err, KindInsufficientBalance)
	assert.Contains(t, e.Message, "0.1")
	assert.Equal(t, 0, h.ledger.submissions())
}

func TestPay_ContractFundedAttachesAmount(t *testing.T) {
	h := newHarness(t)
	h.seed(1009, models.StatusApproved, "0.5")
	h.ledger.balance = big.NewInt(1e18)

	out, err := h.orch.Pay(context.Background(), 1009, ContractFunded{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, out.Claim.Status)
	require.NotNil(t, out.Claim.PaymentTxHash)

	require.Len(t, h.ledger.submitted, 1)
	assert.Equal(t, ledger.KindPay, h.ledger.submitted[0].Kind)
	assert.Equal(t, "500000000000000000", h.ledger.submitted[0].AmountWei.String())

	require.Len(t, out.Claim.ChangeHistory, 1)
	require.NotNil(t, out.Claim.ChangeHistory[0].Notes)
	assert.Equal(t, "payment processed via contract", *out.Claim.ChangeHistory[0].Notes)
	assert.Nil(t, out.Claim.AdminNotes)
}

func TestPay_ExternalWallet(t *testing.T) {
	h := newHarness(t)
	h.seed(1010, models.StatusApproved, "0.5")
	tx := hashN(555)
	h.ledger.walletTx(tx, outsider, "pagarReclamoPublico", 1010, models.StatusPaid)

	out, err := h.orch.Pay(context.Background(), 1010, ExternalWallet{TxHash: tx})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, out.Claim.Status)
	assert.Equal(t, tx, *out.Claim.PaymentTxHash)
	assert.Equal(t, outsider, out.Claim.ChangeHistory[0].Actor)
	require.NotNil(t, out.Claim.ChangeHistory[0].Notes)
	assert.Equal(t, "payment processed via wallet", *out.Claim.ChangeHistory[0].Notes)
	assert.Equal(t, 0, h.ledger.submissions())

	_, err = h.orch.Pay(context.Background(), 1010, ExternalWallet{})
	requireKind(t, err, KindInvalidInput)
}

func TestWalletTransition_Checks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.seed(1011, models.StatusValidated, "0.5")
	notReviewer := hashN(601)
	h.ledger.walletTx(notReviewer, outsider, "aprobarReclamo", 1011, models.StatusApproved)
	e := requireKind(t, func() error {
		_, err := h.orch.Approve(ctx, TransitionRequest{ClaimID: 1011, TxHash: notReviewer})
		return err
	}(), KindUnauthorized)
	assert.Equal(t, notReviewer, e.TxHash)

	h.seed(1012, models.StatusValidated, "0.5")
	wrongMethod := hashN(602)
	h.ledger.walletTx(wrongMethod, reviewer, "rechazarReclamo", 1012, models.StatusRejected)
	_, err := h.orch.Approve(ctx, TransitionRequest{ClaimID: 1012, TxHash: wrongMethod})
	requireKind(t, err, KindInvalidInput)

	h.seed(1013, models.StatusValidated, "0.5")
	otherClaim := hashN(603)
	h.ledger.walletTx(otherClaim, reviewer, "aprobarReclamo", 9999, models.StatusApproved)
	_, err = h.orch.Approve(ctx, TransitionRequest{ClaimID: 1013, TxHash: otherClaim})
	requireKind(t, err, KindInvalidInput)

	_, err = h.orch.Approve(ctx, TransitionRequest{ClaimID: 1013, TxHash: "0x1234"})
	requireKind(t, err, KindInvalidInput)

	ok := hashN(604)
	h.ledger.walletTx(ok, reviewer, "aprobarReclamo", 1013, models.StatusApproved)
	out, err := h.orch.Approve(ctx, TransitionRequest{ClaimID: 1013, TxHash: ok, Notes: "fine"})
	require.NoError(t, err)
	assert.Equal(t, reviewer, *out.Claim.ReviewerAddress)
	assert.Equal(t, 0, h.ledger.submissions())
}

func TestWalletTransition_LedgerStatusMustMatch(t *testing.T) {
	h := newHarness(t)
	h.seed(1014, models.StatusCreated, "0.5")
	tx := hashN(700)
	// mined, but the ledger still shows created
	h.ledger.walletTx(tx, reviewer, "validarReclamo", 1014, models.StatusCreated)

	_, err := h.orch.Validate(context.Background(), TransitionRequest{ClaimID: 1014, TxHash: tx})
	requireKind(t, err, KindInvalidState)
}

func TestTransition_ConfirmationTimeoutSchedulesSynchronize(t *testing.T) {
	h := newHarness(t, WithConfirmationWindow(time.Minute))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.orch.now = func() time.Time { return now }
	h.seed(1015, models.StatusCreated, "0.5")
	h.ledger.confirmErr = &ledger.TxError{Kind: ledger.ErrConfirmationTimeout, Err: ledger.ErrConfirmationTimeout}

	_, err := h.orch.Validate(context.Background(), TransitionRequest{ClaimID: 1015})
	e := requireKind(t, err, KindConfirmationTimeout)
	assert.Equal(t, hashN(1), e.TxHash)

	require.Len(t, h.sink.records, 1)
	rec := h.sink.records[0]
	assert.Equal(t, int64(1015), rec.ClaimID)
	assert.Equal(t, "validate", rec.Kind)
	assert.Equal(t, divergence.StageUnconfirmed, rec.Stage)
	assert.Equal(t, hashN(1), rec.TxHash)
	assert.Equal(t, now.Add(time.Minute), rec.NotBefore)

	// the mirror is untouched until the reconciler reads the ledger
	c, err := h.store.FindByID(context.Background(), 1015)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCreated, c.Status)
}

func TestTransition_UnconfirmedOnlyForUnknownOutcomes(t *testing.T) {
	h := newHarness(t)
	h.seed(1020, models.StatusCreated, "0.5")
	h.ledger.confirmErr = &ledger.TxError{Kind: ledger.ErrReverted, Reason: "Estado invalido", Err: ledger.ErrReverted}

	_, err := h.orch.Validate(context.Background(), TransitionRequest{ClaimID: 1020})
	requireKind(t, err, KindReverted)
	assert.Empty(t, h.sink.records)

	// a wallet transaction that never shows up
	tx := hashN(801)
	_, err = h.orch.Validate(context.Background(), TransitionRequest{ClaimID: 1020, TxHash: tx})
	requireKind(t, err, KindConfirmationTimeout)
	require.Len(t, h.sink.records, 1)
	assert.Equal(t, divergence.StageUnconfirmed, h.sink.records[0].Stage)
	assert.Equal(t, tx, h.sink.records[0].TxHash)
}

func TestCreate_ConfirmationTimeoutSchedulesSynchronize(t *testing.T) {
	h := newHarness(t)
	h.ledger.confirmErr = &ledger.TxError{Kind: ledger.ErrConfirmationTimeout, Err: ledger.ErrConfirmationTimeout}

	_, err := h.orch.Create(context.Background(), validRequest())
	e := requireKind(t, err, KindConfirmationTimeout)
	assert.Equal(t, hashN(1), e.TxHash)

	require.Len(t, h.sink.records, 1)
	assert.Equal(t, "register", h.sink.records[0].Kind)
	assert.Equal(t, divergence.StageUnconfirmed, h.sink.records[0].Stage)
	assert.Equal(t, h.ledger.submitted[0].ClaimID, h.sink.records[0].ClaimID)
}

func TestTransition_CallerGoneAfterBroadcastStillMirrors(t *testing.T) {
	h := newHarness(t)
	h.seed(1019, models.StatusValidated, "0.5")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.ledger.onAwait = cancel

	out, err := h.orch.Approve(ctx, TransitionRequest{ClaimID: 1019, Notes: "ok"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, out.Claim.Status)

	c, err := h.store.FindByID(context.Background(), 1019)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, c.Status)
	assert.Equal(t, models.StatusApproved, h.ledger.claims[1019].Status)
	assert.Empty(t, h.sink.records)
	assert.Len(t, h.events.messages, 1)
}

func TestCreate_CallerGoneAfterBroadcastStillMirrors(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.ledger.onAwait = cancel

	out, err := h.orch.Create(ctx, validRequest())
	require.NoError(t, err)

	c, err := h.store.FindByID(context.Background(), out.Claim.ClaimID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCreated, c.Status)
	assert.Equal(t, hashN(1), c.CreationTxHash)
	assert.Empty(t, h.sink.records)
}

func TestTransition_CancelledBeforeBroadcastTouchesNothing(t *testing.T) {
	h := newHarness(t)
	h.seed(1021, models.StatusCreated, "0.5")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.ledger.submitErr = fmt.Errorf("send transaction: %w", context.Canceled)

	_, err := h.orch.Validate(ctx, TransitionRequest{ClaimID: 1021})
	require.Error(t, err)
	assert.Empty(t, h.sink.records)
}

func TestTransition_MirrorFailureIsDivergence(t *testing.T) {
	h := newHarness(t)
	h.seed(1016, models.StatusCreated, "0.5")
	h.store.updateErr = models.ErrStorageUnavailable

	_, err := h.orch.Validate(context.Background(), TransitionRequest{ClaimID: 1016})
	e := requireKind(t, err, KindDivergence)
	assert.Equal(t, hashN(1), e.TxHash)
	require.Len(t, h.sink.records, 1)
	assert.Equal(t, int64(1016), h.sink.records[0].ClaimID)
	assert.Equal(t, "validate", h.sink.records[0].Kind)

	// ledger moved; synchronize repairs the mirror without a new transaction
	h.store.updateErr = nil
	res, err := h.orch.Synchronize(context.Background(), 1016)
	require.NoError(t, err)
	assert.Equal(t, SyncUpdated, res.Action)
	assert.Equal(t, models.StatusValidated, res.Claim.Status)
	assert.Equal(t, 1, h.ledger.submissions())
}

func TestTransition_InFlightGuard(t *testing.T) {
	h := newHarness(t)
	h.seed(1017, models.StatusCreated, "0.5")

	release, err := h.guard.Acquire(context.Background(), 1017)
	require.NoError(t, err)

	_, err = h.orch.Validate(context.Background(), TransitionRequest{ClaimID: 1017})
	requireKind(t, err, KindInProgress)
	assert.Equal(t, 0, h.ledger.submissions())

	release()
	_, err = h.orch.Validate(context.Background(), TransitionRequest{ClaimID: 1017})
	require.NoError(t, err)
}

func TestTransition_GuardOutageDoesNotBlock(t *testing.T) {
	h := newHarness(t)
	h.seed(1018, models.StatusCreated, "0.5")
	h.guard.err = errors.New("dial tcp: connection refused")

	_, err := h.orch.Validate(context.Background(), TransitionRequest{ClaimID: 1018})
	require.NoError(t, err)
}

func TestTransition_NotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.Validate(context.Background(), TransitionRequest{ClaimID: 404})
	requireKind(t, err, KindNotFound)

	_, err = h.orch.Validate(context.Background(), TransitionRequest{ClaimID: 0})
	requireKind(t, err, KindInvalidInput)
}

func TestSynchronize_ImportsAbsentClaimIdempotently(t *testing.T) {
	h := newHarness(t)
	wei, _ := ledger.ToWei(decimal.RequireFromString("1.25"))
	h.ledger.claims[2001] = &ledger.CanonicalClaim{
		ClaimID:     2001,
		Requester:   outsider,
		Description: "water damage",
		Amount:      decimal.RequireFromString("1.25"),
		AmountWei:   wei,
		Status:      models.StatusApproved,
		ProcessedBy: reviewer,
		AdminNotes:  "ok",
	}
	ctx := context.Background()

	first, err := h.orch.Synchronize(ctx, 2001)
	require.NoError(t, err)
	assert.Equal(t, SyncCreated, first.Action)
	c := first.Claim
	assert.Equal(t, models.StatusApproved, c.Status)
	assert.Equal(t, "ledger-import", c.ClaimType)
	assert.Equal(t, "POL-SYNC-2001", c.PolicyNumber)
	assert.Equal(t, outsider, c.Requester)
	assert.Equal(t, reviewer, *c.ReviewerAddress)
	require.Len(t, c.ChangeHistory, 1)
	assert.Equal(t, syncNotes, *c.ChangeHistory[0].Notes)
	assert.Equal(t, SyncActor, c.ChangeHistory[0].Actor)

	second, err := h.orch.Synchronize(ctx, 2001)
	require.NoError(t, err)
	assert.Equal(t, SyncNoop, second.Action)
	assert.Equal(t, first.Claim, second.Claim)
	assert.Equal(t, 0, h.ledger.submissions())
}

func TestSynchronize_CorrectsFields(t *testing.T) {
	h := newHarness(t)
	h.seed(2002, models.StatusValidated, "0.5")
	h.ledger.claims[2002].Status = models.StatusPaid
	h.ledger.claims[2002].Description = "fender bender, rear"

	res, err := h.orch.Synchronize(context.Background(), 2002)
	require.NoError(t, err)
	assert.Equal(t, SyncUpdated, res.Action)
	assert.Equal(t, models.StatusPaid, res.Claim.Status)
	assert.Equal(t, "fender bender, rear", res.Claim.Description)
	require.Len(t, res.Claim.ChangeHistory, 1)
	assert.Equal(t, models.StatusValidated, res.Claim.ChangeHistory[0].PreviousStatus)

	// requester resolved at intake is kept
	assert.Equal(t, outsider, res.Claim.Requester)
}

func TestSynchronize_NeverRewinds(t *testing.T) {
	h := newHarness(t)
	h.seed(2003, models.StatusApproved, "0.5")
	h.ledger.claims[2003].Status = models.StatusValidated

	_, err := h.orch.Synchronize(context.Background(), 2003)
	requireKind(t, err, KindInvalidState)

	c, err := h.store.FindByID(context.Background(), 2003)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, c.Status)
}

func TestSynchronize_AbsentOnLedger(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.Synchronize(context.Background(), 2004)
	requireKind(t, err, KindNotFound)

	h.ledger.fetchErr = &ledger.TxError{Kind: ledger.ErrNetwork, Err: errors.New("connection refused")}
	_, err = h.orch.Synchronize(context.Background(), 2004)
	requireKind(t, err, KindNetwork)
}

func TestGenerateClaimID(t *testing.T) {
	id := GenerateClaimID(time.UnixMilli(1_712_345_678_901), func(int) int { return 42 })
	assert.Equal(t, int64(45678901042), id)

	assert.Equal(t, int64(1), GenerateClaimID(time.UnixMilli(0), func(int) int { return 0 }))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindDuplicate, KindOf(fromStore(models.ErrDuplicateClaim)))
	assert.Equal(t, KindUserRejected, KindOf(fromLedger(&ledger.TxError{Kind: ledger.ErrUserRejected})))
	assert.Equal(t, KindUnknownStatus, KindOf(fromLedger(ledger.ErrUnknownStatusCode)))
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(nil))
	assert.Equal(t, KindNotFound, Classify(fmt.Errorf("get: %w", models.ErrUserNotFound)).Kind)
	assert.Equal(t, KindNetwork, Classify(ledger.ErrNetwork).Kind)
	assert.Equal(t, KindStorageUnavailable, Classify(models.ErrStorageUnavailable).Kind)
	assert.Equal(t, KindInternal, Classify(errors.New("boom")).Kind)

	e := &Error{Kind: KindDivergence, Message: "x"}
	assert.Same(t, e, Classify(e))
}
