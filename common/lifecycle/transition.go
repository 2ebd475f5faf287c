package lifecycle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/lyzr/claims/common/divergence"
	"github.com/lyzr/claims/common/ledger"
	"github.com/lyzr/claims/common/models"
	"github.com/lyzr/claims/common/validation"
)

// TransitionRequest asks to validate, approve or reject a claim
type TransitionRequest struct {
	ClaimID int64
	// Notes are the approval notes or the rejection reason
	Notes string
	// TxHash is set when the reviewer already broadcast the transaction from a wallet
	TxHash string
}

// PaymentMethod selects how a claim is paid: ExternalWallet or ContractFunded
type PaymentMethod interface {
	paymentMethod()
}

// ExternalWallet means the caller already sent the payment transaction
type ExternalWallet struct {
	TxHash string
}

// ContractFunded means the server signer submits the payment
type ContractFunded struct{}

func (ExternalWallet) paymentMethod() {}
func (ContractFunded) paymentMethod() {}

// transitionPlan describes one run of the three-phase protocol
type transitionPlan struct {
	kind            ledger.TransitionKind
	target          models.ClaimStatus
	notes           string
	walletTx        string
	requireReviewer bool
	// precheck runs after the state check and before any ledger call; it returns the value to attach
	precheck func(ctx context.Context, claim *models.Claim) (*big.Int, error)
}

// Validate moves a created claim to validated
func (o *Orchestrator) Validate(ctx context.Context, req TransitionRequest) (*Outcome, error) {
	return o.runTransition(ctx, req.ClaimID, transitionPlan{
		kind:            ledger.KindValidate,
		target:          models.StatusValidated,
		notes:           req.Notes,
		walletTx:        req.TxHash,
		requireReviewer: true,
	})
}

// Approve moves a validated claim to approved
func (o *Orchestrator) Approve(ctx context.Context, req TransitionRequest) (*Outcome, error) {
	return o.runTransition(ctx, req.ClaimID, transitionPlan{
		kind:            ledger.KindApprove,
		target:          models.StatusApproved,
		notes:           strings.TrimSpace(req.Notes),
		walletTx:        req.TxHash,
		requireReviewer: true,
	})
}

// Reject moves a validated claim to rejected; a reason is required
func (o *Orchestrator) Reject(ctx context.Context, req TransitionRequest) (*Outcome, error) {
	reason := strings.TrimSpace(req.Notes)
	if reason == "" {
		err := newError(KindInvalidInput, nil, "a rejection reason is required")
		o.observe(ledger.KindReject, err)
		return nil, err
	}
	return o.runTransition(ctx, req.ClaimID, transitionPlan{
		kind:            ledger.KindReject,
		target:          models.StatusRejected,
		notes:           reason,
		walletTx:        req.TxHash,
		requireReviewer: true,
	})
}

// Pay moves an approved claim to paid
func (o *Orchestrator) Pay(ctx context.Context, claimID int64, method PaymentMethod) (*Outcome, error) {
	plan := transitionPlan{kind: ledger.KindPay, target: models.StatusPaid}

	switch m := method.(type) {
	case ExternalWallet:
		if m.TxHash == "" {
			err := newError(KindInvalidInput, nil, "wallet payment requires txHash")
			o.observe(ledger.KindPay, err)
			return nil, err
		}
		plan.walletTx = m.TxHash
		plan.notes = "payment processed via wallet"
	case ContractFunded:
		plan.precheck = o.checkBalance
		plan.notes = "payment processed via contract"
	default:
		err := newError(KindInvalidInput, nil, "unknown payment method %T", method)
		o.observe(ledger.KindPay, err)
		return nil, err
	}

	return o.runTransition(ctx, claimID, plan)
}

func (o *Orchestrator) runTransition(ctx context.Context, claimID int64, p transitionPlan) (out *Outcome, err error) {
	defer func() { o.observe(p.kind, err) }()

	if claimID <= 0 {
		return nil, newError(KindInvalidInput, nil, "invalid claim id %d", claimID)
	}
	if p.walletTx != "" {
		hash, err := validation.TxHash("txHash", p.walletTx)
		if err != nil {
			return nil, invalidInput(err)
		}
		p.walletTx = hash
	}

	// phase 1: local precondition, nothing touches the ledger if it fails
	claim, err := o.store.FindByID(ctx, claimID)
	if err != nil {
		return nil, fromStore(err)
	}
	required, _ := models.Predecessor(p.target)
	if claim.Status != required {
		return nil, newError(KindInvalidState, models.ErrInvalidTransition,
			"claim %d is %s; %s requires %s", claimID, claim.Status, p.kind, required)
	}

	var value *big.Int
	if p.precheck != nil {
		if value, err = p.precheck(ctx, claim); err != nil {
			return nil, err
		}
	}

	release, err := o.acquire(ctx, claimID)
	if err != nil {
		return nil, err
	}
	defer release()

	// phase 2: ledger. Once a transaction is out, a dropped request must not
	// stop the mirror from following it.
	detached := context.WithoutCancel(ctx)
	var receipt *ledger.Receipt
	if p.walletTx != "" {
		receipt, err = o.confirmWallet(detached, claim, p)
	} else {
		receipt, err = o.submit(ctx, claim, p, value)
	}
	if err != nil {
		return nil, err
	}

	// phase 3: mirror
	updated, err := o.store.Update(detached, claimID, p.patch(receipt, o.now()), receipt.From)
	if err != nil {
		return nil, o.diverged(ctx, p.kind, divergence.StageMirrorUpdate, claimID, receipt, err)
	}

	o.logger.Info("claim transitioned",
		"claim_id", claimID,
		"kind", p.kind,
		"tx_hash", receipt.TxHash,
		"from", claim.Status,
		"to", updated.Status,
		"actor", receipt.From)
	o.publish(detached, "claim."+string(p.target), updated, receipt.TxHash)

	return &Outcome{Claim: updated, Receipt: receipt}, nil
}

func (o *Orchestrator) submit(ctx context.Context, claim *models.Claim, p transitionPlan, value *big.Int) (*ledger.Receipt, error) {
	pending, err := o.ledger.Submit(ctx, ledger.Transition{
		Kind:      p.kind,
		ClaimID:   claim.ClaimID,
		Notes:     p.notes,
		AmountWei: value,
	})
	if err != nil {
		return nil, fromLedger(err)
	}

	// the gateway bounds the wait with its confirmation timeout
	receipt, err := o.ledger.AwaitConfirmation(context.WithoutCancel(ctx), pending)
	if err != nil {
		e := fromLedger(err)
		if e.TxHash == "" {
			e.TxHash = pending.Hash
		}
		o.unconfirmed(ctx, p.kind, claim.ClaimID, e)
		return nil, e
	}
	o.metrics.ObserveConfirmation(string(p.kind), confirmationTime(pending, o.now()))
	return receipt, nil
}

// confirmWallet verifies a transaction the caller broadcast from their own wallet
func (o *Orchestrator) confirmWallet(ctx context.Context, claim *models.Claim, p transitionPlan) (*ledger.Receipt, error) {
	receipt, err := o.ledger.ConfirmExternal(ctx, p.walletTx)
	if err != nil {
		e := fromLedger(err)
		if e.TxHash == "" {
			e.TxHash = p.walletTx
		}
		o.unconfirmed(ctx, p.kind, claim.ClaimID, e)
		return nil, e
	}

	if receipt.ClaimID != claim.ClaimID || !p.kind.Accepts(receipt.Method) {
		return nil, &Error{
			Kind:    KindInvalidInput,
			Message: fmt.Sprintf("transaction calls %s for claim %d, expected %s of claim %d", receipt.Method, receipt.ClaimID, p.kind, claim.ClaimID),
			TxHash:  receipt.TxHash,
		}
	}

	if p.requireReviewer {
		ok, err := o.ledger.IsAuthorizedReviewer(ctx, receipt.From)
		if err != nil {
			return nil, fromLedger(err)
		}
		if !ok {
			return nil, &Error{
				Kind:    KindUnauthorized,
				Message: fmt.Sprintf("%s is not an authorized reviewer", receipt.From),
				TxHash:  receipt.TxHash,
			}
		}
	}

	canonical, err := o.ledger.FetchClaim(ctx, claim.ClaimID)
	if err != nil {
		return nil, fromLedger(err)
	}
	if canonical.Status != p.target && !p.target.CanAdvanceTo(canonical.Status) {
		return nil, &Error{
			Kind:    KindInvalidState,
			Message: fmt.Sprintf("ledger shows claim %d as %s after %s", claim.ClaimID, canonical.Status, p.kind),
			TxHash:  receipt.TxHash,
		}
	}

	o.logger.Info("wallet transaction confirmed",
		"claim_id", claim.ClaimID,
		"kind", p.kind,
		"tx_hash", receipt.TxHash,
		"from", receipt.From)
	return receipt, nil
}

// checkBalance fails fast when the contract cannot cover the claim
func (o *Orchestrator) checkBalance(ctx context.Context, claim *models.Claim) (*big.Int, error) {
	amount := claim.AmountWei.BigInt()
	if amount.Sign() <= 0 {
		wei, err := ledger.ToWei(claim.Amount)
		if err != nil {
			return nil, fromLedger(err)
		}
		amount = wei
	}

	balance, err := o.ledger.ContractBalance(ctx)
	if err != nil {
		return nil, fromLedger(err)
	}
	if balance.Cmp(amount) < 0 {
		return nil, &Error{
			Kind: KindInsufficientBalance,
			Message: fmt.Sprintf("contract balance %s ETH does not cover claim amount %s ETH",
				ledger.FromWei(balance).String(), ledger.FromWei(amount).String()),
		}
	}
	return amount, nil
}

// patch builds the mirror update for a confirmed transition
func (p transitionPlan) patch(receipt *ledger.Receipt, now time.Time) *models.ClaimPatch {
	status := p.target
	hash := receipt.TxHash
	patch := &models.ClaimPatch{Status: &status}
	if p.notes != "" {
		notes := p.notes
		patch.Notes = &notes
	}

	switch p.kind {
	case ledger.KindValidate:
		patch.ValidationTxHash = &hash
	case ledger.KindApprove, ledger.KindReject:
		reviewer := receipt.From
		patch.ReviewTxHash = &hash
		patch.ReviewerAddress = &reviewer
		patch.ReviewedAt = &now
		patch.AdminNotes = patch.Notes
	case ledger.KindPay:
		patch.PaymentTxHash = &hash
	}
	return patch
}
