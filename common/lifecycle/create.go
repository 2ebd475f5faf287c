package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/lyzr/claims/common/divergence"
	"github.com/lyzr/claims/common/ledger"
	"github.com/lyzr/claims/common/models"
	"github.com/lyzr/claims/common/validation"
)

const maxIDAttempts = 5

// CreateRequest is a new claim submitted for registration
type CreateRequest struct {
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	ClaimType     string          `json:"claimType"`
	PolicyNumber  string          `json:"policyNumber"`
	Location      string          `json:"location"`
	AssignedEmail string          `json:"assignedEmail"`
	Documents     json.RawMessage `json:"documents"`
	// Requester is optional; see resolveRequester
	Requester string `json:"requester"`
}

// Create registers a claim on the ledger, waits for confirmation and then
// writes the mirror record tagged with the creation hash.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) (out *Outcome, err error) {
	defer func() { o.observe(ledger.KindRegister, err) }()

	req.Description = strings.TrimSpace(req.Description)
	req.AssignedEmail = strings.ToLower(strings.TrimSpace(req.AssignedEmail))

	if req.Requester != "" {
		addr, err := validation.Address("requester", req.Requester)
		if err != nil {
			return nil, invalidInput(err)
		}
		req.Requester = addr
	}

	if err := o.intake.Check(validation.IntakeClaim{
		Description:   req.Description,
		Amount:        req.Amount,
		ClaimType:     req.ClaimType,
		PolicyNumber:  req.PolicyNumber,
		Location:      req.Location,
		AssignedEmail: req.AssignedEmail,
		Requester:     req.Requester,
	}); err != nil {
		return nil, invalidInput(err)
	}

	wei, err := ledger.ToWei(req.Amount)
	if err != nil {
		return nil, fromLedger(err)
	}

	claimID, err := o.allocateID(ctx)
	if err != nil {
		return nil, err
	}

	release, err := o.acquire(ctx, claimID)
	if err != nil {
		return nil, err
	}
	defer release()

	pending, err := o.ledger.Submit(ctx, ledger.Transition{
		Kind:        ledger.KindRegister,
		ClaimID:     claimID,
		Description: req.Description,
		AmountWei:   wei,
	})
	if err != nil {
		return nil, fromLedger(err)
	}

	// registered or not, the outcome no longer depends on the caller
	detached := context.WithoutCancel(ctx)
	receipt, err := o.ledger.AwaitConfirmation(detached, pending)
	if err != nil {
		e := fromLedger(err)
		if e.TxHash == "" {
			e.TxHash = pending.Hash
		}
		o.unconfirmed(ctx, ledger.KindRegister, claimID, e)
		return nil, e
	}
	o.metrics.ObserveConfirmation(string(ledger.KindRegister), confirmationTime(pending, o.now()))

	requester := o.resolveRequester(detached, req, receipt)

	claim, err := o.store.Create(detached, &models.NewClaim{
		ClaimID:       claimID,
		Requester:     requester,
		AssignedEmail: req.AssignedEmail,
		Description:   req.Description,
		Amount:        req.Amount,
		AmountWei:     decimal.NewFromBigInt(wei, 0),
		ClaimType:     req.ClaimType,
		PolicyNumber:  req.PolicyNumber,
		Location:      req.Location,
		Documents:     req.Documents,
	}, receipt.TxHash)
	if err != nil {
		return nil, o.diverged(ctx, ledger.KindRegister, divergence.StageMirrorCreate, claimID, receipt, err)
	}

	o.logger.Info("claim created",
		"claim_id", claimID,
		"kind", ledger.KindRegister,
		"tx_hash", receipt.TxHash,
		"requester", requester)
	o.publish(detached, "claim.created", claim, receipt.TxHash)

	return &Outcome{Claim: claim, Receipt: receipt}, nil
}

// allocateID picks an id that the mirror does not hold yet
func (o *Orchestrator) allocateID(ctx context.Context) (int64, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := GenerateClaimID(o.now(), o.random)
		exists, err := o.store.Exists(ctx, id)
		if err != nil {
			return 0, fromStore(err)
		}
		if !exists {
			return id, nil
		}
	}
	return 0, newError(KindInternal, nil, "could not allocate a free claim id after %d attempts", maxIDAttempts)
}

// resolveRequester picks, in order: the explicit requester, the wallet of the
// user registered under assignedEmail, the sender of the register transaction.
func (o *Orchestrator) resolveRequester(ctx context.Context, req CreateRequest, receipt *ledger.Receipt) string {
	if req.Requester != "" {
		return req.Requester
	}
	if o.users != nil && req.AssignedEmail != "" {
		user, err := o.users.FindByEmail(ctx, req.AssignedEmail)
		switch {
		case err == nil && user.WalletAddress != nil && *user.WalletAddress != "":
			return models.NormalizeAddress(*user.WalletAddress)
		case err != nil && !errors.Is(err, models.ErrUserNotFound):
			o.logger.Warn("user lookup failed during requester resolution", "email", req.AssignedEmail, "error", err)
		}
	}
	return receipt.From
}
