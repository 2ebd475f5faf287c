package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/claims/common/lifecycle"
	"github.com/lyzr/claims/common/logger"
	"github.com/lyzr/claims/common/validation"
)

// Transitions drives claim state changes through the orchestrator
type Transitions interface {
	Validate(ctx context.Context, req lifecycle.TransitionRequest) (*lifecycle.Outcome, error)
	Approve(ctx context.Context, req lifecycle.TransitionRequest) (*lifecycle.Outcome, error)
	Reject(ctx context.Context, req lifecycle.TransitionRequest) (*lifecycle.Outcome, error)
	Pay(ctx context.Context, claimID int64, method lifecycle.PaymentMethod) (*lifecycle.Outcome, error)
	Synchronize(ctx context.Context, claimID int64) (*lifecycle.SyncResult, error)
}

type transitionBody struct {
	Notes  string `json:"notes"`
	Reason string `json:"reason"`
	TxHash string `json:"txHash"`
	Method string `json:"method"`
}

// TransitionHandler handles state-changing claim requests
type TransitionHandler struct {
	responder
	transitions Transitions
}

// NewTransitionHandler creates a new transition handler
func NewTransitionHandler(transitions Transitions, production bool, log *logger.Logger) *TransitionHandler {
	return &TransitionHandler{
		responder:   responder{log: log, production: production},
		transitions: transitions,
	}
}

// ValidateClaim moves a created claim to validated
// POST /api/v1/claims/:id/validate
func (h *TransitionHandler) ValidateClaim(c echo.Context) error {
	return h.run(c, func(ctx context.Context, id int64, body transitionBody) (*lifecycle.Outcome, error) {
		return h.transitions.Validate(ctx, lifecycle.TransitionRequest{ClaimID: id, TxHash: body.TxHash})
	})
}

// ApproveClaim moves a validated claim to approved
// POST /api/v1/claims/:id/approve
func (h *TransitionHandler) ApproveClaim(c echo.Context) error {
	return h.run(c, func(ctx context.Context, id int64, body transitionBody) (*lifecycle.Outcome, error) {
		return h.transitions.Approve(ctx, lifecycle.TransitionRequest{ClaimID: id, Notes: body.Notes, TxHash: body.TxHash})
	})
}

// RejectClaim moves a validated claim to rejected
// POST /api/v1/claims/:id/reject
func (h *TransitionHandler) RejectClaim(c echo.Context) error {
	return h.run(c, func(ctx context.Context, id int64, body transitionBody) (*lifecycle.Outcome, error) {
		reason := body.Reason
		if reason == "" {
			reason = body.Notes
		}
		return h.transitions.Reject(ctx, lifecycle.TransitionRequest{ClaimID: id, Notes: reason, TxHash: body.TxHash})
	})
}

// PayClaim pays an approved claim from the contract or confirms a wallet payment
// POST /api/v1/claims/:id/pay
func (h *TransitionHandler) PayClaim(c echo.Context) error {
	return h.run(c, func(ctx context.Context, id int64, body transitionBody) (*lifecycle.Outcome, error) {
		method, err := paymentMethod(body)
		if err != nil {
			return nil, err
		}
		return h.transitions.Pay(ctx, id, method)
	})
}

// SyncClaim rebuilds the mirror record from the ledger
// POST /api/v1/claims/:id/sync
func (h *TransitionHandler) SyncClaim(c echo.Context) error {
	id, err := validation.ParseClaimID(c.Param("id"))
	if err != nil {
		return h.invalid(c, err)
	}

	result, err := h.transitions.Synchronize(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return h.ok(c, http.StatusOK, result)
}

func (h *TransitionHandler) run(c echo.Context, do func(ctx context.Context, id int64, body transitionBody) (*lifecycle.Outcome, error)) error {
	id, err := validation.ParseClaimID(c.Param("id"))
	if err != nil {
		return h.invalid(c, err)
	}

	var body transitionBody
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&body); err != nil {
			return h.invalid(c, validation.Invalid("body", "invalid JSON: %v", err))
		}
	}

	out, err := do(c.Request().Context(), id, body)
	if err != nil {
		return h.fail(c, err)
	}
	return h.ok(c, http.StatusOK, out)
}

// paymentMethod picks wallet when a hash is given and no method is named
func paymentMethod(body transitionBody) (lifecycle.PaymentMethod, error) {
	switch strings.ToLower(strings.TrimSpace(body.Method)) {
	case "wallet":
		return lifecycle.ExternalWallet{TxHash: body.TxHash}, nil
	case "contract":
		if body.TxHash != "" {
			return nil, validation.Invalid("txHash", "not accepted for contract payments")
		}
		return lifecycle.ContractFunded{}, nil
	case "":
		if body.TxHash != "" {
			return lifecycle.ExternalWallet{TxHash: body.TxHash}, nil
		}
		return lifecycle.ContractFunded{}, nil
	default:
		return nil, validation.Invalid("method", "must be \"wallet\" or \"contract\"")
	}
}
