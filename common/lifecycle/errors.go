package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/lyzr/claims/common/ledger"
	"github.com/lyzr/claims/common/models"
	"github.com/lyzr/claims/common/redis"
	"github.com/lyzr/claims/common/validation"
)

// Kind classifies an orchestrator failure
type Kind string

const (
	KindInvalidInput        Kind = "invalid_input"
	KindNotFound            Kind = "not_found"
	KindDuplicate           Kind = "duplicate"
	KindInvalidState        Kind = "invalid_state"
	KindInProgress          Kind = "in_progress"
	KindUnauthorized        Kind = "unauthorized"
	KindReverted            Kind = "reverted"
	KindUserRejected        Kind = "user_rejected"
	KindNetwork             Kind = "network"
	KindConfirmationTimeout Kind = "confirmation_timeout"
	KindUnknownStatus       Kind = "unknown_status"
	KindInsufficientBalance Kind = "insufficient_balance"
	KindDivergence          Kind = "divergence"
	KindStorageUnavailable  Kind = "storage_unavailable"
	KindInternal            Kind = "internal"
)

// Error is returned by every Orchestrator operation.
// TxHash is set whenever a ledger transaction was involved, so callers can tell
// "nothing happened" from "the ledger moved but the mirror may be stale".
type Error struct {
	Kind    Kind
	Message string
	TxHash  string
	// Receipt is set for divergence: the transition did happen on the ledger
	Receipt *ledger.Receipt
	Err     error
}

func (e *Error) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("%s: %s (tx %s)", e.Kind, e.Message, e.TxHash)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or KindInternal for foreign errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func invalidInput(err error) *Error {
	return &Error{Kind: KindInvalidInput, Message: err.Error(), Err: err}
}

// fromLedger translates gateway errors
func fromLedger(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	out := &Error{Kind: KindInternal, Message: err.Error(), Err: err}
	var txErr *ledger.TxError
	if errors.As(err, &txErr) {
		out.TxHash = txErr.TxHash
		if txErr.Reason != "" {
			out.Message = txErr.Reason
		}
	}

	switch {
	case errors.Is(err, ledger.ErrReverted):
		out.Kind = KindReverted
	case errors.Is(err, ledger.ErrUserRejected):
		out.Kind = KindUserRejected
	case errors.Is(err, ledger.ErrConfirmationTimeout):
		out.Kind = KindConfirmationTimeout
	case errors.Is(err, ledger.ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		out.Kind = KindNetwork
	case errors.Is(err, ledger.ErrUnknownStatusCode):
		out.Kind = KindUnknownStatus
	case errors.Is(err, ledger.ErrClaimNotFound):
		out.Kind = KindNotFound
	case errors.Is(err, ledger.ErrAmountPrecision),
		errors.Is(err, ledger.ErrInvalidTxHash),
		errors.Is(err, ledger.ErrForeignTransaction):
		out.Kind = KindInvalidInput
	}
	return out
}

// fromStore translates repository errors
func fromStore(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	kind := KindInternal
	switch {
	case errors.Is(err, models.ErrClaimNotFound), errors.Is(err, models.ErrUserNotFound):
		kind = KindNotFound
	case errors.Is(err, models.ErrDuplicateClaim), errors.Is(err, models.ErrDuplicateUser):
		kind = KindDuplicate
	case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, models.ErrImmutableField):
		kind = KindInvalidState
	case errors.Is(err, models.ErrStorageUnavailable):
		kind = KindStorageUnavailable
	case errors.Is(err, validation.ErrInvalidInput):
		kind = KindInvalidInput
	case errors.Is(err, redis.ErrInFlight):
		kind = KindInProgress
	}
	return &Error{Kind: kind, Message: err.Error(), Err: err}
}

// Classify maps an error from the ledger, the stores or input validation onto
// an *Error, so callers outside the orchestrator report failures the same way.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if e := fromLedger(err); e.Kind != KindInternal {
		return e
	}
	return fromStore(err)
}
