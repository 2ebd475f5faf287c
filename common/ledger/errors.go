package ledger

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	ErrClaimNotFound       = errors.New("claim not found on ledger")
	ErrReverted            = errors.New("ledger transaction reverted")
	ErrUserRejected        = errors.New("transaction rejected by signer")
	ErrNetwork             = errors.New("ledger network error")
	ErrUnknownStatusCode   = errors.New("unknown ledger status code")
	ErrConfirmationTimeout = errors.New("ledger confirmation timed out")
	ErrAmountPrecision     = errors.New("amount not representable in wei")
	ErrForeignTransaction  = errors.New("transaction does not target the claims contract")
	ErrInvalidTxHash       = errors.New("invalid transaction hash")
	ErrTransaction         = errors.New("ledger transaction failed")
	ErrReadOnly            = errors.New("ledger gateway has no signing key")
)

// userRejectedCode is the EIP-1193 "user rejected request" code
const userRejectedCode = 4001

// TxError describes a failed ledger call or transaction
type TxError struct {
	Kind   error
	Method string
	Reason string
	TxHash string
	Err    error
}

func (e *TxError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Method != "" {
		b.WriteString(" (")
		b.WriteString(e.Method)
		b.WriteString(")")
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.TxHash != "" {
		b.WriteString(" tx=")
		b.WriteString(e.TxHash)
	}
	if e.Err != nil && e.Reason == "" {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *TxError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// classify turns an RPC/transport error into a *TxError with a taxonomy kind
func classify(method string, err error) error {
	if err == nil {
		return nil
	}

	var txErr *TxError
	if errors.As(err, &txErr) {
		return err
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == userRejectedCode {
		return &TxError{Kind: ErrUserRejected, Method: method, Err: err}
	}

	msg := err.Error()
	if strings.Contains(msg, "execution reverted") {
		return &TxError{Kind: ErrReverted, Method: method, Reason: revertReason(err), Err: err}
	}

	if isNetworkError(err) {
		return &TxError{Kind: ErrNetwork, Method: method, Err: err}
	}

	return &TxError{Kind: ErrTransaction, Method: method, Err: err}
}

// revertReason extracts the Error(string) payload if the node returned one
func revertReason(err error) string {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if hexData, ok := dataErr.ErrorData().(string); ok {
			if data, decErr := hexutil.Decode(hexData); decErr == nil {
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					return reason
				}
			}
		}
	}

	msg := err.Error()
	if idx := strings.Index(msg, "execution reverted:"); idx >= 0 {
		return strings.TrimSpace(msg[idx+len("execution reverted:"):])
	}
	return "execution reverted"
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"connection refused", "no such host", "i/o timeout", "eof", "503 service unavailable"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsLedgerError reports whether err carries one of the ledger taxonomy kinds
func IsLedgerError(err error) bool {
	var txErr *TxError
	return errors.As(err, &txErr)
}
