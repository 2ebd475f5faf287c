package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrInvalidInput marks errors caused by the caller's request
var ErrInvalidInput = errors.New("invalid input")

// FieldError names the offending field
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *FieldError) Unwrap() error {
	return ErrInvalidInput
}

// Invalid builds a FieldError
func Invalid(field, format string, args ...any) error {
	return &FieldError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ParseClaimID parses a positive integer claim id
func ParseClaimID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, Invalid("claimId", "must be a positive integer, got %q", raw)
	}
	return id, nil
}

// Address checks a hex wallet address and returns it lowercased
func Address(field, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return "", Invalid(field, "not a valid address: %q", raw)
	}
	return strings.ToLower(common.HexToAddress(raw).Hex()), nil
}

// TxHash checks a 32-byte 0x-prefixed transaction hash
func TxHash(field, raw string) (string, error) {
	b, err := hexutil.Decode(strings.TrimSpace(raw))
	if err != nil || len(b) != common.HashLength {
		return "", Invalid(field, "not a valid transaction hash: %q", raw)
	}
	return strings.ToLower(hexutil.Encode(b)), nil
}
