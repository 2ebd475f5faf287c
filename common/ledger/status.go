package ledger

import (
	"fmt"

	"github.com/lyzr/claims/common/models"
)

// StatusFromCode maps the contract's uint8 status onto the claim status.
// Codes outside 0..4 fail with ErrUnknownStatusCode.
func StatusFromCode(code uint8) (models.ClaimStatus, error) {
	if int(code) >= len(models.AllStatuses) {
		return "", fmt.Errorf("%w: %d", ErrUnknownStatusCode, code)
	}
	return models.AllStatuses[code], nil
}

// CodeFromStatus is the inverse of StatusFromCode
func CodeFromStatus(status models.ClaimStatus) (uint8, error) {
	for i, s := range models.AllStatuses {
		if s == status {
			return uint8(i), nil
		}
	}
	return 0, fmt.Errorf("%w: status %q", ErrUnknownStatusCode, status)
}
