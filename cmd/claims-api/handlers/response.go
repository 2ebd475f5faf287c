package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/claims/common/lifecycle"
	"github.com/lyzr/claims/common/logger"
	"github.com/lyzr/claims/common/validation"
)

// WarningMirrorPendingSync marks a transition that happened on the ledger
// while the mirror write is left to the reconciler
const WarningMirrorPendingSync = "mirror_pending_sync"

// statusFor maps an error kind onto an HTTP status
func statusFor(kind lifecycle.Kind) int {
	switch kind {
	case lifecycle.KindInvalidInput, lifecycle.KindReverted, lifecycle.KindUserRejected, lifecycle.KindInsufficientBalance:
		return http.StatusBadRequest
	case lifecycle.KindUnauthorized:
		return http.StatusForbidden
	case lifecycle.KindNotFound:
		return http.StatusNotFound
	case lifecycle.KindDuplicate, lifecycle.KindInvalidState, lifecycle.KindInProgress:
		return http.StatusConflict
	case lifecycle.KindNetwork, lifecycle.KindConfirmationTimeout:
		return http.StatusServiceUnavailable
	case lifecycle.KindDivergence:
		return http.StatusAccepted
	default:
		return http.StatusInternalServerError
	}
}

// responder writes the {success, data} / {success:false, error, message} envelopes
type responder struct {
	log *logger.Logger
	// production hides error details
	production bool
}

func (r responder) ok(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

func (r responder) fail(c echo.Context, err error) error {
	e := lifecycle.Classify(err)
	status := statusFor(e.Kind)

	if e.Kind == lifecycle.KindDivergence {
		r.log.Warn("transition pending mirror sync", "path", c.Path(), "tx_hash", e.TxHash)
		return c.JSON(status, map[string]interface{}{
			"success": true,
			"warning": WarningMirrorPendingSync,
			"message": e.Message,
			"data": map[string]interface{}{
				"txHash":  e.TxHash,
				"receipt": e.Receipt,
			},
		})
	}

	if status >= http.StatusInternalServerError {
		r.log.Error("request failed", "path", c.Path(), "kind", e.Kind, "error", err)
	} else {
		r.log.Warn("request rejected", "path", c.Path(), "kind", e.Kind, "error", err)
	}

	body := map[string]interface{}{
		"success": false,
		"error":   string(e.Kind),
		"message": e.Message,
	}
	if e.TxHash != "" {
		body["txHash"] = e.TxHash
	}
	if !r.production && e.Err != nil {
		body["details"] = e.Err.Error()
	}
	return c.JSON(status, body)
}

func (r responder) invalid(c echo.Context, err error) error {
	return r.fail(c, &lifecycle.Error{Kind: lifecycle.KindInvalidInput, Message: err.Error(), Err: err})
}

func queryInt(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, validation.Invalid(name, "must be a non-negative integer")
	}
	return v, nil
}
