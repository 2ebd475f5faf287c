package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/claims/cmd/claims-api/service"
	"github.com/lyzr/claims/common/logger"
)

// LedgerQueries answers read-only ledger questions
type LedgerQueries interface {
	Roles(ctx context.Context, address string) (*service.Roles, error)
	Balance(ctx context.Context) (*service.Balance, error)
}

// LedgerHandler exposes contract state
type LedgerHandler struct {
	responder
	ledger LedgerQueries
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(l LedgerQueries, production bool, log *logger.Logger) *LedgerHandler {
	return &LedgerHandler{
		responder: responder{log: log, production: production},
		ledger:    l,
	}
}

// GetBalance returns the contract balance
// GET /api/v1/ledger/balance
func (h *LedgerHandler) GetBalance(c echo.Context) error {
	balance, err := h.ledger.Balance(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return h.ok(c, http.StatusOK, balance)
}

// GetRoles reports whether an address is a reviewer or the owner
// GET /api/v1/ledger/roles/:address
func (h *LedgerHandler) GetRoles(c echo.Context) error {
	roles, err := h.ledger.Roles(c.Request().Context(), c.Param("address"))
	if err != nil {
		return h.fail(c, err)
	}
	return h.ok(c, http.StatusOK, roles)
}
