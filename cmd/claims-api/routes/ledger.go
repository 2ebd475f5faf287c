package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/lyzr/claims/cmd/claims-api/container"
	"github.com/lyzr/claims/cmd/claims-api/handlers"
)

// RegisterLedgerRoutes registers read-only contract routes
func RegisterLedgerRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewLedgerHandler(c.LedgerService, c.Components.Config.IsProduction(), c.Components.Logger)

	g := e.Group("/api/v1/ledger")
	{
		g.GET("/balance", h.GetBalance)      // GET /api/v1/ledger/balance
		g.GET("/roles/:address", h.GetRoles) // GET /api/v1/ledger/roles/{address}
	}
}
