package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/lyzr/claims/cmd/claims-api/container"
	"github.com/lyzr/claims/cmd/claims-api/handlers"
	"github.com/lyzr/claims/common/middleware"
)

// RegisterClaimRoutes registers claim, transition and statistics routes
func RegisterClaimRoutes(e *echo.Echo, c *container.Container) {
	cfg := c.Components.Config
	production := cfg.IsProduction()

	claims := handlers.NewClaimHandler(handlers.ClaimHandlerConfig{
		Creator:          c.Orchestrator,
		Query:            c.ClaimQueryService,
		Metadata:         c.MetadataService,
		Statistics:       c.StatisticsService,
		AllowMaintenance: cfg.Service.AllowMaintenance,
		Production:       production,
		Logger:           c.Components.Logger,
	})
	transitions := handlers.NewTransitionHandler(c.Orchestrator, production, c.Components.Logger)

	// Every route that writes to the ledger is rate limited
	var limited []echo.MiddlewareFunc
	if c.Limiter != nil {
		limited = append(limited,
			middleware.GlobalRateLimitMiddleware(c.Limiter),
			middleware.WalletRateLimitMiddleware(c.Limiter),
		)
	}

	g := e.Group("/api/v1/claims")
	{
		g.GET("", claims.ListClaims)                                   // GET /api/v1/claims
		g.POST("", claims.CreateClaim, limited...)                     // POST /api/v1/claims
		g.GET("/:id", claims.GetClaim)                                 // GET /api/v1/claims/:id
		g.PATCH("/:id", claims.PatchClaim)                             // PATCH /api/v1/claims/:id
		g.DELETE("/:id", claims.DeleteClaim)                           // DELETE /api/v1/claims/:id
		g.POST("/:id/validate", transitions.ValidateClaim, limited...) // POST /api/v1/claims/:id/validate
		g.POST("/:id/approve", transitions.ApproveClaim, limited...)   // POST /api/v1/claims/:id/approve
		g.POST("/:id/reject", transitions.RejectClaim, limited...)     // POST /api/v1/claims/:id/reject
		g.POST("/:id/pay", transitions.PayClaim, limited...)           // POST /api/v1/claims/:id/pay
		g.POST("/:id/sync", transitions.SyncClaim)                     // POST /api/v1/claims/:id/sync
	}

	e.GET("/api/v1/statistics", claims.GetStatistics)
}
