package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/lyzr/claims/cmd/claims-api/container"
	"github.com/lyzr/claims/cmd/claims-api/routes"
	"github.com/lyzr/claims/common/bootstrap"
	claimsmw "github.com/lyzr/claims/common/middleware"
	"github.com/lyzr/claims/common/server"
)

func main() {
	ctx := context.Background()

	// Bootstrap common components (config, logger, DB, Redis, ledger, telemetry)
	components, err := bootstrap.Setup(ctx, "claims-api",
		bootstrap.WithDBInitHook(bootstrap.Migrate(ctx)),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap claims-api: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	// Initialize service container (singleton pattern - all services created once)
	serviceContainer, err := container.NewContainer(components)
	if err != nil {
		components.Logger.Error("Failed to initialize service container", "error", err)
		os.Exit(1)
	}
	defer serviceContainer.Close()

	// Initialize Echo server
	e := setupEcho()

	// Setup middleware
	setupMiddleware(e)

	// Setup health check
	setupHealthCheck(e, components)

	// Register all routes
	registerRoutes(e, serviceContainer)

	// Start server
	if err := startServer(ctx, e, components); err != nil {
		components.Logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(claimsmw.CaptureIdentity())
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, components *bootstrap.Components) {
	e.GET("/health", func(c echo.Context) error {
		if err := components.Health(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status":  "unhealthy",
				"service": "claims-api",
				"error":   err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "claims-api",
		})
	})
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, serviceContainer *container.Container) {
	routes.RegisterClaimRoutes(e, serviceContainer)
	routes.RegisterLedgerRoutes(e, serviceContainer)
	routes.RegisterUserRoutes(e, serviceContainer)
}

// startServer serves until SIGINT/SIGTERM. Writes may wait for a ledger
// confirmation, so the write timeout follows the confirmation timeout.
func startServer(ctx context.Context, e *echo.Echo, components *bootstrap.Components) error {
	cfg := components.Config
	writeTimeout := cfg.Ledger.ConfirmationTimeout + 30*time.Second

	srv := server.New("claims-api", cfg.Service.Port, e, writeTimeout, components.Logger)
	return srv.Start(ctx)
}
