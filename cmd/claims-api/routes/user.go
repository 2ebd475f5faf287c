package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/lyzr/claims/cmd/claims-api/container"
	"github.com/lyzr/claims/cmd/claims-api/handlers"
)

// RegisterUserRoutes registers user routes
func RegisterUserRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewUserHandler(c.UserService, c.Components.Config.IsProduction(), c.Components.Logger)

	g := e.Group("/api/v1/users")
	{
		g.GET("", h.ListUsers)      // GET /api/v1/users
		g.POST("", h.CreateUser)    // POST /api/v1/users
		g.GET("/:email", h.GetUser) // GET /api/v1/users/{email}
	}
}
