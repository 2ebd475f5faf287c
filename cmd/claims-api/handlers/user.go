package handlers

import (
	"context"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/claims/cmd/claims-api/service"
	"github.com/lyzr/claims/common/logger"
	"github.com/lyzr/claims/common/models"
	"github.com/lyzr/claims/common/validation"
)

// Users manages registered users
type Users interface {
	Create(ctx context.Context, req service.CreateUserRequest) (*models.User, error)
	Get(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, limit, page int) ([]*models.User, error)
}

// UserHandler handles user requests
type UserHandler struct {
	responder
	users Users
}

// NewUserHandler creates a new user handler
func NewUserHandler(users Users, production bool, log *logger.Logger) *UserHandler {
	return &UserHandler{
		responder: responder{log: log, production: production},
		users:     users,
	}
}

// ListUsers lists registered users
// GET /api/v1/users?page=1&limit=20
func (h *UserHandler) ListUsers(c echo.Context) error {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		return h.invalid(c, err)
	}
	page, err := queryInt(c, "page", 1)
	if err != nil {
		return h.invalid(c, err)
	}

	users, err := h.users.List(c.Request().Context(), limit, page)
	if err != nil {
		return h.fail(c, err)
	}
	return h.ok(c, http.StatusOK, users)
}

// CreateUser registers a user
// POST /api/v1/users
func (h *UserHandler) CreateUser(c echo.Context) error {
	var req service.CreateUserRequest
	if err := c.Bind(&req); err != nil {
		return h.invalid(c, validation.Invalid("body", "invalid JSON: %v", err))
	}

	user, err := h.users.Create(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, err)
	}
	return h.ok(c, http.StatusCreated, user)
}

// GetUser returns one user
// GET /api/v1/users/:email
func (h *UserHandler) GetUser(c echo.Context) error {
	email, err := url.PathUnescape(c.Param("email"))
	if err != nil {
		return h.invalid(c, validation.Invalid("email", "malformed: %v", err))
	}

	user, err := h.users.Get(c.Request().Context(), email)
	if err != nil {
		return h.fail(c, err)
	}
	return h.ok(c, http.StatusOK, user)
}
