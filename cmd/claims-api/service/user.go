package service

import (
	"context"
	"net/mail"
	"strings"

	"github.com/lyzr/claims/common/logger"
	"github.com/lyzr/claims/common/models"
	"github.com/lyzr/claims/common/validation"
)

// UserStore is the user repository
type UserStore interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, limit, page int) ([]*models.User, error)
}

// CreateUserRequest is the input for UserService.Create
type CreateUserRequest struct {
	Email         string `json:"email"`
	Name          string `json:"name"`
	WalletAddress string `json:"walletAddress"`
	Role          string `json:"role"`
}

// UserService manages registered users. Roles are informational;
// reviewer rights come from the ledger.
type UserService struct {
	users UserStore
	log   *logger.Logger
}

// NewUserService creates a new user service
func NewUserService(users UserStore, log *logger.Logger) *UserService {
	return &UserService{users: users, log: log}
}

// Create registers a user
func (s *UserService) Create(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, validation.Invalid("email", "not a valid email address: %q", req.Email)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, validation.Invalid("name", "is required")
	}

	role := models.UserRole(strings.ToLower(strings.TrimSpace(req.Role)))
	switch role {
	case "":
		role = models.RoleClient
	case models.RoleClient, models.RoleAdmin:
	default:
		return nil, validation.Invalid("role", "must be %q or %q", models.RoleClient, models.RoleAdmin)
	}

	user := &models.User{Email: email, Name: name, Role: role, Active: true}
	if strings.TrimSpace(req.WalletAddress) != "" {
		wallet, err := validation.Address("walletAddress", req.WalletAddress)
		if err != nil {
			return nil, err
		}
		user.WalletAddress = &wallet
	}

	created, err := s.users.Create(ctx, user)
	if err != nil {
		return nil, err
	}

	s.log.Info("user registered", "email", created.Email, "role", created.Role)
	return created, nil
}

// Get returns the user registered under email
func (s *UserService) Get(ctx context.Context, email string) (*models.User, error) {
	return s.users.FindByEmail(ctx, email)
}

// List returns one page of users
func (s *UserService) List(ctx context.Context, limit, page int) ([]*models.User, error) {
	return s.users.List(ctx, limit, page)
}
