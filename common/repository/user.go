package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/lyzr/claims/common/db"
	"github.com/lyzr/claims/common/models"
)

const userColumns = `email, name, wallet_address, role, active, created_at, last_login_at`

// UserRepository handles database operations for users
type UserRepository struct {
	db *db.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(database *db.DB) *UserRepository {
	return &UserRepository{db: database}
}

// Create inserts a new user keyed by lowercase email
func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	var wallet *string
	if user.WalletAddress != nil {
		w := models.NormalizeAddress(*user.WalletAddress)
		wallet = &w
	}

	role := user.Role
	if role == "" {
		role = models.RoleClient
	}

	query := `
		INSERT INTO users (email, name, wallet_address, role, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + userColumns

	created, err := scanUser(r.db.QueryRow(ctx, query,
		strings.ToLower(strings.TrimSpace(user.Email)),
		user.Name,
		wallet,
		string(role),
		user.Active,
	))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", models.ErrDuplicateUser, user.Email)
		}
		return nil, storageError("create user", err)
	}
	return created, nil
}

// FindByEmail returns the user or ErrUserNotFound
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", models.ErrUserNotFound, email)
		}
		return nil, storageError("get user", err)
	}
	return user, nil
}

// FindByWallet returns the active user registered with a wallet address
func (r *UserRepository) FindByWallet(ctx context.Context, wallet string) (*models.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE wallet_address = $1 AND active ORDER BY created_at LIMIT 1`,
		models.NormalizeAddress(wallet)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: wallet %s", models.ErrUserNotFound, wallet)
		}
		return nil, storageError("get user by wallet", err)
	}
	return user, nil
}

// List returns users ordered by creation time
func (r *UserRepository) List(ctx context.Context, limit, page int) ([]*models.User, error) {
	limit, page = normalizePage(limit, page)

	rows, err := r.db.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, (page-1)*limit)
	if err != nil {
		return nil, storageError("list users", err)
	}
	defer rows.Close()

	users := make([]*models.User, 0, limit)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, storageError("scan user", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var role string
	if err := row.Scan(&u.Email, &u.Name, &u.WalletAddress, &role, &u.Active, &u.CreatedAt, &u.LastLoginAt); err != nil {
		return nil, err
	}
	u.Role = models.UserRole(role)
	return &u, nil
}
