package models

import "time"

// UserRole is informational only; permissions live on the ledger
type UserRole string

const (
	RoleClient UserRole = "client"
	RoleAdmin  UserRole = "admin"
)

// User maps to: users table
type User struct {
	Email         string     `json:"email"`
	Name          string     `json:"name"`
	WalletAddress *string    `json:"walletAddress,omitempty"`
	Role          UserRole   `json:"role"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
}
