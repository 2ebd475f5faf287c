package models

import "errors"

var (
	ErrClaimNotFound      = errors.New("claim not found")
	ErrDuplicateClaim     = errors.New("claim already exists")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrInvalidTransition  = errors.New("status transition not allowed")
	ErrImmutableField     = errors.New("field is immutable once set")
	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateUser      = errors.New("user already exists")
)
