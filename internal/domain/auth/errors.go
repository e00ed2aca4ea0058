package auth

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrForbidden          = errors.New("insufficient role")
	ErrNoUser             = errors.New("no authenticated user")
)
