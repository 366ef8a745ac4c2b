package auth

import "errors"

// Authorization failures. Each one maps to its own response code.
var (
	ErrAuthorizationRequired = errors.New("authorization required")
	ErrInvalidToken          = errors.New("invalid token")
	ErrExpiredToken          = errors.New("token expired")
	ErrTokenRevoked          = errors.New("token revoked")
	ErrFreshTokenRequired    = errors.New("fresh token required")
	ErrUnauthorized          = errors.New("admin privileges required")
)
