package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType distinguishes access tokens from refresh tokens.
type TokenType string

// Token types.
const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

// Default token lifetimes.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

// Claims represents the JWT claims. Subject holds the user id and ID the jti.
type Claims struct {
	Type    TokenType `json:"type"`
	Fresh   bool      `json:"fresh"`
	IsAdmin bool      `json:"is_admin"`
	jwt.RegisteredClaims
}

// UserID returns the subject as a user id.
func (c *Claims) UserID() int64 {
	id, _ := strconv.ParseInt(c.Subject, 10, 64)
	return id
}

// ExpiresAtTime returns the expiry, or the zero time when the token has none.
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// TokenService issues and validates signed tokens.
type TokenService struct {
	secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Admins     AdminResolver
	Now        func() time.Time
}

// NewTokenService creates a token service with the default lifetimes.
func NewTokenService(secret string, admins AdminResolver) *TokenService {
	if admins == nil {
		admins = AdminIDs{}
	}
	return &TokenService{
		secret:     []byte(secret),
		AccessTTL:  DefaultAccessTTL,
		RefreshTTL: DefaultRefreshTTL,
		Admins:     admins,
		Now:        time.Now,
	}
}

// IssueAccessToken creates an access token for a user.
func (s *TokenService) IssueAccessToken(ctx context.Context, userID int64, fresh bool) (string, error) {
	return s.issue(ctx, userID, AccessToken, fresh, s.AccessTTL)
}

// IssueRefreshToken creates a refresh token for a user. Refresh tokens are never fresh.
func (s *TokenService) IssueRefreshToken(ctx context.Context, userID int64) (string, error) {
	return s.issue(ctx, userID, RefreshToken, false, s.RefreshTTL)
}

func (s *TokenService) issue(ctx context.Context, userID int64, typ TokenType, fresh bool, ttl time.Duration) (string, error) {
	isAdmin, err := s.Admins.IsAdmin(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("resolving admin claim: %w", err)
	}

	now := s.Now()
	claims := Claims{
		Type:    typ,
		Fresh:   fresh,
		IsAdmin: isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Validate parses a token and checks its signature and expiry. Expired tokens
// fail with ErrExpiredToken; anything else that is wrong fails with ErrInvalidToken.
func (s *TokenService) Validate(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.Now), jwt.WithExpirationRequired())
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrExpiredToken
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrInvalidToken)
	}
	if claims.Type != AccessToken && claims.Type != RefreshToken {
		return nil, fmt.Errorf("%w: unknown token type %q", ErrInvalidToken, claims.Type)
	}
	if _, err := strconv.ParseInt(claims.Subject, 10, 64); err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}

	return claims, nil
}
