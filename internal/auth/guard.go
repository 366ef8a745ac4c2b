package auth

import (
	"context"
	"fmt"
	"strings"
)

// Blocklist reports whether a jti has been revoked.
type Blocklist interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Requirement describes what a protected operation needs from a token.
type Requirement struct {
	Type  TokenType
	Fresh bool
	Admin bool
}

// Guard authorizes requests from their Authorization header.
type Guard struct {
	Tokens    *TokenService
	Blocklist Blocklist
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Authorize validates the token in header against req. Checks run in order:
// presence, signature and expiry, token type, revocation, freshness, admin.
func (g *Guard) Authorize(ctx context.Context, header string, req Requirement) (*Claims, error) {
	tokenStr, ok := BearerToken(header)
	if !ok {
		return nil, ErrAuthorizationRequired
	}

	claims, err := g.Tokens.Validate(tokenStr)
	if err != nil {
		return nil, err
	}

	want := req.Type
	if want == "" {
		want = AccessToken
	}
	if claims.Type != want {
		return nil, fmt.Errorf("%w: only %s tokens are allowed", ErrInvalidToken, want)
	}

	revoked, err := g.Blocklist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("checking revocation: %w", err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	if req.Fresh && !claims.Fresh {
		return nil, ErrFreshTokenRequired
	}
	if req.Admin && !claims.IsAdmin {
		return nil, ErrUnauthorized
	}

	return claims, nil
}
