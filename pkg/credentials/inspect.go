package credentials

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrOpaqueToken is returned by Inspect for tokens that are not JWTs, such as
// OpenShift "sha256~" OAuth access tokens.
var ErrOpaqueToken = errors.New("token is not a JWT")

// Claims are the token claims useful for diagnostics.
type Claims struct {
	Subject   string
	Username  string
	Issuer    string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// ExpiresWithin reports whether the token expires within d of now. Tokens
// without an expiry never do.
func (c *Claims) ExpiresWithin(d time.Duration, now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return c.ExpiresAt.Before(now.Add(d))
}

// Inspect parses a JWT WITHOUT verifying it, for claim inspection only.
func Inspect(token string) (*Claims, error) {
	if strings.HasPrefix(token, "sha256~") || strings.Count(token, ".") != 2 {
		return nil, ErrOpaqueToken
	}

	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	parsed, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT: %w", err)
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("failed to extract claims from token")
	}

	claims := &Claims{}
	if sub, err := mapClaims.GetSubject(); err == nil {
		claims.Subject = sub
	}
	if iss, err := mapClaims.GetIssuer(); err == nil {
		claims.Issuer = iss
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}

	for _, key := range []string{"preferred_username", "username", "kubernetes.io/serviceaccount/service-account.name"} {
		if name, ok := mapClaims[key].(string); ok && name != "" {
			claims.Username = name
			break
		}
	}
	if claims.Username == "" {
		claims.Username = claims.Subject
	}

	return claims, nil
}
