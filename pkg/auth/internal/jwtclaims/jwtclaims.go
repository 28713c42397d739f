// Package jwtclaims holds the JWT wire form of auth.Claims shared by the
// JWT-based codecs.
package jwtclaims

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/osvaldoandrade/lambdaauth/pkg/auth"
)

// TokenClaims is the signed payload.
type TokenClaims struct {
	jwt.RegisteredClaims
	TokenType auth.TokenType `json:"token_type"`
	User      *auth.Identity `json:"user_details,omitempty"`
}

func FromClaims(c auth.Claims, issuer string) TokenClaims {
	tc := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        c.ID,
			Subject:   c.Subject,
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(c.IssuedAt),
		},
		TokenType: c.TokenType,
	}
	if c.Identity != nil {
		id := *c.Identity
		tc.User = &id
	}
	return tc
}

// ToClaims checks the fields jwt's own validator does not know about and
// converts to auth.Claims.
func (tc *TokenClaims) ToClaims() (*auth.Claims, error) {
	if strings.TrimSpace(tc.Subject) == "" {
		return nil, auth.NewError(auth.KindTokenMalformed, "missing sub", nil)
	}
	if tc.TokenType == "" {
		return nil, auth.NewError(auth.KindTokenMalformed, "missing token_type", nil)
	}
	c := &auth.Claims{
		ID:        tc.ID,
		Subject:   tc.Subject,
		TokenType: tc.TokenType,
		Identity:  tc.User,
	}
	if tc.ExpiresAt != nil {
		c.ExpiresAt = tc.ExpiresAt.Time
	}
	if tc.IssuedAt != nil {
		c.IssuedAt = tc.IssuedAt.Time
	}
	if !c.SubjectMatchesIdentity() {
		return nil, auth.NewError(auth.KindTokenInvalid, "subject does not match user_details.id", nil)
	}
	return c, nil
}

// Expired reports whether exp has passed at now, using the same boundary as
// jwt's validator.
func (tc *TokenClaims) Expired(now time.Time, leeway time.Duration) bool {
	if tc.ExpiresAt == nil {
		return false
	}
	return !now.Before(tc.ExpiresAt.Time.Add(leeway))
}

// Classify maps jwt parser errors onto auth error kinds.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var ae *auth.Error
	if errors.As(err, &ae) {
		return err
	}
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return auth.NewError(auth.KindTokenMalformed, "token malformed", err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return auth.NewError(auth.KindTokenExpired, "token expired", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return auth.NewError(auth.KindSignatureInvalid, "signature invalid", err)
	default:
		return auth.NewError(auth.KindTokenInvalid, "token invalid", err)
	}
}

// Verify runs the shared verification sequence: structure, expiry, then
// signature and registered claims.
func Verify(parser *jwt.Parser, token string, keyfunc jwt.Keyfunc, now time.Time, leeway time.Duration) (*auth.Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, auth.NewError(auth.KindTokenMalformed, "empty token", nil)
	}

	var unverified TokenClaims
	if _, _, err := parser.ParseUnverified(token, &unverified); err != nil {
		return nil, Classify(err)
	}
	if unverified.Expired(now, leeway) {
		return nil, auth.NewError(auth.KindTokenExpired, "token expired", jwt.ErrTokenExpired)
	}

	var tc TokenClaims
	if _, err := parser.ParseWithClaims(token, &tc, keyfunc); err != nil {
		return nil, Classify(err)
	}
	return tc.ToClaims()
}
