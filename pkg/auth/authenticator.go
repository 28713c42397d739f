package auth

import (
	"net/http"
	"strings"
)

const (
	// DefaultScheme is the literal expected before the credential in the
	// Authorization header.
	DefaultScheme = "Watashiwasta"

	authorizationHeader = "Authorization"
)

type authState int

const (
	unauthenticated authState = iota
	authenticated
)

// Authenticator resolves the credential of exactly one request. It holds
// per-request state and must not be shared between requests; the Verifier
// it wraps may be.
type Authenticator struct {
	verifier     Verifier
	prefix       string
	allowRefresh bool

	state  authState
	claims *Claims
}

type AuthenticatorOption func(*Authenticator)

// WithScheme overrides DefaultScheme.
func WithScheme(scheme string) AuthenticatorOption {
	return func(a *Authenticator) {
		if s := strings.TrimSpace(scheme); s != "" {
			a.prefix = s + " "
		}
	}
}

// WithAllowRefresh lets refresh tokens authenticate. Only token-exchange
// endpoints should enable it.
func WithAllowRefresh(allow bool) AuthenticatorOption {
	return func(a *Authenticator) {
		a.allowRefresh = allow
	}
}

func NewAuthenticator(verifier Verifier, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		verifier: verifier,
		prefix:   DefaultScheme + " ",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authenticate verifies the credential carried by headers and, on success,
// stores its claims. A later successful call overwrites them; a failed call
// leaves earlier claims in place.
//
// Absent, non-text and wrong-scheme headers all fail with the same
// Unauthorized message. Verifier errors are returned unchanged.
func (a *Authenticator) Authenticate(headers http.Header) error {
	value, ok := lookupHeader(headers, authorizationHeader)
	if !ok {
		return Unauthorized(MissingAuthorizationHeader)
	}
	if !isHeaderText(value) {
		return Unauthorized(MissingAuthorizationHeader)
	}
	if !strings.HasPrefix(value, a.prefix) {
		return Unauthorized(MissingAuthorizationHeader)
	}

	claims, err := a.verifier.Verify(value[len(a.prefix):])
	if err != nil {
		return err
	}
	if claims.TokenType != AccessToken && !a.allowRefresh {
		return NewError(KindTokenInvalid, "refresh token not accepted for API access", nil)
	}

	a.claims = claims
	a.state = authenticated
	return nil
}

// Authenticated reports whether a previous Authenticate call succeeded.
func (a *Authenticator) Authenticated() bool {
	return a.state == authenticated
}

// Claims returns the stored claims.
func (a *Authenticator) Claims() (*Claims, bool) {
	if a.state != authenticated {
		return nil, false
	}
	return a.claims, true
}

// Identity returns the identity embedded in the stored claims. It reports
// false before authentication and for subject-only credentials.
func (a *Authenticator) Identity() (Identity, bool) {
	if a.state != authenticated || a.claims.Identity == nil {
		return Identity{}, false
	}
	return *a.claims.Identity, true
}

// Subject returns the authenticated subject or "".
func (a *Authenticator) Subject() string {
	if a.state != authenticated {
		return ""
	}
	return a.claims.Subject
}

// Scheme returns the configured scheme literal.
func (a *Authenticator) Scheme() string {
	return strings.TrimSuffix(a.prefix, " ")
}

func lookupHeader(headers http.Header, key string) (string, bool) {
	if v := headers.Values(key); len(v) > 0 {
		return v[0], true
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) && len(v) > 0 {
			return v[0], true
		}
	}
	return "", false
}

// isHeaderText accepts visible ASCII and horizontal tab.
func isHeaderText(s string) bool {
	for i := 0; i < len(s); i++ {
		b := s[i]
		if (b < 0x20 || b > 0x7e) && b != '\t' {
			return false
		}
	}
	return true
}
