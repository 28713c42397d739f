package auth

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Identity is the authenticated principal.
type Identity struct {
	ID         uuid.UUID `json:"id"`
	FirstName  string    `json:"first_name"`
	MiddleName *string   `json:"middle_name,omitempty"`
	LastName   string    `json:"last_name"`
	Email      string    `json:"email"`
}

// DisplayName joins the non-empty name parts.
func (i Identity) DisplayName() string {
	parts := make([]string, 0, 3)
	if s := strings.TrimSpace(i.FirstName); s != "" {
		parts = append(parts, s)
	}
	if i.MiddleName != nil {
		if s := strings.TrimSpace(*i.MiddleName); s != "" {
			parts = append(parts, s)
		}
	}
	if s := strings.TrimSpace(i.LastName); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

// TokenType distinguishes API access credentials from credentials that can
// only be exchanged for new access tokens.
type TokenType string

const (
	AccessToken  TokenType = "AccessToken"
	RefreshToken TokenType = "RefreshToken"
)

func (t TokenType) Valid() bool {
	return t == AccessToken || t == RefreshToken
}

func (t *TokenType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v := TokenType(s)
	if !v.Valid() {
		return fmt.Errorf("unknown token type %q", s)
	}
	*t = v
	return nil
}

// ParseTokenType accepts the wire values as well as the short forms
// "access" and "refresh".
func ParseTokenType(s string) (TokenType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "access", "accesstoken", "access_token":
		return AccessToken, nil
	case "refresh", "refreshtoken", "refresh_token":
		return RefreshToken, nil
	}
	return "", fmt.Errorf("unknown token type %q", s)
}

// Claims is the verified content of a credential.
type Claims struct {
	ID        string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	TokenType TokenType

	// Identity is nil for credentials that carry only a subject.
	Identity *Identity
}

// SubjectMatchesIdentity reports whether Subject is consistent with the
// embedded identity. Claims without an identity always match.
func (c *Claims) SubjectMatchesIdentity() bool {
	if c == nil || c.Identity == nil {
		return true
	}
	return c.Subject == c.Identity.ID.String()
}

// Verifier parses and verifies credentials.
type Verifier interface {
	Verify(token string) (*Claims, error)
}

// Issuer signs claims into credentials.
type Issuer interface {
	Issue(subject string, tokenType TokenType) (string, error)
	IssueWithClaims(claims Claims) (string, error)
}

// Codec both issues and verifies credentials.
type Codec interface {
	Issuer
	Verifier
}
