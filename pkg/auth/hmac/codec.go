// Package hmac implements auth.Codec with HS256-signed JWTs.
package hmac

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/osvaldoandrade/lambdaauth/pkg/auth"
	"github.com/osvaldoandrade/lambdaauth/pkg/auth/internal/jwtclaims"
)

const (
	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 24 * time.Hour
)

// Config configures a Codec.
type Config struct {
	// Secret is the shared HMAC key. Issuance and verification must use the
	// same value.
	Secret []byte

	// Issuer is written to and required in the iss claim when set.
	Issuer string

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration
}

// Codec signs and verifies credentials. It holds no mutable state after
// construction and is safe for concurrent use.
type Codec struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	leeway     time.Duration
	now        func() time.Time
	parser     *jwt.Parser
}

type Option func(*Codec)

// WithClock replaces time.Now for issuance and verification.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

func New(cfg Config, opts ...Option) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("hmac auth: secret is required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.Leeway < 0 {
		cfg.Leeway = 0
	}

	c := &Codec{
		secret:     append([]byte(nil), cfg.Secret...),
		issuer:     strings.TrimSpace(cfg.Issuer),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		leeway:     cfg.Leeway,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(c.leeway),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(c.issuer))
	}
	c.parser = jwt.NewParser(parserOpts...)
	return c, nil
}

// TTL returns the validity window for tokens of type t.
func (c *Codec) TTL(t auth.TokenType) time.Duration {
	if t == auth.RefreshToken {
		return c.refreshTTL
	}
	return c.accessTTL
}

func (c *Codec) Issue(subject string, tokenType auth.TokenType) (string, error) {
	return c.IssueWithClaims(auth.Claims{Subject: subject, TokenType: tokenType})
}

// IssueWithClaims signs claims. Zero ExpiresAt and IssuedAt are filled from
// the clock and the TTL of the token type; an empty Subject is taken from the
// embedded identity.
func (c *Codec) IssueWithClaims(claims auth.Claims) (string, error) {
	if !claims.TokenType.Valid() {
		return "", auth.NewError(auth.KindSigning, fmt.Sprintf("invalid token type %q", claims.TokenType), nil)
	}
	if claims.Subject == "" && claims.Identity != nil {
		claims.Subject = claims.Identity.ID.String()
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", auth.NewError(auth.KindSigning, "subject is required", nil)
	}
	if !claims.SubjectMatchesIdentity() {
		return "", auth.NewError(auth.KindSigning, "subject does not match identity id", nil)
	}

	now := c.now()
	if claims.IssuedAt.IsZero() {
		claims.IssuedAt = now
	}
	if claims.ExpiresAt.IsZero() {
		claims.ExpiresAt = now.Add(c.TTL(claims.TokenType))
	}
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtclaims.FromClaims(claims, c.issuer))
	s, err := tok.SignedString(c.secret)
	if err != nil {
		return "", auth.NewError(auth.KindSigning, "sign token", err)
	}
	return s, nil
}

func (c *Codec) Verify(token string) (*auth.Claims, error) {
	return jwtclaims.Verify(c.parser, token, c.keyfunc, c.now(), c.leeway)
}

func (c *Codec) keyfunc(*jwt.Token) (any, error) {
	return c.secret, nil
}

type jsonConfig struct {
	Secret            string `json:"secret"`
	Issuer            string `json:"issuer,omitempty"`
	AccessTTLSeconds  int    `json:"accessTtlSeconds,omitempty"`
	RefreshTTLSeconds int    `json:"refreshTtlSeconds,omitempty"`
	LeewaySeconds     int    `json:"leewaySeconds,omitempty"`
}

// NewCodecFromJSON builds a Codec from provider configuration.
func NewCodecFromJSON(raw json.RawMessage) (auth.Verifier, error) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 {
		return nil, errors.New("hmac auth: missing config")
	}
	var jc jsonConfig
	if err := json.Unmarshal(raw, &jc); err != nil {
		return nil, fmt.Errorf("hmac auth: invalid config: %w", err)
	}
	c, err := New(Config{
		Secret:     []byte(jc.Secret),
		Issuer:     jc.Issuer,
		AccessTTL:  time.Duration(jc.AccessTTLSeconds) * time.Second,
		RefreshTTL: time.Duration(jc.RefreshTTLSeconds) * time.Second,
		Leeway:     time.Duration(jc.LeewaySeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func init() {
	auth.RegisterProvider("hmac", NewCodecFromJSON)
}
