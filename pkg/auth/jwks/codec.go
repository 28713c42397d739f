// Package jwks verifies asymmetrically signed credentials against a JSON Web
// Key Set. It cannot issue credentials.
package jwks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/osvaldoandrade/lambdaauth/pkg/auth"
	"github.com/osvaldoandrade/lambdaauth/pkg/auth/internal/jwtclaims"
)

var defaultAlgs = []string{"RS256", "ES256"}

// Config configures a Codec. Exactly one of JwksURL or JWKS is required.
type Config struct {
	JwksURL     string
	JWKS        json.RawMessage
	Issuer      string
	Audience    string
	AllowedAlgs []string
	Leeway      time.Duration
}

// Codec verifies credentials. Keys fetched from JwksURL are refreshed in the
// background until Close is called.
type Codec struct {
	kf     keyfunc.Keyfunc
	parser *jwt.Parser
	leeway time.Duration
	now    func() time.Time
	cancel context.CancelFunc
}

type Option func(*Codec)

func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

func New(ctx context.Context, cfg Config, opts ...Option) (*Codec, error) {
	url := strings.TrimSpace(cfg.JwksURL)
	inline := len(strings.TrimSpace(string(cfg.JWKS))) > 0
	if url == "" && !inline {
		return nil, errors.New("jwks auth: jwksUrl or jwks is required")
	}
	if url != "" && inline {
		return nil, errors.New("jwks auth: jwksUrl and jwks are mutually exclusive")
	}

	c := &Codec{leeway: cfg.Leeway, now: time.Now, cancel: func() {}}
	for _, opt := range opts {
		opt(c)
	}

	var err error
	if inline {
		c.kf, err = keyfunc.NewJWKSetJSON(cfg.JWKS)
	} else {
		var kctx context.Context
		kctx, c.cancel = context.WithCancel(ctx)
		c.kf, err = keyfunc.NewDefaultCtx(kctx, []string{url})
	}
	if err != nil {
		c.cancel()
		return nil, fmt.Errorf("jwks auth: init key set: %w", err)
	}

	algs := cfg.AllowedAlgs
	if len(algs) == 0 {
		algs = defaultAlgs
	}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods(algs),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(c.leeway),
		jwt.WithTimeFunc(c.now),
	}
	if iss := strings.TrimSpace(cfg.Issuer); iss != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(iss))
	}
	if aud := strings.TrimSpace(cfg.Audience); aud != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(aud))
	}
	c.parser = jwt.NewParser(parserOpts...)
	return c, nil
}

func (c *Codec) Verify(token string) (*auth.Claims, error) {
	claims, err := jwtclaims.Verify(c.parser, token, c.kf.Keyfunc, c.now(), c.leeway)
	if err != nil && errors.Is(err, jwt.ErrTokenUnverifiable) {
		// no key in the set matches the token
		return nil, auth.NewError(auth.KindSignatureInvalid, "no matching key", err)
	}
	return claims, err
}

// Close stops background key refresh.
func (c *Codec) Close() {
	c.cancel()
}

type jsonConfig struct {
	JwksURL       string          `json:"jwksUrl,omitempty"`
	JWKS          json.RawMessage `json:"jwks,omitempty"`
	Issuer        string          `json:"issuer,omitempty"`
	Audience      string          `json:"audience,omitempty"`
	AllowedAlgs   []string        `json:"allowedAlgs,omitempty"`
	LeewaySeconds int             `json:"leewaySeconds,omitempty"`
}

// NewCodecFromJSON builds a Codec from provider configuration.
func NewCodecFromJSON(raw json.RawMessage) (auth.Verifier, error) {
	var jc jsonConfig
	if err := json.Unmarshal(raw, &jc); err != nil {
		return nil, fmt.Errorf("jwks auth: invalid config: %w", err)
	}
	c, err := New(context.Background(), Config{
		JwksURL:     jc.JwksURL,
		JWKS:        jc.JWKS,
		Issuer:      jc.Issuer,
		Audience:    jc.Audience,
		AllowedAlgs: jc.AllowedAlgs,
		Leeway:      time.Duration(jc.LeewaySeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func init() {
	auth.RegisterProvider("jwks", NewCodecFromJSON)
}
