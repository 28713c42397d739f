package static

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/osvaldoandrade/lambdaauth/pkg/auth"
)

type validatorConfig struct {
	// Token is the exact credential expected by this validator.
	Token string `json:"token"`

	// Subject is returned as claims.Subject. Defaults to Identity.ID.
	Subject string `json:"subject,omitempty"`

	// Identity is embedded in the returned claims.
	Identity *auth.Identity `json:"identity,omitempty"`

	// TTLSeconds sets claims.ExpiresAt relative to each verification.
	TTLSeconds int `json:"ttlSeconds,omitempty"`
}

type validator struct {
	cfg validatorConfig
	now func() time.Time
}

// NewValidatorFromJSON builds a verify-only validator for local development.
func NewValidatorFromJSON(raw json.RawMessage) (auth.Verifier, error) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 {
		return nil, errors.New("static auth: missing config")
	}

	var cfg validatorConfig
	// Allow config to be either:
	// - JSON object: {"token":"...","subject":"..."}
	// - JSON string: "token-value"
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &cfg.Token); err != nil {
			return nil, fmtError("static auth: invalid config", err)
		}
	} else {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmtError("static auth: invalid config", err)
		}
	}

	cfg.Token = strings.TrimSpace(cfg.Token)
	if cfg.Token == "" {
		return nil, errors.New("static auth: token is required")
	}
	cfg.Subject = strings.TrimSpace(cfg.Subject)
	if cfg.Subject == "" && cfg.Identity != nil {
		cfg.Subject = cfg.Identity.ID.String()
	}
	if cfg.Subject == "" {
		cfg.Subject = "static"
	}
	if cfg.Identity != nil && cfg.Subject != cfg.Identity.ID.String() {
		return nil, errors.New("static auth: subject does not match identity id")
	}
	if cfg.TTLSeconds <= 0 {
		cfg.TTLSeconds = 3600
	}

	return &validator{cfg: cfg, now: time.Now}, nil
}

func (v *validator) Verify(token string) (*auth.Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, auth.NewError(auth.KindTokenMalformed, "empty token", nil)
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(v.cfg.Token)) != 1 {
		return nil, auth.NewError(auth.KindSignatureInvalid, "token does not match", nil)
	}
	now := v.now()
	claims := &auth.Claims{
		Subject:   v.cfg.Subject,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Duration(v.cfg.TTLSeconds) * time.Second),
		TokenType: auth.AccessToken,
	}
	if v.cfg.Identity != nil {
		id := *v.cfg.Identity
		claims.Identity = &id
	}
	return claims, nil
}

func init() {
	auth.RegisterProvider("static", NewValidatorFromJSON)
}

func fmtError(msg string, err error) error {
	if err == nil {
		return errors.New(msg)
	}
	return errors.New(msg + ": " + err.Error())
}
