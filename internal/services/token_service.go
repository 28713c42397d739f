package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/osvaldoandrade/lambdaauth/internal/metrics"
	"github.com/osvaldoandrade/lambdaauth/internal/repository"
	"github.com/osvaldoandrade/lambdaauth/internal/tracing"
	"github.com/osvaldoandrade/lambdaauth/pkg/auth"
	"github.com/osvaldoandrade/lambdaauth/pkg/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type TokenService interface {
	// IssuePair issues an access token embedding identity and a subject-only
	// refresh token.
	IssuePair(ctx context.Context, identity auth.Identity) (*domain.TokenPair, error)
	// Refresh exchanges verified refresh-token claims for a new pair.
	Refresh(ctx context.Context, claims *auth.Claims) (*domain.TokenPair, error)
	// Me resolves the identity behind verified access-token claims.
	Me(ctx context.Context, claims *auth.Claims) (*auth.Identity, error)
}

type TokenTTLs struct {
	Access  time.Duration
	Refresh time.Duration
}

type tokenService struct {
	issuer auth.Issuer
	repo   repository.IdentityRepository
	ttls   TokenTTLs
	scheme string
	logger *slog.Logger
	now    func() time.Time
}

func NewTokenService(issuer auth.Issuer, repo repository.IdentityRepository, ttls TokenTTLs, scheme string, logger *slog.Logger, now func() time.Time) TokenService {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	if ttls.Access <= 0 {
		ttls.Access = time.Hour
	}
	if ttls.Refresh <= 0 {
		ttls.Refresh = 24 * time.Hour
	}
	if scheme == "" {
		scheme = auth.DefaultScheme
	}
	return &tokenService{issuer: issuer, repo: repo, ttls: ttls, scheme: scheme, logger: logger, now: now}
}

func (s *tokenService) IssuePair(ctx context.Context, identity auth.Identity) (*domain.TokenPair, error) {
	_, span := tracing.Tracer("tokens").Start(ctx, "lambdaauth.tokens.issue_pair",
		trace.WithAttributes(attribute.String("lambdaauth.subject", identity.ID.String())),
	)
	defer span.End()

	now := s.now().UTC().Truncate(time.Second)
	access := auth.Claims{
		Subject:   identity.ID.String(),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttls.Access),
		TokenType: auth.AccessToken,
		Identity:  &identity,
	}
	accessToken, err := s.issuer.IssueWithClaims(access)
	if err != nil {
		span.SetStatus(codes.Error, "issue access token")
		return nil, err
	}
	metrics.TokensIssuedTotal.WithLabelValues(string(auth.AccessToken)).Inc()

	refresh := auth.Claims{
		Subject:   identity.ID.String(),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttls.Refresh),
		TokenType: auth.RefreshToken,
	}
	refreshToken, err := s.issuer.IssueWithClaims(refresh)
	if err != nil {
		span.SetStatus(codes.Error, "issue refresh token")
		return nil, err
	}
	metrics.TokensIssuedTotal.WithLabelValues(string(auth.RefreshToken)).Inc()

	s.logger.Info("token pair issued", "subject", access.Subject)
	return &domain.TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		TokenType:        s.scheme,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

func (s *tokenService) Refresh(ctx context.Context, claims *auth.Claims) (*domain.TokenPair, error) {
	if claims == nil {
		return nil, auth.Unauthorized(auth.MissingAuthorizationHeader)
	}
	if claims.TokenType != auth.RefreshToken {
		return nil, auth.NewError(auth.KindTokenInvalid, "refresh requires a refresh token", nil)
	}
	ctx, span := tracing.Tracer("tokens").Start(ctx, "lambdaauth.tokens.refresh",
		trace.WithAttributes(attribute.String("lambdaauth.subject", claims.Subject)),
	)
	defer span.End()

	identity, err := s.repo.GetBySubject(ctx, claims.Subject)
	if err != nil {
		span.SetStatus(codes.Error, "identity lookup")
		return nil, fmt.Errorf("refresh %s: %w", claims.Subject, err)
	}
	return s.IssuePair(ctx, *identity)
}

func (s *tokenService) Me(ctx context.Context, claims *auth.Claims) (*auth.Identity, error) {
	if claims == nil {
		return nil, auth.Unauthorized(auth.MissingAuthorizationHeader)
	}
	if claims.Identity != nil {
		id := *claims.Identity
		return &id, nil
	}
	identity, err := s.repo.GetBySubject(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", claims.Subject, err)
	}
	return identity, nil
}
