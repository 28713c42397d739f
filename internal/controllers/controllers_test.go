package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/osvaldoandrade/lambdaauth/internal/middleware"
	"github.com/osvaldoandrade/lambdaauth/internal/repository"
	"github.com/osvaldoandrade/lambdaauth/internal/response"
	"github.com/osvaldoandrade/lambdaauth/internal/services"
	"github.com/osvaldoandrade/lambdaauth/pkg/auth"
	"github.com/osvaldoandrade/lambdaauth/pkg/auth/hmac"
	"github.com/osvaldoandrade/lambdaauth/pkg/domain"
)

func init() { gin.SetMode(gin.TestMode) }

type mapRepo map[uuid.UUID]auth.Identity

func (m mapRepo) Create(_ context.Context, id *auth.Identity) error {
	m[id.ID] = *id
	return nil
}

func (m mapRepo) GetByID(_ context.Context, id uuid.UUID) (*auth.Identity, error) {
	v, ok := m[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &v, nil
}

func (m mapRepo) GetBySubject(ctx context.Context, subject string) (*auth.Identity, error) {
	id, err := uuid.Parse(subject)
	if err != nil {
		return nil, repository.ErrNotFound
	}
	return m.GetByID(ctx, id)
}

type fixture struct {
	codec  *hmac.Codec
	known  auth.Identity
	router *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	codec, err := hmac.New(hmac.Config{Secret: []byte("test-app-key")})
	if err != nil {
		t.Fatalf("hmac.New: %v", err)
	}
	known := auth.Identity{ID: uuid.New(), FirstName: "John", LastName: "Doe", Email: "john.doe@example.com"}
	repo := mapRepo{known.ID: known}
	svc := services.NewTokenService(codec, repo, services.TokenTTLs{Access: time.Hour, Refresh: 24 * time.Hour}, "", nil, nil)
	r := response.New(nil)

	engine := gin.New()
	engine.GET("/healthz", NewHealthController(r).Handle)
	engine.GET("/v1/auth/me", middleware.Authenticate(codec, r), NewMeController(svc, r).Handle)
	engine.POST("/v1/auth/refresh", middleware.Authenticate(codec, r, auth.WithAllowRefresh(true)), NewRefreshTokenController(svc, r).Handle)
	return &fixture{codec: codec, known: known, router: engine}
}

func (f *fixture) do(method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", auth.DefaultScheme+" "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["status"] != "ok" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestMeEmbeddedIdentity(t *testing.T) {
	f := newFixture(t)
	// not in the repository; served from the token
	other := auth.Identity{ID: uuid.New(), FirstName: "Jane", LastName: "Smith", Email: "jane@example.com"}
	tok, err := f.codec.IssueWithClaims(auth.Claims{TokenType: auth.AccessToken, Identity: &other})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	rec := f.do(http.MethodGet, "/v1/auth/me", tok)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got auth.Identity
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != other.ID || got.Email != other.Email {
		t.Fatalf("unexpected identity %+v", got)
	}
}

func TestMeLookupBySubject(t *testing.T) {
	f := newFixture(t)
	tok, err := f.codec.Issue(f.known.ID.String(), auth.AccessToken)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	rec := f.do(http.MethodGet, "/v1/auth/me", tok)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	unknown, err := f.codec.Issue(uuid.NewString(), auth.AccessToken)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if rec := f.do(http.MethodGet, "/v1/auth/me", unknown); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestMeRejectsRefreshToken(t *testing.T) {
	f := newFixture(t)
	tok, err := f.codec.Issue(f.known.ID.String(), auth.RefreshToken)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if rec := f.do(http.MethodGet, "/v1/auth/me", tok); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	tok, err := f.codec.Issue(f.known.ID.String(), auth.RefreshToken)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	rec := f.do(http.MethodPost, "/v1/auth/refresh", tok)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var pair domain.TokenPair
	if err := json.Unmarshal(rec.Body.Bytes(), &pair); err != nil {
		t.Fatalf("decode: %v", err)
	}
	claims, err := f.codec.Verify(pair.AccessToken)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if claims.Identity == nil || claims.Identity.ID != f.known.ID {
		t.Fatalf("expected embedded identity, got %+v", claims.Identity)
	}
	rclaims, err := f.codec.Verify(pair.RefreshToken)
	if err != nil || rclaims.TokenType != auth.RefreshToken {
		t.Fatalf("expected refresh token, got %+v %v", rclaims, err)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newFixture(t)
	tok, err := f.codec.Issue(f.known.ID.String(), auth.AccessToken)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if rec := f.do(http.MethodPost, "/v1/auth/refresh", tok); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
