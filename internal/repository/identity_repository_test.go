package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/osvaldoandrade/lambdaauth/internal/db"
	"github.com/osvaldoandrade/lambdaauth/pkg/auth"
)

func setupIdentityRepo(t *testing.T) (context.Context, IdentityRepository) {
	t.Helper()
	ctx := context.Background()
	pool := db.NewPool(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	t.Cleanup(func() { _ = pool.Close() })

	conn, err := pool.DB(ctx)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := CreateSchema(ctx, conn); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}
	return ctx, NewIdentityRepository(pool)
}

func strptr(s string) *string { return &s }

func TestIdentityRepository_RoundTrip(t *testing.T) {
	ctx, repo := setupIdentityRepo(t)

	in := &auth.Identity{FirstName: "John", MiddleName: strptr("Q"), LastName: "Doe", Email: "john.doe@example.com"}
	if err := repo.Create(ctx, in); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if in.ID == uuid.Nil {
		t.Fatal("expected Create to assign an id")
	}

	got, err := repo.GetByID(ctx, in.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ID != in.ID || got.Email != in.Email || got.FirstName != "John" || got.LastName != "Doe" {
		t.Fatalf("unexpected identity: %+v", got)
	}
	if got.MiddleName == nil || *got.MiddleName != "Q" {
		t.Fatalf("expected middle name Q, got %v", got.MiddleName)
	}

	bySubject, err := repo.GetBySubject(ctx, in.ID.String())
	if err != nil {
		t.Fatalf("GetBySubject: %v", err)
	}
	if bySubject.ID != in.ID {
		t.Fatalf("expected %s, got %s", in.ID, bySubject.ID)
	}
}

func TestIdentityRepository_KeepsGivenID(t *testing.T) {
	ctx, repo := setupIdentityRepo(t)
	id := uuid.New()
	if err := repo.Create(ctx, &auth.Identity{ID: id, FirstName: "Jane", LastName: "Smith", Email: "jane@example.com"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.MiddleName != nil {
		t.Fatalf("expected no middle name, got %q", *got.MiddleName)
	}
}

func TestIdentityRepository_NotFound(t *testing.T) {
	ctx, repo := setupIdentityRepo(t)

	if _, err := repo.GetByID(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.GetBySubject(ctx, "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for non-uuid subject, got %v", err)
	}
}

func TestIdentityRepository_DuplicateEmailIsQueryError(t *testing.T) {
	ctx, repo := setupIdentityRepo(t)
	if err := repo.Create(ctx, &auth.Identity{FirstName: "A", LastName: "B", Email: "dup@example.com"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := repo.Create(ctx, &auth.Identity{FirstName: "C", LastName: "D", Email: "dup@example.com"})
	if db.KindOf(err) != db.KindQuery {
		t.Fatalf("expected query error, got %v", err)
	}
}

func TestIdentityRepository_ConnectionError(t *testing.T) {
	repo := NewIdentityRepository(db.NewPool(""))
	_, err := repo.GetByID(context.Background(), uuid.New())
	if !db.IsConnection(err) {
		t.Fatalf("expected connection error, got %v", err)
	}
}

type countingRepo struct {
	IdentityRepository
	gets int
}

func (c *countingRepo) GetByID(ctx context.Context, id uuid.UUID) (*auth.Identity, error) {
	c.gets++
	return c.IdentityRepository.GetByID(ctx, id)
}

func TestCachedIdentityRepository_HitAvoidsDB(t *testing.T) {
	ctx, base := setupIdentityRepo(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	counting := &countingRepo{IdentityRepository: base}
	repo := NewCachedIdentityRepository(counting, rdb, time.Minute, nil)

	in := &auth.Identity{FirstName: "John", LastName: "Doe", Email: "john@example.com"}
	if err := repo.Create(ctx, in); err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 0; i < 3; i++ {
		got, err := repo.GetByID(ctx, in.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.Email != in.Email {
			t.Fatalf("unexpected identity: %+v", got)
		}
	}
	if counting.gets != 1 {
		t.Fatalf("expected 1 database read, got %d", counting.gets)
	}
	if !mr.Exists("lambdaauth:identity:" + in.ID.String()) {
		t.Fatal("expected identity cached in redis")
	}
	if ttl := mr.TTL("lambdaauth:identity:" + in.ID.String()); ttl != time.Minute {
		t.Fatalf("expected ttl 1m, got %v", ttl)
	}
}

func TestCachedIdentityRepository_RedisDownFallsBack(t *testing.T) {
	ctx, base := setupIdentityRepo(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	in := &auth.Identity{FirstName: "Jane", LastName: "Smith", Email: "jane@example.com"}
	if err := base.Create(ctx, in); err != nil {
		t.Fatalf("Create: %v", err)
	}

	repo := NewCachedIdentityRepository(base, rdb, time.Minute, nil)
	mr.Close()

	got, err := repo.GetByID(ctx, in.ID)
	if err != nil {
		t.Fatalf("expected fallback to database, got %v", err)
	}
	if got.ID != in.ID {
		t.Fatalf("unexpected identity %s", got.ID)
	}
}

func TestCachedIdentityRepository_NotFoundNotCached(t *testing.T) {
	ctx, base := setupIdentityRepo(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	repo := NewCachedIdentityRepository(base, rdb, time.Minute, nil)
	id := uuid.New()
	if _, err := repo.GetByID(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if mr.Exists("lambdaauth:identity:" + id.String()) {
		t.Fatal("misses must not be cached")
	}
}
