package repository

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/osvaldoandrade/lambdaauth/internal/metrics"
	"github.com/osvaldoandrade/lambdaauth/pkg/auth"
)

type cachedIdentityRepo struct {
	next   IdentityRepository
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedIdentityRepository reads through redis before next. Redis
// failures fall back to next.
func NewCachedIdentityRepository(next IdentityRepository, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) IdentityRepository {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &cachedIdentityRepo{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func keyIdentity(id uuid.UUID) string { return "lambdaauth:identity:" + id.String() }

func (r *cachedIdentityRepo) Create(ctx context.Context, id *auth.Identity) error {
	if err := r.next.Create(ctx, id); err != nil {
		return err
	}
	if err := r.rdb.Del(ctx, keyIdentity(id.ID)).Err(); err != nil {
		r.logger.Warn("identity cache invalidate failed", "id", id.ID, "err", err)
	}
	return nil
}

func (r *cachedIdentityRepo) GetByID(ctx context.Context, id uuid.UUID) (*auth.Identity, error) {
	js, err := r.rdb.Get(ctx, keyIdentity(id)).Result()
	switch {
	case err == nil:
		var out auth.Identity
		if uerr := json.Unmarshal([]byte(js), &out); uerr == nil {
			metrics.IdentityCacheTotal.WithLabelValues("hit").Inc()
			return &out, nil
		}
		metrics.IdentityCacheTotal.WithLabelValues("error").Inc()
	case err == redis.Nil:
		metrics.IdentityCacheTotal.WithLabelValues("miss").Inc()
	default:
		metrics.IdentityCacheTotal.WithLabelValues("error").Inc()
		r.logger.Warn("identity cache read failed", "id", id, "err", err)
	}

	out, err := r.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	b, _ := json.Marshal(out)
	if err := r.rdb.Set(ctx, keyIdentity(id), b, r.ttl).Err(); err != nil {
		r.logger.Warn("identity cache write failed", "id", id, "err", err)
	}
	return out, nil
}

func (r *cachedIdentityRepo) GetBySubject(ctx context.Context, subject string) (*auth.Identity, error) {
	id, err := uuid.Parse(strings.TrimSpace(subject))
	if err != nil {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}
