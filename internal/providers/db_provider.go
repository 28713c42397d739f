package providers

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/osvaldoandrade/lambdaauth/internal/backoff"
	"github.com/osvaldoandrade/lambdaauth/internal/db"
	"github.com/osvaldoandrade/lambdaauth/internal/repository"
)

const (
	connectBaseDelay = 200 * time.Millisecond
	connectMaxDelay  = 5 * time.Second
)

// NewDBPool opens the identity database and makes sure its schema exists.
// With an empty DSN in dev an in-memory sqlite database is used. Connection
// errors are retried up to attempts times.
func NewDBPool(ctx context.Context, dsn string, dev bool, attempts int) (*db.Pool, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" && dev {
		dsn = fmt.Sprintf("file:lambdaauth-%s?mode=memory&cache=shared", uuid.NewString())
	}
	if attempts <= 0 {
		attempts = 1
	}
	pool := db.NewPool(dsn)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := backoff.Delay(backoff.ExpFullJitter, connectBaseDelay, connectMaxDelay, attempt-1, rng)
			slog.Warn("database unavailable, retrying", "attempt", attempt, "wait", wait, "err", err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		err = openSchema(ctx, pool)
		if err == nil {
			return pool, nil
		}
		if dsn == "" || !db.IsConnection(err) {
			break
		}
	}
	_ = pool.Close()
	return nil, err
}

func openSchema(ctx context.Context, pool *db.Pool) error {
	conn, err := pool.DB(ctx)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	return repository.CreateSchema(ctx, conn)
}
