package db

import (
	"context"
	"os"
	"sync"

	"github.com/uptrace/bun"
)

// Pool opens the database on first use and shares it afterwards. A failed
// open is not cached; the next call tries again.
type Pool struct {
	dsn string

	mu sync.Mutex
	db *bun.DB
}

func NewPool(dsn string) *Pool {
	return &Pool{dsn: dsn}
}

// FromEnv returns a pool for the DB_URL environment variable.
func FromEnv() *Pool {
	return NewPool(os.Getenv("DB_URL"))
}

// NewPoolWithDB wraps an already open database.
func NewPoolWithDB(db *bun.DB) *Pool {
	return &Pool{db: db}
}

func (p *Pool) DB(ctx context.Context) (*bun.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db != nil {
		return p.db, nil
	}
	db, err := Open(ctx, p.dsn)
	if err != nil {
		return nil, err
	}
	p.db = db
	return db, nil
}

func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}
