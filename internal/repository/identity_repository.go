package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/osvaldoandrade/lambdaauth/internal/db"
	"github.com/osvaldoandrade/lambdaauth/pkg/auth"
	"github.com/uptrace/bun"
)

var ErrNotFound = errors.New("identity not found")

type IdentityRepository interface {
	Create(ctx context.Context, id *auth.Identity) error
	GetByID(ctx context.Context, id uuid.UUID) (*auth.Identity, error)
	GetBySubject(ctx context.Context, subject string) (*auth.Identity, error)
}

// DBProvider hands out the shared database handle, opening it on first use.
type DBProvider interface {
	DB(ctx context.Context) (*bun.DB, error)
}

type identityModel struct {
	bun.BaseModel `bun:"table:identities,alias:i"`

	ID         string    `bun:"id,pk"`
	FirstName  string    `bun:"first_name,notnull"`
	MiddleName *string   `bun:"middle_name"`
	LastName   string    `bun:"last_name,notnull"`
	Email      string    `bun:"email,notnull,unique"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt  time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

func (m *identityModel) toIdentity() (*auth.Identity, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("identity %q: %w", m.ID, err)
	}
	return &auth.Identity{
		ID:         id,
		FirstName:  m.FirstName,
		MiddleName: m.MiddleName,
		LastName:   m.LastName,
		Email:      m.Email,
	}, nil
}

// CreateSchema creates the identities table when it does not exist.
func CreateSchema(ctx context.Context, idb bun.IDB) error {
	_, err := idb.NewCreateTable().
		Model((*identityModel)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create identities table: %w", err)
	}
	return nil
}

type bunIdentityRepo struct {
	dbs DBProvider
}

func NewIdentityRepository(dbs DBProvider) IdentityRepository {
	return &bunIdentityRepo{dbs: dbs}
}

func (r *bunIdentityRepo) Create(ctx context.Context, id *auth.Identity) error {
	if id == nil {
		return fmt.Errorf("create identity: nil identity")
	}
	conn, err := r.dbs.DB(ctx)
	if err != nil {
		return err
	}
	if id.ID == uuid.Nil {
		id.ID = uuid.Must(uuid.NewV7())
	}
	now := time.Now().UTC()
	m := &identityModel{
		ID:         id.ID.String(),
		FirstName:  id.FirstName,
		MiddleName: id.MiddleName,
		LastName:   id.LastName,
		Email:      strings.TrimSpace(id.Email),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := conn.NewInsert().Model(m).Exec(ctx); err != nil {
		return db.Classify(fmt.Errorf("create identity: %w", err))
	}
	return nil
}

func (r *bunIdentityRepo) GetByID(ctx context.Context, id uuid.UUID) (*auth.Identity, error) {
	conn, err := r.dbs.DB(ctx)
	if err != nil {
		return nil, err
	}
	m := new(identityModel)
	err = conn.NewSelect().
		Model(m).
		Where("id = ?", id.String()).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, db.Classify(fmt.Errorf("get identity: %w", err))
	}
	out, err := m.toIdentity()
	if err != nil {
		return nil, &db.Error{Kind: db.KindRowMapping, Err: err}
	}
	return out, nil
}

// GetBySubject resolves a credential subject. Subjects that are not UUIDs
// cannot name an identity.
func (r *bunIdentityRepo) GetBySubject(ctx context.Context, subject string) (*auth.Identity, error) {
	id, err := uuid.Parse(strings.TrimSpace(subject))
	if err != nil {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}
