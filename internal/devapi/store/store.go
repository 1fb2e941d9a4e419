package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/pmboard/internal/devapi/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	ErrInvalidFilter = errors.New("store: invalid filter")
)

// Store is the root data access interface of the dev backend. Sub-repos are
// methods so a Tx exposes the same surface.
type Store interface {
	Users() Users
	RefreshTokens() RefreshTokens
	Records() Records

	ApplyMigrations() error

	// Tx starts a read/write transaction. The caller MUST Commit or Rollback.
	Tx(ctx context.Context) (Tx, error)

	// WithTx commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// CreateUser returns ErrAlreadyExists on a duplicate username.
	CreateUser(ctx context.Context, u domain.User) error

	IsEmpty(ctx context.Context) (bool, error)
}

type RefreshTokens interface {
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, hash string) error
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

// Filter matches records whose payload field equals the value, compared as text.
type Filter map[string]string

type Records interface {
	ListRecords(ctx context.Context, resource string, filter Filter) ([]domain.Record, error)
	GetRecord(ctx context.Context, resource, id string) (domain.Record, error)
	CreateRecord(ctx context.Context, r domain.Record) error
	UpdateRecord(ctx context.Context, r domain.Record) error
	DeleteRecord(ctx context.Context, resource, id string) error
}
