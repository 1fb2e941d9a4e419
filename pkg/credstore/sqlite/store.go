// Package sqlite is a credstore.Store backed by a local SQLite file. Values
// are sealed with AES-GCM when a cryptox.Sealer is configured.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aussiebroadwan/pmboard/pkg/credstore"
	"github.com/aussiebroadwan/pmboard/pkg/cryptox"

	_ "modernc.org/sqlite"
)

var ErrSealed = errors.New("credstore/sqlite: value is sealed but no sealer is configured")

type Store struct {
	db     *sql.DB
	sealer *cryptox.Sealer
}

type Option func(*Store)

// WithSealer encrypts values before they hit disk.
func WithSealer(s *cryptox.Sealer) Option {
	return func(st *Store) { st.sealer = s }
}

// NewStore opens the database behind dsn. Callers normally want Open, which
// also creates the parent directory and applies migrations.
func NewStore(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Open prepares the credentials database at path and migrates it.
func Open(path string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create credentials dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	s, err := NewStore(dsn, opts...)
	if err != nil {
		return nil, fmt.Errorf("open credentials db: %w", err)
	}

	if err := s.ApplyMigrations(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("apply credentials migrations: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var (
		value  string
		sealed bool
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT value, sealed FROM credentials WHERE key = ?`, key,
	).Scan(&value, &sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", credstore.ErrNotFound
	}
	if err != nil {
		return "", err
	}

	if !sealed {
		return value, nil
	}
	if s.sealer == nil {
		return "", ErrSealed
	}
	return s.sealer.OpenString(value)
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.put(ctx, s.db, key, value)
}

func (s *Store) SetMany(ctx context.Context, values map[string]string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for k, v := range values {
			if err := s.put(ctx, tx, k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, `DELETE FROM credentials WHERE key = ?`, k); err != nil {
				return err
			}
		}
		return nil
	})
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) put(ctx context.Context, ex execer, key, value string) error {
	sealed := false
	if s.sealer != nil {
		v, err := s.sealer.SealString(value)
		if err != nil {
			return fmt.Errorf("seal %s: %w", key, err)
		}
		value, sealed = v, true
	}

	_, err := ex.ExecContext(ctx, `
		INSERT INTO credentials (key, value, sealed, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			sealed = excluded.sealed,
			updated_at = excluded.updated_at`,
		key, value, sealed,
	)
	return err
}

// withTx runs fn in a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
