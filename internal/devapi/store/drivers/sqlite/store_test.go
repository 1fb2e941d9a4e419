package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/pmboard/internal/devapi/domain"
	"github.com/aussiebroadwan/pmboard/internal/devapi/store"
	"github.com/aussiebroadwan/pmboard/internal/devapi/store/drivers/sqlite"
	"github.com/aussiebroadwan/pmboard/pkg/idx"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()

	st, err := sqlite.NewStore("file:" + filepath.Join(t.TempDir(), "devapi.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	require.NoError(t, st.ApplyMigrations(), "migrations are idempotent")
	return st
}

func newUser(username string) domain.User {
	now := time.Now()
	return domain.User{
		ID:           idx.New().String(),
		Username:     username,
		Name:         "Test " + username,
		Role:         domain.RoleMember,
		PasswordHash: "hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	empty, err := st.Users().IsEmpty(ctx)
	require.NoError(t, err)
	require.True(t, empty)

	u := newUser("alice")
	require.NoError(t, st.Users().CreateUser(ctx, u))
	require.ErrorIs(t, st.Users().CreateUser(ctx, newUser("alice")), store.ErrAlreadyExists)

	got, err := st.Users().GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, u.Name, got.Name)

	_, err = st.Users().GetUserByID(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRefreshTokens(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	u := newUser("bob")
	require.NoError(t, st.Users().CreateUser(ctx, u))

	now := time.Now()
	live := domain.RefreshToken{ID: idx.New().String(), UserID: u.ID, TokenHash: "live", ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	dead := domain.RefreshToken{ID: idx.New().String(), UserID: u.ID, TokenHash: "dead", ExpiresAt: now.Add(-time.Hour), CreatedAt: now}
	require.NoError(t, st.RefreshTokens().CreateRefreshToken(ctx, live))
	require.NoError(t, st.RefreshTokens().CreateRefreshToken(ctx, dead))

	got, err := st.RefreshTokens().GetRefreshTokenByHash(ctx, "live")
	require.NoError(t, err)
	require.False(t, got.Revoked)
	require.WithinDuration(t, live.ExpiresAt, got.ExpiresAt, time.Millisecond)

	require.NoError(t, st.RefreshTokens().RevokeRefreshToken(ctx, "live"))
	got, err = st.RefreshTokens().GetRefreshTokenByHash(ctx, "live")
	require.NoError(t, err)
	require.True(t, got.Revoked)

	require.ErrorIs(t, st.RefreshTokens().RevokeRefreshToken(ctx, "nope"), store.ErrNotFound)

	n, err := st.RefreshTokens().DeleteExpiredRefreshTokens(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func TestRecords(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	now := time.Now()
	mk := func(resource string, data map[string]any) domain.Record {
		rec := domain.Record{ID: idx.New().String(), Resource: resource, Data: data, CreatedAt: now, UpdatedAt: now}
		require.NoError(t, st.Records().CreateRecord(ctx, rec))
		return rec
	}

	m1 := mk("modules", map[string]any{"name": "Auth", "project_id": 5})
	mk("modules", map[string]any{"name": "Billing", "project_id": 6})
	mk("tasks", map[string]any{"name": "Write docs", "project_id": 5})

	all, err := st.Records().ListRecords(ctx, "modules", nil)
	require.NoError(t, err)
	require.Len(t, all, 2)

	filtered, err := st.Records().ListRecords(ctx, "modules", store.Filter{"project_id": "5"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, m1.ID, filtered[0].ID)
	require.Equal(t, "Auth", filtered[0].Data["name"])

	_, err = st.Records().ListRecords(ctx, "modules", store.Filter{"bad')--": "x"})
	require.ErrorIs(t, err, store.ErrInvalidFilter)

	m1.Data["name"] = "Authentication"
	m1.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, st.Records().UpdateRecord(ctx, m1))

	got, err := st.Records().GetRecord(ctx, "modules", m1.ID)
	require.NoError(t, err)
	require.Equal(t, "Authentication", got.Data["name"])

	_, err = st.Records().GetRecord(ctx, "tasks", m1.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, st.Records().DeleteRecord(ctx, "modules", m1.ID))
	require.ErrorIs(t, st.Records().DeleteRecord(ctx, "modules", m1.ID), store.ErrNotFound)
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	boom := errors.New("boom")
	err := st.WithTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.Users().CreateUser(ctx, newUser("carol")))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = st.Users().GetUserByUsername(ctx, "carol")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, st.WithTx(ctx, func(tx store.Tx) error {
		return tx.Users().CreateUser(ctx, newUser("carol"))
	}))
	_, err = st.Users().GetUserByUsername(ctx, "carol")
	require.NoError(t, err)
}
