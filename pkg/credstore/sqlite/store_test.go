package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/pmboard/pkg/credstore"
	"github.com/aussiebroadwan/pmboard/pkg/credstore/sqlite"
	"github.com/aussiebroadwan/pmboard/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, path string, opts ...sqlite.Option) *sqlite.Store {
	t.Helper()

	s, err := sqlite.Open(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreCRUD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := openStore(t, filepath.Join(t.TempDir(), "creds.db"))
	require.NoError(t, s.Ping(ctx))

	_, err := s.Get(ctx, credstore.KeyAccessToken)
	require.ErrorIs(t, err, credstore.ErrNotFound)

	require.NoError(t, s.Set(ctx, credstore.KeyAccessToken, "a1"))
	require.NoError(t, s.Set(ctx, credstore.KeyAccessToken, "a2"))

	v, err := s.Get(ctx, credstore.KeyAccessToken)
	require.NoError(t, err)
	require.Equal(t, "a2", v)

	require.NoError(t, s.SetMany(ctx, map[string]string{
		credstore.KeyRefreshToken: "r1",
		credstore.KeyUser:         `{"id":7}`,
	}))

	v, err = s.Get(ctx, credstore.KeyUser)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":7}`, v)

	require.NoError(t, s.Delete(ctx, credstore.AllKeys()...))
	for _, k := range credstore.AllKeys() {
		_, err := s.Get(ctx, k)
		require.ErrorIs(t, err, credstore.ErrNotFound)
	}

	// Deleting missing keys is fine.
	require.NoError(t, s.Delete(ctx, "nope"))
}

func TestStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "creds.db")

	sealer, err := cryptox.NewSealer([]byte("test-master-key"))
	require.NoError(t, err)

	first, err := sqlite.Open(path, sqlite.WithSealer(sealer))
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, credstore.KeyRefreshToken, "r-secret"))
	require.NoError(t, first.Close())

	// Migrations are idempotent and the sealed value comes back.
	second := openStore(t, path, sqlite.WithSealer(sealer))
	v, err := second.Get(ctx, credstore.KeyRefreshToken)
	require.NoError(t, err)
	require.Equal(t, "r-secret", v)
}

func TestStoreSealedWithoutSealer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "creds.db")

	sealer, err := cryptox.NewSealer([]byte("k"))
	require.NoError(t, err)

	sealed, err := sqlite.Open(path, sqlite.WithSealer(sealer))
	require.NoError(t, err)
	require.NoError(t, sealed.Set(ctx, credstore.KeyAccessToken, "a1"))
	require.NoError(t, sealed.Close())

	plain := openStore(t, path)
	_, err = plain.Get(ctx, credstore.KeyAccessToken)
	require.ErrorIs(t, err, sqlite.ErrSealed)
}
