package service_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/pmboard/internal/devapi/domain"
	"github.com/aussiebroadwan/pmboard/internal/devapi/service"
	"github.com/aussiebroadwan/pmboard/internal/devapi/store"
	"github.com/aussiebroadwan/pmboard/internal/devapi/store/drivers/sqlite"
	"github.com/aussiebroadwan/pmboard/pkg/cryptox"
	"github.com/aussiebroadwan/pmboard/pkg/jwtx"
	"github.com/aussiebroadwan/pmboard/pkg/slogx"
)

const issuer = "pmboard-test"

type fixture struct {
	store    *sqlite.Store
	auth     *service.AuthService
	users    *service.UserService
	records  *service.RecordService
	verifier *jwtx.EdDSAVerifier
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := sqlite.NewStore("file:" + filepath.Join(t.TempDir(), "devapi.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	pemKey, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)
	signer, err := jwtx.NewSignerEdDSA("k1", pemKey)
	require.NoError(t, err)

	verifier := jwtx.NewVerifierEdDSA(issuer, 0)
	verifier.AddKey(signer.KID(), signer.PublicKey())

	hasher := cryptox.PasswordHasher{Pepper: "pepper"}
	f := &fixture{
		store:    st,
		users:    &service.UserService{Store: st, Hasher: hasher},
		records:  &service.RecordService{Store: st},
		verifier: verifier,
		clock:    time.Now(),
	}
	f.auth = &service.AuthService{
		Store:      st,
		Signer:     signer,
		Hasher:     hasher,
		Issuer:     issuer,
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
		Now:        func() time.Time { return f.clock },
	}
	return f
}

func ctx() context.Context {
	return slogx.WithContext(context.Background(), slogx.Discard())
}

func TestLogin(t *testing.T) {
	f := newFixture(t)

	u, err := f.users.CreateUser(ctx(), "alice", "Alice", domain.RoleAdmin, "secret")
	require.NoError(t, err)

	_, err = f.users.CreateUser(ctx(), "alice", "Again", domain.RoleMember, "x")
	require.ErrorIs(t, err, service.ErrUsernameTaken)

	sess, err := f.auth.Login(ctx(), "alice", "secret")
	require.NoError(t, err)
	require.NotEmpty(t, sess.RefreshToken)
	require.Equal(t, u.ID, sess.User.ID)
	require.Equal(t, domain.RoleAdmin, sess.User.Role)

	claims, err := f.verifier.Verify(sess.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Username)

	_, err = f.auth.Login(ctx(), "alice", "wrong")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	_, err = f.auth.Login(ctx(), "nobody", "secret")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	_, err := f.users.CreateUser(ctx(), "bob", "Bob", domain.RoleMember, "pw")
	require.NoError(t, err)

	sess, err := f.auth.Login(ctx(), "bob", "pw")
	require.NoError(t, err)

	t.Run("issues access token", func(t *testing.T) {
		out, err := f.auth.Refresh(ctx(), sess.RefreshToken)
		require.NoError(t, err)
		require.Empty(t, out.RefreshToken)

		_, err = f.verifier.Verify(out.AccessToken)
		require.NoError(t, err)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := f.auth.Refresh(ctx(), "garbage")
		require.ErrorIs(t, err, service.ErrInvalidRefresh)

		_, err = f.auth.Refresh(ctx(), "")
		require.ErrorIs(t, err, service.ErrInvalidRefresh)
	})

	t.Run("rotation revokes the old token", func(t *testing.T) {
		f.auth.RotateRefresh = true
		defer func() { f.auth.RotateRefresh = false }()

		out, err := f.auth.Refresh(ctx(), sess.RefreshToken)
		require.NoError(t, err)
		require.NotEmpty(t, out.RefreshToken)
		require.NotEqual(t, sess.RefreshToken, out.RefreshToken)

		_, err = f.auth.Refresh(ctx(), sess.RefreshToken)
		require.ErrorIs(t, err, service.ErrInvalidRefresh)

		sess.RefreshToken = out.RefreshToken
	})

	t.Run("expired token", func(t *testing.T) {
		f.clock = f.clock.Add(2 * time.Hour)
		defer func() { f.clock = f.clock.Add(-2 * time.Hour) }()

		_, err := f.auth.Refresh(ctx(), sess.RefreshToken)
		require.ErrorIs(t, err, service.ErrInvalidRefresh)
	})

	t.Run("logout revokes", func(t *testing.T) {
		require.NoError(t, f.auth.Logout(ctx(), sess.RefreshToken))
		require.NoError(t, f.auth.Logout(ctx(), "unknown"))

		_, err := f.auth.Refresh(ctx(), sess.RefreshToken)
		require.ErrorIs(t, err, service.ErrInvalidRefresh)
	})
}

func TestRecords(t *testing.T) {
	f := newFixture(t)

	_, err := f.records.List(ctx(), "invoices", nil)
	require.ErrorIs(t, err, service.ErrUnknownResource)

	rec, err := f.records.Create(ctx(), "modules", "u1", map[string]any{
		"id":         "client-chosen",
		"name":       "Auth",
		"project_id": 5,
	})
	require.NoError(t, err)
	require.NotEqual(t, "client-chosen", rec.ID)
	require.Equal(t, "u1", rec.CreatedBy)

	list, err := f.records.List(ctx(), "modules", store.Filter{"project_id": "5"})
	require.NoError(t, err)
	require.Len(t, list, 1)

	updated, err := f.records.Update(ctx(), "modules", rec.ID, map[string]any{"name": "Authn", "project_id": 6})
	require.NoError(t, err)
	require.Equal(t, "Authn", updated.Data["name"])

	list, err = f.records.List(ctx(), "modules", store.Filter{"project_id": "5"})
	require.NoError(t, err)
	require.Empty(t, list)

	_, err = f.records.Update(ctx(), "modules", "missing", map[string]any{})
	require.ErrorIs(t, err, service.ErrNotFound)

	require.NoError(t, f.records.Delete(ctx(), "modules", rec.ID))
	_, err = f.records.Get(ctx(), "modules", rec.ID)
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestHousekeeping(t *testing.T) {
	f := newFixture(t)
	_, err := f.users.CreateUser(ctx(), "carol", "Carol", domain.RoleMember, "pw")
	require.NoError(t, err)

	f.clock = time.Now().Add(-2 * time.Hour)
	_, err = f.auth.Login(ctx(), "carol", "pw")
	require.NoError(t, err)

	hk := service.NewHousekeepingService(f.store, slogx.Discard(), 0)
	require.Equal(t, time.Hour, hk.Interval)
	require.EqualValues(t, 1, hk.Cleanup(ctx()))
	require.Zero(t, hk.Cleanup(ctx()))
}
