package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/pmboard/internal/devapi/domain"
	httpapi "github.com/aussiebroadwan/pmboard/internal/devapi/http"
	"github.com/aussiebroadwan/pmboard/internal/devapi/service"
	"github.com/aussiebroadwan/pmboard/internal/devapi/store/drivers/sqlite"
	"github.com/aussiebroadwan/pmboard/pkg/apiclient"
	"github.com/aussiebroadwan/pmboard/pkg/credstore"
	"github.com/aussiebroadwan/pmboard/pkg/credstore/memory"
	"github.com/aussiebroadwan/pmboard/pkg/cryptox"
	"github.com/aussiebroadwan/pmboard/pkg/httpx"
	"github.com/aussiebroadwan/pmboard/pkg/jwtx"
	"github.com/aussiebroadwan/pmboard/pkg/slogx"
)

const issuer = "pmboard-test"

type backend struct {
	srv   *httptest.Server
	auth  *service.AuthService
	clock atomic.Int64 // unix nanos used for issuing tokens
}

func (b *backend) setClock(t time.Time) { b.clock.Store(t.UnixNano()) }

func newBackend(t *testing.T) *backend {
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

	b := &backend{}
	b.setClock(time.Now())

	hasher := cryptox.PasswordHasher{}
	users := &service.UserService{Store: st, Hasher: hasher}
	b.auth = &service.AuthService{
		Store:      st,
		Signer:     signer,
		Hasher:     hasher,
		Issuer:     issuer,
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
		Now:        func() time.Time { return time.Unix(0, b.clock.Load()) },
	}

	ctx := slogx.WithContext(context.Background(), slogx.Discard())
	_, err = users.CreateUser(ctx, "admin", "Admin", domain.RoleAdmin, "admin-pass")
	require.NoError(t, err)
	_, err = users.CreateUser(ctx, "dev", "Developer", domain.RoleMember, "dev-pass")
	require.NoError(t, err)

	router := httpapi.NewRouter(verifier, "test", st, slogx.Discard())
	router.AuthService = b.auth
	router.UserService = users
	router.RecordService = &service.RecordService{Store: st}
	router.AuthLimit = httpx.RateLimitConfig{RequestsPerWindow: 6000, Window: time.Minute, Burst: 1000}
	router.ApplyRoutes()

	b.srv = httptest.NewServer(router)
	t.Cleanup(b.srv.Close)
	return b
}

func newClient(b *backend, expired *atomic.Int32) (*apiclient.Client, *memory.Store) {
	creds := memory.New(nil)
	c := apiclient.New(b.srv.URL, creds, apiclient.WithSessionExpiredHandler(func(context.Context) {
		if expired != nil {
			expired.Add(1)
		}
	}))
	return c, creds
}

func ctx() context.Context {
	return slogx.WithContext(context.Background(), slogx.Discard())
}

func TestLoginAndResources(t *testing.T) {
	t.Parallel()
	b := newBackend(t)
	c, creds := newClient(b, nil)

	resp, err := c.Login(ctx(), "dev", "dev-pass")
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.Equal(t, resp.AccessToken, creds.Snapshot()[credstore.KeyAccessToken])

	var me domain.PublicUser
	require.NoError(t, c.Get(ctx(), "/auth/me", nil, &me))
	require.Equal(t, "dev", me.Username)
	require.Equal(t, domain.RoleMember, me.Role)

	var p1, p2 map[string]any
	require.NoError(t, c.Post(ctx(), "/projects", map[string]any{"name": "Alpha"}, &p1))
	require.NoError(t, c.Post(ctx(), "/projects", map[string]any{"name": "Beta"}, &p2))
	require.NotEmpty(t, p1["id"])

	for _, pid := range []any{p1["id"], p1["id"], p2["id"]} {
		require.NoError(t, c.Post(ctx(), "/sprints", map[string]any{"project_id": pid, "name": "S"}, nil))
	}

	var sprints []map[string]any
	require.NoError(t, c.Get(ctx(), "/sprints", url.Values{"project_id": {p1["id"].(string)}}, &sprints))
	require.Len(t, sprints, 2)
	for _, s := range sprints {
		require.Equal(t, p1["id"], s["project_id"])
	}

	id := p1["id"].(string)
	var updated map[string]any
	require.NoError(t, c.Put(ctx(), "/projects/"+id, map[string]any{"name": "Alpha 2"}, &updated))
	require.Equal(t, "Alpha 2", updated["name"])

	var got map[string]any
	require.NoError(t, c.Get(ctx(), "/projects/"+id, nil, &got))
	require.Equal(t, "Alpha 2", got["name"])

	t.Run("missing record", func(t *testing.T) {
		err := c.Get(ctx(), "/projects/nope", nil, nil)
		require.ErrorIs(t, err, apiclient.ErrRequestFailed)
		require.Equal(t, http.StatusNotFound, apiclient.StatusCode(err))
		require.Contains(t, err.Error(), "Not found")
	})

	t.Run("member cannot delete", func(t *testing.T) {
		err := c.Delete(ctx(), "/projects/"+id, nil)
		require.ErrorIs(t, err, apiclient.ErrRequestFailed)
		require.Equal(t, http.StatusForbidden, apiclient.StatusCode(err))
	})

	t.Run("invalid filter field", func(t *testing.T) {
		err := c.Get(ctx(), "/tasks", url.Values{"bad field": {"x"}}, nil)
		require.Equal(t, http.StatusBadRequest, apiclient.StatusCode(err))
	})
}

func TestAdminDelete(t *testing.T) {
	t.Parallel()
	b := newBackend(t)
	c, _ := newClient(b, nil)

	_, err := c.Login(ctx(), "admin", "admin-pass")
	require.NoError(t, err)

	var task map[string]any
	require.NoError(t, c.Post(ctx(), "/tasks", map[string]any{"title": "T"}, &task))
	id := task["id"].(string)

	require.NoError(t, c.Delete(ctx(), "/tasks/"+id, nil))
	require.Equal(t, http.StatusNotFound, apiclient.StatusCode(c.Get(ctx(), "/tasks/"+id, nil, nil)))
}

func TestLoginRejected(t *testing.T) {
	t.Parallel()
	b := newBackend(t)
	c, creds := newClient(b, nil)

	_, err := c.Login(ctx(), "dev", "wrong")
	require.ErrorIs(t, err, apiclient.ErrRequestFailed)
	require.Equal(t, http.StatusUnauthorized, apiclient.StatusCode(err))
	require.Contains(t, err.Error(), "Invalid username or password")
	require.Empty(t, creds.Snapshot())
}

func TestExpiredAccessTokenIsRefreshed(t *testing.T) {
	t.Parallel()
	b := newBackend(t)
	var expired atomic.Int32
	c, creds := newClient(b, &expired)

	// Issue a session whose access token is already past its expiry.
	b.setClock(time.Now().Add(-10 * time.Minute))
	_, err := c.Login(ctx(), "dev", "dev-pass")
	require.NoError(t, err)
	stale := creds.Snapshot()[credstore.KeyAccessToken]
	b.setClock(time.Now())

	var projects []map[string]any
	require.NoError(t, c.Get(ctx(), "/projects", nil, &projects))
	require.Empty(t, projects)

	fresh := creds.Snapshot()[credstore.KeyAccessToken]
	require.NotEqual(t, stale, fresh)
	require.Zero(t, expired.Load())

	claims, err := jwtx.Peek(fresh)
	require.NoError(t, err)
	require.Equal(t, "dev", claims.Username)
}

func TestRotatedRefreshTokenIsPersisted(t *testing.T) {
	t.Parallel()
	b := newBackend(t)
	b.auth.RotateRefresh = true
	c, creds := newClient(b, nil)

	b.setClock(time.Now().Add(-10 * time.Minute))
	_, err := c.Login(ctx(), "dev", "dev-pass")
	require.NoError(t, err)
	oldRefresh := creds.Snapshot()[credstore.KeyRefreshToken]
	b.setClock(time.Now())

	require.NoError(t, c.Get(ctx(), "/projects", nil, nil))
	newRefresh := creds.Snapshot()[credstore.KeyRefreshToken]
	require.NotEmpty(t, newRefresh)
	require.NotEqual(t, oldRefresh, newRefresh)
}

func TestSessionExpiry(t *testing.T) {
	t.Parallel()

	t.Run("no refresh token", func(t *testing.T) {
		t.Parallel()
		b := newBackend(t)
		var expired atomic.Int32
		c, creds := newClient(b, &expired)

		err := c.Get(ctx(), "/projects", nil, nil)
		require.ErrorIs(t, err, apiclient.ErrSessionExpired)
		require.Equal(t, apiclient.SessionExpiredMessage, err.Error())
		require.EqualValues(t, 1, expired.Load())
		require.Empty(t, creds.Snapshot())
	})

	t.Run("revoked refresh token", func(t *testing.T) {
		t.Parallel()
		b := newBackend(t)
		var expired atomic.Int32
		c, creds := newClient(b, &expired)

		b.setClock(time.Now().Add(-10 * time.Minute))
		_, err := c.Login(ctx(), "dev", "dev-pass")
		require.NoError(t, err)
		b.setClock(time.Now())

		require.NoError(t, b.auth.Logout(ctx(), creds.Snapshot()[credstore.KeyRefreshToken]))

		err = c.Get(ctx(), "/projects", nil, nil)
		require.ErrorIs(t, err, apiclient.ErrSessionExpired)
		require.EqualValues(t, 1, expired.Load())
		require.Empty(t, creds.Snapshot())
	})
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	t.Parallel()
	b := newBackend(t)
	c, creds := newClient(b, nil)

	_, err := c.Login(ctx(), "dev", "dev-pass")
	require.NoError(t, err)
	refresh := creds.Snapshot()[credstore.KeyRefreshToken]

	require.NoError(t, c.Logout(ctx()))
	require.Empty(t, creds.Snapshot())

	_, err = b.auth.Refresh(ctx(), refresh)
	require.ErrorIs(t, err, service.ErrInvalidRefresh)
}

func TestSystemEndpoints(t *testing.T) {
	t.Parallel()
	b := newBackend(t)

	for _, path := range []string{"/livez", "/readyz"} {
		res, err := http.Get(b.srv.URL + path)
		require.NoError(t, err)
		var body httpapi.HealthResponse
		require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
		_ = res.Body.Close()
		require.Equal(t, http.StatusOK, res.StatusCode, path)
		require.Equal(t, "ok", body.Status)
		require.Equal(t, "test", body.Version)
	}

	res, err := http.Get(b.srv.URL + "/.well-known/jwks.json")
	require.NoError(t, err)
	defer res.Body.Close()
	var set jwtx.JWKS
	require.NoError(t, json.NewDecoder(res.Body).Decode(&set))
	require.Len(t, set.Keys, 1)
	require.Equal(t, "k1", set.Keys[0].Kid)
}

func TestUnauthenticatedRequest(t *testing.T) {
	t.Parallel()
	b := newBackend(t)

	res, err := http.Get(b.srv.URL + "/projects")
	require.NoError(t, err)
	defer res.Body.Close()

	var body httpx.ErrorBody
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	require.Equal(t, "Authentication required", body.Message)
	require.NotEmpty(t, res.Header.Get(slogx.RequestIDHeader))
}
