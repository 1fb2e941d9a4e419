package apiclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/pmboard/pkg/apiclient"
	"github.com/aussiebroadwan/pmboard/pkg/credstore"
	"github.com/aussiebroadwan/pmboard/pkg/credstore/memory"
	"github.com/aussiebroadwan/pmboard/pkg/credstore/sqlite"
)

var sessionSeed = map[string]string{
	credstore.KeyAccessToken:  "a1",
	credstore.KeyRefreshToken: "r1",
	credstore.KeyUser:         `{"id":1}`,
}

// storeFactories run a test against every credstore driver.
var storeFactories = map[string]func(t *testing.T, seed map[string]string) credstore.Store{
	"memory": func(t *testing.T, seed map[string]string) credstore.Store {
		return memory.New(seed)
	},
	"sqlite": func(t *testing.T, seed map[string]string) credstore.Store {
		st, err := sqlite.Open(filepath.Join(t.TempDir(), "creds.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = st.Close() })
		if len(seed) > 0 {
			require.NoError(t, st.SetMany(context.Background(), seed))
		}
		return st
	},
}

func newStoreClient(t *testing.T, h http.Handler, st credstore.Store, expired *atomic.Int32, opts ...apiclient.Option) *apiclient.Client {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	opts = append(opts, apiclient.WithSessionExpiredHandler(func(context.Context) {
		expired.Add(1)
	}))
	return apiclient.New(srv.URL, st, opts...)
}

func requireStored(t *testing.T, st credstore.Store, want map[string]string) {
	t.Helper()
	for key, value := range want {
		got, err := st.Get(context.Background(), key)
		require.NoError(t, err, key)
		require.Equal(t, value, got, key)
	}
}

func requireCleared(t *testing.T, st credstore.Store) {
	t.Helper()
	for _, key := range credstore.AllKeys() {
		_, err := st.Get(context.Background(), key)
		require.ErrorIs(t, err, credstore.ErrNotFound, key)
	}
}

func unauthorizedThenRefresh(refresh http.HandlerFunc) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /projects", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("POST /auth/refresh-token", refresh)
	return mux
}

func TestRequest_CallerGivesUpDuringRefresh(t *testing.T) {
	t.Parallel()

	for name, newStore := range storeFactories {
		t.Run(name+"/cancel", func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithCancel(testContext())
			defer cancel()

			mux := unauthorizedThenRefresh(func(w http.ResponseWriter, r *http.Request) {
				cancel()
				<-r.Context().Done()
			})

			var expired atomic.Int32
			st := newStore(t, sessionSeed)
			client := newStoreClient(t, mux, st, &expired)

			_, err := client.Request(ctx, "/projects", nil)
			require.ErrorIs(t, err, apiclient.ErrNetwork)
			require.ErrorIs(t, err, context.Canceled)
			require.NotErrorIs(t, err, apiclient.ErrSessionExpired)

			require.Zero(t, expired.Load())
			requireStored(t, st, sessionSeed)
		})

		t.Run(name+"/deadline", func(t *testing.T) {
			t.Parallel()

			mux := unauthorizedThenRefresh(func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-time.After(5 * time.Second):
				case <-r.Context().Done():
				}
			})

			var expired atomic.Int32
			st := newStore(t, sessionSeed)
			client := newStoreClient(t, mux, st, &expired)

			ctx, cancel := context.WithTimeout(testContext(), 200*time.Millisecond)
			defer cancel()

			_, err := client.Request(ctx, "/projects", nil)
			require.ErrorIs(t, err, apiclient.ErrNetwork)
			require.ErrorIs(t, err, context.DeadlineExceeded)
			require.NotErrorIs(t, err, apiclient.ErrSessionExpired)

			require.Zero(t, expired.Load())
			requireStored(t, st, sessionSeed)
		})
	}
}

func TestRequest_ThrottledRefreshKeepsSession(t *testing.T) {
	t.Parallel()

	var refreshes atomic.Int32
	mux := unauthorizedThenRefresh(func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		writeJSON(w, http.StatusOK, map[string]string{"accessToken": "a2"})
	})

	var expired atomic.Int32
	st := memory.New(sessionSeed)
	// One token, then roughly one every 1000s: the refresh cannot fit the deadline.
	client := newStoreClient(t, mux, st, &expired, apiclient.WithRateLimit(0.001, 1))

	ctx, cancel := context.WithTimeout(testContext(), 5*time.Second)
	defer cancel()

	_, err := client.Request(ctx, "/projects", nil)
	require.ErrorIs(t, err, apiclient.ErrNetwork)
	require.NotErrorIs(t, err, apiclient.ErrSessionExpired)

	require.Zero(t, refreshes.Load())
	require.Zero(t, expired.Load())
	require.Equal(t, sessionSeed, st.Snapshot())
}

// cancelAfterGet ends the caller's ctx as soon as key has been read, so the
// rest of the call runs on a dead ctx.
type cancelAfterGet struct {
	credstore.Store
	key    string
	cancel context.CancelFunc
}

func (s cancelAfterGet) Get(ctx context.Context, key string) (string, error) {
	v, err := s.Store.Get(ctx, key)
	if key == s.key {
		s.cancel()
	}
	return v, err
}

func TestRequest_SessionExpiryClearsStoreOnDeadContext(t *testing.T) {
	t.Parallel()

	for name, newStore := range storeFactories {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithCancel(testContext())
			defer cancel()

			mux := unauthorizedThenRefresh(func(w http.ResponseWriter, r *http.Request) {
				t.Error("refresh must not be called without a refresh token")
			})

			var expired atomic.Int32
			st := newStore(t, map[string]string{
				credstore.KeyAccessToken: "a1",
				credstore.KeyUser:        `{"id":1}`,
			})
			client := newStoreClient(t, mux, cancelAfterGet{Store: st, key: credstore.KeyRefreshToken, cancel: cancel}, &expired)

			_, err := client.Request(ctx, "/projects", nil)
			require.ErrorIs(t, err, apiclient.ErrSessionExpired)
			require.NotErrorIs(t, err, apiclient.ErrCredentialStore)

			require.EqualValues(t, 1, expired.Load())
			requireCleared(t, st)
		})
	}
}

type failingStore struct {
	*memory.Store
	getErr    error
	deleteErr error
}

func (s failingStore) Get(ctx context.Context, key string) (string, error) {
	if s.getErr != nil {
		return "", s.getErr
	}
	return s.Store.Get(ctx, key)
}

func (s failingStore) Delete(ctx context.Context, keys ...string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.Store.Delete(ctx, keys...)
}

func TestRequest_SessionExpiryReportsFailedClear(t *testing.T) {
	t.Parallel()

	mux := unauthorizedThenRefresh(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid refresh token"})
	})

	diskFull := errors.New("disk I/O error")
	st := failingStore{Store: memory.New(sessionSeed), deleteErr: diskFull}

	var expired atomic.Int32
	client := newStoreClient(t, mux, st, &expired)

	_, err := client.Request(testContext(), "/projects", nil)
	require.ErrorIs(t, err, apiclient.ErrSessionExpired)
	require.EqualError(t, err, apiclient.SessionExpiredMessage)
	require.ErrorIs(t, err, apiclient.ErrCredentialStore)
	require.ErrorIs(t, err, diskFull)
	require.EqualValues(t, 1, expired.Load())
}

func TestRequest_LocalFailuresAreRequestErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{})
	})

	t.Run("body does not encode", func(t *testing.T) {
		var expired atomic.Int32
		client := newStoreClient(t, mux, memory.New(sessionSeed), &expired)

		_, err := client.Request(testContext(), "/tasks", &apiclient.RequestOptions{
			Method: http.MethodPost,
			Body:   map[string]any{"bad": make(chan int)},
		})
		var re *apiclient.RequestError
		require.ErrorAs(t, err, &re)
		require.Equal(t, apiclient.KindInvalidRequest, re.Kind)
		require.ErrorIs(t, err, apiclient.ErrInvalidRequest)
	})

	t.Run("store unreadable", func(t *testing.T) {
		locked := errors.New("database is locked")
		var expired atomic.Int32
		client := newStoreClient(t, mux, failingStore{Store: memory.New(nil), getErr: locked}, &expired)

		_, err := client.Request(testContext(), "/tasks", nil)
		var re *apiclient.RequestError
		require.ErrorAs(t, err, &re)
		require.Equal(t, apiclient.KindCredentialStore, re.Kind)
		require.ErrorIs(t, err, locked)

		_, err = client.Credentials(testContext())
		require.ErrorIs(t, err, apiclient.ErrCredentialStore)
		require.Zero(t, expired.Load())
	})

	require.Zero(t, hits.Load())
}
