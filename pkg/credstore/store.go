// Package credstore persists the client's credentials: the access token, the
// refresh token and the logged-in user blob. It stands in for the browser's
// local storage and is injected into the API client so tests can swap it out.
package credstore

import (
	"context"
	"errors"
)

// Keys written by the API client.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyUser         = "user"
)

var ErrNotFound = errors.New("credstore: not found")

// AllKeys returns every key the client owns. Logout clears all of them.
func AllKeys() []string {
	return []string{KeyAccessToken, KeyRefreshToken, KeyUser}
}

// Store is a small string key/value store. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns ErrNotFound when key has no value.
	Get(ctx context.Context, key string) (string, error)

	Set(ctx context.Context, key, value string) error

	// SetMany writes every pair or none of them.
	SetMany(ctx context.Context, values map[string]string) error

	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	Close() error
}

// GetOptional is Get with ErrNotFound mapped to "".
func GetOptional(ctx context.Context, s Store, key string) (string, error) {
	v, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}
