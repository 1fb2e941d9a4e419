package apiclient

import (
	"context"
	"fmt"

	"github.com/aussiebroadwan/pmboard/pkg/credstore"
	"github.com/aussiebroadwan/pmboard/pkg/slogx"
)

// Login authenticates with username and password and stores the returned
// tokens and user. Keys the response does not carry are cleared so nothing
// from a previous session survives.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	log := slogx.FromContext(ctx).With("username", username)

	var resp LoginResponse
	err := c.postJSON(ctx, c.LoginPath, LoginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		log.WarnContext(ctx, "login failed", "error", err)
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, &RequestError{
			Kind:    KindInvalidResponse,
			Message: invalidResponseMessage,
			Err:     errEmptyAccessToken,
		}
	}

	values := map[string]string{credstore.KeyAccessToken: resp.AccessToken}
	if resp.RefreshToken != "" {
		values[credstore.KeyRefreshToken] = resp.RefreshToken
	}
	if len(resp.User) > 0 {
		values[credstore.KeyUser] = string(resp.User)
	}

	if err := c.Store.SetMany(ctx, values); err != nil {
		return nil, credentialStoreError(fmt.Errorf("apiclient: persist login: %w", err))
	}

	var stale []string
	for _, key := range credstore.AllKeys() {
		if _, ok := values[key]; !ok {
			stale = append(stale, key)
		}
	}
	if len(stale) > 0 {
		if err := c.Store.Delete(ctx, stale...); err != nil {
			return nil, credentialStoreError(fmt.Errorf("apiclient: clear stale credentials: %w", err))
		}
	}

	log.InfoContext(ctx, "logged in")
	return &resp, nil
}

// Logout revokes the refresh token on the backend and clears the store. The
// backend call is best effort: credentials are cleared even if it fails.
func (c *Client) Logout(ctx context.Context) error {
	log := slogx.FromContext(ctx)

	refreshToken, err := credstore.GetOptional(ctx, c.Store, credstore.KeyRefreshToken)
	if err != nil {
		log.WarnContext(ctx, "failed to read refresh token", "error", err)
	}

	if refreshToken != "" {
		if err := c.postJSON(ctx, c.LogoutPath, LogoutRequest{RefreshToken: refreshToken}, nil); err != nil {
			log.WarnContext(ctx, "logout request failed", "error", err)
		}
	}

	if err := c.Store.Delete(context.WithoutCancel(ctx), credstore.AllKeys()...); err != nil {
		return credentialStoreError(fmt.Errorf("apiclient: clear credentials: %w", err))
	}

	log.InfoContext(ctx, "logged out")
	return nil
}

// Credentials returns what the store currently holds.
func (c *Client) Credentials(ctx context.Context) (Credentials, error) {
	var creds Credentials

	access, err := credstore.GetOptional(ctx, c.Store, credstore.KeyAccessToken)
	if err != nil {
		return creds, credentialStoreError(fmt.Errorf("apiclient: read access token: %w", err))
	}
	refresh, err := credstore.GetOptional(ctx, c.Store, credstore.KeyRefreshToken)
	if err != nil {
		return creds, credentialStoreError(fmt.Errorf("apiclient: read refresh token: %w", err))
	}
	user, err := credstore.GetOptional(ctx, c.Store, credstore.KeyUser)
	if err != nil {
		return creds, credentialStoreError(fmt.Errorf("apiclient: read user: %w", err))
	}

	creds.AccessToken = access
	creds.RefreshToken = refresh
	if user != "" {
		creds.User = []byte(user)
	}
	return creds, nil
}
