package apiclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/pmboard/pkg/credstore"
	"github.com/aussiebroadwan/pmboard/pkg/slogx"
)

var (
	errNoRefreshToken   = errors.New("apiclient: no refresh token stored")
	errEmptyAccessToken = errors.New("apiclient: refresh response has no access token")
)

// refreshAccessToken exchanges refreshToken for a new access token and
// persists it. rejected is the access token the backend just refused.
//
// Refreshes are serialized. A caller that gets the lock after someone else
// already replaced rejected reuses that token instead of refreshing again.
func (c *Client) refreshAccessToken(ctx context.Context, rejected, refreshToken string) (string, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	log := slogx.FromContext(ctx)

	current, err := credstore.GetOptional(ctx, c.Store, credstore.KeyAccessToken)
	if err != nil {
		return "", credentialStoreError(fmt.Errorf("apiclient: read access token: %w", err))
	}
	if current != "" && current != rejected {
		log.DebugContext(ctx, "access token already refreshed")
		return current, nil
	}

	// A concurrent refresh may have rotated the refresh token, or failed and
	// cleared it.
	latest, err := credstore.GetOptional(ctx, c.Store, credstore.KeyRefreshToken)
	if err != nil {
		return "", credentialStoreError(fmt.Errorf("apiclient: read refresh token: %w", err))
	}
	if latest == "" {
		return "", errNoRefreshToken
	}
	refreshToken = latest

	var resp RefreshResponse
	if err := c.postJSON(ctx, c.RefreshPath, RefreshRequest{RefreshToken: refreshToken}, &resp); err != nil {
		log.WarnContext(ctx, "token refresh failed", "error", err)
		return "", refreshFailure(err)
	}
	if resp.AccessToken == "" {
		log.WarnContext(ctx, "token refresh returned no access token")
		return "", errEmptyAccessToken
	}

	values := map[string]string{credstore.KeyAccessToken: resp.AccessToken}
	if resp.RefreshToken != "" {
		values[credstore.KeyRefreshToken] = resp.RefreshToken
	}
	// Persist even if the caller has gone; a rotated refresh token is already spent.
	if err := c.Store.SetMany(context.WithoutCancel(ctx), values); err != nil {
		return "", credentialStoreError(fmt.Errorf("apiclient: persist refreshed tokens: %w", err))
	}

	log.InfoContext(ctx, "access token refreshed", "rotated", resp.RefreshToken != "")
	return resp.AccessToken, nil
}

// refreshFailure flattens a refresh-call error so the session-expired error
// that wraps it does not also match ErrRequestFailed.
func refreshFailure(err error) error {
	var re *RequestError
	if !errors.As(err, &re) {
		return fmt.Errorf("apiclient: refresh: %w", err)
	}
	if re.Kind == KindNetwork && re.Err != nil {
		return fmt.Errorf("apiclient: refresh: %w", re.Err)
	}
	return fmt.Errorf("apiclient: refresh rejected (status %d): %s", re.StatusCode, re.Message)
}

// abandoned reports whether a refresh failed because the caller's ctx ended
// or the rate limiter gave up, rather than because the backend refused it.
func abandoned(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, errThrottled)
}

// expireSession clears every stored credential, notifies OnSessionExpired and
// returns the error the caller must fail with. The store is cleared even if
// ctx is already done. A failed clear is joined into the returned error.
func (c *Client) expireSession(ctx context.Context, status int, cause error) error {
	log := slogx.FromContext(ctx)
	log.WarnContext(ctx, "session expired", "cause", cause)

	if err := c.Store.Delete(context.WithoutCancel(ctx), credstore.AllKeys()...); err != nil {
		log.ErrorContext(ctx, "failed to clear credentials", "error", err)
		cause = errors.Join(cause, credentialStoreError(fmt.Errorf("apiclient: clear credentials: %w", err)))
	}

	if c.OnSessionExpired != nil {
		c.OnSessionExpired(ctx)
	}

	return sessionExpiredError(status, cause)
}
