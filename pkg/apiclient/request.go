package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/aussiebroadwan/pmboard/pkg/credstore"
	"github.com/aussiebroadwan/pmboard/pkg/slogx"
)

// Request sends an authenticated request to endpoint (a path relative to
// BaseURL) and returns the raw JSON body of a 2xx response. An empty body,
// such as a 204, yields nil.
//
// A 401 triggers at most one token refresh and one replay. Every other
// failure is a *RequestError.
func (c *Client) Request(ctx context.Context, endpoint string, opts *RequestOptions) (json.RawMessage, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}

	body, err := encodeBody(opts.Body)
	if err != nil {
		slogx.FromContext(ctx).WarnContext(ctx, "api request not sent", "endpoint", endpoint, "error", err)
		return nil, err
	}

	return c.request(ctx, endpoint, opts, body, true)
}

func (c *Client) request(
	ctx context.Context,
	endpoint string,
	opts *RequestOptions,
	body []byte,
	allowRetry bool,
) (json.RawMessage, error) {
	method := opts.method()
	log := slogx.FromContext(ctx).With("method", method, "endpoint", endpoint)

	accessToken, err := credstore.GetOptional(ctx, c.Store, credstore.KeyAccessToken)
	if err != nil {
		log.ErrorContext(ctx, "failed to read access token", "error", err)
		return nil, credentialStoreError(fmt.Errorf("apiclient: read access token: %w", err))
	}

	resp, err := c.send(ctx, method, endpoint, opts.Params, body, opts.Headers, accessToken)
	if err != nil {
		log.ErrorContext(ctx, "api request failed", "error", err)
		return nil, asRequestError(err)
	}

	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		log.ErrorContext(ctx, "api response read failed", "status", resp.StatusCode, "error", err)
		return nil, networkError(fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode == http.StatusUnauthorized && allowRetry {
		refreshToken, err := credstore.GetOptional(ctx, c.Store, credstore.KeyRefreshToken)
		if err != nil {
			log.ErrorContext(ctx, "failed to read refresh token", "error", err)
			return nil, credentialStoreError(fmt.Errorf("apiclient: read refresh token: %w", err))
		}
		if refreshToken == "" {
			return nil, c.expireSession(ctx, resp.StatusCode, errNoRefreshToken)
		}

		if _, err := c.refreshAccessToken(ctx, accessToken, refreshToken); err != nil {
			// The caller gave up, the session did not end: keep the tokens.
			if abandoned(ctx, err) {
				log.WarnContext(ctx, "token refresh abandoned", "error", err)
				return nil, networkError(err)
			}
			if errors.Is(err, ErrCredentialStore) {
				return nil, err
			}
			return nil, c.expireSession(ctx, resp.StatusCode, err)
		}

		log.DebugContext(ctx, "replaying request with refreshed token")
		return c.request(ctx, endpoint, opts, body, false)
	}

	if !isSuccess(resp.StatusCode) {
		msg := errorMessage(raw)
		log.WarnContext(ctx, "api request rejected", "status", resp.StatusCode, "message", msg)
		return nil, &RequestError{
			Kind:       KindRequestFailed,
			StatusCode: resp.StatusCode,
			Message:    msg,
		}
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	if !json.Valid(raw) {
		log.WarnContext(ctx, "api response is not json", "status", resp.StatusCode)
		return nil, &RequestError{
			Kind:       KindInvalidResponse,
			StatusCode: resp.StatusCode,
			Message:    invalidResponseMessage,
		}
	}

	return json.RawMessage(raw), nil
}

// Do is Request followed by decoding the body into out. out may be nil.
func (c *Client) Do(ctx context.Context, endpoint string, opts *RequestOptions, out any) error {
	raw, err := c.Request(ctx, endpoint, opts)
	if err != nil {
		return err
	}
	return decodeInto(raw, 0, out)
}

func (c *Client) Get(ctx context.Context, endpoint string, params url.Values, out any) error {
	return c.Do(ctx, endpoint, &RequestOptions{Method: http.MethodGet, Params: params}, out)
}

func (c *Client) Post(ctx context.Context, endpoint string, body, out any) error {
	return c.Do(ctx, endpoint, &RequestOptions{Method: http.MethodPost, Body: body}, out)
}

func (c *Client) Put(ctx context.Context, endpoint string, body, out any) error {
	return c.Do(ctx, endpoint, &RequestOptions{Method: http.MethodPut, Body: body}, out)
}

func (c *Client) Patch(ctx context.Context, endpoint string, body, out any) error {
	return c.Do(ctx, endpoint, &RequestOptions{Method: http.MethodPatch, Body: body}, out)
}

func (c *Client) Delete(ctx context.Context, endpoint string, out any) error {
	return c.Do(ctx, endpoint, &RequestOptions{Method: http.MethodDelete}, out)
}
