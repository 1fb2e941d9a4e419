package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/pmboard/pkg/idx"
	"github.com/aussiebroadwan/pmboard/pkg/slogx"
)

// url joins endpoint onto the base URL and merges params into its query.
func (c *Client) url(endpoint string, params url.Values) (string, error) {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}

	u, err := url.Parse(c.BaseURL + endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}

	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

// encodeBody turns RequestOptions.Body into bytes once so the retry can
// replay it.
func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return b, nil
	case []byte:
		return b, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, invalidRequestError(fmt.Errorf("apiclient: encode request body: %w", err))
		}
		return data, nil
	}
}

// send performs one HTTP attempt. accessToken may be empty. Errors are
// *RequestError: KindInvalidRequest when nothing could be sent, KindNetwork
// otherwise.
func (c *Client) send(
	ctx context.Context,
	method, endpoint string,
	params url.Values,
	body []byte,
	headers map[string]string,
	accessToken string,
) (*http.Response, error) {
	if err := c.wait(ctx); err != nil {
		return nil, networkError(err)
	}

	target, err := c.url(endpoint, params)
	if err != nil {
		return nil, invalidRequestError(err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, invalidRequestError(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	reqID := idx.New().String()
	req.Header.Set(slogx.RequestIDHeader, reqID)

	slogx.FromContext(slogx.WithRequestID(ctx, reqID)).DebugContext(ctx, "api request",
		"method", method,
		"endpoint", endpoint,
		"authenticated", accessToken != "",
	)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, networkError(err)
	}
	return resp, nil
}

// postJSON is for the unauthenticated auth endpoints (login, refresh,
// logout). It never attaches a bearer token and never retries.
func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := encodeBody(in)
	if err != nil {
		return err
	}

	resp, err := c.send(ctx, http.MethodPost, path, nil, body, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return networkError(fmt.Errorf("failed to read response body: %w", err))
	}

	if !isSuccess(resp.StatusCode) {
		return &RequestError{
			Kind:       KindRequestFailed,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(raw),
		}
	}

	return decodeInto(raw, resp.StatusCode, out)
}

// decodeInto unmarshals raw into out. Empty bodies and nil targets are no-ops.
func decodeInto(raw []byte, status int, out any) error {
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &RequestError{
			Kind:       KindInvalidResponse,
			StatusCode: status,
			Message:    invalidResponseMessage,
			Err:        err,
		}
	}
	return nil
}

// errorMessage pulls "message" out of an error body. Bodies that are not JSON
// are treated as an empty object so the generic message still applies.
func errorMessage(raw []byte) string {
	var body ErrorResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		body = ErrorResponse{}
	}
	if msg := strings.TrimSpace(body.Message); msg != "" {
		return msg
	}
	return GenericFailureMessage
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
