package apiclient

import (
	"encoding/json"
	"net/http"
	"net/url"
)

// RequestOptions are the per-call knobs of Request. The zero value is a GET
// with no query, no extra headers and no body.
type RequestOptions struct {
	Method string

	// Headers are merged over the defaults (Content-Type/Accept JSON). The
	// Authorization header is always derived from the stored access token.
	Headers map[string]string

	Params url.Values

	// Body is JSON-encoded once and replayed byte for byte on the retry.
	// json.RawMessage and []byte are sent as-is.
	Body any
}

func (o *RequestOptions) method() string {
	if o == nil || o.Method == "" {
		return http.MethodGet
	}
	return o.Method
}

// Credentials is a snapshot of what the store holds for this session.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	User         json.RawMessage
}

// LoggedIn reports whether any token is stored.
func (c Credentials) LoggedIn() bool {
	return c.AccessToken != "" || c.RefreshToken != ""
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is what the backend returns from a successful login.
type LoginResponse struct {
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
	User         json.RawMessage `json:"user,omitempty"`
}

// RefreshRequest is the body of POST /auth/refresh-token.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RefreshResponse carries the new access token. Backends that rotate refresh
// tokens also return the replacement.
type RefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// LogoutRequest is the body of POST /auth/logout.
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// ErrorResponse is the error body shape the backend uses.
type ErrorResponse struct {
	Message string `json:"message"`
}
