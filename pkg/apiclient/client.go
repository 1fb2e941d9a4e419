package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/pmboard/pkg/credstore"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout     = 10 * time.Second
	DefaultLoginPath   = "/auth/login"
	DefaultRefreshPath = "/auth/refresh-token"
	DefaultLogoutPath  = "/auth/logout"
)

// Client talks to the dashboard backend on behalf of a single user session.
// Build one at startup with New and share it; it is safe for concurrent use.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Store      credstore.Store

	// OnSessionExpired runs after the stored credentials have been cleared
	// because no usable access token could be obtained. UIs navigate to their
	// login entry point here.
	OnSessionExpired func(ctx context.Context)

	LoginPath   string
	RefreshPath string
	LogoutPath  string

	limiter *rate.Limiter

	// refreshMu serializes token refreshes.
	refreshMu sync.Mutex
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client (10s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithTimeout sets the per-attempt timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.HTTPClient.Timeout = d }
}

func WithSessionExpiredHandler(fn func(ctx context.Context)) Option {
	return func(c *Client) { c.OnSessionExpired = fn }
}

// WithRateLimit throttles outgoing attempts (refresh calls included) to rps
// requests per second with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

func WithRefreshPath(path string) Option {
	return func(c *Client) { c.RefreshPath = path }
}

func WithLoginPath(path string) Option {
	return func(c *Client) { c.LoginPath = path }
}

func WithLogoutPath(path string) Option {
	return func(c *Client) { c.LogoutPath = path }
}

// New creates a client for baseURL that reads and writes credentials in store.
func New(baseURL string, store credstore.Store, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		Store:       store,
		LoginPath:   DefaultLoginPath,
		RefreshPath: DefaultRefreshPath,
		LogoutPath:  DefaultLogoutPath,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// errThrottled marks a limiter wait that gave up, either because ctx ended
// or because the wait would overrun its deadline.
var errThrottled = errors.New("apiclient: rate limit wait aborted")

// wait blocks on the client-side rate limiter, if one is configured.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", errThrottled, err)
	}
	return nil
}
