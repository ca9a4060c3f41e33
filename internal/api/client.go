// Package api implements the HTTP gateway to the Klaster clustering
// service. It is a thin request/response boundary: it never touches the
// session registry or any other local state, with the single exception of
// the unauthorized hook fired on a 401.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Client talks to one Klaster server.
type Client struct {
	baseURL        string
	token          string
	httpClient     *http.Client
	onUnauthorized func()
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout sets the HTTP client timeout. Export downloads use the same
// budget, so callers streaming large files may want to raise it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client (tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithUnauthorizedHook registers a callback fired whenever any request
// comes back 401. Used for the global de-authentication side effect
// (dropping saved credentials).
func WithUnauthorizedHook(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// New creates a client for the given base URL, e.g. "http://localhost:5000".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken replaces the bearer token (after login).
func (c *Client) SetToken(token string) { c.token = token }

// do executes the request and decodes a JSON body into out when out is
// non-nil. Response policy: 204 is success with no payload; a 2xx body
// that fails to parse is also treated as success with no payload; any
// non-2xx body is parsed for an error/message field, falling back to a
// generic "HTTP error, status N".
func (c *Client) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(body) == 0 {
			return nil
		}
		// A malformed body on a successful status is success with a
		// null payload, not an error.
		_ = json.Unmarshal(body, out)
		return nil
	}

	var eb errorBody
	_ = json.Unmarshal(body, &eb)

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		if msg := eb.text(); msg != "" {
			return fmt.Errorf("%s: %w", msg, ErrUnauthorized)
		}
		return ErrUnauthorized
	case http.StatusNotFound:
		if msg := eb.text(); msg != "" {
			return fmt.Errorf("%s: %w", msg, ErrNotFound)
		}
		return ErrNotFound
	}

	return &APIError{StatusCode: resp.StatusCode, Message: eb.text()}
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// --- Auth ---

// User identifies the authenticated account.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Credentials is the login response: a JWT plus the account it belongs to.
type Credentials struct {
	AccessToken string `json:"access_token"`
	User        User   `json:"user"`
}

// Login exchanges email/password for a bearer token. The returned token is
// also installed on the client.
func (c *Client) Login(ctx context.Context, email, password string) (*Credentials, error) {
	body := map[string]string{"email": email, "password": password}
	var creds Credentials
	if err := c.postJSON(ctx, "/api/login", body, &creds); err != nil {
		return nil, err
	}
	c.token = creds.AccessToken
	return &creds, nil
}

// Register creates a new account.
func (c *Client) Register(ctx context.Context, username, email, password string) error {
	body := map[string]string{
		"username":         username,
		"email":            email,
		"password":         password,
		"confirm_password": password,
	}
	return c.postJSON(ctx, "/api/register", body, nil)
}

// Me returns the account behind the current token.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var resp struct {
		User User `json:"user"`
	}
	if err := c.getJSON(ctx, "/api/me", &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}
