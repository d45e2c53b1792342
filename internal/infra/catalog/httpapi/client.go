// Package httpapi implements the catalog backend over its REST row API and
// the CSV import endpoint.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"rd3/internal/gateway/core"
	"rd3/pkg/domain"
)

const (
	tokenHeader       = "x-molgenis-token"
	defaultRetries    = 4
	defaultTimeout    = 5 * time.Minute
	maxMessageLength  = 512
	deleteParallelism = 8
)

// Config configures the HTTP catalog client.
type Config struct {
	Host     string
	Token    string
	Username string
	Password string
	// Retries bounds transport retries per request (exponential backoff).
	Retries      int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// RequestsPerSecond limits the request rate; zero disables limiting.
	RequestsPerSecond float64
	Timeout           time.Duration
	// Logger receives retry diagnostics. *slog.Logger satisfies it.
	Logger retryablehttp.LeveledLogger
	// Observe is called once per completed request; status 0 means transport failure.
	Observe func(method string, status int)
}

// Client is a catalog backend talking HTTP.
type Client struct {
	base     *url.URL
	http     *retryablehttp.Client
	limiter  *rate.Limiter
	observe  func(method string, status int)
	mu       sync.RWMutex
	token    string
	loggedIn bool
}

var _ core.Backend = (*Client)(nil)

// New builds a client and, when no token is configured, logs in with the
// username and password.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("httpapi: host required")
	}
	host := cfg.Host
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	base, err := url.Parse(strings.TrimRight(host, "/"))
	if err != nil {
		return nil, fmt.Errorf("httpapi: parse host: %w", err)
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.Retries
	if cfg.Retries == 0 {
		rc.RetryMax = defaultRetries
	}
	if cfg.Retries < 0 {
		rc.RetryMax = 0
	}
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		rc.RetryWaitMax = cfg.RetryWaitMax
	}
	rc.Logger = nil
	if cfg.Logger != nil {
		rc.Logger = cfg.Logger
	}
	// Keep the last response so the server message reaches the caller.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	rc.HTTPClient.Timeout = timeout

	c := &Client{base: base, http: rc, observe: cfg.Observe, token: strings.TrimSpace(cfg.Token)}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	if c.token == "" {
		if cfg.Username == "" || cfg.Password == "" {
			return nil, core.ErrUnauthenticated
		}
		if err := c.login(ctx, cfg.Username, cfg.Password); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Driver implements core.Backend.
func (c *Client) Driver() core.Driver { return core.DriverHTTP }

func (c *Client) login(ctx context.Context, username, password string) error {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/v1/login", nil, "application/json", body, false)
	if err != nil {
		return c.requestError(http.MethodPost, "login", 0, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode/100 != 2 {
		return c.statusError(http.MethodPost, "login", 0, 0, resp)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("httpapi: decode login: %w", err)
	}
	if out.Token == "" {
		return core.ErrUnauthenticated
	}
	c.mu.Lock()
	c.token = out.Token
	c.loggedIn = true
	c.mu.Unlock()
	return nil
}

// Logout discards the token. Sessions opened by login are closed server side.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	loggedIn := c.loggedIn
	c.loggedIn = false
	c.mu.Unlock()
	var err error
	if loggedIn {
		var resp *http.Response
		resp, err = c.do(ctx, http.MethodPost, "/api/v1/logout", nil, "", nil, true)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode/100 != 2 {
				err = fmt.Errorf("httpapi: logout: status %d", resp.StatusCode)
			}
		}
	}
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	return err
}

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, contentType string, body []byte, auth bool) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	var payload any
	if body != nil {
		payload = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), payload)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if auth {
		token := c.currentToken()
		if token == "" {
			return nil, core.ErrUnauthenticated
		}
		req.Header.Set(tokenHeader, token)
	}
	resp, err := c.http.Do(req)
	if c.observe != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		c.observe(method, status)
	}
	return resp, err
}

func (c *Client) requestError(method string, table domain.Table, offset, size int, err error) *core.RequestError {
	wrapped := err
	if !errors.Is(err, core.ErrUnauthenticated) && !errors.Is(err, context.Canceled) {
		wrapped = fmt.Errorf("%w: %v", core.ErrTransport, err)
	}
	return &core.RequestError{Method: method, Table: table, Offset: offset, Size: size, Err: wrapped}
}

func (c *Client) statusError(method string, table domain.Table, offset, size int, resp *http.Response) *core.RequestError {
	msg := serverMessage(resp.Body)
	return &core.RequestError{
		Method:  method,
		Table:   table,
		Offset:  offset,
		Size:    size,
		Status:  resp.StatusCode,
		Message: msg,
		Err:     fmt.Errorf("status %d: %s", resp.StatusCode, msg),
	}
}

// serverMessage extracts errors[0].message from an error body, falling back
// to the raw (truncated) body.
func serverMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 64<<10))
	var body struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && len(body.Errors) > 0 && body.Errors[0].Message != "" {
		return body.Errors[0].Message
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > maxMessageLength {
		msg = msg[:maxMessageLength]
	}
	return msg
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
