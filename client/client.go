// Package client is the authenticated HTTP client for the planner backend.
//
// Every request carries the stored access token. A 401 answer triggers one
// coordinated refresh through the RefreshCoordinator and a single retry; when
// the session cannot be recovered it is cleared, an unauthenticated event is
// published and the caller gets an error matching core.ErrUnauthenticated.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/planclient/adapters/events"
	"github.com/layer-3/planclient/core"
	"github.com/layer-3/planclient/ports"
	"github.com/layer-3/planclient/tokenstore"
)

const (
	// DefaultTimeout bounds every request attempt
	DefaultTimeout = 15 * time.Second
	// DefaultBaseURL is the local development backend
	DefaultBaseURL = "http://localhost:3000"

	RefreshPath = "/api/auth/refresh"

	headerRequestID = "X-Request-ID"
)

// Config configures a Client. Zero values fall back to defaults.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	RefreshTimeout time.Duration
	HTTPClient     *http.Client
	Logger         *slog.Logger
	Publisher      ports.EventPublisher
	// Coordinator may be shared between clients that share a token store
	Coordinator *RefreshCoordinator
	Metrics     *Metrics
}

// Client performs authenticated requests against the planner backend
type Client struct {
	baseURL        string
	timeout        time.Duration
	refreshTimeout time.Duration
	http           *http.Client
	tokens         *tokenstore.Store
	coord          *RefreshCoordinator
	events         ports.EventPublisher
	log            *slog.Logger
	metrics        *Metrics
}

// New creates a Client that reads and writes credentials through tokens
func New(tokens *tokenstore.Store, cfg Config) (*Client, error) {
	if tokens == nil {
		return nil, errors.New("token store is required")
	}

	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", base)
	}

	c := &Client{
		baseURL:        strings.TrimRight(base, "/"),
		timeout:        cfg.Timeout,
		refreshTimeout: cfg.RefreshTimeout,
		http:           cfg.HTTPClient,
		tokens:         tokens,
		coord:          cfg.Coordinator,
		events:         cfg.Publisher,
		log:            cfg.Logger,
		metrics:        cfg.Metrics,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.refreshTimeout <= 0 {
		c.refreshTimeout = c.timeout
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.coord == nil {
		c.coord = NewRefreshCoordinator()
	}
	if c.events == nil {
		c.events = events.NopPublisher{}
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c, nil
}

// Request describes one API call
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Header http.Header

	// SkipRefresh returns a 401 to the caller without touching the session.
	// Login and register use it: a 401 there means bad credentials.
	SkipRefresh bool
}

// RequestOption adjusts a Request built by Client.Request
type RequestOption func(*Request)

// WithQuery adds query parameters
func WithQuery(q url.Values) RequestOption {
	return func(r *Request) { r.Query = q }
}

// WithHeader sets an extra request header
func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		if r.Header == nil {
			r.Header = http.Header{}
		}
		r.Header.Set(key, value)
	}
}

// WithoutRefresh disables 401 recovery for the request
func WithoutRefresh() RequestOption {
	return func(r *Request) { r.SkipRefresh = true }
}

// Response is a successful (2xx) answer
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the {"data": ...} envelope into out
func (r *Response) Decode(out any) error {
	return decodeEnvelope(r.Body, out)
}

// Request sends body as JSON and decodes the response payload into out.
// out may be nil when the caller does not need the payload.
func (c *Client) Request(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error {
	req := &Request{Method: method, Path: path, Body: body}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

// Do performs req, recovering once from an expired access token.
// Non-2xx answers are returned as *core.APIError.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	payload, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}
	requestID := uuid.NewString()

	token := c.tokens.AccessToken(ctx)
	resp, err := c.send(ctx, req, payload, token, requestID)
	if req.SkipRefresh || core.StatusCode(err) != http.StatusUnauthorized {
		return resp, err
	}

	token, err = c.recoverToken(ctx, token, err)
	if err != nil {
		return nil, err
	}

	// The request is now marked retried: a second 401 goes back to the caller
	return c.send(ctx, req, payload, token, requestID)
}

// Refresh forces a token refresh through the coordinator
func (c *Client) Refresh(ctx context.Context) (string, error) {
	if c.tokens.RefreshToken(ctx) == "" {
		return "", fmt.Errorf("%w: %w", core.ErrUnauthenticated, core.ErrNoRefreshToken)
	}
	current := c.tokens.AccessToken(ctx)
	return c.coord.Refresh(ctx, current, c.currentToken(ctx), c.refreshStored)
}

// Refreshing reports whether a token refresh is in flight
func (c *Client) Refreshing() bool {
	return c.coord.InFlight()
}

// Tokens returns the session store used by the client
func (c *Client) Tokens() *tokenstore.Store {
	return c.tokens
}

// Coordinator returns the refresh coordinator used by the client
func (c *Client) Coordinator() *RefreshCoordinator {
	return c.coord
}

func (c *Client) currentToken(ctx context.Context) func() string {
	return func() string { return c.tokens.AccessToken(ctx) }
}

// recoverToken handles a 401 for a request sent with stale
func (c *Client) recoverToken(ctx context.Context, stale string, cause error) (string, error) {
	if c.tokens.RefreshToken(ctx) == "" {
		c.terminate(ctx, "no refresh token")
		return "", fmt.Errorf("%w: %w: %w", core.ErrUnauthenticated, core.ErrNoRefreshToken, cause)
	}

	token, err := c.coord.Refresh(ctx, stale, c.currentToken(ctx), c.refreshStored)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return "", fmt.Errorf("waiting for token refresh: %w", err)
		}
		return "", err
	}
	return token, nil
}

// refreshStored refreshes with the refresh token stored when the refresh
// starts. An empty store means an earlier failed refresh already cleared the
// session, so the endpoint is not called and no second event is published.
func (c *Client) refreshStored(ctx context.Context) (string, error) {
	refreshToken := c.tokens.RefreshToken(ctx)
	if refreshToken == "" {
		return "", fmt.Errorf("%w: %w", core.ErrUnauthenticated, core.ErrNoRefreshToken)
	}
	return c.refresh(ctx, refreshToken)
}

// refresh calls the refresh endpoint. It runs detached from the caller's
// cancellation since queued requests depend on its outcome.
func (c *Client) refresh(ctx context.Context, refreshToken string) (string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
	defer cancel()

	payload, err := json.Marshal(core.RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return "", err
	}

	req := &Request{Method: http.MethodPost, Path: RefreshPath}
	resp, err := c.send(ctx, req, payload, "", uuid.NewString())

	var result core.RefreshResult
	if err == nil {
		if decodeErr := resp.Decode(&result); decodeErr != nil {
			err = decodeErr
		} else if result.AccessToken == "" {
			err = fmt.Errorf("%w: refresh response has no access token", core.ErrMalformedResponse)
		}
	}

	if err != nil {
		outcome := OutcomeFailed
		if status := core.StatusCode(err); status == http.StatusUnauthorized || status == http.StatusForbidden {
			outcome = OutcomeRejected
			err = fmt.Errorf("%w: %w", core.ErrRefreshRejected, err)
		}
		c.metrics.observeRefresh(outcome)
		c.log.Warn("auth.refresh_failed", "outcome", outcome, "err", err)
		c.terminate(ctx, "refresh "+outcome)
		return "", fmt.Errorf("%w: %w: %w", core.ErrUnauthenticated, core.ErrRefreshFailed, err)
	}

	if result.RefreshToken != "" {
		err = c.tokens.SetTokens(ctx, core.Tokens{AccessToken: result.AccessToken, RefreshToken: result.RefreshToken})
	} else {
		err = c.tokens.SetAccessToken(ctx, result.AccessToken)
	}
	if err != nil {
		c.log.Error("auth.refresh_store_failed", "err", err)
	}

	c.metrics.observeRefresh(OutcomeSuccess)
	c.log.Info("auth.refreshed", "rotated", result.RefreshToken != "")
	return result.AccessToken, nil
}

// terminate drops the session and tells the application to send the user to login
func (c *Client) terminate(ctx context.Context, reason string) {
	if err := c.tokens.Clear(ctx); err != nil {
		c.log.Error("auth.session_clear_failed", "err", err)
	}
	c.metrics.observeSessionCleared(reason)
	if err := c.events.PublishUnauthenticated(ctx, reason); err != nil {
		c.log.Error("auth.unauthenticated_publish_failed", "err", err)
	}
	c.log.Warn("auth.session_cleared", "reason", reason)
}

// send performs a single attempt
func (c *Client) send(ctx context.Context, req *Request, payload []byte, token, requestID string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.resolve(req), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(headerRequestID, requestID)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.observeRequest(req.Method, 0)
		c.log.Debug("http.request_failed", "method", req.Method, "path", req.Path, "request_id", requestID, "err", err)
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.observeRequest(req.Method, resp.StatusCode)
		return nil, transportError(fmt.Errorf("failed to read response: %w", err))
	}

	c.metrics.observeRequest(req.Method, resp.StatusCode)
	c.log.Debug("http.request",
		"method", req.Method,
		"path", req.Path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
		"request_id", requestID,
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(resp.StatusCode, raw)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: raw}, nil
}

func (c *Client) resolve(req *Request) string {
	target := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) == 0 {
		return target
	}
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + req.Query.Encode()
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return payload, nil
}

func transportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", core.ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", core.ErrTimeout, err)
	}
	return err
}

func newAPIError(status int, body []byte) *core.APIError {
	apiErr := &core.APIError{StatusCode: status, Body: body}

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		apiErr.Message = payload.Message
		if apiErr.Message == "" {
			apiErr.Message = payload.Error
		}
	}
	return apiErr
}

// decodeEnvelope reads the "data" member of a JSON object body, or the whole
// body when there is no such member. A null "data" leaves out untouched.
func decodeEnvelope(body []byte, out any) error {
	if out == nil {
		return nil
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil
	}

	payload := body
	if body[0] == '{' {
		var env map[string]json.RawMessage
		if err := json.Unmarshal(body, &env); err != nil {
			return fmt.Errorf("%w: %v", core.ErrMalformedResponse, err)
		}
		if data, ok := env["data"]; ok {
			if string(data) == "null" {
				return nil
			}
			payload = data
		}
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: %v", core.ErrMalformedResponse, err)
	}
	return nil
}
