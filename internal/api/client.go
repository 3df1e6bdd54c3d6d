// Package api is the client of the remote mission API: authentication, the
// three entity searches, form templates and form data submission.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"fieldmission/internal/logging"
	"fieldmission/internal/session"
	"fieldmission/pkg/domain"
)

// DefaultPageSize is the number of records requested per search.
const DefaultPageSize = 10

// ErrInvalidCredentials is returned when the server rejects a login.
var ErrInvalidCredentials = errors.New("invalid login or password")

// Client talks to the remote API with the bearer token of the stored session.
type Client struct {
	baseURL  string
	http     *http.Client
	sessions *session.Store
	limiter  *rate.Limiter
	pageSize int
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit throttles the search endpoints to perSecond requests.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithPageSize sets the search page size.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = logging.OrDiscard(l) } }

// New returns a client for baseURL.
func New(baseURL string, sessions *session.Store, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 15 * time.Second},
		sessions: sessions,
		pageSize: DefaultPageSize,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool           `json:"success"`
	Result  domain.Session `json:"result"`
}

// Login authenticates and stores the returned session.
func (c *Client) Login(ctx context.Context, login, password string) (domain.Session, error) {
	var resp loginResponse
	status, err := c.do(ctx, "/login", "", loginRequest{Login: login, Password: password}, &resp)
	if err != nil {
		if status == http.StatusUnauthorized {
			return domain.Session{}, &domain.NetworkError{Op: "login", Status: status, Err: ErrInvalidCredentials}
		}
		return domain.Session{}, err
	}
	if !resp.Success || resp.Result.Token == "" {
		return domain.Session{}, ErrInvalidCredentials
	}
	if err := c.sessions.Save(ctx, resp.Result); err != nil {
		return domain.Session{}, err
	}
	c.logger.Info("logged in", "user", resp.Result.User.Login)
	return resp.Result, nil
}

// Logout notifies the server and clears the local session whatever the
// server answers.
func (c *Client) Logout(ctx context.Context) error {
	sess, err := c.sessions.Require(ctx)
	if err != nil {
		return err
	}
	defer c.sessions.Clear(ctx)
	var resp struct {
		Success bool `json:"success"`
	}
	if _, err := c.do(ctx, "/logout", sess.Token, map[string]string{"id": sess.User.ID}, &resp); err != nil {
		c.logger.Warn("remote logout failed", "error", err)
		return err
	}
	return nil
}

// SaveFormData posts a submission. Local-only fields are stripped.
func (c *Client) SaveFormData(ctx context.Context, sub domain.Submission) error {
	sess, err := c.sessions.Require(ctx)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, "/form_data/", sess.Token, sub.Wire(), nil)
	return err
}

// QueryForms lists the form templates available to the agent.
func (c *Client) QueryForms(ctx context.Context, limit, page int) ([]domain.FormTemplate, error) {
	sess, err := c.sessions.Require(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = c.pageSize
	}
	if page <= 0 {
		page = 1
	}
	body := queryBody{Query: map[string]any{}, Options: queryOptions{SortBy: map[string]int{"createdAt": -1}}}
	var resp struct {
		Result []domain.FormTemplate `json:"result"`
	}
	if _, err := c.do(ctx, fmt.Sprintf("/form/query?limit=%d&page=%d", limit, page), sess.Token, body, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// do posts body as JSON and decodes a 2xx answer into out. The returned
// status is zero when no response arrived.
func (c *Client) do(ctx context.Context, path, token string, body, out any) (int, error) {
	op := "POST " + strings.SplitN(path, "?", 2)[0]
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build %s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, &domain.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	c.logger.Debug("api request", "op", op, "status", resp.StatusCode, "duration", time.Since(start))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		var cause error
		if s := strings.TrimSpace(string(msg)); s != "" {
			cause = errors.New(s)
		}
		return resp.StatusCode, &domain.NetworkError{Op: op, Status: resp.StatusCode, Err: cause}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, &domain.NetworkError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return resp.StatusCode, nil
}
