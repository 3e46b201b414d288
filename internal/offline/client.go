package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"goodsale/backend/internal/domain"
	"goodsale/backend/internal/money"
)

var (
	// ErrNetwork covers failures worth retrying later: no connection,
	// timeouts, 5xx, 409 and 429.
	ErrNetwork = errors.New("offline: server unavailable")
	// ErrRejected means the server refused the request for good.
	ErrRejected = errors.New("offline: rejected by server")
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
	Retry   bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server answered %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	if transientStatus(e.Status) || e.Retry {
		return ErrNetwork
	}
	return ErrRejected
}

func transientStatus(status int) bool {
	return status >= 500 || status == http.StatusConflict || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout
}

// Client talks to the backend on behalf of one cashier. It logs in lazily and
// refreshes its token and CSRF token once when the server refuses them.
type Client struct {
	baseURL  string
	http     *http.Client
	username string
	password string

	mu    sync.Mutex
	token string
	csrf  string
}

func NewClient(baseURL string, httpClient *http.Client, username, password string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     httpClient,
		username: username,
		password: password,
	}
}

func (c *Client) Login(ctx context.Context) error {
	var resp domain.LoginResponse
	if err := c.send(ctx, http.MethodPost, "/api/v1/auth/login", "", "", domain.LoginRequest{Username: c.username, Password: c.password}, &resp); err != nil {
		return fmt.Errorf("login %s: %w", c.username, err)
	}
	var csrf struct {
		Token string `json:"csrf_token"`
	}
	if err := c.send(ctx, http.MethodGet, "/api/v1/auth/csrf-token", "", "", nil, &csrf); err != nil {
		return fmt.Errorf("fetch csrf token: %w", err)
	}

	c.mu.Lock()
	c.token = resp.AccessToken
	c.csrf = csrf.Token
	c.mu.Unlock()
	return nil
}

// Ping checks that the server answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.send(ctx, http.MethodGet, "/healthz", "", "", nil, nil)
}

func (c *Client) PostSale(ctx context.Context, draft domain.SaleDraft) (domain.SaleResponse, error) {
	var resp domain.SaleResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/sales", draft, &resp)
	return resp, err
}

func (c *Client) OpenShift(ctx context.Context, startingCash money.Amount) (domain.Shift, error) {
	var resp domain.ShiftResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/shifts", domain.ShiftOpenRequest{StartingCashCents: startingCash.Cents()}, &resp)
	return resp.Shift, err
}

func (c *Client) ActiveShift(ctx context.Context) (domain.Shift, error) {
	var resp domain.ShiftResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/shifts/active", nil, &resp)
	return resp.Shift, err
}

func (c *Client) Shift(ctx context.Context, shiftID string) (domain.Shift, error) {
	var resp domain.ShiftResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/shifts/"+shiftID, nil, &resp)
	return resp.Shift, err
}

func (c *Client) CloseShift(ctx context.Context, shiftID string, actualCash money.Amount, notes string) (domain.Shift, error) {
	var resp domain.ShiftResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/shifts/"+shiftID+"/close", domain.ShiftCloseRequest{ActualCashCents: actualCash.Cents(), Notes: notes}, &resp)
	return resp.Shift, err
}

// do sends an authenticated request, logging in first when needed and once
// more if the server refuses the token or the CSRF token.
func (c *Client) do(ctx context.Context, method, path string, body any, dest any) error {
	token, csrf := c.credentials()
	if token == "" {
		if err := c.Login(ctx); err != nil {
			return err
		}
		token, csrf = c.credentials()
	}

	err := c.send(ctx, method, path, token, csrf, body, dest)
	if !sessionExpired(err) {
		return err
	}
	if err := c.Login(ctx); err != nil {
		return err
	}
	token, csrf = c.credentials()
	return c.send(ctx, method, path, token, csrf, body, dest)
}

func (c *Client) credentials() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, c.csrf
}

func sessionExpired(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusUnauthorized ||
		(apiErr.Status == http.StatusForbidden && strings.Contains(apiErr.Message, "CSRF"))
}

func (c *Client) send(ctx context.Context, method, path, token, csrf string, body any, dest any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var failure struct {
			Error string `json:"error"`
			Retry bool   `json:"retry"`
		}
		_ = json.NewDecoder(io.LimitReader(res.Body, 1<<16)).Decode(&failure)
		return &APIError{Status: res.StatusCode, Message: failure.Error, Retry: failure.Retry}
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(dest); err != nil {
		return fmt.Errorf("%w: decode %s %s: %v", ErrNetwork, method, path, err)
	}
	return nil
}
