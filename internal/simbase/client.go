package simbase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	endpointSimcards = "/simcards"
	endpointUsage    = "/usage/simcards"
	endpointEvents   = "/events"
	endpointAccount  = "/account"
	endpointBalance  = "/account/balance"
)

// Config configures the API client.
type Config struct {
	BaseURL   string
	APIKey    string
	PageLimit int
	PageDelay time.Duration

	// HTTPClient overrides the shared connection handle, mainly for tests.
	HTTPClient *http.Client
}

// Client talks to the remote inventory API. One authenticated HTTP handle is
// shared across all calls; the client never retries on its own.
type Client struct {
	baseURL   string
	apiKey    string
	http      *http.Client
	log       *zap.Logger
	pageLimit int
	pageDelay time.Duration
}

func New(cfg Config, log *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrAuth
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 12 * time.Second}
	}
	pageLimit := cfg.PageLimit
	if pageLimit <= 0 {
		pageLimit = 100
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    strings.TrimSpace(cfg.APIKey),
		http:      httpClient,
		log:       log.Named("simbase"),
		pageLimit: pageLimit,
		pageDelay: cfg.PageDelay,
	}, nil
}

// request performs one authenticated call and decodes the JSON response.
// Status mapping: 401 -> ErrAuth, 429 -> ErrRateLimited, other non-2xx ->
// *APIError with status and body, network failure -> *APIError with status 0.
func (c *Client) request(
	ctx context.Context,
	method string,
	path string,
	query url.Values,
	body any,
) (any, error) {
	var bodyReader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(encoded)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.log.Debug("api request", zap.String("method", method), zap.String("path", path))

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error("connection error", zap.String("path", path), zap.Error(err))
		return nil, &APIError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrAuth
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: string(raw)}
		// 404 may be expected for optional endpoints.
		if apiErr.NotFound() {
			c.log.Debug("api endpoint not found", zap.String("path", path))
		} else {
			c.log.Error("api request failed",
				zap.String("path", path),
				zap.Int("status", resp.StatusCode),
			)
		}
		return nil, apiErr
	}

	var decoded any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, &APIError{Method: method, Path: path, Status: resp.StatusCode, Err: err}
	}
	return decoded, nil
}

// ListSimcards fetches one page of SIM cards.
func (c *Client) ListSimcards(ctx context.Context, cursor string, limit int) (any, error) {
	return c.requestPage(ctx, endpointSimcards, cursor, limit)
}

// ListAllSimcards fetches every SIM card across all pages.
func (c *Client) ListAllSimcards(ctx context.Context) ([]map[string]any, error) {
	return c.fetchAll(ctx, endpointSimcards, simcardPageSchema)
}

// GetSimcard fetches a single SIM card by ICCID.
func (c *Client) GetSimcard(ctx context.Context, iccid string) (map[string]any, error) {
	payload, err := c.request(ctx, http.MethodGet, endpointSimcards+"/"+iccid, nil, nil)
	if err != nil {
		return nil, err
	}
	return asObject(payload), nil
}

// ActivateSimcard enables a SIM card.
func (c *Client) ActivateSimcard(ctx context.Context, iccid string) error {
	_, err := c.request(ctx, http.MethodPost, endpointSimcards+"/"+iccid+"/activate", nil, nil)
	return err
}

// DeactivateSimcard disables a SIM card.
func (c *Client) DeactivateSimcard(ctx context.Context, iccid string) error {
	_, err := c.request(ctx, http.MethodPost, endpointSimcards+"/"+iccid+"/deactivate", nil, nil)
	return err
}

// SendSMS sends a text message to a SIM card.
func (c *Client) SendSMS(ctx context.Context, iccid, message string) error {
	body := map[string]any{"message": message}
	_, err := c.request(ctx, http.MethodPost, endpointSimcards+"/"+iccid+"/sms", nil, body)
	return err
}

// UpdateSimcard patches SIM card details. Nil name and nil tags leave the
// corresponding remote fields untouched.
func (c *Client) UpdateSimcard(ctx context.Context, iccid string, name *string, tags []string) error {
	body := map[string]any{}
	if name != nil {
		body["name"] = *name
	}
	if tags != nil {
		body["tags"] = tags
	}
	_, err := c.request(ctx, http.MethodPatch, endpointSimcards+"/"+iccid, nil, body)
	return err
}

// ListUsage fetches one page of usage records.
func (c *Client) ListUsage(ctx context.Context, cursor string, limit int) (any, error) {
	return c.requestPage(ctx, endpointUsage, cursor, limit)
}

// ListAllUsage fetches every usage record across all pages.
func (c *Client) ListAllUsage(ctx context.Context) ([]map[string]any, error) {
	return c.fetchAll(ctx, endpointUsage, usagePageSchema)
}

// GetEvents fetches account events, optionally filtered by a starting point.
func (c *Client) GetEvents(ctx context.Context, since, cursor string) (map[string]any, error) {
	query := url.Values{}
	if since != "" {
		query.Set("since", since)
	}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	payload, err := c.request(ctx, http.MethodGet, endpointEvents, query, nil)
	if err != nil {
		return nil, err
	}
	return asObject(payload), nil
}

// GetAccount fetches account metadata. The endpoint is optional: any remote
// failure degrades to an empty object.
func (c *Client) GetAccount(ctx context.Context) (map[string]any, error) {
	payload, err := c.request(ctx, http.MethodGet, endpointAccount, nil, nil)
	if err != nil {
		if IsAPIError(err) {
			c.log.Debug("account endpoint not available", zap.Error(err))
			return map[string]any{}, nil
		}
		return nil, err
	}
	return asObject(payload), nil
}

// GetBalance fetches the account balance. When the dedicated endpoint is
// unavailable it falls back to the balance field embedded in the account
// payload, then to an empty object.
func (c *Client) GetBalance(ctx context.Context) (map[string]any, error) {
	payload, err := c.request(ctx, http.MethodGet, endpointBalance, nil, nil)
	if err == nil {
		return asObject(payload), nil
	}
	if !IsAPIError(err) {
		return nil, err
	}

	account, accErr := c.GetAccount(ctx)
	if accErr == nil {
		if balance, ok := account["balance"]; ok {
			return map[string]any{"balance": balance}, nil
		}
	}
	c.log.Debug("balance endpoint not available", zap.Error(err))
	return map[string]any{}, nil
}

// ValidateAPIKey probes the API with a minimal request. Only an auth rejection
// proves the key invalid; other failures may still mean the key is fine.
func (c *Client) ValidateAPIKey(ctx context.Context) (bool, error) {
	_, err := c.ListSimcards(ctx, "", 1)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrAuth) {
		return false, nil
	}
	if IsAPIError(err) {
		return true, nil
	}
	return false, err
}

func (c *Client) requestPage(ctx context.Context, path, cursor string, limit int) (any, error) {
	if limit <= 0 {
		limit = c.pageLimit
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	return c.request(ctx, http.MethodGet, path, query, nil)
}

func asObject(payload any) map[string]any {
	if m, ok := payload.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
