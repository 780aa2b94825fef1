package bling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blingsync/backend/internal/infrastructure/config"
)

// maxResponseSize is the maximum allowed response size from the ERP API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// TokenSource supplies a valid access token for a tenant and invalidates
// a cached token the API has rejected
type TokenSource interface {
	Token(ctx context.Context, tenantID uuid.UUID) (string, error)
	Invalidate(tenantID uuid.UUID)
}

// Client is the rate-limited HTTP client for the Bling ERP API.
// Every request passes the shared token bucket; transient failures are
// retried with exponential backoff; a 401 invalidates the cached token and
// retries once with a freshly coordinated one.
type Client struct {
	baseURL    string
	tokenURL   string
	httpClient *http.Client
	limiter    *rateLimiter
	tokens     TokenSource
	config     *config.BlingConfig
	logger     *zap.Logger
}

// NewClient creates a new ERP API client
func NewClient(cfg *config.BlingConfig, tokens TokenSource, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		tokenURL:   cfg.TokenURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    newRateLimiter(cfg.RequestsPerSecond, cfg.Burst),
		tokens:     tokens,
		config:     cfg,
		logger:     logger,
	}
}

// GetProduct fetches one product by its remote ID
func (c *Client) GetProduct(ctx context.Context, tenantID uuid.UUID, productID string) (*Product, error) {
	if err := validateNumericID(productID); err != nil {
		return nil, err
	}
	var product Product
	if err := c.get(ctx, tenantID, "/produtos/"+productID, nil, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// ListProducts fetches one page of the product catalog
func (c *Client) ListProducts(ctx context.Context, tenantID uuid.UUID, page, pageSize int) (*ProductPage, error) {
	query := url.Values{}
	query.Set("pagina", strconv.Itoa(page))
	query.Set("limite", strconv.Itoa(pageSize))

	var result ProductPage
	if err := c.get(ctx, tenantID, "/produtos", query, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PullOrders fetches one page of orders created since the given cursor
func (c *Client) PullOrders(ctx context.Context, tenantID uuid.UUID, since string, page int) (*OrderPage, error) {
	query := url.Values{}
	query.Set("pagina", strconv.Itoa(page))
	if since != "" {
		query.Set("dataInicial", since)
	}

	var result OrderPage
	if err := c.get(ctx, tenantID, "/pedidos/vendas", query, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetStock fetches the stock balance for one product
func (c *Client) GetStock(ctx context.Context, tenantID uuid.UUID, productID string) (*Stock, error) {
	if err := validateNumericID(productID); err != nil {
		return nil, err
	}
	var stock Stock
	if err := c.get(ctx, tenantID, "/estoques/"+productID, nil, &stock); err != nil {
		return nil, err
	}
	return &stock, nil
}

// RefreshToken exchanges a refresh token for a new credential pair.
// It bypasses the TokenSource since it is what the token coordinator calls.
func (c *Client) RefreshToken(ctx context.Context, clientID, clientSecret, refreshToken string) (*TokenResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(clientID, clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bling: token refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
			return nil, fmt.Errorf("%w: token refresh rejected (%d)", ErrUnauthorized, resp.StatusCode)
		}
		return nil, c.responseError(resp.StatusCode, body)
	}

	var token TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("bling: failed to decode token response: %w", err)
	}
	return &token, nil
}

// get performs an authenticated GET with rate limiting and retries
func (c *Client) get(ctx context.Context, tenantID uuid.UUID, path string, query url.Values, out interface{}) error {
	operation := func() error {
		err := c.doOnce(ctx, tenantID, path, query, out)
		if err == nil {
			return nil
		}

		// one coordinated refresh-and-retry on a rejected token
		if errors.Is(err, ErrUnauthorized) {
			c.tokens.Invalidate(tenantID)
			if retryErr := c.doOnce(ctx, tenantID, path, query, out); retryErr == nil {
				return nil
			} else if errors.Is(retryErr, ErrUnauthorized) {
				return backoff.Permanent(retryErr)
			} else {
				err = retryErr
			}
		}

		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.config.RetryBaseDelay
	policy.MaxInterval = c.config.RetryMaxDelay
	policy.MaxElapsedTime = 0

	withRetries := backoff.WithMaxRetries(policy, uint64(c.config.MaxRetries))
	return backoff.Retry(operation, backoff.WithContext(withRetries, ctx))
}

// doOnce performs a single authenticated request attempt
func (c *Client) doOnce(ctx context.Context, tenantID uuid.UUID, path string, query url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	token, err := c.tokens.Token(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("bling: failed to obtain access token: %w", err)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bling: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return c.responseError(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("bling: failed to decode response: %w", err)
	}
	return nil
}

// responseError maps an HTTP failure to the error taxonomy
func (c *Client) responseError(statusCode int, body []byte) error {
	switch {
	case statusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case statusCode == http.StatusNotFound:
		return ErrNotFound
	case statusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case statusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrServerError, statusCode)
	}

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return &APIError{StatusCode: statusCode, Code: parsed.Error.Code, Message: parsed.Error.Message}
	}
	return &APIError{StatusCode: statusCode, Message: http.StatusText(statusCode)}
}

// validateNumericID validates that a string is a valid numeric remote ID
func validateNumericID(id string) error {
	if id == "" {
		return &APIError{StatusCode: http.StatusBadRequest, Message: "empty product ID"}
	}
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return &APIError{StatusCode: http.StatusBadRequest, Message: "invalid product ID: " + id}
	}
	return nil
}
