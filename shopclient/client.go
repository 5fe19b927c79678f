// Package shopclient is a typed HTTP client for the grocery REST API.
//
// Requests carry W3C trace context and the correlation id. Reads are
// retried on transport errors and 5xx responses; writes are sent once,
// since adding to a cart twice is not harmless. All calls share one
// circuit breaker when one is configured.
package shopclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/itsneelabh/gomind-grocery/catalog"
	"github.com/itsneelabh/gomind-grocery/core"
	"github.com/itsneelabh/gomind-grocery/order"
	"github.com/itsneelabh/gomind-grocery/resilience"
	"github.com/itsneelabh/gomind-grocery/session"
	"github.com/itsneelabh/gomind-grocery/telemetry"
)

// APIError is a non-2xx reply from the shop API.
type APIError struct {
	Status int    `json:"-"`
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("shop api %d %s: %s", e.Status, e.Code, e.Detail)
	}
	return fmt.Sprintf("shop api %d: %s", e.Status, e.Detail)
}

// Temporary reports whether the request may succeed if repeated.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusBadGateway ||
		e.Status == http.StatusServiceUnavailable ||
		e.Status == http.StatusGatewayTimeout
}

// Client calls the shop API.
type Client struct {
	baseURL string
	http    *http.Client
	retry   *resilience.RetryConfig
	breaker *resilience.CircuitBreaker
	logger  core.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the traced default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetry sets the retry policy for reads.
func WithRetry(cfg *resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithCircuitBreaker guards every call with cb.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

func WithLogger(logger core.Logger) Option {
	return func(c *Client) {
		if logger == nil {
			return
		}
		if cal, ok := logger.(core.ComponentAwareLogger); ok {
			logger = cal.WithComponent("grocery/shopclient")
		}
		c.logger = logger
	}
}

// New creates a client for cfg.BaseURL.
func New(cfg core.ShopAPIConfig, opts ...Option) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("shop API base URL is required: %w", core.ErrMissingConfiguration)
	}
	if u, err := url.Parse(base); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid shop API base URL %q: %w", cfg.BaseURL, core.ErrInvalidConfiguration)
	}

	hc := telemetry.NewTracedHTTPClient(telemetry.WithCorrelation(nil))
	if cfg.Timeout > 0 {
		hc.Timeout = cfg.Timeout
	} else {
		hc.Timeout = 10 * time.Second
	}

	c := &Client{
		baseURL: base,
		http:    hc,
		retry:   resilience.DefaultRetryConfig(),
		logger:  &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BreakerClassifier counts transport failures and 5xx replies against the
// circuit; 4xx replies are the caller's problem, not the API's.
func BreakerClassifier(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError
	}
	return resilience.DefaultErrorClassifier(err)
}

func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return errors.Is(err, core.ErrConnectionFailed)
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	send := func() error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("%s %s: %v: %w", method, path, err, core.ErrConnectionFailed)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			apiErr := &APIError{Status: resp.StatusCode}
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
			if json.Unmarshal(data, apiErr) != nil || apiErr.Detail == "" {
				apiErr.Detail = http.StatusText(resp.StatusCode)
			}
			return apiErr
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s %s response: %w", method, path, err)
		}
		return nil
	}

	call := send
	if c.breaker != nil {
		call = func() error { return c.breaker.Execute(ctx, send) }
	}

	var err error
	if method == http.MethodGet && c.retry != nil {
		cfg := *c.retry
		cfg.RetryIf = retryable
		err = resilience.Retry(ctx, &cfg, call)
	} else {
		err = call()
	}
	if err != nil {
		c.logger.DebugWithContext(ctx, "Shop API call failed", map[string]interface{}{
			"method": method,
			"path":   path,
			"error":  err.Error(),
		})
	}
	return err
}

// Categories lists category names.
func (c *Client) Categories(ctx context.Context) ([]string, error) {
	var out struct {
		Categories []string `json:"categories"`
	}
	if err := c.do(ctx, http.MethodGet, "/getAllCategories", nil, &out); err != nil {
		return nil, err
	}
	return out.Categories, nil
}

// Items lists the items of a category.
func (c *Client) Items(ctx context.Context, category string) ([]catalog.Item, error) {
	var out struct {
		Items []catalog.Item `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/getAllItems/"+url.PathEscape(category), nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Item fetches one item.
func (c *Client) Item(ctx context.Context, id int) (catalog.Item, error) {
	var out struct {
		Item catalog.Item `json:"item"`
	}
	if err := c.do(ctx, http.MethodGet, "/getItemInfo/"+strconv.Itoa(id), nil, &out); err != nil {
		return catalog.Item{}, err
	}
	return out.Item, nil
}

type cartReply struct {
	Cart []session.CartLine `json:"cart"`
}

// AddToCart adds quantity of itemID and returns the cart.
func (c *Client) AddToCart(ctx context.Context, userID string, itemID int, quantity float64) ([]session.CartLine, error) {
	in := map[string]interface{}{"user_id": userID, "item_id": itemID, "quantity": quantity}
	var out cartReply
	if err := c.do(ctx, http.MethodPost, "/cart/add", in, &out); err != nil {
		return nil, err
	}
	return out.Cart, nil
}

// RemoveFromCart drops the line for itemID and returns the cart.
func (c *Client) RemoveFromCart(ctx context.Context, userID string, itemID int) ([]session.CartLine, error) {
	in := map[string]interface{}{"user_id": userID, "item_id": itemID}
	var out cartReply
	if err := c.do(ctx, http.MethodPost, "/cart/remove", in, &out); err != nil {
		return nil, err
	}
	return out.Cart, nil
}

// Cart returns the user's cart.
func (c *Client) Cart(ctx context.Context, userID string) ([]session.CartLine, error) {
	var out cartReply
	q := url.Values{"user_id": {userID}}
	if err := c.do(ctx, http.MethodGet, "/cart?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Cart, nil
}

// ConfirmOrder confirms the user's cart.
func (c *Client) ConfirmOrder(ctx context.Context, userID string) (*order.Order, error) {
	var out order.Order
	if err := c.do(ctx, http.MethodPost, "/order/confirm", map[string]string{"user_id": userID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
