package shopclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/itsneelabh/gomind-grocery/api"
	"github.com/itsneelabh/gomind-grocery/cart"
	"github.com/itsneelabh/gomind-grocery/catalog"
	"github.com/itsneelabh/gomind-grocery/core"
	"github.com/itsneelabh/gomind-grocery/order"
	"github.com/itsneelabh/gomind-grocery/resilience"
	"github.com/itsneelabh/gomind-grocery/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() *resilience.RetryConfig {
	return &resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2}
}

func newShop(t *testing.T) *httptest.Server {
	t.Helper()
	cat := catalog.Default()
	store := session.NewMemoryStore()
	srv := httptest.NewServer(api.NewRouter(api.Deps{
		Catalog: cat,
		Cart:    cart.NewService(cat, store),
		Orders:  order.NewService(cat, store),
		Health:  store,
	}, nil))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_AgainstAPI(t *testing.T) {
	srv := newShop(t)
	c, err := New(core.ShopAPIConfig{BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	ctx := context.Background()

	cats, err := c.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Fruits", "Vegetables", "Dairy"}, cats)

	items, err := c.Items(ctx, "Vegetables")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	item, err := c.Item(ctx, 6)
	require.NoError(t, err)
	assert.Equal(t, "Curd", item.Name)

	lines, err := c.AddToCart(ctx, "user one", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []session.CartLine{{ItemID: 1, Name: "Banana", Quantity: 3}}, lines)

	lines, err = c.Cart(ctx, "user one")
	require.NoError(t, err)
	assert.Len(t, lines, 1)

	o, err := c.ConfirmOrder(ctx, "user one")
	require.NoError(t, err)
	assert.Equal(t, 60.0, o.TotalAmount)

	_, err = c.RemoveFromCart(ctx, "user one", 1)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "ITEM_NOT_IN_CART", apiErr.Code)
	assert.Equal(t, "Item not found in cart", apiErr.Detail)
}

func TestClient_RetriesReadsOnUnavailable(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"detail":"Session store unavailable","code":"STORE_UNAVAILABLE"}`))
			return
		}
		_, _ = w.Write([]byte(`{"categories":["Fruits"]}`))
	}))
	defer srv.Close()

	c, err := New(core.ShopAPIConfig{BaseURL: srv.URL}, WithRetry(fastRetry()))
	require.NoError(t, err)

	cats, err := c.Categories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Fruits"}, cats)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestClient_DoesNotRetryWritesOrClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := New(core.ShopAPIConfig{BaseURL: srv.URL}, WithRetry(fastRetry()))
	require.NoError(t, err)

	_, err = c.AddToCart(context.Background(), "u", 1, 1)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Service Unavailable", apiErr.Detail)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestClient_NotFoundIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Item not found","code":"ITEM_NOT_FOUND"}`))
	}))
	defer srv.Close()

	c, err := New(core.ShopAPIConfig{BaseURL: srv.URL}, WithRetry(fastRetry()))
	require.NoError(t, err)

	_, err = c.Item(context.Background(), 42)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "ITEM_NOT_FOUND", apiErr.Code)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestClient_CircuitBreaker(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := resilience.DefaultConfig()
	cfg.Name = "shop-api"
	cfg.FailureThreshold = 2
	cfg.ErrorClassifier = BreakerClassifier
	cb, err := resilience.NewCircuitBreaker(cfg)
	require.NoError(t, err)

	c, err := New(core.ShopAPIConfig{BaseURL: srv.URL}, WithCircuitBreaker(cb), WithRetry(fastRetry()))
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.ConfirmOrder(ctx, "u")
		require.Error(t, err)
	}
	_, err = c.ConfirmOrder(ctx, "u")
	assert.ErrorIs(t, err, core.ErrCircuitBreakerOpen)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestBreakerClassifier(t *testing.T) {
	assert.False(t, BreakerClassifier(&APIError{Status: 404}))
	assert.False(t, BreakerClassifier(&APIError{Status: 400}))
	assert.True(t, BreakerClassifier(&APIError{Status: 503}))
	assert.True(t, BreakerClassifier(errors.New("connection reset")))
}

func TestClient_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(core.ShopAPIConfig{BaseURL: url}, WithRetry(fastRetry()))
	require.NoError(t, err)

	_, err = c.Categories(context.Background())
	assert.ErrorIs(t, err, core.ErrConnectionFailed)
	assert.ErrorIs(t, err, core.ErrMaxRetriesExceeded)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(core.ShopAPIConfig{})
	assert.ErrorIs(t, err, core.ErrMissingConfiguration)

	_, err = New(core.ShopAPIConfig{BaseURL: "localhost"})
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
}
