package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/itsneelabh/gomind-grocery/cart"
	"github.com/itsneelabh/gomind-grocery/catalog"
	"github.com/itsneelabh/gomind-grocery/core"
	"github.com/itsneelabh/gomind-grocery/order"
	"github.com/itsneelabh/gomind-grocery/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, store session.Store) http.Handler {
	t.Helper()
	cat := catalog.Default()
	return NewRouter(Deps{
		Catalog: cat,
		Cart:    cart.NewService(cat, store),
		Orders:  order.NewService(cat, store),
		Health:  store,
	}, core.DefaultConfig())
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e), rec.Body.String())
	return e
}

func TestCatalogRoutes(t *testing.T) {
	h := newTestRouter(t, session.NewMemoryStore())

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
		wantCode   string
	}{
		{"categories", "/getAllCategories", 200, `{"categories":["Fruits","Vegetables","Dairy"]}`, ""},
		{"items", "/getAllItems/Dairy", 200,
			`{"items":[{"id":5,"name":"Milk","price":50,"unit":"liter"},{"id":6,"name":"Curd","price":40,"unit":"kg"}]}`, ""},
		{"unknown category", "/getAllItems/Meat", 404, "", "CATEGORY_NOT_FOUND"},
		{"item", "/getItemInfo/3", 200, `{"item":{"id":3,"name":"Carrot","price":15,"unit":"kg"}}`, ""},
		{"unknown item", "/getItemInfo/99", 404, "", "ITEM_NOT_FOUND"},
		{"bad item id", "/getItemInfo/abc", 400, "", "INVALID_ITEM_ID"},
		{"unknown route", "/nope", 404, "", "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tt.path, "")
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
			}
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
			}
		})
	}
}

func TestCartAndOrderFlow(t *testing.T) {
	h := newTestRouter(t, session.NewMemoryStore())

	rec := do(t, h, http.MethodGet, "/cart?user_id=alice", "")
	require.Equal(t, 200, rec.Code)
	assert.JSONEq(t, `{"cart":[]}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/cart/add", `{"user_id":"alice","item_id":1,"quantity":2}`)
	require.Equal(t, 200, rec.Code)
	rec = do(t, h, http.MethodPost, "/cart/add", `{"user_id":"alice","item_id":1,"quantity":1}`)
	require.Equal(t, 200, rec.Code)
	assert.JSONEq(t, `{"cart":[{"item_id":1,"name":"Banana","quantity":3}]}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/cart?user_id=alice", "")
	assert.JSONEq(t, `{"cart":[{"item_id":1,"name":"Banana","quantity":3}]}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/order/confirm", `{"user_id":"alice"}`)
	require.Equal(t, 200, rec.Code)
	var o order.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	assert.Equal(t, "Order confirmed!", o.Message)
	assert.Equal(t, 60.0, o.TotalAmount)
	assert.Len(t, o.Items, 1)
	assert.Len(t, o.OrderID, 36)

	rec = do(t, h, http.MethodPost, "/order/confirm", `{"user_id":"alice"}`)
	assert.Equal(t, 400, rec.Code)
	assert.Equal(t, ErrorResponse{Detail: "Cart is empty", Code: "EMPTY_CART"}, decodeError(t, rec))
}

func TestCartErrors(t *testing.T) {
	h := newTestRouter(t, session.NewMemoryStore())

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantDetail string
		wantCode   string
	}{
		{"unknown item", "POST", "/cart/add", `{"user_id":"u","item_id":99,"quantity":1}`, 404, "Item not found", "ITEM_NOT_FOUND"},
		{"zero quantity", "POST", "/cart/add", `{"user_id":"u","item_id":1,"quantity":0}`, 400, "Quantity must be a positive number", "INVALID_QUANTITY"},
		{"missing quantity", "POST", "/cart/add", `{"user_id":"u","item_id":1}`, 400, "item_id and quantity are required", "INVALID_REQUEST"},
		{"string item id", "POST", "/cart/add", `{"user_id":"u","item_id":"one","quantity":1}`, 400, "", "INVALID_REQUEST"},
		{"malformed json", "POST", "/cart/add", `{`, 400, "", "INVALID_REQUEST"},
		{"blank user", "POST", "/cart/add", `{"user_id":"","item_id":1,"quantity":1}`, 400, "user_id is required", "INVALID_USER_ID"},
		{"remove absent", "POST", "/cart/remove", `{"user_id":"u","item_id":1}`, 404, "Item not found in cart", "ITEM_NOT_IN_CART"},
		{"remove missing id", "POST", "/cart/remove", `{"user_id":"u"}`, 400, "item_id is required", "INVALID_REQUEST"},
		{"view without user", "GET", "/cart", "", 400, "user_id is required", "INVALID_USER_ID"},
		{"confirm without user", "POST", "/order/confirm", `{}`, 400, "user_id is required", "INVALID_USER_ID"},
		{"wrong method", "GET", "/cart/add", "", 405, "Method Not Allowed", "METHOD_NOT_ALLOWED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			e := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, e.Code)
			if tt.wantDetail != "" {
				assert.Equal(t, tt.wantDetail, e.Detail)
			}
		})
	}
}

func TestHugeQuantities(t *testing.T) {
	h := newTestRouter(t, session.NewMemoryStore())

	require.Equal(t, 200, do(t, h, "POST", "/cart/add", `{"user_id":"u","item_id":5,"quantity":1e307}`).Code)

	rec := do(t, h, "POST", "/order/confirm", `{"user_id":"u"}`)
	assert.Equal(t, 400, rec.Code)
	assert.Equal(t, "INVALID_QUANTITY", decodeError(t, rec).Code)

	rec = do(t, h, "POST", "/cart/add", `{"user_id":"u","item_id":5,"quantity":1.7e308}`)
	assert.Equal(t, 400, rec.Code)
	assert.Equal(t, "INVALID_QUANTITY", decodeError(t, rec).Code)

	rec = do(t, h, "GET", "/cart?user_id=u", "")
	assert.JSONEq(t, `{"cart":[{"item_id":5,"name":"Milk","quantity":1e307}]}`, rec.Body.String())
}

func TestRemoveThenConfirm(t *testing.T) {
	h := newTestRouter(t, session.NewMemoryStore())

	require.Equal(t, 200, do(t, h, "POST", "/cart/add", `{"user_id":"u","item_id":2,"quantity":1}`).Code)
	rec := do(t, h, "POST", "/cart/remove", `{"user_id":"u","item_id":2}`)
	require.Equal(t, 200, rec.Code)
	assert.JSONEq(t, `{"cart":[]}`, rec.Body.String())

	rec = do(t, h, "POST", "/order/confirm", `{"user_id":"u"}`)
	assert.Equal(t, "EMPTY_CART", decodeError(t, rec).Code)
}

func newRedisRouter(t *testing.T) (http.Handler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := core.NewRedisClient(core.RedisClientOptions{
		RedisURL:  "redis://" + mr.Addr(),
		DB:        core.RedisDBSessions,
		Namespace: core.DefaultSessionNamespace,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return newTestRouter(t, session.NewRedisStore(client, core.SessionConfig{}, nil)), mr
}

func TestRedisBacked_PersistedLayout(t *testing.T) {
	h, mr := newRedisRouter(t)

	require.Equal(t, 200, do(t, h, "POST", "/cart/add", `{"user_id":"bob","item_id":5,"quantity":1.5}`).Code)

	raw, err := mr.DB(core.RedisDBSessions).Get("session:bob")
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	assert.Equal(t, []interface{}{map[string]interface{}{"item_id": 5.0, "name": "Milk", "quantity": 1.5}}, doc["cart"])
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}$`, doc["last_seen"])
	assert.Equal(t, 7*24*time.Hour, mr.DB(core.RedisDBSessions).TTL("session:bob"))
}

func TestRedisBacked_CorruptSession(t *testing.T) {
	h, mr := newRedisRouter(t)
	require.NoError(t, mr.DB(core.RedisDBSessions).Set("session:bob", "oops"))

	rec := do(t, h, "GET", "/cart?user_id=bob", "")
	assert.Equal(t, 500, rec.Code)
	assert.Equal(t, "CORRUPT_SESSION", decodeError(t, rec).Code)
}

func TestRedisBacked_StoreUnavailable(t *testing.T) {
	h, mr := newRedisRouter(t)
	mr.Close()

	rec := do(t, h, "POST", "/cart/add", `{"user_id":"bob","item_id":1,"quantity":1}`)
	assert.Equal(t, 503, rec.Code)
	assert.Equal(t, "STORE_UNAVAILABLE", decodeError(t, rec).Code)

	rec = do(t, h, "GET", "/health", "")
	assert.Equal(t, 503, rec.Code)
	var health healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "unhealthy", health.Status)
}

func TestHealth(t *testing.T) {
	h := newTestRouter(t, session.NewMemoryStore())
	rec := do(t, h, "GET", "/health", "")
	require.Equal(t, 200, rec.Code)

	var health healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "grocery-api", health.Service)
}

func TestCorrelationIDEchoed(t *testing.T) {
	h := newTestRouter(t, session.NewMemoryStore())
	req := httptest.NewRequest("GET", "/getAllCategories", nil)
	req.Header.Set(core.CorrelationIDHeader, "req-7")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-7", rec.Header().Get(core.CorrelationIDHeader))
}

type panickingCart struct{ CartService }

func (panickingCart) View(context.Context, string) ([]session.CartLine, error) {
	panic("boom")
}

func TestPanicBecomesInternalError(t *testing.T) {
	cat := catalog.Default()
	h := NewRouter(Deps{Catalog: cat, Cart: panickingCart{}}, nil)

	rec := do(t, h, "GET", "/cart?user_id=u", "")
	assert.Equal(t, 500, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeError(t, rec).Code)
}

func TestClassify(t *testing.T) {
	status, _, code := classify(context.DeadlineExceeded)
	assert.Equal(t, 503, status)
	assert.Equal(t, "STORE_UNAVAILABLE", code)

	status, _, code = classify(session.ErrConflict)
	assert.Equal(t, 409, status)
	assert.Equal(t, "SESSION_CONFLICT", code)

	status, _, code = classify(fmt.Errorf("session.Update: %w", context.Canceled))
	assert.Equal(t, 499, status)
	assert.Equal(t, "REQUEST_CANCELED", code)

	status, _, code = classify(bytes.ErrTooLarge)
	assert.Equal(t, 500, status)
	assert.Equal(t, "INTERNAL_ERROR", code)
}

type countingLogger struct {
	core.NoOpLogger
	errors int
}

func (l *countingLogger) ErrorWithContext(context.Context, string, map[string]interface{}) {
	l.errors++
}

func TestCanceledRequestIsNotAServerError(t *testing.T) {
	cat := catalog.Default()
	store := session.NewMemoryStore()
	logger := &countingLogger{}
	h := NewRouter(Deps{
		Catalog: cat,
		Cart:    cart.NewService(cat, store),
		Orders:  order.NewService(cat, store),
		Health:  store,
		Logger:  logger,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest("POST", "/cart/add", strings.NewReader(`{"user_id":"u1","item_id":1,"quantity":1}`)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, 499, rec.Code)
	assert.Equal(t, "REQUEST_CANCELED", decodeError(t, rec).Code)
	assert.Zero(t, logger.errors)
}
