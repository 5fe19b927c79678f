package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/itsneelabh/gomind-grocery/cart"
	"github.com/itsneelabh/gomind-grocery/catalog"
	"github.com/itsneelabh/gomind-grocery/core"
	"github.com/itsneelabh/gomind-grocery/order"
	"github.com/itsneelabh/gomind-grocery/session"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

// statusClientClosedRequest reports a request the caller abandoned.
const statusClientClosedRequest = 499

type errorMapping struct {
	target error
	status int
	detail string
	code   string
}

// Ordered: the first match wins.
var errorMappings = []errorMapping{
	{catalog.ErrCategoryNotFound, http.StatusNotFound, "Category not found", "CATEGORY_NOT_FOUND"},
	{catalog.ErrItemNotFound, http.StatusNotFound, "Item not found", "ITEM_NOT_FOUND"},
	{cart.ErrNotInCart, http.StatusNotFound, "Item not found in cart", "ITEM_NOT_IN_CART"},
	{order.ErrEmptyCart, http.StatusBadRequest, "Cart is empty", "EMPTY_CART"},
	{cart.ErrInvalidQuantity, http.StatusBadRequest, "Quantity must be a positive number", "INVALID_QUANTITY"},
	{session.ErrEmptyUserID, http.StatusBadRequest, "user_id is required", "INVALID_USER_ID"},
	{session.ErrCorruptSession, http.StatusInternalServerError, "Session data is corrupt", "CORRUPT_SESSION"},
	{session.ErrConflict, http.StatusConflict, "Cart is being modified concurrently, please retry", "SESSION_CONFLICT"},
	{core.ErrConnectionFailed, http.StatusServiceUnavailable, "Session store unavailable", "STORE_UNAVAILABLE"},
	{context.DeadlineExceeded, http.StatusServiceUnavailable, "Session store unavailable", "STORE_UNAVAILABLE"},
	{context.Canceled, statusClientClosedRequest, "Request canceled", "REQUEST_CANCELED"},
}

// classify maps a service error to its HTTP status, detail and code.
func classify(err error) (int, string, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.detail, m.code
		}
	}
	return http.StatusInternalServerError, "Internal server error", "INTERNAL_ERROR"
}

// fail writes the mapped error. Server-side failures are logged.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, detail, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorWithContext(r.Context(), "Request failed", map[string]interface{}{
			"path":  r.URL.Path,
			"code":  code,
			"error": err.Error(),
		})
	}
	writeError(w, status, detail, code)
}

func writeError(w http.ResponseWriter, status int, detail, code string) {
	writeJSON(w, status, ErrorResponse{Detail: detail, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
