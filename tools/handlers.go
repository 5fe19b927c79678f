package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/itsneelabh/gomind-grocery/core"
	"github.com/itsneelabh/gomind-grocery/shopclient"
	"github.com/itsneelabh/gomind-grocery/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

const maxPayloadBytes = 64 << 10

// decode reads the JSON payload into dst. An empty body leaves dst as is.
func decode(r *http.Request, dst interface{}) *core.ToolError {
	err := json.NewDecoder(io.LimitReader(r.Body, maxPayloadBytes)).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return &core.ToolError{
		Code:     "INVALID_REQUEST",
		Message:  "Invalid request format",
		Category: core.CategoryInputError,
		Details:  map[string]string{"error": err.Error()},
	}
}

func missing(fields ...string) *core.ToolError {
	return &core.ToolError{
		Code:     "MISSING_FIELD",
		Message:  "Missing required field: " + strings.Join(fields, ", "),
		Category: core.CategoryInputError,
		Details:  map[string]string{"fields": strings.Join(fields, ",")},
	}
}

// toolErrorFrom converts a shop client failure into the tool error protocol.
func toolErrorFrom(err error) *core.ToolError {
	var apiErr *shopclient.APIError
	switch {
	case errors.As(err, &apiErr):
		code := apiErr.Code
		if code == "" {
			code = "API_ERROR"
		}
		return &core.ToolError{
			Code:      code,
			Message:   apiErr.Detail,
			Category:  core.CategoryForHTTPStatus(apiErr.Status),
			Retryable: apiErr.Temporary() || apiErr.Status == http.StatusConflict,
			Details:   map[string]string{"status": strconv.Itoa(apiErr.Status)},
		}
	case errors.Is(err, core.ErrCircuitBreakerOpen):
		return &core.ToolError{
			Code:      "CIRCUIT_OPEN",
			Message:   "The shop is temporarily unavailable",
			Category:  core.CategoryServiceError,
			Retryable: true,
			Details:   map[string]string{"hint": "retry after the circuit breaker sleep window"},
		}
	case errors.Is(err, context.DeadlineExceeded):
		return &core.ToolError{
			Code:      "TIMEOUT",
			Message:   "The shop did not answer in time",
			Category:  core.CategoryServiceError,
			Retryable: true,
		}
	default:
		return &core.ToolError{
			Code:      "API_UNAVAILABLE",
			Message:   "The shop could not be reached",
			Category:  core.CategoryServiceError,
			Retryable: true,
			Details:   map[string]string{"error": err.Error()},
		}
	}
}

func (g *GroceryTool) writeToolError(w http.ResponseWriter, r *http.Request, toolErr *core.ToolError) {
	status := core.HTTPStatusForCategory(toolErr.Category)
	if toolErr.Category == core.CategoryServiceError {
		g.Logger.WarnWithContext(r.Context(), "Capability failed", map[string]interface{}{
			"path":      r.URL.Path,
			"code":      toolErr.Code,
			"retryable": toolErr.Retryable,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(core.ToolResponse{Success: false, Error: toolErr})
}

func (g *GroceryTool) writeToolSuccess(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(core.ToolResponse{Success: true, Data: data})
}

// fail records err on the span and writes it as a tool error.
func (g *GroceryTool) fail(w http.ResponseWriter, r *http.Request, err error) {
	telemetry.RecordSpanError(r.Context(), err)
	g.writeToolError(w, r, toolErrorFrom(err))
}

func (g *GroceryTool) handleGetCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	telemetry.AddSpanEvent(ctx, "request_received", attribute.String("operation", "get_categories"))

	categories, err := g.shop.Categories(ctx)
	if err != nil {
		g.fail(w, r, err)
		return
	}
	g.writeToolSuccess(w, CategoriesResult{
		Categories: categories,
		Message:    categoriesMessage(categories),
	})
}

func (g *GroceryTool) handleGetCategoryItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CategoryItemsRequest
	if terr := decode(r, &req); terr != nil {
		g.writeToolError(w, r, terr)
		return
	}
	if req.Category == "" {
		g.writeToolError(w, r, missing("category"))
		return
	}
	telemetry.AddSpanEvent(ctx, "request_received",
		attribute.String("operation", "get_category_items"),
		attribute.String("category", req.Category),
	)

	items, err := g.shop.Items(ctx, req.Category)
	if err != nil {
		g.fail(w, r, err)
		return
	}
	g.writeToolSuccess(w, CategoryItemsResult{
		Category: req.Category,
		Items:    items,
		Message:  categoryItemsMessage(req.Category, items),
	})
}

func (g *GroceryTool) handleGetItemInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ItemInfoRequest
	if terr := decode(r, &req); terr != nil {
		g.writeToolError(w, r, terr)
		return
	}
	if req.ItemID == nil {
		g.writeToolError(w, r, missing("item_id"))
		return
	}

	item, err := g.shop.Item(ctx, *req.ItemID)
	if err != nil {
		g.fail(w, r, err)
		return
	}
	g.writeToolSuccess(w, ItemInfoResult{Item: item, Message: itemInfoMessage(item)})
}

func (g *GroceryTool) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req AddToCartRequest
	if terr := decode(r, &req); terr != nil {
		g.writeToolError(w, r, terr)
		return
	}
	var absent []string
	if req.UserID == "" {
		absent = append(absent, "user_id")
	}
	if req.ItemID == nil {
		absent = append(absent, "item_id")
	}
	if req.Quantity == nil {
		absent = append(absent, "quantity")
	}
	if len(absent) > 0 {
		g.writeToolError(w, r, missing(absent...))
		return
	}
	telemetry.AddSpanEvent(ctx, "calling_shop_api",
		attribute.String("operation", "add_to_cart"),
		attribute.Int("item_id", *req.ItemID),
	)

	lines, err := g.shop.AddToCart(ctx, req.UserID, *req.ItemID, *req.Quantity)
	if err != nil {
		g.fail(w, r, err)
		return
	}
	g.Logger.InfoWithContext(ctx, "Item added through tool", map[string]interface{}{
		"user_id": req.UserID,
		"item_id": *req.ItemID,
	})
	g.writeToolSuccess(w, CartResult{
		UserID:  req.UserID,
		Cart:    lines,
		Message: addedMessage(*req.ItemID, *req.Quantity),
	})
}

func (g *GroceryTool) handleRemoveFromCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req RemoveFromCartRequest
	if terr := decode(r, &req); terr != nil {
		g.writeToolError(w, r, terr)
		return
	}
	var absent []string
	if req.UserID == "" {
		absent = append(absent, "user_id")
	}
	if req.ItemID == nil {
		absent = append(absent, "item_id")
	}
	if len(absent) > 0 {
		g.writeToolError(w, r, missing(absent...))
		return
	}

	lines, err := g.shop.RemoveFromCart(ctx, req.UserID, *req.ItemID)
	if err != nil {
		g.fail(w, r, err)
		return
	}
	g.writeToolSuccess(w, CartResult{
		UserID:  req.UserID,
		Cart:    lines,
		Message: removedMessage(*req.ItemID),
	})
}

func (g *GroceryTool) handleViewCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req UserRequest
	if terr := decode(r, &req); terr != nil {
		g.writeToolError(w, r, terr)
		return
	}
	if req.UserID == "" {
		g.writeToolError(w, r, missing("user_id"))
		return
	}

	lines, err := g.shop.Cart(ctx, req.UserID)
	if err != nil {
		g.fail(w, r, err)
		return
	}
	g.writeToolSuccess(w, CartResult{UserID: req.UserID, Cart: lines, Message: cartMessage(lines)})
}

func (g *GroceryTool) handleConfirmOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req UserRequest
	if terr := decode(r, &req); terr != nil {
		g.writeToolError(w, r, terr)
		return
	}
	if req.UserID == "" {
		g.writeToolError(w, r, missing("user_id"))
		return
	}

	o, err := g.shop.ConfirmOrder(ctx, req.UserID)
	if err != nil {
		g.fail(w, r, err)
		return
	}
	telemetry.AddSpanEvent(ctx, "order_confirmed", attribute.String("order_id", o.OrderID))
	g.writeToolSuccess(w, OrderResult{
		OrderID:     o.OrderID,
		TotalAmount: o.TotalAmount,
		Items:       o.Items,
		Message:     orderMessage(o.TotalAmount, o.Items),
	})
}
