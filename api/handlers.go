package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/itsneelabh/gomind-grocery/catalog"
	"github.com/itsneelabh/gomind-grocery/core"
	"github.com/itsneelabh/gomind-grocery/session"
)

const maxBodyBytes = 1 << 20

type addToCartRequest struct {
	UserID   string   `json:"user_id"`
	ItemID   *int     `json:"item_id"`
	Quantity *float64 `json:"quantity"`
}

type removeFromCartRequest struct {
	UserID string `json:"user_id"`
	ItemID *int   `json:"item_id"`
}

type confirmOrderRequest struct {
	UserID string `json:"user_id"`
}

type cartResponse struct {
	Cart []session.CartLine `json:"cart"`
}

var errBadRequest = errors.New("malformed request body")

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func badRequest(w http.ResponseWriter, detail string) {
	writeError(w, http.StatusBadRequest, detail, "INVALID_REQUEST")
}

func (s *Server) getAllCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"categories": s.catalog.ListCategories()})
}

func (s *Server) getAllItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.catalog.ListItems(chi.URLParam(r, "category"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]catalog.Item{"items": items})
}

func (s *Server) getItemInfo(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "item_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "item_id must be an integer", "INVALID_ITEM_ID")
		return
	}
	item, err := s.catalog.GetItem(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]catalog.Item{"item": item})
}

func (s *Server) addToCart(w http.ResponseWriter, r *http.Request) {
	var req addToCartRequest
	if err := decodeBody(w, r, &req); err != nil {
		badRequest(w, "Request body must be JSON with user_id, item_id and quantity")
		return
	}
	if req.ItemID == nil || req.Quantity == nil {
		badRequest(w, "item_id and quantity are required")
		return
	}

	lines, err := s.cart.Add(r.Context(), req.UserID, *req.ItemID, *req.Quantity)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse{Cart: lines})
}

func (s *Server) removeFromCart(w http.ResponseWriter, r *http.Request) {
	var req removeFromCartRequest
	if err := decodeBody(w, r, &req); err != nil {
		badRequest(w, "Request body must be JSON with user_id and item_id")
		return
	}
	if req.ItemID == nil {
		badRequest(w, "item_id is required")
		return
	}

	lines, err := s.cart.Remove(r.Context(), req.UserID, *req.ItemID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse{Cart: lines})
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	lines, err := s.cart.View(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse{Cart: lines})
}

func (s *Server) confirmOrder(w http.ResponseWriter, r *http.Request) {
	var req confirmOrderRequest
	if err := decodeBody(w, r, &req); err != nil {
		badRequest(w, "Request body must be JSON with user_id")
		return
	}

	o, err := s.orders.Confirm(r.Context(), req.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
	Store   string `json:"store"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "healthy",
		Service: s.name,
		Version: core.Version,
		Store:   "ok",
	}
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.HealthCheck(ctx); err != nil {
			resp.Status = "unhealthy"
			resp.Store = "unreachable"
			resp.Error = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
