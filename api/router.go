// Package api exposes the catalog, cart and order services over HTTP.
//
// Routes keep the paths of the original shop API so existing clients and
// the grocery tools work unchanged:
//
//	GET  /getAllCategories
//	GET  /getAllItems/{category}
//	GET  /getItemInfo/{item_id}
//	POST /cart/add
//	POST /cart/remove
//	GET  /cart?user_id=
//	POST /order/confirm
//	GET  /health
//
// Errors are returned as {"detail": "...", "code": "..."}.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/itsneelabh/gomind-grocery/catalog"
	"github.com/itsneelabh/gomind-grocery/core"
	"github.com/itsneelabh/gomind-grocery/order"
	"github.com/itsneelabh/gomind-grocery/session"
	"github.com/itsneelabh/gomind-grocery/telemetry"
)

// CartService is the cart behaviour the handlers need.
type CartService interface {
	Add(ctx context.Context, userID string, itemID int, quantity float64) ([]session.CartLine, error)
	Remove(ctx context.Context, userID string, itemID int) ([]session.CartLine, error)
	View(ctx context.Context, userID string) ([]session.CartLine, error)
}

// OrderService confirms orders.
type OrderService interface {
	Confirm(ctx context.Context, userID string) (*order.Order, error)
}

// HealthChecker reports backing store reachability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps are the collaborators of the router. Health may be nil.
type Deps struct {
	Catalog catalog.Reader
	Cart    CartService
	Orders  OrderService
	Health  HealthChecker
	Logger  core.Logger
}

// Server holds the handlers.
type Server struct {
	catalog catalog.Reader
	cart    CartService
	orders  OrderService
	health  HealthChecker
	logger  core.Logger
	name    string
}

// NewServer builds the handler set. cfg supplies the service name.
func NewServer(deps Deps, cfg *core.Config) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("grocery/api")
	}
	name := "grocery-api"
	if cfg != nil && cfg.Name != "" {
		name = cfg.Name
	}
	return &Server{
		catalog: deps.Catalog,
		cart:    deps.Cart,
		orders:  deps.Orders,
		health:  deps.Health,
		logger:  logger,
		name:    name,
	}
}

// NewRouter returns the full HTTP handler with tracing, correlation ids,
// request logging, panic recovery and optional CORS.
func NewRouter(deps Deps, cfg *core.Config) http.Handler {
	if cfg == nil {
		cfg = core.DefaultConfig()
	}
	s := NewServer(deps, cfg)

	r := chi.NewRouter()
	r.Use(telemetry.TracingMiddleware(s.name))
	r.Use(telemetry.CorrelationMiddleware)
	r.Use(core.LoggingMiddleware(s.logger, cfg.Development.Enabled))
	r.Use(core.RecoveryMiddleware(s.logger))
	r.Use(core.CORSMiddleware(&cfg.HTTP.CORS))

	s.Routes(r)
	return r
}

// Routes registers the handlers on r.
func (s *Server) Routes(r chi.Router) {
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found", "NOT_FOUND")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed", "METHOD_NOT_ALLOWED")
	})

	r.Get("/getAllCategories", s.getAllCategories)
	r.Get("/getAllItems/{category}", s.getAllItems)
	r.Get("/getItemInfo/{item_id}", s.getItemInfo)

	r.Get("/cart", s.getCart)
	r.Post("/cart/add", s.addToCart)
	r.Post("/cart/remove", s.removeFromCart)
	r.Post("/order/confirm", s.confirmOrder)

	r.Get("/health", s.healthCheck)
}
