// Package order turns a cart into a confirmed order.
//
// Orders are not stored. Confirm totals the cart, clears it, and
// announces the result on the event publisher.
package order

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/itsneelabh/gomind-grocery/cart"
	"github.com/itsneelabh/gomind-grocery/catalog"
	"github.com/itsneelabh/gomind-grocery/core"
	"github.com/itsneelabh/gomind-grocery/events"
	"github.com/itsneelabh/gomind-grocery/session"
	"github.com/itsneelabh/gomind-grocery/telemetry"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// ErrEmptyCart rejects confirming a cart with no lines.
var ErrEmptyCart = errors.New("cart is empty")

// ConfirmationMessage is returned with every confirmed order.
const ConfirmationMessage = "Order confirmed!"

// Order is the result of a confirmation.
type Order struct {
	Message     string             `json:"message"`
	TotalAmount float64            `json:"total_amount"`
	Items       []session.CartLine `json:"items"`
	OrderID     string             `json:"order_id"`
}

// Service confirms orders.
type Service struct {
	catalog   catalog.Reader
	store     session.Store
	publisher events.Publisher
	now       func() time.Time
	newID     func() string
	logger    core.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(s *Service) {
		if logger == nil {
			return
		}
		if cal, ok := logger.(core.ComponentAwareLogger); ok {
			logger = cal.WithComponent("grocery/order")
		}
		s.logger = logger
	}
}

// NewService creates an order service. Without WithPublisher events are
// discarded.
func NewService(cat catalog.Reader, store session.Store, opts ...Option) *Service {
	s := &Service{
		catalog:   cat,
		store:     store,
		publisher: events.NoopPublisher{},
		now:       time.Now,
		newID:     uuid.NewString,
		logger:    &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Confirm totals and clears the user's cart. The session itself survives.
func (s *Service) Confirm(ctx context.Context, userID string) (*Order, error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "order.Confirm", attribute.String("user_id", userID))
	defer span.End()

	var (
		items []session.CartLine
		total decimal.Decimal
	)
	_, err := s.store.Update(ctx, userID, func(sess *session.Session) error {
		if len(sess.Cart) == 0 {
			return ErrEmptyCart
		}
		sum := decimal.Zero
		for _, line := range sess.Cart {
			item, err := s.catalog.GetItem(line.ItemID)
			if err != nil {
				return err
			}
			sum = sum.Add(decimal.NewFromFloat(item.Price).Mul(decimal.NewFromFloat(line.Quantity)))
		}
		// An overflowing total cannot be encoded; reject before the cart is cleared.
		if f := sum.InexactFloat64(); math.IsInf(f, 0) || math.IsNaN(f) {
			return cart.ErrInvalidQuantity
		}
		items = append([]session.CartLine(nil), sess.Cart...)
		total = sum
		sess.Cart = []session.CartLine{}
		sess.LastSeen = session.Today(s.now())
		return nil
	})
	telemetry.Duration(ctx, start, attribute.String("operation", "order.confirm"))
	if err != nil {
		telemetry.RecordSpanError(ctx, err)
		return nil, err
	}

	amount := total.InexactFloat64()
	o := &Order{
		Message:     ConfirmationMessage,
		TotalAmount: amount,
		Items:       items,
		OrderID:     s.newID(),
	}
	telemetry.SetSpanAttributes(ctx, attribute.String("order_id", o.OrderID), attribute.Float64("total_amount", amount))
	telemetry.Counter(ctx, telemetry.MetricOrdersConfirmed)
	telemetry.FloatCounter(ctx, telemetry.MetricOrderAmount, amount)

	s.logger.InfoWithContext(ctx, "Order confirmed", map[string]interface{}{
		"user_id":      userID,
		"order_id":     o.OrderID,
		"total_amount": total.StringFixed(2),
		"lines":        len(items),
	})

	evt := events.OrderConfirmed{
		OrderID:     o.OrderID,
		UserID:      userID,
		TotalAmount: amount,
		Items:       items,
		ConfirmedAt: s.now().UTC(),
	}
	if err := s.publisher.PublishOrderConfirmed(ctx, evt); err != nil {
		s.logger.WarnWithContext(ctx, "Failed to publish order event", map[string]interface{}{
			"order_id": o.OrderID,
			"error":    err.Error(),
		})
	}

	return o, nil
}
