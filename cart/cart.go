// Package cart implements the per-user shopping cart on top of the
// session store.
package cart

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/itsneelabh/gomind-grocery/catalog"
	"github.com/itsneelabh/gomind-grocery/core"
	"github.com/itsneelabh/gomind-grocery/session"
	"github.com/itsneelabh/gomind-grocery/telemetry"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrNotInCart is returned when removing an item the cart does not hold.
	ErrNotInCart = errors.New("item not found in cart")

	// ErrInvalidQuantity rejects non-positive or non-finite quantities,
	// including line sums and order totals that overflow.
	ErrInvalidQuantity = errors.New("quantity must be a positive number")
)

// Service is the cart's business logic.
type Service struct {
	catalog catalog.Reader
	store   session.Store
	now     func() time.Time
	logger  core.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used for last_seen.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger core.Logger) Option {
	return func(s *Service) {
		if logger == nil {
			return
		}
		if cal, ok := logger.(core.ComponentAwareLogger); ok {
			logger = cal.WithComponent("grocery/cart")
		}
		s.logger = logger
	}
}

// NewService wires the cart to a catalog and a session store.
func NewService(cat catalog.Reader, store session.Store, opts ...Option) *Service {
	s := &Service{
		catalog: cat,
		store:   store,
		now:     time.Now,
		logger:  &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add puts quantity of itemID into the user's cart, accumulating onto an
// existing line. It returns the whole cart.
func (s *Service) Add(ctx context.Context, userID string, itemID int, quantity float64) ([]session.CartLine, error) {
	if quantity <= 0 || math.IsNaN(quantity) || math.IsInf(quantity, 0) {
		return nil, ErrInvalidQuantity
	}

	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "cart.Add",
		attribute.String("user_id", userID),
		attribute.Int("item_id", itemID),
		attribute.Float64("quantity", quantity),
	)
	defer span.End()

	sess, err := s.store.Update(ctx, userID, func(sess *session.Session) error {
		if line := findLine(sess.Cart, itemID); line >= 0 {
			sum := decimal.NewFromFloat(sess.Cart[line].Quantity).Add(decimal.NewFromFloat(quantity)).InexactFloat64()
			if math.IsInf(sum, 0) {
				return ErrInvalidQuantity
			}
			sess.Cart[line].Quantity = sum
		} else {
			item, err := s.catalog.GetItem(itemID)
			if err != nil {
				return err
			}
			sess.Cart = append(sess.Cart, session.CartLine{ItemID: item.ID, Name: item.Name, Quantity: quantity})
		}
		sess.LastSeen = session.Today(s.now())
		return nil
	})
	s.record(ctx, "add", start, err)
	if err != nil {
		telemetry.RecordSpanError(ctx, err)
		return nil, err
	}

	s.logger.InfoWithContext(ctx, "Item added to cart", map[string]interface{}{
		"user_id":  userID,
		"item_id":  itemID,
		"quantity": quantity,
		"lines":    len(sess.Cart),
	})
	return sess.Cart, nil
}

// Remove deletes the whole line for itemID.
func (s *Service) Remove(ctx context.Context, userID string, itemID int) ([]session.CartLine, error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "cart.Remove",
		attribute.String("user_id", userID),
		attribute.Int("item_id", itemID),
	)
	defer span.End()

	sess, err := s.store.Update(ctx, userID, func(sess *session.Session) error {
		line := findLine(sess.Cart, itemID)
		if line < 0 {
			return ErrNotInCart
		}
		sess.Cart = append(sess.Cart[:line], sess.Cart[line+1:]...)
		sess.LastSeen = session.Today(s.now())
		return nil
	})
	s.record(ctx, "remove", start, err)
	if err != nil {
		telemetry.RecordSpanError(ctx, err)
		return nil, err
	}

	s.logger.InfoWithContext(ctx, "Item removed from cart", map[string]interface{}{
		"user_id": userID,
		"item_id": itemID,
	})
	return sess.Cart, nil
}

// View returns the cart without touching the session.
func (s *Service) View(ctx context.Context, userID string) ([]session.CartLine, error) {
	sess, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sess.Cart, nil
}

func (s *Service) record(ctx context.Context, op string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	telemetry.Counter(ctx, telemetry.MetricCartOperations,
		attribute.String("operation", op),
		attribute.String("result", result),
	)
	telemetry.Duration(ctx, start, attribute.String("operation", "cart."+op))
}

func findLine(lines []session.CartLine, itemID int) int {
	for i, l := range lines {
		if l.ItemID == itemID {
			return i
		}
	}
	return -1
}
