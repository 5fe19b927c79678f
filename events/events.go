// Package events announces completed orders to downstream consumers.
package events

import (
	"context"
	"time"

	"github.com/itsneelabh/gomind-grocery/session"
)

// OrderConfirmed is published once an order has been confirmed and the
// cart cleared.
type OrderConfirmed struct {
	OrderID     string             `json:"order_id"`
	UserID      string             `json:"user_id"`
	TotalAmount float64            `json:"total_amount"`
	Items       []session.CartLine `json:"items"`
	ConfirmedAt time.Time          `json:"confirmed_at"`
}

// Publisher delivers order events.
type Publisher interface {
	PublishOrderConfirmed(ctx context.Context, evt OrderConfirmed) error
	Close() error
}

// NoopPublisher discards events. It is used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishOrderConfirmed(context.Context, OrderConfirmed) error { return nil }

func (NoopPublisher) Close() error { return nil }
