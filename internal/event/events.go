package event

import (
	"context"
	"time"

	"abandoned-cart-engine/internal/model"
)

// Event type names carried in the envelope and message headers.
const (
	TypeMarkedAbandoned = "abandoned_cart.marked"
	TypeUpdated         = "abandoned_cart.updated"
	TypeDeleted         = "abandoned_cart.deleted"
)

// CartInfo is the raw cart content an event carries alongside the
// snapshot. Snapshots do not store line items, so the event is where
// consumers building follow-up messaging get the cart's content.
type CartInfo struct {
	Token      string           `json:"token"`
	LineItems  []model.LineItem `json:"lineItems"`
	TotalPrice float64          `json:"totalPrice"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  *time.Time       `json:"updatedAt,omitempty"`
	ModifiedAt *time.Time       `json:"modifiedAt,omitempty"`
}

// CartInfoFrom assembles an event cart payload from a candidate row and
// its decoded payload.
func CartInfoFrom(row *model.CartRow, cart *model.Cart) CartInfo {
	return CartInfo{
		Token:      row.Token,
		LineItems:  cart.LineItems,
		TotalPrice: cart.TotalPrice,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
		ModifiedAt: cart.ModifiedAt,
	}
}

// MarkedAbandoned signals that a cart crossed the inactivity threshold
// and a snapshot was recorded for it.
type MarkedAbandoned struct {
	Snapshot model.AbandonedCart `json:"snapshot"`
	Cart     CartInfo            `json:"cart"`
}

// Updated signals that an already-snapshotted cart saw new activity and
// then went quiet past the threshold again.
type Updated struct {
	Snapshot model.AbandonedCart `json:"snapshot"`
	Cart     CartInfo            `json:"cart"`
}

// Deleted signals that a snapshot was removed because its cart no longer
// exists in the host shop. The cart is gone, so there is no content to
// carry.
type Deleted struct {
	SnapshotID string `json:"snapshotId"`
	CartToken  string `json:"cartToken"`
}

// Dispatcher publishes reconciliation events. Implementations must be
// safe for concurrent use.
type Dispatcher interface {
	MarkedAbandoned(ctx context.Context, e MarkedAbandoned) error
	Updated(ctx context.Context, e Updated) error
	Deleted(ctx context.Context, e Deleted) error
	Close() error
}
