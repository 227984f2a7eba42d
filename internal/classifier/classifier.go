// Package classifier applies the business rules that decide whether a
// candidate cart row really counts as abandoned. Checks run cheapest
// first so store round-trips only happen for rows that survive the local
// filters.
package classifier

import (
	"context"
	"time"

	"abandoned-cart-engine/internal/cartstore"
	"abandoned-cart-engine/internal/model"
)

// CustomerStore looks up whether a customer account is active.
type CustomerStore interface {
	IsActive(ctx context.Context, customerID string) (bool, error)
}

// OrderStore checks whether a customer placed any order at or after a
// given instant.
type OrderStore interface {
	HasOrderSince(ctx context.Context, customerID string, since time.Time) (bool, error)
}

// EnrichedRow is an accepted candidate, ready to be written as a snapshot.
type EnrichedRow struct {
	Token      string
	Price      float64
	CustomerID string

	// ModifiedAt is only resolved in updated mode: the payload's
	// modification-time marker when present, else the cart's updated_at,
	// else its created_at.
	ModifiedAt *time.Time
}

// Classifier filters and enriches candidate rows.
type Classifier struct {
	resolver  cartstore.FieldResolver
	customers CustomerStore
	orders    OrderStore
}

// New creates a classifier using the field resolver matching the probed
// host schema.
func New(resolver cartstore.FieldResolver, customers CustomerStore, orders OrderStore) *Classifier {
	return &Classifier{
		resolver:  resolver,
		customers: customers,
		orders:    orders,
	}
}

// Classify evaluates a candidate row against the abandonment rules.
// decodeErr carries the payload decoder's verdict for the row. A non-empty
// reason means the row was rejected, which is an expected outcome, not an
// error; a non-nil error means a store lookup failed and the invocation
// should stop.
func (c *Classifier) Classify(ctx context.Context, row *model.CartRow, cart *model.Cart, decodeErr error, resolveModified bool) (*EnrichedRow, model.RejectReason, error) {
	if decodeErr != nil || cart == nil {
		return nil, model.ReasonInvalidPayload, nil
	}

	if cart.IsRecalculation {
		return nil, model.ReasonRecalculation, nil
	}

	customerID := c.resolver.CustomerID(row, cart)
	if customerID == "" {
		return nil, model.ReasonNoCustomer, nil
	}

	active, err := c.customers.IsActive(ctx, customerID)
	if err != nil {
		return nil, model.ReasonNone, err
	}
	if !active {
		return nil, model.ReasonInactiveCustomer, nil
	}

	converted, err := c.orders.HasOrderSince(ctx, customerID, row.LastActivity())
	if err != nil {
		return nil, model.ReasonNone, err
	}
	if converted {
		return nil, model.ReasonAlreadyConverted, nil
	}

	enriched := &EnrichedRow{
		Token:      row.Token,
		Price:      c.resolver.Price(row, cart),
		CustomerID: customerID,
	}

	if resolveModified {
		modifiedAt := row.LastActivity()
		if cart.ModifiedAt != nil {
			modifiedAt = *cart.ModifiedAt
		}
		enriched.ModifiedAt = &modifiedAt
	}

	return enriched, model.ReasonNone, nil
}
