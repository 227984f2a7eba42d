package model

import "time"

// CartRow is a raw candidate row read from the host system's cart table,
// joined with its abandoned-cart snapshot (when one exists).
type CartRow struct {
	Token      string
	Payload    []byte
	Compressed bool
	CreatedAt  time.Time
	UpdatedAt  *time.Time

	// CustomerID, Price and LineItemCount are only populated on host
	// schemas that precompute them at cart-write time. On newer schemas
	// they are derived from the decoded payload instead.
	CustomerID    string
	Price         float64
	LineItemCount int

	SnapshotCreatedAt *time.Time
	SnapshotUpdatedAt *time.Time
}

// LastActivity returns the cart's last mutation time, falling back to its
// creation time on host schemas that do not maintain updated_at.
func (r *CartRow) LastActivity() time.Time {
	if r.UpdatedAt != nil {
		return *r.UpdatedAt
	}
	return r.CreatedAt
}

// Cart is the structured form of a decoded cart payload.
type Cart struct {
	Token           string
	LineItems       []LineItem
	TotalPrice      float64
	CustomerID      string
	IsRecalculation bool

	// ModifiedAt carries the modification-time marker the checkout flow
	// attaches to the payload. Nil when the host never wrote one.
	ModifiedAt *time.Time
}

// LineItem is a single position inside a cart payload.
type LineItem struct {
	ID       string  `json:"id"`
	Label    string  `json:"label"`
	Quantity int     `json:"quantity"`
	Total    float64 `json:"total"`
}
