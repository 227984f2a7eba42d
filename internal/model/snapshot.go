package model

import "time"

// AbandonedCart is the denormalized snapshot this system persists for a
// cart that has been classified as abandoned. At most one snapshot exists
// per cart token; the id never changes once the row is created.
type AbandonedCart struct {
	ID         string     `json:"id"`
	CartToken  string     `json:"cart_token"`
	Price      float64    `json:"price"`
	CustomerID string     `json:"customer_id"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// RejectReason explains why the classifier dropped a candidate row.
// Rejections are expected filtering outcomes, not errors.
type RejectReason string

const (
	ReasonNone             RejectReason = ""
	ReasonInvalidPayload   RejectReason = "invalid_payload"
	ReasonRecalculation    RejectReason = "recalculation_artifact"
	ReasonNoCustomer       RejectReason = "no_customer"
	ReasonInactiveCustomer RejectReason = "inactive_customer"
	ReasonAlreadyConverted RejectReason = "already_converted"
)
