// Package cartpayload deserializes the opaque cart blobs the host checkout
// flow writes into the cart table. The blob is JSON, optionally wrapped in
// a zstd frame, and comes in two schema generations: the legacy shape
// carries the customer reference as a direct field, the modern shape only
// exposes it through the first delivery's shipping address.
package cartpayload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"abandoned-cart-engine/internal/model"

	"github.com/klauspost/compress/zstd"
)

// ModificationTimeExtension is the payload extension key under which the
// checkout flow records the real last-modified instant of a cart.
const ModificationTimeExtension = "abandonedCartModificationTime"

// DecodeError is returned for any payload that cannot be turned into a
// structured cart. Callers must treat it as "drop this row and continue",
// never as a batch-fatal condition.
type DecodeError struct {
	Stage string // "decompress", "unmarshal" or "shape"
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cart payload decode failed (%s): %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// payload mirrors the wire shape of a serialized cart across both known
// schema generations. Fields absent from a generation simply stay zero.
type payload struct {
	Token      string `json:"token"`
	CustomerID string `json:"customerId"` // legacy generation only
	Deliveries []struct {
		ShippingAddress struct {
			CustomerID string `json:"customerId"`
		} `json:"shippingAddress"`
	} `json:"deliveries"`
	LineItems []model.LineItem `json:"lineItems"`
	Price     struct {
		TotalPrice float64 `json:"totalPrice"`
	} `json:"price"`
	Behavior struct {
		IsRecalculation bool `json:"isRecalculation"`
	} `json:"behavior"`
	Extensions map[string]json.RawMessage `json:"extensions"`
}

type modificationTime struct {
	ModifiedAt time.Time `json:"modifiedAt"`
}

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Decode turns a raw cart blob into its structured form, decompressing
// first when the row's compressed flag is set.
func Decode(raw []byte, compressed bool) (*model.Cart, error) {
	if compressed {
		var err error
		raw, err = decompress(raw)
		if err != nil {
			return nil, &DecodeError{Stage: "decompress", Err: err}
		}
	}

	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &DecodeError{Stage: "unmarshal", Err: err}
	}

	if p.Token == "" {
		return nil, &DecodeError{Stage: "shape", Err: fmt.Errorf("missing cart token")}
	}

	cart := &model.Cart{
		Token:           p.Token,
		LineItems:       p.LineItems,
		TotalPrice:      p.totalPrice(),
		CustomerID:      p.customerID(),
		IsRecalculation: p.Behavior.IsRecalculation,
	}

	if raw, ok := p.Extensions[ModificationTimeExtension]; ok {
		var mt modificationTime
		if err := json.Unmarshal(raw, &mt); err != nil {
			return nil, &DecodeError{Stage: "shape", Err: fmt.Errorf("invalid modification-time extension: %w", err)}
		}
		if !mt.ModifiedAt.IsZero() {
			cart.ModifiedAt = &mt.ModifiedAt
		}
	}

	return cart, nil
}

// customerID resolves the customer reference from the direct field or,
// for modern payloads, from the first delivery's shipping address.
func (p *payload) customerID() string {
	if p.CustomerID != "" {
		return p.CustomerID
	}
	if len(p.Deliveries) > 0 {
		return p.Deliveries[0].ShippingAddress.CustomerID
	}
	return ""
}

// totalPrice prefers the computed cart total and falls back to summing
// line item totals when the host never wrote one.
func (p *payload) totalPrice() float64 {
	if p.Price.TotalPrice != 0 {
		return p.Price.TotalPrice
	}
	var sum float64
	for _, item := range p.LineItems {
		sum += item.Total
	}
	return sum
}

func decompress(raw []byte) ([]byte, error) {
	if !bytes.HasPrefix(raw, zstdMagic) {
		return nil, fmt.Errorf("payload flagged compressed but is not a zstd frame")
	}

	r, err := zstd.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out bytes.Buffer
	if _, err := out.ReadFrom(r); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
