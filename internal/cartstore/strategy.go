package cartstore

import (
	"context"
	"database/sql"
	"fmt"

	"abandoned-cart-engine/internal/model"
)

// Schema describes the capabilities of the host system's cart table.
// Host versions differ in the name of the payload column, the presence of
// the compressed and updated_at columns, and whether customer/price/line
// count are precomputed at cart-write time.
type Schema struct {
	PayloadColumn string // "payload" or "cart"
	HasCompressed bool
	HasUpdatedAt  bool
	Precomputed   bool // customer_id, price and line_item_count columns exist
}

// Resolver returns the field resolution strategy matching this schema.
func (s *Schema) Resolver() FieldResolver {
	if s.Precomputed {
		return precomputedResolver{}
	}
	return payloadResolver{}
}

// FieldResolver resolves a candidate's customer reference, price and line
// item count. Older host schemas precompute these as cart columns; newer
// ones only expose them through the decoded payload.
type FieldResolver interface {
	CustomerID(row *model.CartRow, cart *model.Cart) string
	Price(row *model.CartRow, cart *model.Cart) float64
	LineItemCount(row *model.CartRow, cart *model.Cart) int
}

type precomputedResolver struct{}

func (precomputedResolver) CustomerID(row *model.CartRow, _ *model.Cart) string {
	return row.CustomerID
}

func (precomputedResolver) Price(row *model.CartRow, _ *model.Cart) float64 {
	return row.Price
}

func (precomputedResolver) LineItemCount(row *model.CartRow, _ *model.Cart) int {
	return row.LineItemCount
}

type payloadResolver struct{}

func (payloadResolver) CustomerID(_ *model.CartRow, cart *model.Cart) string {
	if cart == nil {
		return ""
	}
	return cart.CustomerID
}

func (payloadResolver) Price(_ *model.CartRow, cart *model.Cart) float64 {
	if cart == nil {
		return 0
	}
	return cart.TotalPrice
}

func (payloadResolver) LineItemCount(_ *model.CartRow, cart *model.Cart) int {
	if cart == nil {
		return 0
	}
	return len(cart.LineItems)
}

// ProbeSchema inspects the cart table once and returns its capability set.
// An unrecognized shape is a configuration error and fails loudly rather
// than guessing a query shape.
func ProbeSchema(ctx context.Context, db *sql.DB) (*Schema, error) {
	columns, err := listCartColumns(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to probe cart table: %w", err)
	}

	schema := &Schema{
		HasCompressed: columns["compressed"],
		HasUpdatedAt:  columns["updated_at"],
		Precomputed:   columns["customer_id"] && columns["price"] && columns["line_item_count"],
	}

	switch {
	case columns["payload"]:
		schema.PayloadColumn = "payload"
	case columns["cart"]:
		schema.PayloadColumn = "cart"
	default:
		return nil, fmt.Errorf("unsupported cart schema: no payload or cart column found")
	}

	return schema, nil
}

func listCartColumns(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SHOW COLUMNS FROM cart`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var field, colType, null, key string
		var def sql.NullString
		var extra string
		if err := rows.Scan(&field, &colType, &null, &key, &def, &extra); err != nil {
			return nil, err
		}
		columns[field] = true
	}
	return columns, rows.Err()
}
