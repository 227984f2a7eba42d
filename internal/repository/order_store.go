package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLOrderStore answers conversion lookups against the host order tables.
// Read-only.
type SQLOrderStore struct {
	db *sql.DB
}

// NewSQLOrderStore creates an order store on the host database.
func NewSQLOrderStore(db *sql.DB) *SQLOrderStore {
	return &SQLOrderStore{db: db}
}

// HasOrderSince reports whether the customer placed any order at or after
// the given instant.
func (s *SQLOrderStore) HasOrderSince(ctx context.Context, customerID string, since time.Time) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM order_customer
		WHERE customer_id = ? AND created_at >= ?
		LIMIT 1`, customerID, since).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up orders for customer %s: %w", customerID, err)
	}
	return true, nil
}
