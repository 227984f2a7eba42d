package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLCustomerStore answers active-customer lookups against the host
// customer table. Read-only.
type SQLCustomerStore struct {
	db *sql.DB
}

// NewSQLCustomerStore creates a customer store on the host database.
func NewSQLCustomerStore(db *sql.DB) *SQLCustomerStore {
	return &SQLCustomerStore{db: db}
}

// IsActive reports whether the customer exists and is active. An unknown
// customer id counts as inactive, not as an error.
func (s *SQLCustomerStore) IsActive(ctx context.Context, customerID string) (bool, error) {
	var active bool
	err := s.db.QueryRowContext(ctx,
		`SELECT active FROM customer WHERE id = ?`, customerID).Scan(&active)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up customer %s: %w", customerID, err)
	}
	return active, nil
}
