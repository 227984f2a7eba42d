package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"abandoned-cart-engine/internal/model"
	"abandoned-cart-engine/pkg/uid"
)

// MySQLSnapshotRepository implements SnapshotRepository on the host MySQL
// database. Uniqueness per cart token is enforced by the unique key on
// cart_token, so concurrent upserts cannot create duplicate rows.
type MySQLSnapshotRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewMySQLSnapshotRepository creates a MySQL-backed snapshot repository.
func NewMySQLSnapshotRepository(db *sql.DB) *MySQLSnapshotRepository {
	return &MySQLSnapshotRepository{db: db, now: time.Now}
}

// UpsertByToken inserts a new snapshot or refreshes the existing one for
// the token. The id generated on first insert is never replaced.
func (r *MySQLSnapshotRepository) UpsertByToken(ctx context.Context, token string, fields SnapshotFields) (*model.AbandonedCart, error) {
	query := `
		INSERT INTO abandoned_cart (id, cart_token, price, customer_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			price = VALUES(price),
			customer_id = VALUES(customer_id),
			updated_at = ?`

	now := r.now().UTC()
	if _, err := r.db.ExecContext(ctx, query, uid.New(), token, fields.Price, fields.CustomerID, now, now); err != nil {
		return nil, fmt.Errorf("failed to upsert abandoned cart %s: %w", token, err)
	}

	return scanSnapshot(r.db.QueryRowContext(ctx,
		`SELECT id, cart_token, price, customer_id, created_at, updated_at
		 FROM abandoned_cart WHERE cart_token = ?`, token))
}

// DeleteByID removes a snapshot by its id.
func (r *MySQLSnapshotRepository) DeleteByID(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM abandoned_cart WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete abandoned cart %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete abandoned cart %s: %w", id, err)
	}
	if affected == 0 {
		return ErrSnapshotNotFound
	}
	return nil
}

// FindIDByToken looks up the snapshot id for a cart token.
func (r *MySQLSnapshotRepository) FindIDByToken(ctx context.Context, token string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM abandoned_cart WHERE cart_token = ?`, token).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrSnapshotNotFound
		}
		return "", fmt.Errorf("failed to find abandoned cart by token %s: %w", token, err)
	}
	return id, nil
}

// Close is a no-op; the shared host connection is owned by the caller.
func (r *MySQLSnapshotRepository) Close() error {
	return nil
}

// scanSnapshot reads one abandoned_cart row into the snapshot entity.
// Shared by the mysql and sqlite backends; both use the same column set.
func scanSnapshot(row *sql.Row) (*model.AbandonedCart, error) {
	var snap model.AbandonedCart
	var updatedAt sql.NullTime
	err := row.Scan(&snap.ID, &snap.CartToken, &snap.Price, &snap.CustomerID, &snap.CreatedAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to scan abandoned cart row: %w", err)
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		snap.UpdatedAt = &t
	}
	return &snap, nil
}

// Ensure MySQLSnapshotRepository implements SnapshotRepository
var _ SnapshotRepository = (*MySQLSnapshotRepository)(nil)
