package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"abandoned-cart-engine/internal/model"
	"abandoned-cart-engine/pkg/uid"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteSnapshotRepository implements SnapshotRepository using SQLite.
// Production deployments keep snapshots beside the cart table in MySQL
// so the reader's joins can see them; this backend exists for tests and
// local experiments that run the whole engine against one SQLite file.
type SQLiteSnapshotRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteSnapshotRepository creates a SQLite-backed snapshot repository.
// dbPath is the path to the database file, or ":memory:".
func NewSQLiteSnapshotRepository(dbPath string) (*SQLiteSnapshotRepository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	repo, err := NewSQLiteSnapshotRepositoryWithDB(db)
	if err != nil {
		return nil, err
	}

	log.Printf("[SQLiteSnapshotRepository] Initialized with database: %s", dbPath)
	return repo, nil
}

// NewSQLiteSnapshotRepositoryWithDB wraps an existing SQLite connection,
// creating the snapshot table on it. The caller keeps ownership of the
// connection; Close on the repository closes it.
func NewSQLiteSnapshotRepositoryWithDB(db *sql.DB) (*SQLiteSnapshotRepository, error) {
	if err := createSnapshotTable(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &SQLiteSnapshotRepository{db: db, now: time.Now}, nil
}

func createSnapshotTable(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS abandoned_cart (
		id          TEXT PRIMARY KEY,
		cart_token  TEXT NOT NULL UNIQUE,
		price       REAL NOT NULL,
		customer_id TEXT NOT NULL,
		created_at  DATETIME NOT NULL,
		updated_at  DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_abandoned_cart_customer ON abandoned_cart(customer_id);
	`
	_, err := db.Exec(query)
	return err
}

// UpsertByToken inserts a new snapshot or refreshes the existing one for
// the token. The id generated on first insert is never replaced.
func (r *SQLiteSnapshotRepository) UpsertByToken(ctx context.Context, token string, fields SnapshotFields) (*model.AbandonedCart, error) {
	query := `
		INSERT INTO abandoned_cart (id, cart_token, price, customer_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(cart_token) DO UPDATE SET
			price = excluded.price,
			customer_id = excluded.customer_id,
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
func (r *SQLiteSnapshotRepository) DeleteByID(ctx context.Context, id string) error {
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
func (r *SQLiteSnapshotRepository) FindIDByToken(ctx context.Context, token string) (string, error) {
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

// Close closes the repository connection.
func (r *SQLiteSnapshotRepository) Close() error {
	return r.db.Close()
}

// Ensure SQLiteSnapshotRepository implements SnapshotRepository
var _ SnapshotRepository = (*SQLiteSnapshotRepository)(nil)
