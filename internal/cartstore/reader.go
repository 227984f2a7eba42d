// Package cartstore reads the host system's live cart storage: candidate
// abandoned-cart tokens, full candidate rows joined with snapshot state,
// and snapshot tokens whose source cart has disappeared. All queries are
// read-only; the cart table is owned by the host checkout flow.
package cartstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"abandoned-cart-engine/internal/model"
)

// DefaultPageSize caps the number of candidate rows per invocation.
// Draining a larger backlog takes multiple scheduled invocations.
const DefaultPageSize = 100

// Mode selects which candidate rows a fetch returns.
type Mode int

const (
	// ModeNew selects carts that have no snapshot yet.
	ModeNew Mode = iota
	// ModeUpdated selects carts whose activity postdates their snapshot.
	ModeUpdated
)

// Reader performs read-only queries against the host cart storage.
type Reader struct {
	db       *sql.DB
	schema   *Schema
	pageSize int
	now      func() time.Time
}

// NewReader creates a reader bound to a probed cart schema.
func NewReader(db *sql.DB, schema *Schema) *Reader {
	return &Reader{
		db:       db,
		schema:   schema,
		pageSize: DefaultPageSize,
		now:      time.Now,
	}
}

// Schema returns the probed schema this reader queries against.
func (r *Reader) Schema() *Schema {
	return r.schema
}

// WithPageSize overrides the candidate page cap. Values below one keep
// the default.
func (r *Reader) WithPageSize(n int) *Reader {
	if n > 0 {
		r.pageSize = n
	}
	return r
}

// activityExpr is the SQL expression for a cart's last activity time,
// falling back to created_at on schemas without updated_at.
func (r *Reader) activityExpr() string {
	if r.schema.HasUpdatedAt {
		return "IFNULL(c.updated_at, c.created_at)"
	}
	return "c.created_at"
}

// FindEligibleTokens returns, per customer, the token of the single
// most-recently-active cart whose last activity lies strictly before
// now minus the threshold. Carts without a customer are excluded.
func (r *Reader) FindEligibleTokens(ctx context.Context, threshold time.Duration) ([]string, error) {
	cutoff := r.now().Add(-threshold)

	// updated_at and created_at are selected as plain columns and the
	// activity fallback computed here: an IFNULL expression in the select
	// list loses the column's DATETIME type on some drivers and scans
	// back as a bare string.
	updatedCol := "NULL"
	if r.schema.HasUpdatedAt {
		updatedCol = "c.updated_at"
	}

	query := fmt.Sprintf(`
		SELECT c.token, c.customer_id, %s AS updated_at, c.created_at
		FROM cart c
		WHERE c.customer_id IS NOT NULL
		  AND %s < ?
		ORDER BY c.token`,
		updatedCol, r.activityExpr())

	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible cart tokens: %w", err)
	}
	defer rows.Close()

	type candidate struct {
		token        string
		customerID   string
		lastActivity time.Time
	}

	var candidates []candidate
	for rows.Next() {
		var (
			c         candidate
			updatedAt sql.NullTime
			createdAt time.Time
		)
		if err := rows.Scan(&c.token, &c.customerID, &updatedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan eligible cart token: %w", err)
		}
		c.lastActivity = createdAt
		if updatedAt.Valid {
			c.lastActivity = updatedAt.Time
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read eligible cart tokens: %w", err)
	}

	// Keep only the most recent cart per customer. Ties on activity are
	// broken by the lexicographically smallest token so results stay
	// deterministic across runs.
	best := make(map[string]candidate)
	for _, c := range candidates {
		current, seen := best[c.customerID]
		if !seen {
			best[c.customerID] = c
			continue
		}
		if c.lastActivity.After(current.lastActivity) ||
			(c.lastActivity.Equal(current.lastActivity) && c.token < current.token) {
			best[c.customerID] = c
		}
	}

	tokens := make([]string, 0, len(best))
	for _, c := range best {
		tokens = append(tokens, c.token)
	}
	sort.Strings(tokens)

	return tokens, nil
}

// FetchCandidateRows loads candidate rows for the given tokens. ModeNew
// returns carts without a snapshot; ModeUpdated returns carts whose last
// activity is strictly after their snapshot's last write. An empty token
// set short-circuits without touching the database. Results are capped at
// the page size, oldest carts first.
func (r *Reader) FetchCandidateRows(ctx context.Context, tokens []string, mode Mode) ([]*model.CartRow, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	selects := []string{
		"c.token",
		fmt.Sprintf("c.%s AS payload", r.schema.PayloadColumn),
		"c.created_at",
		"ac.created_at AS ac_created_at",
		"ac.updated_at AS ac_updated_at",
	}
	if r.schema.HasCompressed {
		selects = append(selects, "c.compressed")
	} else {
		selects = append(selects, "0 AS compressed")
	}
	if r.schema.HasUpdatedAt {
		selects = append(selects, "c.updated_at AS c_updated_at")
	} else {
		selects = append(selects, "NULL AS c_updated_at")
	}
	if r.schema.Precomputed {
		selects = append(selects, "c.customer_id", "c.price", "c.line_item_count")
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tokens)), ",")
	args := make([]any, 0, len(tokens)+1)
	for _, token := range tokens {
		args = append(args, token)
	}

	var predicate string
	switch mode {
	case ModeNew:
		predicate = "ac.id IS NULL"
	case ModeUpdated:
		predicate = fmt.Sprintf("ac.id IS NOT NULL AND %s > COALESCE(ac.updated_at, ac.created_at)", r.activityExpr())
	default:
		return nil, fmt.Errorf("unknown candidate mode %d", mode)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM cart c
		LEFT JOIN abandoned_cart ac ON ac.cart_token = c.token
		WHERE c.token IN (%s)
		  AND %s
		ORDER BY c.created_at ASC
		LIMIT %d`,
		strings.Join(selects, ", "), placeholders, predicate, r.pageSize)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidate cart rows: %w", err)
	}
	defer rows.Close()

	var out []*model.CartRow
	for rows.Next() {
		row, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// FindOrphanedTokens returns snapshot tokens whose source cart no longer
// exists. Cart deletion is silent, so orphans are detected by absence.
func (r *Reader) FindOrphanedTokens(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ac.cart_token
		FROM abandoned_cart ac
		LEFT JOIN cart c ON c.token = ac.cart_token
		WHERE c.token IS NULL
		ORDER BY ac.cart_token`)
	if err != nil {
		return nil, fmt.Errorf("failed to query orphaned snapshot tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("failed to scan orphaned token: %w", err)
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

func (r *Reader) scanRow(rows *sql.Rows) (*model.CartRow, error) {
	var (
		row         model.CartRow
		compressed  int
		cUpdatedAt  sql.NullTime
		acCreatedAt sql.NullTime
		acUpdatedAt sql.NullTime
		customerID  sql.NullString
		price       sql.NullFloat64
		lineItems   sql.NullInt64
	)

	dest := []any{
		&row.Token, &row.Payload, &row.CreatedAt,
		&acCreatedAt, &acUpdatedAt,
		&compressed, &cUpdatedAt,
	}
	if r.schema.Precomputed {
		dest = append(dest, &customerID, &price, &lineItems)
	}

	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("failed to scan candidate cart row: %w", err)
	}

	row.Compressed = compressed != 0
	if cUpdatedAt.Valid {
		t := cUpdatedAt.Time
		row.UpdatedAt = &t
	}
	if acCreatedAt.Valid {
		t := acCreatedAt.Time
		row.SnapshotCreatedAt = &t
	}
	if acUpdatedAt.Valid {
		t := acUpdatedAt.Time
		row.SnapshotUpdatedAt = &t
	}
	if customerID.Valid {
		row.CustomerID = customerID.String
	}
	if price.Valid {
		row.Price = price.Float64
	}
	if lineItems.Valid {
		row.LineItemCount = int(lineItems.Int64)
	}

	return &row, nil
}
