package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// MarkAbandonedAfterKey is the engine_config key holding the inactivity
// threshold in seconds.
const MarkAbandonedAfterKey = "mark_abandoned_after"

// SQLConfigRepository reads engine settings from the engine_config table.
// The threshold is read on every invocation so administrators can change
// it without restarting the engine; the env default applies when no row
// is set.
type SQLConfigRepository struct {
	db              *sql.DB
	defaultDuration time.Duration
}

// NewSQLConfigRepository creates a config repository with a fallback
// default threshold.
func NewSQLConfigRepository(db *sql.DB, defaultDuration time.Duration) *SQLConfigRepository {
	return &SQLConfigRepository{db: db, defaultDuration: defaultDuration}
}

// MarkAbandonedAfter returns the configured inactivity threshold.
func (r *SQLConfigRepository) MarkAbandonedAfter(ctx context.Context) (time.Duration, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT config_value FROM engine_config WHERE config_key = ?`, MarkAbandonedAfterKey).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return r.defaultDuration, nil
		}
		return 0, fmt.Errorf("failed to read %s: %w", MarkAbandonedAfterKey, err)
	}

	seconds, err := strconv.ParseInt(value, 10, 64)
	if err != nil || seconds <= 0 {
		return 0, fmt.Errorf("invalid %s value %q", MarkAbandonedAfterKey, value)
	}
	return time.Duration(seconds) * time.Second, nil
}

// Ensure SQLConfigRepository implements ConfigRepository
var _ ConfigRepository = (*SQLConfigRepository)(nil)
