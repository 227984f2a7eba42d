package repository

import (
	"context"
	"errors"
	"time"

	"abandoned-cart-engine/internal/model"
)

// ErrSnapshotNotFound is returned when no snapshot exists for a token or id.
var ErrSnapshotNotFound = errors.New("abandoned cart snapshot not found")

// SnapshotFields are the mutable fields of an abandoned-cart snapshot.
type SnapshotFields struct {
	Price      float64
	CustomerID string
}

// SnapshotRepository persists abandoned-cart snapshots, keyed by the
// stable cart token. At most one snapshot exists per token and its id is
// immutable once created.
type SnapshotRepository interface {
	// UpsertByToken creates a snapshot for the token or updates the
	// existing one, returning the persisted row. Safe to call repeatedly
	// with identical input.
	UpsertByToken(ctx context.Context, token string, fields SnapshotFields) (*model.AbandonedCart, error)

	// DeleteByID removes a snapshot. Deleting an already-gone snapshot
	// returns ErrSnapshotNotFound, which callers may ignore.
	DeleteByID(ctx context.Context, id string) error

	// FindIDByToken returns the snapshot id for a token, or
	// ErrSnapshotNotFound.
	FindIDByToken(ctx context.Context, token string) (string, error)

	// Close closes the repository connection.
	Close() error
}

// ConfigRepository reads engine settings the host administrator can change
// at runtime. Values are read fresh on every invocation, never cached
// process-wide.
type ConfigRepository interface {
	// MarkAbandonedAfter returns the configured inactivity threshold.
	MarkAbandonedAfter(ctx context.Context) (time.Duration, error)
}

// ScheduledTaskRepository is the bookkeeping store for the engine's own
// periodic task records.
type ScheduledTaskRepository interface {
	// ClaimDue atomically moves a scheduled task whose next execution is
	// due to the running state. Returns false when the task is not due
	// or another worker already claimed it.
	ClaimDue(ctx context.Context, name string, now time.Time) (bool, error)

	// Finish returns a running task to scheduled after a completed run,
	// recording when it should next execute.
	Finish(ctx context.Context, name string, next time.Time) error

	// RelaunchStuck resets tasks stuck in the running state for longer
	// than the threshold back to scheduled, so a crashed worker cannot
	// permanently wedge the periodic job. Idempotent.
	RelaunchStuck(ctx context.Context, now time.Time, threshold time.Duration) (int64, error)
}
