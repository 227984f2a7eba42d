package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Task statuses in the scheduled_task table.
const (
	TaskStatusScheduled = "scheduled"
	TaskStatusRunning   = "running"
)

// Names of the engine's periodic tasks.
const (
	TaskMark     = "abandoned_cart.mark"
	TaskUpdate   = "abandoned_cart.update"
	TaskDelete   = "abandoned_cart.delete"
	TaskRelaunch = "abandoned_cart.relaunch"
)

// SQLScheduledTaskRepository implements ScheduledTaskRepository on the
// scheduled_task bookkeeping table. State transitions are single UPDATE
// statements guarded by the current status, so overlapping workers cannot
// claim the same task twice.
type SQLScheduledTaskRepository struct {
	db *sql.DB
}

// NewSQLScheduledTaskRepository creates a scheduled-task repository.
func NewSQLScheduledTaskRepository(db *sql.DB) *SQLScheduledTaskRepository {
	return &SQLScheduledTaskRepository{db: db}
}

// ClaimDue moves a due scheduled task to running.
func (r *SQLScheduledTaskRepository) ClaimDue(ctx context.Context, name string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_task
		SET status = ?, last_execution = ?
		WHERE name = ?
		  AND status = ?
		  AND (next_execution IS NULL OR next_execution <= ?)`,
		TaskStatusRunning, now.UTC(), name, TaskStatusScheduled, now.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to claim task %s: %w", name, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim task %s: %w", name, err)
	}
	return affected > 0, nil
}

// Finish returns a running task to scheduled and records its next
// execution time.
func (r *SQLScheduledTaskRepository) Finish(ctx context.Context, name string, next time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_task
		SET status = ?, next_execution = ?
		WHERE name = ? AND status = ?`,
		TaskStatusScheduled, next.UTC(), name, TaskStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to finish task %s: %w", name, err)
	}
	return nil
}

// RelaunchStuck resets tasks stuck in the running state. Resetting an
// already-scheduled task is a no-op, so repeated invocations are safe.
func (r *SQLScheduledTaskRepository) RelaunchStuck(ctx context.Context, now time.Time, threshold time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_task
		SET status = ?, next_execution = ?
		WHERE status = ?
		  AND (last_execution IS NULL OR last_execution < ?)`,
		TaskStatusScheduled, now.UTC(), TaskStatusRunning, now.UTC().Add(-threshold))
	if err != nil {
		return 0, fmt.Errorf("failed to relaunch stuck tasks: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to relaunch stuck tasks: %w", err)
	}
	return affected, nil
}

// Ensure SQLScheduledTaskRepository implements ScheduledTaskRepository
var _ ScheduledTaskRepository = (*SQLScheduledTaskRepository)(nil)
