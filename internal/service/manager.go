// Package service holds the reconciliation manager, the engine's central
// write path. Each operation is one scheduled invocation: it reads
// candidate state from the host cart storage, applies the abandonment
// rules and converges the snapshot store.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"abandoned-cart-engine/internal/cartstore"
	"abandoned-cart-engine/internal/classifier"
	"abandoned-cart-engine/internal/event"
	"abandoned-cart-engine/internal/model"
	"abandoned-cart-engine/internal/repository"
)

// CartReader is the read side of the host cart storage.
type CartReader interface {
	FindEligibleTokens(ctx context.Context, threshold time.Duration) ([]string, error)
	FetchCandidateRows(ctx context.Context, tokens []string, mode cartstore.Mode) ([]*model.CartRow, error)
	FindOrphanedTokens(ctx context.Context) ([]string, error)
}

// Decoder turns a raw cart payload into its structured form.
type Decoder func(raw []byte, compressed bool) (*model.Cart, error)

// RowClassifier applies the abandonment rules to one candidate row.
type RowClassifier interface {
	Classify(ctx context.Context, row *model.CartRow, cart *model.Cart, decodeErr error, resolveModified bool) (*classifier.EnrichedRow, model.RejectReason, error)
}

// Result is the outcome of one reconciliation invocation.
type Result struct {
	Count   int    `json:"count"`
	Summary string `json:"summary"`
}

// Manager coordinates the three reconciliation operations plus the stuck
// task watchdog. It holds no per-invocation state, so one instance serves
// both the HTTP handlers and the scheduler.
type Manager struct {
	reader     CartReader
	decode     Decoder
	classifier RowClassifier
	snapshots  repository.SnapshotRepository
	config     repository.ConfigRepository
	tasks      repository.ScheduledTaskRepository
	events     event.Dispatcher

	stuckThreshold time.Duration
	now            func() time.Time
}

// ManagerDeps bundles the manager's collaborators.
type ManagerDeps struct {
	Reader     CartReader
	Decode     Decoder
	Classifier RowClassifier
	Snapshots  repository.SnapshotRepository
	Config     repository.ConfigRepository
	Tasks      repository.ScheduledTaskRepository
	Events     event.Dispatcher

	// StuckTaskThreshold is how long a task may sit in the running state
	// before the watchdog resets it. Defaults to one hour.
	StuckTaskThreshold time.Duration
}

// NewManager creates a reconciliation manager.
func NewManager(deps ManagerDeps) *Manager {
	if deps.StuckTaskThreshold == 0 {
		deps.StuckTaskThreshold = time.Hour
	}

	return &Manager{
		reader:         deps.Reader,
		decode:         deps.Decode,
		classifier:     deps.Classifier,
		snapshots:      deps.Snapshots,
		config:         deps.Config,
		tasks:          deps.Tasks,
		events:         deps.Events,
		stuckThreshold: deps.StuckTaskThreshold,
		now:            time.Now,
	}
}

// Generate finds carts that crossed the inactivity threshold without a
// snapshot, records one per accepted cart and announces each. Rejected
// rows are skipped; store failures abort the invocation.
func (m *Manager) Generate(ctx context.Context) (*Result, error) {
	threshold, err := m.config.MarkAbandonedAfter(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read abandonment threshold: %w", err)
	}

	tokens, err := m.reader.FindEligibleTokens(ctx, threshold)
	if err != nil {
		return nil, err
	}

	rows, err := m.reader.FetchCandidateRows(ctx, tokens, cartstore.ModeNew)
	if err != nil {
		return nil, err
	}

	count := 0
	for _, row := range rows {
		cart, decodeErr := m.decode(row.Payload, row.Compressed)

		enriched, reason, err := m.classifier.Classify(ctx, row, cart, decodeErr, false)
		if err != nil {
			return nil, fmt.Errorf("failed to classify cart %s: %w", row.Token, err)
		}
		if reason != model.ReasonNone {
			log.Printf("[Manager] Skipping cart %s: %s", row.Token, reason)
			continue
		}

		snap, err := m.snapshots.UpsertByToken(ctx, enriched.Token, repository.SnapshotFields{
			Price:      enriched.Price,
			CustomerID: enriched.CustomerID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to record abandoned cart %s: %w", enriched.Token, err)
		}

		m.dispatch(func() error {
			return m.events.MarkedAbandoned(ctx, event.MarkedAbandoned{
				Snapshot: *snap,
				Cart:     event.CartInfoFrom(row, cart),
			})
		})

		count++
	}

	return &Result{
		Count:   count,
		Summary: fmt.Sprintf("Marked %d carts as abandoned", count),
	}, nil
}

// UpdateAbandonedCarts refreshes snapshots of carts that saw new activity
// after being recorded. A refresh is announced only when the cart has
// already gone quiet past the threshold again; refreshes of carts still
// inside the active window stay silent.
func (m *Manager) UpdateAbandonedCarts(ctx context.Context) (*Result, error) {
	threshold, err := m.config.MarkAbandonedAfter(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read abandonment threshold: %w", err)
	}
	cutoff := m.now().Add(-threshold)

	tokens, err := m.reader.FindEligibleTokens(ctx, threshold)
	if err != nil {
		return nil, err
	}

	rows, err := m.reader.FetchCandidateRows(ctx, tokens, cartstore.ModeUpdated)
	if err != nil {
		return nil, err
	}

	count := 0
	for _, row := range rows {
		cart, decodeErr := m.decode(row.Payload, row.Compressed)

		enriched, reason, err := m.classifier.Classify(ctx, row, cart, decodeErr, true)
		if err != nil {
			return nil, fmt.Errorf("failed to classify cart %s: %w", row.Token, err)
		}
		if reason != model.ReasonNone {
			log.Printf("[Manager] Skipping cart %s: %s", row.Token, reason)
			continue
		}

		// The snapshot can vanish between the candidate query and here,
		// for instance when a cleanup ran in parallel. Not an error.
		if _, err := m.snapshots.FindIDByToken(ctx, enriched.Token); errors.Is(err, repository.ErrSnapshotNotFound) {
			log.Printf("[Manager] Snapshot for cart %s disappeared, skipping update", enriched.Token)
			continue
		} else if err != nil {
			return nil, fmt.Errorf("failed to look up snapshot for cart %s: %w", enriched.Token, err)
		}

		snap, err := m.snapshots.UpsertByToken(ctx, enriched.Token, repository.SnapshotFields{
			Price:      enriched.Price,
			CustomerID: enriched.CustomerID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to refresh abandoned cart %s: %w", enriched.Token, err)
		}

		if enriched.ModifiedAt != nil && enriched.ModifiedAt.Before(cutoff) {
			info := event.CartInfoFrom(row, cart)
			info.ModifiedAt = enriched.ModifiedAt
			m.dispatch(func() error {
				return m.events.Updated(ctx, event.Updated{
					Snapshot: *snap,
					Cart:     info,
				})
			})
		}

		count++
	}

	return &Result{
		Count:   count,
		Summary: fmt.Sprintf("Updated %d abandoned carts", count),
	}, nil
}

// CleanUp deletes snapshots whose source cart no longer exists in the
// host storage and announces each deletion.
func (m *Manager) CleanUp(ctx context.Context) (*Result, error) {
	tokens, err := m.reader.FindOrphanedTokens(ctx)
	if err != nil {
		return nil, err
	}

	count := 0
	for _, token := range tokens {
		id, err := m.snapshots.FindIDByToken(ctx, token)
		if errors.Is(err, repository.ErrSnapshotNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to look up snapshot for cart %s: %w", token, err)
		}

		if err := m.snapshots.DeleteByID(ctx, id); err != nil {
			if errors.Is(err, repository.ErrSnapshotNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to delete snapshot %s: %w", id, err)
		}

		m.dispatch(func() error {
			return m.events.Deleted(ctx, event.Deleted{SnapshotID: id, CartToken: token})
		})

		count++
	}

	return &Result{
		Count:   count,
		Summary: fmt.Sprintf("Deleted %d orphaned snapshots", count),
	}, nil
}

// RelaunchTasks resets periodic tasks stuck in the running state so a
// crashed worker cannot wedge the schedule.
func (m *Manager) RelaunchTasks(ctx context.Context) (*Result, error) {
	n, err := m.tasks.RelaunchStuck(ctx, m.now(), m.stuckThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to relaunch stuck tasks: %w", err)
	}

	return &Result{
		Count:   int(n),
		Summary: fmt.Sprintf("Relaunched %d stuck tasks", n),
	}, nil
}

// dispatch publishes an event without letting a broker hiccup abort the
// invocation. The snapshot write already committed.
func (m *Manager) dispatch(publish func() error) {
	if err := publish(); err != nil {
		log.Printf("[Manager] Failed to publish event: %v", err)
	}
}
