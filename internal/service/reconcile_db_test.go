package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"abandoned-cart-engine/internal/cartpayload"
	"abandoned-cart-engine/internal/cartstore"
	"abandoned-cart-engine/internal/classifier"
	"abandoned-cart-engine/internal/repository"
)

type allActiveCustomers struct{}

func (allActiveCustomers) IsActive(ctx context.Context, customerID string) (bool, error) {
	return true, nil
}

type noOrders struct{}

func (noOrders) HasOrderSince(ctx context.Context, customerID string, since time.Time) (bool, error) {
	return false, nil
}

// The reader's anti-join, update predicate and orphan detection all join
// abandoned_cart against the cart table, so the snapshot store must live
// in the same database the reader queries. This drives a mark and cleanup
// cycle through one shared connection and checks that a second run stays
// idempotent: the snapshot written by the first run must be visible to
// the anti-join of the second.
func TestReconciliationOverSharedDatabase(t *testing.T) {
	ctx := context.Background()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE cart (
			token       TEXT PRIMARY KEY,
			payload     BLOB,
			compressed  INTEGER NOT NULL DEFAULT 0,
			created_at  DATETIME NOT NULL,
			updated_at  DATETIME,
			customer_id TEXT
		)`)
	require.NoError(t, err)

	snapshots, err := repository.NewSQLiteSnapshotRepositoryWithDB(db)
	require.NoError(t, err)

	schema := &cartstore.Schema{PayloadColumn: "payload", HasCompressed: true, HasUpdatedAt: true}
	reader := cartstore.NewReader(db, schema)
	dispatcher := &mockDispatcher{}

	manager := NewManager(ManagerDeps{
		Reader:     reader,
		Decode:     cartpayload.Decode,
		Classifier: classifier.New(schema.Resolver(), allActiveCustomers{}, noOrders{}),
		Snapshots:  snapshots,
		Config:     &mockConfig{threshold: time.Hour},
		Tasks:      &mockTasks{},
		Events:     dispatcher,
	})

	payload := `{"token":"tok-1","customerId":"alice","price":{"totalPrice":42.5},"lineItems":[{"id":"li-1","label":"Widget","quantity":1,"total":42.5}]}`
	_, err = db.Exec(`INSERT INTO cart (token, payload, compressed, created_at, customer_id) VALUES (?, ?, 0, ?, ?)`,
		"tok-1", []byte(payload), time.Now().Add(-2*time.Hour), "alice")
	require.NoError(t, err)

	result, err := manager.Generate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)

	result, err = manager.Generate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Count, "second run must not re-mark the cart")

	require.Len(t, dispatcher.marked, 1)
	assert.Equal(t, "tok-1", dispatcher.marked[0].Snapshot.CartToken)
	assert.Equal(t, "alice", dispatcher.marked[0].Snapshot.CustomerID)
	assert.Equal(t, 42.5, dispatcher.marked[0].Snapshot.Price)
	require.Len(t, dispatcher.marked[0].Cart.LineItems, 1)
	assert.Equal(t, "li-1", dispatcher.marked[0].Cart.LineItems[0].ID)

	// The host expires the cart; cleanup sees the orphan through the
	// same join and removes the snapshot.
	_, err = db.Exec(`DELETE FROM cart WHERE token = ?`, "tok-1")
	require.NoError(t, err)

	result, err = manager.CleanUp(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)
	require.Len(t, dispatcher.deleted, 1)
	assert.Equal(t, "tok-1", dispatcher.deleted[0].CartToken)

	_, err = snapshots.FindIDByToken(ctx, "tok-1")
	assert.ErrorIs(t, err, repository.ErrSnapshotNotFound)
}
