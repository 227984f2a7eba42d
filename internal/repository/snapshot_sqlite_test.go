package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSnapshotRepo(t *testing.T) *SQLiteSnapshotRepository {
	t.Helper()
	repo, err := NewSQLiteSnapshotRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestUpsertByToken_CreatesSnapshot(t *testing.T) {
	repo := newTestSnapshotRepo(t)
	ctx := context.Background()

	snap, err := repo.UpsertByToken(ctx, "tok-1", SnapshotFields{Price: 10.00, CustomerID: "cust-1"})

	require.NoError(t, err)
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, "tok-1", snap.CartToken)
	assert.Equal(t, 10.00, snap.Price)
	assert.Equal(t, "cust-1", snap.CustomerID)
	assert.Nil(t, snap.UpdatedAt, "a freshly created snapshot has no update time")

	found, err := repo.FindIDByToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, snap.ID, found)
}

func TestUpsertByToken_IdempotentAndSingleRow(t *testing.T) {
	repo := newTestSnapshotRepo(t)
	ctx := context.Background()

	first, err := repo.UpsertByToken(ctx, "tok-1", SnapshotFields{Price: 10.00, CustomerID: "cust-1"})
	require.NoError(t, err)

	// Repeated upserts with identical input keep the original id and
	// never create a second row for the token.
	second, err := repo.UpsertByToken(ctx, "tok-1", SnapshotFields{Price: 10.00, CustomerID: "cust-1"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int
	err = repo.db.QueryRow(`SELECT COUNT(*) FROM abandoned_cart WHERE cart_token = ?`, "tok-1").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUpsertByToken_RefreshesPriceKeepsID(t *testing.T) {
	repo := newTestSnapshotRepo(t)
	ctx := context.Background()

	snap, err := repo.UpsertByToken(ctx, "tok-1", SnapshotFields{Price: 10.00, CustomerID: "cust-1"})
	require.NoError(t, err)

	updated, err := repo.UpsertByToken(ctx, "tok-1", SnapshotFields{Price: 12.50, CustomerID: "cust-1"})
	require.NoError(t, err)
	assert.Equal(t, snap.ID, updated.ID)
	assert.Equal(t, 12.50, updated.Price)
	assert.NotNil(t, updated.UpdatedAt)
}

func TestDeleteByID(t *testing.T) {
	repo := newTestSnapshotRepo(t)
	ctx := context.Background()

	snap, err := repo.UpsertByToken(ctx, "tok-1", SnapshotFields{Price: 10.00, CustomerID: "cust-1"})
	require.NoError(t, err)

	require.NoError(t, repo.DeleteByID(ctx, snap.ID))

	_, err = repo.FindIDByToken(ctx, "tok-1")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	// Deleting again reports not-found instead of crashing the batch.
	assert.ErrorIs(t, repo.DeleteByID(ctx, snap.ID), ErrSnapshotNotFound)
}

func TestFindIDByToken_NotFound(t *testing.T) {
	repo := newTestSnapshotRepo(t)

	_, err := repo.FindIDByToken(context.Background(), "tok-missing")

	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}
