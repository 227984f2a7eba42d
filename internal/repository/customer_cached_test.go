package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"abandoned-cart-engine/internal/cache"
)

type countingCustomerStore struct {
	active map[string]bool
	calls  int
}

func (s *countingCustomerStore) IsActive(ctx context.Context, customerID string) (bool, error) {
	s.calls++
	return s.active[customerID], nil
}

func TestCachedCustomerStore_HitsInnerOnce(t *testing.T) {
	inner := &countingCustomerStore{active: map[string]bool{"cust-1": true}}
	c := cache.NewMemoryCache()
	defer c.Close()

	store := NewCachedCustomerStore(inner, c, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		active, err := store.IsActive(ctx, "cust-1")
		require.NoError(t, err)
		assert.True(t, active)
	}

	assert.Equal(t, 1, inner.calls)
}

func TestCachedCustomerStore_CachesInactiveResult(t *testing.T) {
	inner := &countingCustomerStore{active: map[string]bool{}}
	c := cache.NewMemoryCache()
	defer c.Close()

	store := NewCachedCustomerStore(inner, c, time.Minute)
	ctx := context.Background()

	active, err := store.IsActive(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, active)

	active, err = store.IsActive(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, active)

	assert.Equal(t, 1, inner.calls)
}

func TestCachedCustomerStore_SeparateKeysPerCustomer(t *testing.T) {
	inner := &countingCustomerStore{active: map[string]bool{"a": true, "b": false}}
	c := cache.NewMemoryCache()
	defer c.Close()

	store := NewCachedCustomerStore(inner, c, time.Minute)
	ctx := context.Background()

	activeA, err := store.IsActive(ctx, "a")
	require.NoError(t, err)
	activeB, err := store.IsActive(ctx, "b")
	require.NoError(t, err)

	assert.True(t, activeA)
	assert.False(t, activeB)
	assert.Equal(t, 2, inner.calls)
}
