package repository

import (
	"context"
	"errors"
	"time"

	"abandoned-cart-engine/internal/cache"
	"abandoned-cart-engine/internal/classifier"
)

// CachedCustomerStore wraps a CustomerStore with a short-lived cache so a
// customer appearing in many candidate carts costs one host-shop query
// per TTL window instead of one per cart.
type CachedCustomerStore struct {
	inner classifier.CustomerStore
	cache cache.Cache
	ttl   time.Duration
}

func NewCachedCustomerStore(inner classifier.CustomerStore, c cache.Cache, ttl time.Duration) *CachedCustomerStore {
	return &CachedCustomerStore{inner: inner, cache: c, ttl: ttl}
}

// IsActive reports whether the customer account is active, consulting the
// cache first. Cache failures fall through to the underlying store.
func (s *CachedCustomerStore) IsActive(ctx context.Context, customerID string) (bool, error) {
	key := "customer:active:" + customerID

	if data, err := s.cache.Get(ctx, key); err == nil && len(data) == 1 {
		return data[0] == '1', nil
	} else if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		return s.inner.IsActive(ctx, customerID)
	}

	active, err := s.inner.IsActive(ctx, customerID)
	if err != nil {
		return false, err
	}

	val := []byte{'0'}
	if active {
		val[0] = '1'
	}
	_ = s.cache.Set(ctx, key, val, s.ttl)

	return active, nil
}

var _ classifier.CustomerStore = (*CachedCustomerStore)(nil)
