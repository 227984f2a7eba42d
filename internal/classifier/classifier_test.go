package classifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"abandoned-cart-engine/internal/cartpayload"
	"abandoned-cart-engine/internal/cartstore"
	"abandoned-cart-engine/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockCustomerStore implements CustomerStore for testing
type MockCustomerStore struct {
	Active map[string]bool
	Err    error
	Calls  int
}

func (m *MockCustomerStore) IsActive(_ context.Context, customerID string) (bool, error) {
	m.Calls++
	if m.Err != nil {
		return false, m.Err
	}
	return m.Active[customerID], nil
}

// MockOrderStore implements OrderStore for testing
type MockOrderStore struct {
	Converted map[string]bool
	Since     time.Time
	Err       error
	Calls     int
}

func (m *MockOrderStore) HasOrderSince(_ context.Context, customerID string, since time.Time) (bool, error) {
	m.Calls++
	m.Since = since
	if m.Err != nil {
		return false, m.Err
	}
	return m.Converted[customerID], nil
}

func newTestClassifier(customers *MockCustomerStore, orders *MockOrderStore) *Classifier {
	schema := &cartstore.Schema{PayloadColumn: "payload", Precomputed: true, HasUpdatedAt: true}
	return New(schema.Resolver(), customers, orders)
}

func activeRow(token, customerID string, createdAt time.Time) *model.CartRow {
	return &model.CartRow{
		Token:      token,
		CustomerID: customerID,
		Price:      12.50,
		CreatedAt:  createdAt,
	}
}

func TestClassify_Accepted(t *testing.T) {
	customers := &MockCustomerStore{Active: map[string]bool{"cust-1": true}}
	orders := &MockOrderStore{}
	c := newTestClassifier(customers, orders)

	createdAt := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	row := activeRow("tok-1", "cust-1", createdAt)
	cart := &model.Cart{Token: "tok-1", CustomerID: "cust-1", TotalPrice: 12.50}

	enriched, reason, err := c.Classify(context.Background(), row, cart, nil, false)

	require.NoError(t, err)
	assert.Equal(t, model.ReasonNone, reason)
	require.NotNil(t, enriched)
	assert.Equal(t, "tok-1", enriched.Token)
	assert.Equal(t, "cust-1", enriched.CustomerID)
	assert.Equal(t, 12.50, enriched.Price)
	assert.Nil(t, enriched.ModifiedAt)
	// The conversion check must start at the cart's last activity.
	assert.True(t, createdAt.Equal(orders.Since))
}

func TestClassify_InvalidPayload(t *testing.T) {
	customers := &MockCustomerStore{}
	orders := &MockOrderStore{}
	c := newTestClassifier(customers, orders)

	decodeErr := &cartpayload.DecodeError{Stage: "unmarshal", Err: errors.New("bad json")}
	_, reason, err := c.Classify(context.Background(), activeRow("tok-1", "cust-1", time.Now()), nil, decodeErr, false)

	require.NoError(t, err)
	assert.Equal(t, model.ReasonInvalidPayload, reason)
	// Local rejections must not cost a store round-trip.
	assert.Zero(t, customers.Calls)
	assert.Zero(t, orders.Calls)
}

func TestClassify_RecalculationAlwaysRejected(t *testing.T) {
	customers := &MockCustomerStore{Active: map[string]bool{"cust-1": true}}
	orders := &MockOrderStore{}
	c := newTestClassifier(customers, orders)

	cart := &model.Cart{Token: "tok-1", CustomerID: "cust-1", TotalPrice: 99.0, IsRecalculation: true}
	_, reason, err := c.Classify(context.Background(), activeRow("tok-1", "cust-1", time.Now()), cart, nil, false)

	require.NoError(t, err)
	assert.Equal(t, model.ReasonRecalculation, reason)
	assert.Zero(t, customers.Calls)
}

func TestClassify_NoCustomer(t *testing.T) {
	customers := &MockCustomerStore{}
	orders := &MockOrderStore{}
	c := newTestClassifier(customers, orders)

	row := &model.CartRow{Token: "tok-1", CreatedAt: time.Now()}
	cart := &model.Cart{Token: "tok-1"}
	_, reason, err := c.Classify(context.Background(), row, cart, nil, false)

	require.NoError(t, err)
	assert.Equal(t, model.ReasonNoCustomer, reason)
	assert.Zero(t, customers.Calls)
}

func TestClassify_InactiveCustomer(t *testing.T) {
	customers := &MockCustomerStore{Active: map[string]bool{}}
	orders := &MockOrderStore{}
	c := newTestClassifier(customers, orders)

	cart := &model.Cart{Token: "tok-1", CustomerID: "cust-1"}
	_, reason, err := c.Classify(context.Background(), activeRow("tok-1", "cust-1", time.Now()), cart, nil, false)

	require.NoError(t, err)
	assert.Equal(t, model.ReasonInactiveCustomer, reason)
	// The order lookup never runs for an inactive customer.
	assert.Zero(t, orders.Calls)
}

func TestClassify_AlreadyConverted(t *testing.T) {
	customers := &MockCustomerStore{Active: map[string]bool{"cust-1": true}}
	orders := &MockOrderStore{Converted: map[string]bool{"cust-1": true}}
	c := newTestClassifier(customers, orders)

	cart := &model.Cart{Token: "tok-1", CustomerID: "cust-1"}
	_, reason, err := c.Classify(context.Background(), activeRow("tok-1", "cust-1", time.Now()), cart, nil, false)

	require.NoError(t, err)
	assert.Equal(t, model.ReasonAlreadyConverted, reason)
}

func TestClassify_StoreErrorPropagates(t *testing.T) {
	storeErr := errors.New("connection refused")
	customers := &MockCustomerStore{Err: storeErr}
	c := newTestClassifier(customers, &MockOrderStore{})

	cart := &model.Cart{Token: "tok-1", CustomerID: "cust-1"}
	_, _, err := c.Classify(context.Background(), activeRow("tok-1", "cust-1", time.Now()), cart, nil, false)

	assert.ErrorIs(t, err, storeErr)
}

func TestClassify_ModifiedAtPrefersMarker(t *testing.T) {
	customers := &MockCustomerStore{Active: map[string]bool{"cust-1": true}}
	c := newTestClassifier(customers, &MockOrderStore{})

	marker := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	updated := time.Date(2026, 5, 1, 11, 0, 0, 0, time.UTC)
	row := activeRow("tok-1", "cust-1", time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	row.UpdatedAt = &updated
	cart := &model.Cart{Token: "tok-1", CustomerID: "cust-1", ModifiedAt: &marker}

	enriched, _, err := c.Classify(context.Background(), row, cart, nil, true)

	require.NoError(t, err)
	require.NotNil(t, enriched.ModifiedAt)
	assert.True(t, marker.Equal(*enriched.ModifiedAt))
}

func TestClassify_ModifiedAtFallsBackToUpdatedAt(t *testing.T) {
	customers := &MockCustomerStore{Active: map[string]bool{"cust-1": true}}
	c := newTestClassifier(customers, &MockOrderStore{})

	updated := time.Date(2026, 5, 1, 11, 0, 0, 0, time.UTC)
	row := activeRow("tok-1", "cust-1", time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	row.UpdatedAt = &updated
	cart := &model.Cart{Token: "tok-1", CustomerID: "cust-1"}

	enriched, _, err := c.Classify(context.Background(), row, cart, nil, true)

	require.NoError(t, err)
	require.NotNil(t, enriched.ModifiedAt)
	assert.True(t, updated.Equal(*enriched.ModifiedAt))
}

func TestClassify_ModifiedAtFallsBackToCreatedAt(t *testing.T) {
	customers := &MockCustomerStore{Active: map[string]bool{"cust-1": true}}
	c := newTestClassifier(customers, &MockOrderStore{})

	created := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	row := activeRow("tok-1", "cust-1", created)
	cart := &model.Cart{Token: "tok-1", CustomerID: "cust-1"}

	enriched, _, err := c.Classify(context.Background(), row, cart, nil, true)

	require.NoError(t, err)
	require.NotNil(t, enriched.ModifiedAt)
	assert.True(t, created.Equal(*enriched.ModifiedAt))
}

func TestClassify_PayloadResolverDerivesFields(t *testing.T) {
	customers := &MockCustomerStore{Active: map[string]bool{"cust-9": true}}
	orders := &MockOrderStore{}
	schema := &cartstore.Schema{PayloadColumn: "cart"}
	c := New(schema.Resolver(), customers, orders)

	// The row carries no precomputed columns on modern schemas.
	row := &model.CartRow{Token: "tok-9", CreatedAt: time.Now()}
	cart := &model.Cart{
		Token:      "tok-9",
		CustomerID: "cust-9",
		TotalPrice: 42.00,
		LineItems:  []model.LineItem{{ID: "li-1"}},
	}

	enriched, reason, err := c.Classify(context.Background(), row, cart, nil, false)

	require.NoError(t, err)
	assert.Equal(t, model.ReasonNone, reason)
	assert.Equal(t, "cust-9", enriched.CustomerID)
	assert.Equal(t, 42.00, enriched.Price)
}
