package event

import (
	"context"
	"log"
)

// LogDispatcher writes events to the process log. It is the default when
// no Kafka brokers are configured.
type LogDispatcher struct{}

func NewLogDispatcher() *LogDispatcher {
	return &LogDispatcher{}
}

func (d *LogDispatcher) MarkedAbandoned(ctx context.Context, e MarkedAbandoned) error {
	log.Printf("[Event] %s token=%s customer=%s price=%.2f items=%d",
		TypeMarkedAbandoned, e.Snapshot.CartToken, e.Snapshot.CustomerID, e.Snapshot.Price, len(e.Cart.LineItems))
	return nil
}

func (d *LogDispatcher) Updated(ctx context.Context, e Updated) error {
	log.Printf("[Event] %s token=%s customer=%s price=%.2f items=%d",
		TypeUpdated, e.Snapshot.CartToken, e.Snapshot.CustomerID, e.Snapshot.Price, len(e.Cart.LineItems))
	return nil
}

func (d *LogDispatcher) Deleted(ctx context.Context, e Deleted) error {
	log.Printf("[Event] %s token=%s snapshot=%s", TypeDeleted, e.CartToken, e.SnapshotID)
	return nil
}

func (d *LogDispatcher) Close() error { return nil }

var _ Dispatcher = (*LogDispatcher)(nil)
