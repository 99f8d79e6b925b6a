package rewards

import (
	"context"
	"time"
)

// EventType names a change to a stored customer.
type EventType string

const (
	EventCustomerCreated  EventType = "customer.created"
	EventTransactionAdded EventType = "transaction.added"
)

// Event is published after a write has been saved.
type Event struct {
	Type          EventType
	CustomerID    CustomerID
	TransactionID TransactionID // zero for EventCustomerCreated
	Points        int           // points earned by the write
	OccurredAt    time.Time
}

// EventPublisher delivers events to interested parties. A publish failure
// never undoes the write that caused it.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }
