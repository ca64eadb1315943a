package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a budget event published to the message bus.
type EventType string

const (
	EventCatalogReplaced EventType = "catalog.replaced"
	EventExpensePosted   EventType = "expense.posted"
)

// Event is written to the outbox inside the transaction that caused it and
// later published as JSON.
type Event struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Store       string    `json:"store,omitempty"`
	Year        int       `json:"fiscal_year"`
	Month       Month     `json:"month,omitempty"`
	GroupRef    string    `json:"group_ref,omitempty"`
	AmountCents int64     `json:"amount_cents,omitempty"`
	Lines       int       `json:"lines,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// NewEvent stamps a fresh id and time on an event of the given type.
func NewEvent(t EventType) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: time.Now().UTC(),
	}
}
