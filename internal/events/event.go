// Package events publishes ledger change notifications.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies what happened. It doubles as the AMQP routing key.
type Kind string

// Event kinds.
const (
	TransactionCreated Kind = "transaction.created"
	TransactionUpdated Kind = "transaction.updated"
	TransactionDeleted Kind = "transaction.deleted"
	BudgetRenewed      Kind = "budget.renewed"
	PeriodicFired      Kind = "periodic.fired"
)

// AllKinds lists every kind a consumer can bind to.
var AllKinds = []Kind{TransactionCreated, TransactionUpdated, TransactionDeleted, BudgetRenewed, PeriodicFired}

// Event is a lightweight notification; consumers fetch full rows by EntityID when they need them.
type Event struct {
	OccurredAt time.Time       `json:"occurred_at"`
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EntityID   int64           `json:"entity_id"`
}

// New creates an event with a fresh id. payload may be nil.
func New(kind Kind, entityID int64, payload any) (Event, error) {
	e := Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		EntityID:   entityID,
		OccurredAt: time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("marshal payload: %w", err)
		}
		e.Payload = raw
	}
	return e, nil
}

// ToJSON converts the event to JSON bytes.
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON decodes an event.
func FromJSON(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, err
	}
	return e, nil
}
