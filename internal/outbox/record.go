package outbox

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/class-bookings/internal/domain"
)

const (
	StatusNew       = "NEW"
	StatusPublished = "PUBLISHED"
)

type Record struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Status        string // NEW, PUBLISHED
	DedupeKey     string
}

// FromCartEvent builds the outbox record for a cart event. The event ID is
// the dedupe key so consumers can drop redeliveries.
func FromCartEvent(ev domain.CartEvent) (Record, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return Record{}, errors.Wrap(err, "marshal cart event")
	}
	return Record{
		ID:            uuid.New(),
		AggregateType: "order",
		AggregateID:   ev.OrderID,
		EventType:     ev.Type,
		Payload:       payload,
		CreatedAt:     ev.OccurredAt,
		Status:        StatusNew,
		DedupeKey:     ev.ID.String(),
	}, nil
}
