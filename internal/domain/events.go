package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventItemBooked       = "cart.item_booked"
	EventItemCanceled     = "cart.item_canceled"
	EventFeedbackReceived = "feedback.submitted"
)

// CartEvent records a membership change of an open order.
type CartEvent struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	UserID     uuid.UUID `json:"user_id"`
	OrderID    uuid.UUID `json:"order_id"`
	ItemSlug   string    `json:"item_slug"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewCartEvent(eventType string, order Order, slug string, now time.Time) CartEvent {
	return CartEvent{
		ID:         uuid.New(),
		Type:       eventType,
		UserID:     order.UserID,
		OrderID:    order.ID,
		ItemSlug:   slug,
		OccurredAt: now,
	}
}
