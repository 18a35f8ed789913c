package domain

import (
	"time"

	"github.com/google/uuid"
)

// NewOrder returns an open order for userID dated now.
func NewOrder(userID uuid.UUID, now time.Time) Order {
	return Order{
		ID:          uuid.New(),
		UserID:      userID,
		Ordered:     false,
		StartDate:   now,
		OrderedDate: now,
	}
}

// NewOrderItem returns an open order item for (slug, userID).
func NewOrderItem(userID uuid.UUID, slug string, now time.Time) OrderItem {
	return OrderItem{
		ID:        uuid.New(),
		UserID:    userID,
		ItemSlug:  slug,
		Ordered:   false,
		CreatedAt: now,
	}
}

// HasItem reports whether the order contains an order item for slug.
func (o Order) HasItem(slug string) bool {
	for _, oi := range o.Items {
		if oi.ItemSlug == slug {
			return true
		}
	}
	return false
}

// AddItem adds oi to the item set. It returns false when oi is already a member.
func (o *Order) AddItem(oi OrderItem) bool {
	for _, existing := range o.Items {
		if existing.ID == oi.ID {
			return false
		}
	}
	o.Items = append(o.Items, oi)
	return true
}

// RemoveItem drops the order item with id from the item set.
func (o *Order) RemoveItem(id uuid.UUID) bool {
	for i, existing := range o.Items {
		if existing.ID == id {
			o.Items = append(o.Items[:i], o.Items[i+1:]...)
			return true
		}
	}
	return false
}
