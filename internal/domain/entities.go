package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Item is a bookable class in the catalog.
type Item struct {
	ID            uuid.UUID           `json:"id"`
	Slug          string              `json:"slug"`
	Title         string              `json:"title"`
	Price         decimal.Decimal     `json:"price"`
	DiscountPrice decimal.NullDecimal `json:"discount_price"`
	Category      string              `json:"category"`
	Label         string              `json:"label"`
	Description   string              `json:"description"`
	CreatedAt     time.Time           `json:"created_at"`
}

// EffectivePrice is the discount price when one is set.
func (i Item) EffectivePrice() decimal.Decimal {
	if i.DiscountPrice.Valid {
		return i.DiscountPrice.Decimal
	}
	return i.Price
}

type Order struct {
	ID          uuid.UUID   `json:"id"`
	UserID      uuid.UUID   `json:"user_id"`
	Ordered     bool        `json:"ordered"`
	StartDate   time.Time   `json:"start_date"`
	OrderedDate time.Time   `json:"ordered_date"`
	Items       []OrderItem `json:"items"`
}

type OrderItem struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	ItemSlug  string    `json:"item_slug"`
	Ordered   bool      `json:"ordered"`
	CreatedAt time.Time `json:"created_at"`
}

// Page is one page of the catalog listing.
type Page struct {
	Items       []Item `json:"items"`
	Number      int    `json:"number"`
	NumPages    int    `json:"num_pages"`
	Total       int64  `json:"total"`
	HasNext     bool   `json:"has_next"`
	HasPrevious bool   `json:"has_previous"`
}
