package cart_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/class-bookings/internal/domain"
	"github.com/shopspring/decimal"
)

func TestSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	for _, slug := range []string{"yoga-101", "pilates-201"} {
		if _, err := f.svc.AddToCart(ctx, userID, slug); err != nil {
			t.Fatal(err)
		}
	}

	summary, err := f.svc.Summary(ctx, userID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(summary.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(summary.Lines))
	}
	// 10 for yoga, discounted 15 for pilates
	if !summary.Total.Equal(decimal.NewFromInt(25)) {
		t.Errorf("expected total 25, got %s", summary.Total)
	}
	for _, line := range summary.Lines {
		if line.Item.Slug != line.OrderItem.ItemSlug {
			t.Errorf("line item %s does not match order item %s", line.Item.Slug, line.OrderItem.ItemSlug)
		}
	}
}

func TestSummary_EmptyOpenOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	if _, err := f.svc.AddToCart(ctx, userID, "yoga-101"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.RemoveFromCart(ctx, userID, "yoga-101"); err != nil {
		t.Fatal(err)
	}

	summary, err := f.svc.Summary(ctx, userID)
	if err != nil {
		t.Fatalf("expected empty summary, got %v", err)
	}
	if len(summary.Lines) != 0 || !summary.Total.IsZero() {
		t.Errorf("expected no lines and zero total, got %+v", summary)
	}
}

func TestSummary_NoOpenOrder(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Summary(context.Background(), uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
