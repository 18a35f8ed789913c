package cart

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/class-bookings/internal/domain"
	"github.com/robertarktes/class-bookings/internal/observability"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const summaryLookupLimit = 4

type Line struct {
	OrderItem domain.OrderItem `json:"order_item"`
	Item      domain.Item      `json:"item"`
	Price     decimal.Decimal  `json:"price"`
}

type Summary struct {
	Order domain.Order    `json:"order"`
	Lines []Line          `json:"lines"`
	Total decimal.Decimal `json:"total"`
}

// Summary returns the user's open order joined with the catalog. Items
// that disappeared from the catalog are left out of the lines and total.
func (s *Service) Summary(ctx context.Context, userID uuid.UUID) (Summary, error) {
	ctx, span := s.tracer.Start(ctx, "cart.Summary")
	defer span.End()

	order, err := s.store.OpenOrder(ctx, userID)
	if err != nil {
		return Summary{}, err
	}

	found := make([]*Line, len(order.Items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(summaryLookupLimit)
	for i, oi := range order.Items {
		g.Go(func() error {
			item, err := s.catalog.GetBySlug(gctx, oi.ItemSlug)
			if errors.Is(err, domain.ErrNotFound) {
				observability.FromContext(ctx, s.logger).
					WithField("slug", oi.ItemSlug).
					Warn("order item refers to a missing catalog item")
				return nil
			}
			if err != nil {
				return errors.Wrapf(err, "lookup %s", oi.ItemSlug)
			}
			found[i] = &Line{OrderItem: oi, Item: item, Price: item.EffectivePrice()}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	summary := Summary{Order: order, Lines: make([]Line, 0, len(found)), Total: decimal.Zero}
	for _, line := range found {
		if line == nil {
			continue
		}
		summary.Lines = append(summary.Lines, *line)
		summary.Total = summary.Total.Add(line.Price)
	}
	return summary, nil
}
