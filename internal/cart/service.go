// Package cart keeps at most one open order per user and changes which
// items it holds.
package cart

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/class-bookings/internal/domain"
	"github.com/robertarktes/class-bookings/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Catalog interface {
	GetBySlug(ctx context.Context, slug string) (domain.Item, error)
}

// Store runs cart operations atomically. OpenOrder reads outside of a
// transaction and returns ErrNotFound when the user has no open order.
type Store interface {
	WithCartTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	OpenOrder(ctx context.Context, userID uuid.UUID) (domain.Order, error)
}

// Tx is the set of primitives available inside one cart transaction.
type Tx interface {
	// OpenOrder returns the user's open order with its items and locks it
	// for the rest of the transaction.
	OpenOrder(ctx context.Context, userID uuid.UUID) (domain.Order, error)
	CreateOrder(ctx context.Context, order domain.Order) error
	GetOrCreateOrderItem(ctx context.Context, userID uuid.UUID, slug string, now time.Time) (domain.OrderItem, error)
	// FindOpenOrderItem returns the oldest open order item for (user, slug).
	FindOpenOrderItem(ctx context.Context, userID uuid.UUID, slug string) (domain.OrderItem, error)
	AddOrderItem(ctx context.Context, orderID, orderItemID uuid.UUID) error
	RemoveOrderItem(ctx context.Context, orderID, orderItemID uuid.UUID) error
	RecordEvent(ctx context.Context, event domain.CartEvent) error
}

type Auditor interface {
	LogCartEvent(ctx context.Context, event domain.CartEvent) error
}

// Result tells the caller which notice to show and which product page to
// return to.
type Result struct {
	Notice domain.Notice
	Slug   string
}

type Service struct {
	catalog Catalog
	store   Store
	auditor Auditor
	logger  observability.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

type Option func(*Service)

func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.auditor = a }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(catalog Catalog, store Store, logger observability.Logger, opts ...Option) *Service {
	s := &Service{
		catalog: catalog,
		store:   store,
		logger:  logger,
		tracer:  otel.Tracer("cart"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddToCart books slug for userID. Repeating the call never creates a
// second booking.
func (s *Service) AddToCart(ctx context.Context, userID uuid.UUID, slug string) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "cart.AddToCart", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
		attribute.String("item.slug", slug),
	))
	defer span.End()

	item, err := s.catalog.GetBySlug(ctx, slug)
	if err != nil {
		return Result{}, s.fail(span, "add", err)
	}

	var (
		notice domain.Notice
		event  *domain.CartEvent
	)
	err = s.store.WithCartTx(ctx, func(ctx context.Context, tx Tx) error {
		notice, event = domain.Notice{}, nil
		now := s.now()

		orderItem, err := tx.GetOrCreateOrderItem(ctx, userID, item.Slug, now)
		if err != nil {
			return errors.Wrap(err, "get or create order item")
		}

		order, err := tx.OpenOrder(ctx, userID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			order = domain.NewOrder(userID, now)
			if err := tx.CreateOrder(ctx, order); err != nil {
				return errors.Wrap(err, "create order")
			}
		case err != nil:
			return errors.Wrap(err, "open order")
		case order.HasItem(item.Slug):
			notice = domain.NoticeAlreadyBooked
			return nil
		}

		if err := tx.AddOrderItem(ctx, order.ID, orderItem.ID); err != nil {
			return errors.Wrap(err, "add order item")
		}
		order.AddItem(orderItem)

		ev := domain.NewCartEvent(domain.EventItemBooked, order, item.Slug, now)
		if err := tx.RecordEvent(ctx, ev); err != nil {
			return errors.Wrap(err, "record event")
		}
		notice = domain.NoticeBooked
		event = &ev
		return nil
	})
	if err != nil {
		return Result{}, s.fail(span, "add", err)
	}

	s.audit(ctx, event)
	observability.CartOperations.WithLabelValues("add", outcome(notice)).Inc()
	return Result{Notice: notice, Slug: item.Slug}, nil
}

// RemoveFromCart cancels the booking of slug for userID, if there is one.
func (s *Service) RemoveFromCart(ctx context.Context, userID uuid.UUID, slug string) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "cart.RemoveFromCart", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
		attribute.String("item.slug", slug),
	))
	defer span.End()

	item, err := s.catalog.GetBySlug(ctx, slug)
	if err != nil {
		return Result{}, s.fail(span, "remove", err)
	}

	var (
		notice domain.Notice
		event  *domain.CartEvent
	)
	err = s.store.WithCartTx(ctx, func(ctx context.Context, tx Tx) error {
		notice, event = domain.Notice{}, nil

		order, err := tx.OpenOrder(ctx, userID)
		if errors.Is(err, domain.ErrNotFound) {
			notice = domain.NoticeNoBookings
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "open order")
		}
		if !order.HasItem(item.Slug) {
			notice = domain.NoticeNotBooked
			return nil
		}

		orderItem, err := tx.FindOpenOrderItem(ctx, userID, item.Slug)
		if err != nil {
			return errors.Wrap(err, "find order item")
		}
		if err := tx.RemoveOrderItem(ctx, order.ID, orderItem.ID); err != nil {
			return errors.Wrap(err, "remove order item")
		}
		order.RemoveItem(orderItem.ID)

		ev := domain.NewCartEvent(domain.EventItemCanceled, order, item.Slug, s.now())
		if err := tx.RecordEvent(ctx, ev); err != nil {
			return errors.Wrap(err, "record event")
		}
		notice = domain.NoticeCanceled
		event = &ev
		return nil
	})
	if err != nil {
		return Result{}, s.fail(span, "remove", err)
	}

	s.audit(ctx, event)
	observability.CartOperations.WithLabelValues("remove", outcome(notice)).Inc()
	return Result{Notice: notice, Slug: item.Slug}, nil
}

// GetOpenOrder returns the user's open order or ErrNotFound.
func (s *Service) GetOpenOrder(ctx context.Context, userID uuid.UUID) (domain.Order, error) {
	return s.store.OpenOrder(ctx, userID)
}

func (s *Service) fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	label := "error"
	if errors.Is(err, domain.ErrNotFound) {
		label = "not_found"
	}
	observability.CartOperations.WithLabelValues(op, label).Inc()
	return err
}

func (s *Service) audit(ctx context.Context, event *domain.CartEvent) {
	if event == nil || s.auditor == nil {
		return
	}
	if err := s.auditor.LogCartEvent(ctx, *event); err != nil {
		observability.FromContext(ctx, s.logger).
			WithError(err).
			WithField("event_id", event.ID).
			Warn("audit cart event")
	}
}

func outcome(n domain.Notice) string {
	switch n {
	case domain.NoticeBooked:
		return "booked"
	case domain.NoticeAlreadyBooked:
		return "already_booked"
	case domain.NoticeCanceled:
		return "canceled"
	case domain.NoticeNotBooked:
		return "not_booked"
	case domain.NoticeNoBookings:
		return "no_order"
	}
	return "unknown"
}
