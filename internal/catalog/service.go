// Package catalog serves read-only access to bookable items.
package catalog

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/class-bookings/internal/domain"
	"github.com/robertarktes/class-bookings/internal/observability"
)

const DefaultPageSize = 5

// Repository is the item store. ListItems returns every item from offset on when limit <= 0.
type Repository interface {
	CountItems(ctx context.Context) (int64, error)
	ListItems(ctx context.Context, offset, limit int) ([]domain.Item, error)
	GetItemBySlug(ctx context.Context, slug string) (domain.Item, error)
}

// Cache holds items by slug. GetItem returns nil, nil on a miss.
type Cache interface {
	GetItem(ctx context.Context, slug string) (*domain.Item, error)
	SetItem(ctx context.Context, item domain.Item, ttl time.Duration) error
}

type Service struct {
	repo     Repository
	cache    Cache
	cacheTTL time.Duration
	pageSize int
	logger   observability.Logger
}

type Option func(*Service)

// WithCache enables the slug cache.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

func WithPageSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

func NewService(repo Repository, logger observability.Logger, opts ...Option) *Service {
	s := &Service{repo: repo, logger: logger, pageSize: DefaultPageSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListAll returns the 1-based page of the catalog. The first page of an
// empty catalog is valid; any other page outside the range is ErrNotFound.
func (s *Service) ListAll(ctx context.Context, page int) (domain.Page, error) {
	if page < 1 {
		return domain.Page{}, errors.Wrapf(domain.ErrNotFound, "page %d", page)
	}

	total, err := s.repo.CountItems(ctx)
	if err != nil {
		return domain.Page{}, errors.Wrap(err, "count items")
	}

	numPages := int((total + int64(s.pageSize) - 1) / int64(s.pageSize))
	if numPages == 0 {
		numPages = 1
	}
	if page > numPages {
		return domain.Page{}, errors.Wrapf(domain.ErrNotFound, "page %d of %d", page, numPages)
	}

	items, err := s.repo.ListItems(ctx, (page-1)*s.pageSize, s.pageSize)
	if err != nil {
		return domain.Page{}, errors.Wrap(err, "list items")
	}
	if items == nil {
		items = []domain.Item{}
	}

	return domain.Page{
		Items:       items,
		Number:      page,
		NumPages:    numPages,
		Total:       total,
		HasNext:     page < numPages,
		HasPrevious: page > 1,
	}, nil
}

// Items returns the whole catalog.
func (s *Service) Items(ctx context.Context) ([]domain.Item, error) {
	items, err := s.repo.ListItems(ctx, 0, 0)
	if err != nil {
		return nil, errors.Wrap(err, "list items")
	}
	if items == nil {
		items = []domain.Item{}
	}
	return items, nil
}

// GetBySlug returns the item with slug or ErrNotFound.
func (s *Service) GetBySlug(ctx context.Context, slug string) (domain.Item, error) {
	logger := observability.FromContext(ctx, s.logger).WithField("slug", slug)
	if s.cache != nil {
		cached, err := s.cache.GetItem(ctx, slug)
		if err != nil {
			logger.WithError(err).Warn("item cache read failed")
		} else if cached != nil {
			return *cached, nil
		}
	}

	item, err := s.repo.GetItemBySlug(ctx, slug)
	if err != nil {
		return domain.Item{}, err
	}

	if s.cache != nil {
		if err := s.cache.SetItem(ctx, item, s.cacheTTL); err != nil {
			logger.WithError(err).Warn("item cache write failed")
		}
	}
	return item, nil
}
