package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/class-bookings/internal/domain"
)

func (s *Store) CountItems(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n)
	return n, errors.Wrap(err, "count items")
}

func (s *Store) ListItems(ctx context.Context, offset, limit int) ([]domain.Item, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, slug, title, price, discount_price, category, label, description, created_at
		FROM items
		ORDER BY created_at, slug
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select items")
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, errors.Wrap(rows.Err(), "iterate items")
}

func (s *Store) GetItemBySlug(ctx context.Context, slug string) (domain.Item, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, slug, title, price, discount_price, category, label, description, created_at
		FROM items WHERE slug = ?
	`, slug)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Item{}, errors.Wrapf(domain.ErrNotFound, "item %q", slug)
	}
	return item, err
}

// CreateItem inserts an item. A duplicate slug is ErrConflict.
func (s *Store) CreateItem(ctx context.Context, item domain.Item) (domain.Item, error) {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, slug, title, price, discount_price, category, label, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, item.ID, item.Slug, item.Title, item.Price, item.DiscountPrice, item.Category, item.Label, item.Description, toMillis(item.CreatedAt))
	if isUniqueViolation(err) {
		return domain.Item{}, errors.Mark(errors.Wrapf(err, "insert item %q", item.Slug), domain.ErrConflict)
	}
	if err != nil {
		return domain.Item{}, errors.Wrapf(err, "insert item %q", item.Slug)
	}
	item.CreatedAt = fromMillis(toMillis(item.CreatedAt))
	return item, nil
}

func scanItem(row scanner) (domain.Item, error) {
	var (
		item      domain.Item
		createdAt int64
	)
	err := row.Scan(&item.ID, &item.Slug, &item.Title, &item.Price, &item.DiscountPrice,
		&item.Category, &item.Label, &item.Description, &createdAt)
	if err != nil {
		return domain.Item{}, err
	}
	item.CreatedAt = fromMillis(createdAt)
	return item, nil
}
