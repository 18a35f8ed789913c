// Package sqlite is the embedded store: catalog, carts and outbox in one
// SQLite file. It backs local runs and the service level tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/class-bookings/internal/cart"
	"github.com/robertarktes/class-bookings/internal/domain"
	"github.com/robertarktes/class-bookings/internal/observability"
	"github.com/robertarktes/class-bookings/internal/outbox"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS items (
    id              TEXT    PRIMARY KEY,
    slug            TEXT    NOT NULL UNIQUE,
    title           TEXT    NOT NULL,
    price           TEXT    NOT NULL,
    discount_price  TEXT,
    category        TEXT    NOT NULL DEFAULT '',
    label           TEXT    NOT NULL DEFAULT '',
    description     TEXT    NOT NULL DEFAULT '',
    created_at      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
    id              TEXT    PRIMARY KEY,
    user_id         TEXT    NOT NULL,
    ordered         INTEGER NOT NULL DEFAULT 0,
    start_date      INTEGER NOT NULL,
    ordered_date    INTEGER NOT NULL
);

-- one open order per user
CREATE UNIQUE INDEX IF NOT EXISTS orders_open_user ON orders(user_id) WHERE ordered = 0;

CREATE TABLE IF NOT EXISTS order_items (
    id              TEXT    PRIMARY KEY,
    user_id         TEXT    NOT NULL,
    item_slug       TEXT    NOT NULL,
    ordered         INTEGER NOT NULL DEFAULT 0,
    created_at      INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS order_items_open_user_slug ON order_items(user_id, item_slug) WHERE ordered = 0;

CREATE TABLE IF NOT EXISTS order_item_links (
    order_id        TEXT    NOT NULL REFERENCES orders(id),
    order_item_id   TEXT    NOT NULL REFERENCES order_items(id),
    PRIMARY KEY (order_id, order_item_id)
);

CREATE TABLE IF NOT EXISTS outbox (
    id              TEXT    PRIMARY KEY,
    aggregate_type  TEXT    NOT NULL,
    aggregate_id    TEXT    NOT NULL,
    event_type      TEXT    NOT NULL,
    payload_json    BLOB    NOT NULL,
    created_at      INTEGER NOT NULL,
    published_at    INTEGER,
    status          TEXT    NOT NULL DEFAULT 'NEW',
    dedupe_key      TEXT    NOT NULL UNIQUE
);

CREATE INDEX IF NOT EXISTS outbox_status_created ON outbox(status, created_at);
`

type Store struct {
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite: path is required")
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "sqlite: open %q", path)
	}
	// A single connection serializes writers, which is what keeps each cart
	// transaction isolated.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "sqlite: apply schema")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithCartTx runs fn in one transaction and commits when it returns nil.
func (s *Store) WithCartTx(ctx context.Context, fn func(ctx context.Context, tx cart.Tx) error) error {
	start := time.Now()
	defer func() { observability.DBTxDuration.Observe(time.Since(start).Seconds()) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	if err := fn(ctx, &cartTx{q: tx}); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit")
}

func (s *Store) OpenOrder(ctx context.Context, userID uuid.UUID) (domain.Order, error) {
	return loadOpenOrder(ctx, s.db, userID)
}

type cartTx struct {
	q querier
}

func (t *cartTx) OpenOrder(ctx context.Context, userID uuid.UUID) (domain.Order, error) {
	return loadOpenOrder(ctx, t.q, userID)
}

func (t *cartTx) CreateOrder(ctx context.Context, order domain.Order) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, ordered, start_date, ordered_date)
		VALUES (?, ?, ?, ?, ?)
	`, order.ID, order.UserID, order.Ordered, toMillis(order.StartDate), toMillis(order.OrderedDate))
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Mark(errors.Wrap(err, "insert order"), domain.ErrConflict)
		}
		return errors.Wrap(err, "insert order")
	}
	return nil
}

func (t *cartTx) GetOrCreateOrderItem(ctx context.Context, userID uuid.UUID, slug string, now time.Time) (domain.OrderItem, error) {
	oi := domain.NewOrderItem(userID, slug, now)
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO order_items (id, user_id, item_slug, ordered, created_at)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT DO NOTHING
	`, oi.ID, oi.UserID, oi.ItemSlug, toMillis(oi.CreatedAt))
	if err != nil {
		return domain.OrderItem{}, errors.Wrap(err, "insert order item")
	}
	return t.FindOpenOrderItem(ctx, userID, slug)
}

func (t *cartTx) FindOpenOrderItem(ctx context.Context, userID uuid.UUID, slug string) (domain.OrderItem, error) {
	row := t.q.QueryRowContext(ctx, `
		SELECT id, user_id, item_slug, ordered, created_at
		FROM order_items
		WHERE user_id = ? AND item_slug = ? AND ordered = 0
		ORDER BY created_at, rowid
		LIMIT 1
	`, userID, slug)
	oi, err := scanOrderItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.OrderItem{}, domain.ErrNotFound
	}
	return oi, err
}

func (t *cartTx) AddOrderItem(ctx context.Context, orderID, orderItemID uuid.UUID) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO order_item_links (order_id, order_item_id) VALUES (?, ?)
		ON CONFLICT DO NOTHING
	`, orderID, orderItemID)
	return errors.Wrap(err, "link order item")
}

func (t *cartTx) RemoveOrderItem(ctx context.Context, orderID, orderItemID uuid.UUID) error {
	_, err := t.q.ExecContext(ctx, `
		DELETE FROM order_item_links WHERE order_id = ? AND order_item_id = ?
	`, orderID, orderItemID)
	return errors.Wrap(err, "unlink order item")
}

func (t *cartTx) RecordEvent(ctx context.Context, event domain.CartEvent) error {
	rec, err := outbox.FromCartEvent(event)
	if err != nil {
		return err
	}
	_, err = t.q.ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, created_at, status, dedupe_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.AggregateType, rec.AggregateID, rec.EventType, rec.Payload, toMillis(rec.CreatedAt), rec.Status, rec.DedupeKey)
	return errors.Wrap(err, "insert outbox")
}

func loadOpenOrder(ctx context.Context, q querier, userID uuid.UUID) (domain.Order, error) {
	var (
		order                  domain.Order
		startDate, orderedDate int64
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, user_id, ordered, start_date, ordered_date
		FROM orders WHERE user_id = ? AND ordered = 0
		LIMIT 1
	`, userID).Scan(&order.ID, &order.UserID, &order.Ordered, &startDate, &orderedDate)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, errors.Wrap(err, "select open order")
	}
	order.StartDate = fromMillis(startDate)
	order.OrderedDate = fromMillis(orderedDate)

	rows, err := q.QueryContext(ctx, `
		SELECT oi.id, oi.user_id, oi.item_slug, oi.ordered, oi.created_at
		FROM order_items oi
		JOIN order_item_links l ON l.order_item_id = oi.id
		WHERE l.order_id = ?
		ORDER BY oi.created_at, oi.rowid
	`, order.ID)
	if err != nil {
		return domain.Order{}, errors.Wrap(err, "select order items")
	}
	defer rows.Close()

	order.Items = []domain.OrderItem{}
	for rows.Next() {
		oi, err := scanOrderItem(rows)
		if err != nil {
			return domain.Order{}, err
		}
		order.Items = append(order.Items, oi)
	}
	return order, errors.Wrap(rows.Err(), "iterate order items")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrderItem(row scanner) (domain.OrderItem, error) {
	var (
		oi        domain.OrderItem
		createdAt int64
	)
	if err := row.Scan(&oi.ID, &oi.UserID, &oi.ItemSlug, &oi.Ordered, &createdAt); err != nil {
		return domain.OrderItem{}, err
	}
	oi.CreatedAt = fromMillis(createdAt)
	return oi, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
