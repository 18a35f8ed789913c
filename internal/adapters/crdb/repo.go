package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/class-bookings/internal/cart"
	"github.com/robertarktes/class-bookings/internal/domain"
	"github.com/robertarktes/class-bookings/internal/observability"
	"github.com/robertarktes/class-bookings/internal/outbox"
)

const (
	SerializationFailureCode = "40001"
	UniqueViolationCode      = "23505"

	maxTxAttempts = 3
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id           UUID PRIMARY KEY,
	user_id      UUID NOT NULL,
	ordered      BOOL NOT NULL DEFAULT false,
	start_date   TIMESTAMPTZ NOT NULL,
	ordered_date TIMESTAMPTZ NOT NULL,
	UNIQUE INDEX orders_open_user (user_id) WHERE ordered = false
);

CREATE TABLE IF NOT EXISTS order_items (
	id         UUID PRIMARY KEY,
	user_id    UUID NOT NULL,
	item_slug  TEXT NOT NULL,
	ordered    BOOL NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE INDEX order_items_open_user_slug (user_id, item_slug) WHERE ordered = false
);

CREATE TABLE IF NOT EXISTS order_item_links (
	order_id      UUID NOT NULL REFERENCES orders (id),
	order_item_id UUID NOT NULL REFERENCES order_items (id),
	PRIMARY KEY (order_id, order_item_id)
);

CREATE TABLE IF NOT EXISTS outbox (
	id             UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id   UUID NOT NULL,
	event_type     TEXT NOT NULL,
	payload_json   JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at   TIMESTAMPTZ,
	status         TEXT NOT NULL DEFAULT 'NEW' CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
	dedupe_key     TEXT NOT NULL UNIQUE,
	INDEX outbox_status_created (status, created_at)
);
`

type Repository struct {
	pool    *pgxpool.Pool
	backoff time.Duration
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, backoff: 50 * time.Millisecond}
}

// Migrate creates the cart and outbox tables when they are missing.
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schema)
	return errors.Wrap(err, "migrate")
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// WithTx runs fn in a SERIALIZABLE transaction. Serialization failures are
// retried with a growing pause; once attempts run out the caller gets
// ErrSerializationFailure.
func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	defer func() { observability.DBTxDuration.Observe(time.Since(start).Seconds()) }()

	return retrySerializable(ctx, maxTxAttempts, r.backoff, func(ctx context.Context) error {
		return r.runTx(ctx, fn)
	})
}

// retrySerializable calls attempt until it returns something other than a
// 40001, sleeping n*backoff before attempt n+1.
func retrySerializable(ctx context.Context, attempts int, backoff time.Duration, attempt func(ctx context.Context) error) error {
	var err error
	for n := 1; n <= attempts; n++ {
		err = attempt(ctx)
		if !isSerializationFailure(err) {
			return err
		}
		if n == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "waiting to retry")
		case <-time.After(time.Duration(n) * backoff):
		}
	}
	return errors.Mark(errors.Wrap(err, "retries exhausted"), domain.ErrSerializationFailure)
}

func (r *Repository) runTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(ctx), "commit")
}

// WithCartTx adapts WithTx to the cart primitives.
func (r *Repository) WithCartTx(ctx context.Context, fn func(ctx context.Context, tx cart.Tx) error) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &cartTx{tx: tx})
	})
}

func (r *Repository) OpenOrder(ctx context.Context, userID uuid.UUID) (domain.Order, error) {
	return loadOpenOrder(ctx, r.pool, userID, false)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type cartTx struct {
	tx pgx.Tx
}

func (t *cartTx) OpenOrder(ctx context.Context, userID uuid.UUID) (domain.Order, error) {
	return loadOpenOrder(ctx, t.tx, userID, true)
}

func (t *cartTx) CreateOrder(ctx context.Context, order domain.Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, ordered, start_date, ordered_date)
		VALUES ($1, $2, $3, $4, $5)
	`, order.ID, order.UserID, order.Ordered, order.StartDate, order.OrderedDate)
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
	_, err := t.tx.Exec(ctx, `
		INSERT INTO order_items (id, user_id, item_slug, ordered, created_at)
		VALUES ($1, $2, $3, false, $4)
		ON CONFLICT (user_id, item_slug) WHERE ordered = false DO NOTHING
	`, oi.ID, oi.UserID, oi.ItemSlug, oi.CreatedAt)
	if err != nil {
		return domain.OrderItem{}, errors.Wrap(err, "insert order item")
	}
	return t.FindOpenOrderItem(ctx, userID, slug)
}

func (t *cartTx) FindOpenOrderItem(ctx context.Context, userID uuid.UUID, slug string) (domain.OrderItem, error) {
	var oi domain.OrderItem
	err := t.tx.QueryRow(ctx, `
		SELECT id, user_id, item_slug, ordered, created_at
		FROM order_items
		WHERE user_id = $1 AND item_slug = $2 AND ordered = false
		ORDER BY created_at, id
		LIMIT 1
	`, userID, slug).Scan(&oi.ID, &oi.UserID, &oi.ItemSlug, &oi.Ordered, &oi.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.OrderItem{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.OrderItem{}, errors.Wrap(err, "select order item")
	}
	return oi, nil
}

func (t *cartTx) AddOrderItem(ctx context.Context, orderID, orderItemID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO order_item_links (order_id, order_item_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, orderID, orderItemID)
	return errors.Wrap(err, "link order item")
}

func (t *cartTx) RemoveOrderItem(ctx context.Context, orderID, orderItemID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `
		DELETE FROM order_item_links WHERE order_id = $1 AND order_item_id = $2
	`, orderID, orderItemID)
	return errors.Wrap(err, "unlink order item")
}

func (t *cartTx) RecordEvent(ctx context.Context, event domain.CartEvent) error {
	rec, err := outbox.FromCartEvent(event)
	if err != nil {
		return err
	}
	return insertOutbox(ctx, t.tx, rec)
}

func loadOpenOrder(ctx context.Context, q querier, userID uuid.UUID, lock bool) (domain.Order, error) {
	query := `
		SELECT id, user_id, ordered, start_date, ordered_date
		FROM orders WHERE user_id = $1 AND ordered = false
		LIMIT 1`
	if lock {
		query += ` FOR UPDATE`
	}

	var order domain.Order
	err := q.QueryRow(ctx, query, userID).
		Scan(&order.ID, &order.UserID, &order.Ordered, &order.StartDate, &order.OrderedDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, errors.Wrap(err, "select open order")
	}

	rows, err := q.Query(ctx, `
		SELECT oi.id, oi.user_id, oi.item_slug, oi.ordered, oi.created_at
		FROM order_items oi
		JOIN order_item_links l ON l.order_item_id = oi.id
		WHERE l.order_id = $1
		ORDER BY oi.created_at, oi.id
	`, order.ID)
	if err != nil {
		return domain.Order{}, errors.Wrap(err, "select order items")
	}
	defer rows.Close()

	order.Items = []domain.OrderItem{}
	for rows.Next() {
		var oi domain.OrderItem
		if err := rows.Scan(&oi.ID, &oi.UserID, &oi.ItemSlug, &oi.Ordered, &oi.CreatedAt); err != nil {
			return domain.Order{}, errors.Wrap(err, "scan order item")
		}
		order.Items = append(order.Items, oi)
	}
	return order, errors.Wrap(rows.Err(), "iterate order items")
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == UniqueViolationCode
}
