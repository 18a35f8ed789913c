package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/class-bookings/internal/outbox"
)

func (s *Store) GetUnpublishedOutbox(ctx context.Context, limit int) ([]outbox.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload_json, created_at, published_at, status, dedupe_key
		FROM outbox WHERE status = 'NEW' ORDER BY created_at ASC, rowid ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select outbox")
	}
	defer rows.Close()

	var records []outbox.Record
	for rows.Next() {
		var (
			rec         outbox.Record
			createdAt   int64
			publishedAt sql.NullInt64
		)
		err := rows.Scan(&rec.ID, &rec.AggregateType, &rec.AggregateID, &rec.EventType, &rec.Payload, &createdAt, &publishedAt, &rec.Status, &rec.DedupeKey)
		if err != nil {
			return nil, errors.Wrap(err, "scan outbox")
		}
		rec.CreatedAt = fromMillis(createdAt)
		if publishedAt.Valid {
			at := fromMillis(publishedAt.Int64)
			rec.PublishedAt = &at
		}
		records = append(records, rec)
	}
	return records, errors.Wrap(rows.Err(), "iterate outbox")
}

func (s *Store) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox SET status = 'PUBLISHED', published_at = ? WHERE id = ?
	`, toMillis(publishedAt), id)
	return errors.Wrap(err, "mark outbox published")
}
