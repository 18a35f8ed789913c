package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/class-bookings/internal/observability"
)

// Source is where unpublished records come from.
type Source interface {
	GetUnpublishedOutbox(ctx context.Context, limit int) ([]Record, error)
	MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error
}

type Sink interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

type Publisher struct {
	source   Source
	sink     Sink
	logger   observability.Logger
	interval time.Duration
	batch    int
	now      func() time.Time
}

func NewPublisher(source Source, sink Sink, logger observability.Logger, interval time.Duration, batch int) *Publisher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batch <= 0 {
		batch = 10
	}
	return &Publisher{source: source, sink: sink, logger: logger, interval: interval, batch: batch, now: time.Now}
}

func (p *Publisher) Run(ctx context.Context) {
	p.logger.Info("Outbox publisher started")
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.PublishBatch(ctx); err != nil {
				p.logger.WithError(err).Error("outbox batch failed")
			}
		}
	}
}

// PublishBatch relays one batch and returns how many records were marked
// published. Records whose publish fails stay NEW for the next batch.
func (p *Publisher) PublishBatch(ctx context.Context) (int, error) {
	records, err := p.source.GetUnpublishedOutbox(ctx, p.batch)
	if err != nil {
		return 0, err
	}

	published := 0
	var oldest time.Time
	for _, rec := range records {
		msg := amqp.Publishing{
			MessageId:   rec.DedupeKey,
			ContentType: "application/json",
			Timestamp:   rec.CreatedAt,
			Type:        rec.EventType,
			Body:        rec.Payload,
		}
		if err := p.sink.Publish(ctx, rec.EventType, msg); err != nil {
			observability.RabbitPublishFailures.Inc()
			p.logger.WithError(err).WithField("outbox_id", rec.ID).Warn("publish outbox record")
			continue
		}
		if err := p.source.MarkPublished(ctx, rec.ID, p.now()); err != nil {
			p.logger.WithError(err).WithField("outbox_id", rec.ID).Error("mark outbox record published")
			continue
		}
		if oldest.IsZero() || rec.CreatedAt.Before(oldest) {
			oldest = rec.CreatedAt
		}
		published++
	}

	if !oldest.IsZero() {
		observability.OutboxLag.Set(p.now().Sub(oldest).Seconds())
	} else if len(records) == 0 {
		observability.OutboxLag.Set(0)
	}
	return published, nil
}
