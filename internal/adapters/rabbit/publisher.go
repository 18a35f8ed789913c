package rabbit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const Exchange = "classes.events"

type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "open channel")
	}
	err = ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "declare exchange %s", Exchange)
	}
	return &Publisher{ch: ch}, nil
}

func (p *Publisher) Publish(ctx context.Context, key string, msg amqp.Publishing) error {
	if msg.DeliveryMode == 0 {
		msg.DeliveryMode = amqp.Persistent
	}
	return errors.Wrapf(p.ch.PublishWithContext(ctx, Exchange, key, false, false, msg), "publish %s", key)
}

// PublishJSON encodes v and publishes it under key with a fresh message ID.
func (p *Publisher) PublishJSON(ctx context.Context, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encode message")
	}
	return p.Publish(ctx, key, amqp.Publishing{
		MessageId:   uuid.NewString(),
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Type:        key,
		Body:        body,
	})
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}
