package kafka

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"
)

// Handler returns nil once the message may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type Consumer struct {
	r *kafka.Reader
}

func NewConsumer(brokers []string, group, topic string) *Consumer {
	return &Consumer{r: kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})}
}

// Start fetches messages until ctx is done and commits each one h accepted.
// A handler error stops the loop so the message is redelivered on restart.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "fetch message")
		}
		if err := h(ctx, m); err != nil {
			return errors.Wrapf(err, "handle offset %d", m.Offset)
		}
		if err := c.r.CommitMessages(ctx, m); err != nil {
			return errors.Wrap(err, "commit")
		}
	}
}
