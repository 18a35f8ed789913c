package churn

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/class-bookings/internal/domain"
	"github.com/robertarktes/class-bookings/internal/observability"
	"github.com/segmentio/kafka-go"
)

var ErrMalformed = errors.New("malformed churn features")

// Model consumes one feature mapping.
type Model interface {
	Predict(ctx context.Context, features domain.ChurnFeatures) error
}

// LogModel only records what it was given.
type LogModel struct {
	logger observability.Logger
}

func NewLogModel(logger observability.Logger) *LogModel {
	return &LogModel{logger: logger}
}

func (m *LogModel) Predict(ctx context.Context, f domain.ChurnFeatures) error {
	m.logger.
		WithField("timetable", f.Timetable).
		WithField("capacity", f.Capacity).
		WithField("time", f.Time).
		WithField("facilities", f.Facilities).
		WithField("price", f.Price).
		Info("churn features received")
	return nil
}

type Worker struct {
	model  Model
	logger observability.Logger
}

func NewWorker(model Model, logger observability.Logger) *Worker {
	return &Worker{model: model, logger: logger}
}

// Handle decodes body and passes it to the model. Undecodable input is
// ErrMalformed.
func (w *Worker) Handle(ctx context.Context, body []byte) error {
	var f domain.ChurnFeatures
	if err := json.Unmarshal(body, &f); err != nil {
		return errors.Mark(errors.Wrap(err, "decode features"), ErrMalformed)
	}
	return w.model.Predict(ctx, f)
}

// HandleDelivery acks what the model accepted, drops malformed messages and
// requeues the rest.
func (w *Worker) HandleDelivery(ctx context.Context, d amqp.Delivery) {
	err := w.Handle(ctx, d.Body)
	log := w.logger.WithField("message_id", d.MessageId)
	switch {
	case err == nil:
		if err := d.Ack(false); err != nil {
			log.WithError(err).Error("ack failed")
		}
	case errors.Is(err, ErrMalformed):
		log.WithError(err).Warn("dropping malformed message")
		if err := d.Nack(false, false); err != nil {
			log.WithError(err).Error("nack failed")
		}
	default:
		log.WithError(err).Error("churn model failed")
		if err := d.Nack(false, true); err != nil {
			log.WithError(err).Error("nack failed")
		}
	}
}

// Run handles deliveries until the channel closes or ctx is done.
func (w *Worker) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			w.HandleDelivery(ctx, d)
		}
	}
}

// HandleMessage is the kafka handler. Malformed messages are logged and
// committed so they do not block the partition.
func (w *Worker) HandleMessage(ctx context.Context, m kafka.Message) error {
	err := w.Handle(ctx, m.Value)
	if errors.Is(err, ErrMalformed) {
		w.logger.WithError(err).WithField("offset", m.Offset).Warn("skipping malformed message")
		return nil
	}
	return err
}
