// Package churn hands feedback features to the churn model and runs the
// worker side that feeds the model.
package churn

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/class-bookings/internal/domain"
)

// Predictor accepts a feature mapping. It does not return a prediction.
type Predictor interface {
	Predict(ctx context.Context, features domain.ChurnFeatures) error
}

type JSONPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// RabbitPredictor publishes features to the events exchange.
type RabbitPredictor struct {
	pub JSONPublisher
}

func NewRabbitPredictor(pub JSONPublisher) *RabbitPredictor {
	return &RabbitPredictor{pub: pub}
}

func (p *RabbitPredictor) Predict(ctx context.Context, features domain.ChurnFeatures) error {
	return p.pub.PublishJSON(ctx, domain.EventFeedbackReceived, features)
}

type KafkaProducer interface {
	Publish(key, value []byte) error
}

// KafkaPredictor queues features on the churn topic.
type KafkaPredictor struct {
	producer KafkaProducer
}

func NewKafkaPredictor(producer KafkaProducer) *KafkaPredictor {
	return &KafkaPredictor{producer: producer}
}

func (p *KafkaPredictor) Predict(ctx context.Context, features domain.ChurnFeatures) error {
	value, err := json.Marshal(features)
	if err != nil {
		return errors.Wrap(err, "encode features")
	}
	return p.producer.Publish([]byte(domain.EventFeedbackReceived), value)
}
