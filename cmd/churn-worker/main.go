package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/class-bookings/internal/adapters/kafka"
	"github.com/robertarktes/class-bookings/internal/adapters/rabbit"
	"github.com/robertarktes/class-bookings/internal/churn"
	"github.com/robertarktes/class-bookings/internal/config"
	"github.com/robertarktes/class-bookings/internal/domain"
	"github.com/robertarktes/class-bookings/internal/observability"
)

func main() {
	cfg, err := config.Load(config.RequireChurn)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownOtel, err := observability.SetupOTel(ctx, cfg, "classes-churn-worker")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger(cfg.LogLevel)
	worker := churn.NewWorker(churn.NewLogModel(logger), logger)

	done := make(chan struct{})
	switch cfg.ChurnTransport {
	case config.ChurnKafka:
		consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.ChurnTopic)
		go func() {
			defer close(done)
			if err := consumer.Start(ctx, worker.HandleMessage); err != nil {
				logger.WithError(err).Error("kafka consumer stopped")
			}
		}()
	case config.ChurnRabbit:
		conn, err := amqp.Dial(cfg.RabbitURL)
		if err != nil {
			log.Fatalf("failed to connect to rabbitmq: %v", err)
		}
		defer conn.Close()
		consumer, err := rabbit.NewConsumer(conn, cfg.ChurnQueue, domain.EventFeedbackReceived)
		if err != nil {
			log.Fatalf("failed to create consumer: %v", err)
		}
		defer consumer.Close()
		deliveries, err := consumer.Consume(ctx)
		if err != nil {
			log.Fatalf("failed to consume: %v", err)
		}
		go func() {
			defer close(done)
			worker.Run(ctx, deliveries)
		}()
	}
	logger.WithField("transport", cfg.ChurnTransport).Info("Churn worker started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-done:
	}
	logger.Info("Shutdown churn worker")
	cancel()
	<-done
}
