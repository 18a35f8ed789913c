package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/class-bookings/internal/adapters/crdb"
	"github.com/robertarktes/class-bookings/internal/adapters/rabbit"
	"github.com/robertarktes/class-bookings/internal/adapters/sqlite"
	"github.com/robertarktes/class-bookings/internal/config"
	"github.com/robertarktes/class-bookings/internal/observability"
	"github.com/robertarktes/class-bookings/internal/outbox"
)

func main() {
	cfg, err := config.Load(config.RequireStore, config.RequireRabbit)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownOtel, err := observability.SetupOTel(ctx, cfg, "classes-outbox-publisher")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger(cfg.LogLevel)
	observability.InitMetrics(prometheus.DefaultRegisterer)

	var source outbox.Source
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open sqlite: %v", err)
		}
		defer store.Close()
		source = store
	case config.StoreCRDB:
		pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
		if err != nil {
			log.Fatalf("failed to connect to crdb: %v", err)
		}
		defer pool.Close()
		repo := crdb.NewRepository(pool)
		if err := repo.Migrate(ctx); err != nil {
			log.Fatalf("failed to migrate crdb: %v", err)
		}
		source = repo
	}

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	rabbitPub, err := rabbit.NewPublisher(conn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}

	publisher := outbox.NewPublisher(source, rabbitPub, logger, cfg.OutboxInterval, cfg.OutboxBatch)

	done := make(chan struct{})
	go func() {
		defer close(done)
		publisher.Run(ctx)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown outbox publisher")
	cancel()
	<-done
}
