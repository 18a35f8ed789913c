package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/class-bookings/internal/adapters/crdb"
	"github.com/robertarktes/class-bookings/internal/adapters/kafka"
	mongoadapter "github.com/robertarktes/class-bookings/internal/adapters/mongo"
	"github.com/robertarktes/class-bookings/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/class-bookings/internal/adapters/redis"
	"github.com/robertarktes/class-bookings/internal/adapters/sqlite"
	"github.com/robertarktes/class-bookings/internal/auth"
	"github.com/robertarktes/class-bookings/internal/cart"
	"github.com/robertarktes/class-bookings/internal/catalog"
	"github.com/robertarktes/class-bookings/internal/churn"
	"github.com/robertarktes/class-bookings/internal/config"
	"github.com/robertarktes/class-bookings/internal/feedback"
	httphandler "github.com/robertarktes/class-bookings/internal/http"
	"github.com/robertarktes/class-bookings/internal/idempotency"
	"github.com/robertarktes/class-bookings/internal/observability"
	"github.com/robertarktes/class-bookings/internal/rateLimit"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load(config.RequireStore, config.RequireCatalog, config.RequireChurn)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown, err := observability.SetupOTel(ctx, cfg, "classes-api")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger(cfg.LogLevel)
	observability.InitMetrics(prometheus.DefaultRegisterer)

	checks := map[string]httphandler.Pinger{}

	var (
		catalogRepo  catalog.Repository
		cartStore    cart.Store
		cartAuditor  cart.Auditor
		feedbackOpts []feedback.Option
	)
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open sqlite: %v", err)
		}
		defer store.Close()
		catalogRepo, cartStore = store, store
		checks["sqlite"] = store
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
		cartStore = repo
		checks["crdb"] = repo
	}

	if cfg.MongoURI != "" {
		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatalf("failed to connect to mongo: %v", err)
		}
		defer mongoClient.Disconnect(context.Background())
		mongoDB := mongoClient.Database(cfg.MongoDatabase)

		audit := mongoadapter.NewAuditLogger(mongoDB, logger)
		cartAuditor = audit
		feedbackOpts = append(feedbackOpts, feedback.WithAuditor(audit))
		checks["mongo"] = pingFunc(func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) })

		if cfg.StoreDriver == config.StoreCRDB {
			mongoCatalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
			if err := mongoCatalog.EnsureIndexes(ctx); err != nil {
				log.Fatalf("failed to create catalog indexes: %v", err)
			}
			catalogRepo = mongoCatalog
		}
	}

	catalogOpts := []catalog.Option{catalog.WithPageSize(cfg.PageSize)}
	deps := httphandler.RouterDeps{LoginURL: cfg.LoginURL}
	if cfg.RedisAddr != "" {
		redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		redisCache := redisadapter.NewCache(redisClient)
		catalogOpts = append(catalogOpts, catalog.WithCache(redisCache, cfg.ItemCacheTTL))
		deps.Idempotency = idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), cfg.IdempotencyTTL)
		deps.RateLimiter = rateLimit.NewRateLimiter(redisCache, rateLimit.Limits{
			PerUser: cfg.RateLimitUser,
			PerIP:   cfg.RateLimitIP,
			Window:  cfg.RateLimitWindow,
		})
		checks["redis"] = redisCache
	}

	var predictor churn.Predictor
	switch cfg.ChurnTransport {
	case config.ChurnKafka:
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.ChurnTopic, 256, logger)
		producer.Start(ctx)
		defer producer.WaitClosed()
		predictor = churn.NewKafkaPredictor(producer)
	case config.ChurnRabbit:
		if cfg.RabbitURL == "" {
			logger.Warn("RABBIT_URL is empty, feedback is not forwarded to the churn model")
			break
		}
		rabbitConn, err := amqp.Dial(cfg.RabbitURL)
		if err != nil {
			log.Fatalf("failed to connect to rabbitmq: %v", err)
		}
		defer rabbitConn.Close()
		rabbitPub, err := rabbit.NewPublisher(rabbitConn)
		if err != nil {
			log.Fatalf("failed to create publisher: %v", err)
		}
		predictor = churn.NewRabbitPredictor(rabbitPub)
	}

	if cfg.JWTPublicKey != "" {
		verifier, err := auth.NewVerifier(cfg.JWTPublicKey, cfg.JWTIssuer)
		if err != nil {
			log.Fatalf("failed to load jwt key: %v", err)
		}
		deps.Verifier = verifier
	} else {
		logger.Warn("JWT_PUBLIC_KEY is empty, every cart request is redirected to login")
	}

	catalogSvc := catalog.NewService(catalogRepo, logger, catalogOpts...)
	var cartOpts []cart.Option
	if cartAuditor != nil {
		cartOpts = append(cartOpts, cart.WithAuditor(cartAuditor))
	}
	cartSvc := cart.NewService(catalogSvc, cartStore, logger, cartOpts...)
	feedbackSvc := feedback.NewService(predictor, logger, feedbackOpts...)

	handlers := httphandler.NewHandlers(catalogSvc, cartSvc, feedbackSvc, logger, checks)
	r := httphandler.SetupRouter(handlers, logger, deps)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()
	logger.WithField("addr", cfg.HTTPAddr).WithField("store", cfg.StoreDriver).Info("Server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server Shutdown")
	}
	cancel()
	logger.Info("Server exiting")
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }
