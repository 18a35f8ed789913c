package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

const (
	StoreCRDB   = "crdb"
	StoreSQLite = "sqlite"

	ChurnRabbit = "rabbit"
	ChurnKafka  = "kafka"
)

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"crdb"`
	CRDBDSN     string `env:"CRDB_DSN"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"classes.db"`

	MongoURI      string   `env:"MONGO_URI"`
	MongoDatabase string   `env:"MONGO_DATABASE" envDefault:"classes"`
	RedisAddr     string   `env:"REDIS_ADDR"`
	RabbitURL     string   `env:"RABBIT_URL"`
	KafkaBrokers  []string `env:"KAFKA_BROKERS" envSeparator:","`

	ChurnTransport string `env:"CHURN_TRANSPORT" envDefault:"rabbit"`
	ChurnTopic     string `env:"CHURN_TOPIC" envDefault:"feedback.submitted"`
	ChurnQueue     string `env:"CHURN_QUEUE" envDefault:"churn.features"`
	KafkaGroupID   string `env:"KAFKA_GROUP_ID" envDefault:"churn-worker"`

	JWTPublicKey string `env:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `env:"JWT_ISSUER"`
	LoginURL     string `env:"LOGIN_URL" envDefault:"/accounts/login/"`

	PageSize       int           `env:"CATALOG_PAGE_SIZE" envDefault:"5"`
	ItemCacheTTL   time.Duration `env:"ITEM_CACHE_TTL" envDefault:"5m"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"1h"`

	RateLimitUser   int           `env:"RATE_LIMIT_USER" envDefault:"10"`
	RateLimitIP     int           `env:"RATE_LIMIT_IP" envDefault:"100"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`

	OutboxInterval time.Duration `env:"OUTBOX_INTERVAL" envDefault:"5s"`
	OutboxBatch    int           `env:"OUTBOX_BATCH" envDefault:"10"`

	OTLPEndpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelSampleRatio float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"1"`
	LogLevel        string  `env:"LOG_LEVEL" envDefault:"info"`
}

// Requirement is a check a binary opts into on top of the common ones.
type Requirement func(c *Config) error

// Load reads .env and the environment, then validates the common settings
// and every requirement passed by the caller.
func Load(reqs ...Requirement) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, errors.Wrap(err, "parse env")
	}
	if err := cfg.Validate(reqs...); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate normalises the enum settings and checks the ones that depend on
// each other.
func (c *Config) Validate(reqs ...Requirement) error {
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	c.ChurnTransport = strings.ToLower(strings.TrimSpace(c.ChurnTransport))

	if c.PageSize < 1 {
		return errors.Newf("CATALOG_PAGE_SIZE must be positive, got %d", c.PageSize)
	}
	if c.OTelSampleRatio < 0 || c.OTelSampleRatio > 1 {
		return errors.Newf("OTEL_SAMPLE_RATIO must be within [0, 1], got %v", c.OTelSampleRatio)
	}
	for _, req := range reqs {
		if err := req(c); err != nil {
			return err
		}
	}
	return nil
}

// RequireStore checks the cart store settings.
func RequireStore(c *Config) error {
	switch c.StoreDriver {
	case StoreCRDB:
		if c.CRDBDSN == "" {
			return errors.New("CRDB_DSN is required when STORE_DRIVER=crdb")
		}
	case StoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return errors.New("SQLITE_PATH is required when STORE_DRIVER=sqlite")
		}
	default:
		return errors.Newf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	return nil
}

// RequireCatalog checks that the catalog has a home. With CockroachDB it
// lives in Mongo.
func RequireCatalog(c *Config) error {
	if c.StoreDriver == StoreCRDB && c.MongoURI == "" {
		return errors.New("MONGO_URI is required when STORE_DRIVER=crdb")
	}
	return nil
}

func RequireChurn(c *Config) error {
	switch c.ChurnTransport {
	case ChurnRabbit:
	case ChurnKafka:
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required when CHURN_TRANSPORT=kafka")
		}
	default:
		return errors.Newf("unknown CHURN_TRANSPORT %q", c.ChurnTransport)
	}
	return nil
}

func RequireRabbit(c *Config) error {
	if c.RabbitURL == "" {
		return errors.New("RABBIT_URL is required")
	}
	return nil
}
