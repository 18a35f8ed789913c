package integration_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/class-bookings/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/class-bookings/internal/adapters/mongo"
	"github.com/robertarktes/class-bookings/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/class-bookings/internal/adapters/redis"
	"github.com/robertarktes/class-bookings/internal/auth"
	"github.com/robertarktes/class-bookings/internal/cart"
	"github.com/robertarktes/class-bookings/internal/catalog"
	"github.com/robertarktes/class-bookings/internal/churn"
	"github.com/robertarktes/class-bookings/internal/domain"
	"github.com/robertarktes/class-bookings/internal/feedback"
	httphandler "github.com/robertarktes/class-bookings/internal/http"
	"github.com/robertarktes/class-bookings/internal/idempotency"
	"github.com/robertarktes/class-bookings/internal/observability"
	"github.com/robertarktes/class-bookings/internal/outbox"
	"github.com/robertarktes/class-bookings/internal/rateLimit"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func startContainer(t *testing.T, req testcontainers.ContainerRequest, port string) string {
	t.Helper()
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Terminate(ctx) })

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		t.Fatal(err)
	}
	return host + ":" + mapped.Port()
}

func TestIntegration_BookAndSummarize(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	crdbAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "cockroachdb/cockroach:v24.1.1",
		Cmd:          []string{"start-single-node", "--insecure"},
		ExposedPorts: []string{"26257/tcp", "8080/tcp"},
		WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
	}, "26257")
	mongoAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp"),
	}, "27017")
	redisAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForExec([]string{"redis-cli", "ping"}),
	}, "6379")
	rabbitAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "rabbitmq:3.13-management",
		ExposedPorts: []string{"5672/tcp", "15672/tcp"},
		WaitingFor:   wait.ForHTTP("/api/health/checks/alarms").WithPort("15672").WithBasicAuth("guest", "guest"),
	}, "5672")

	logger := observability.NewDiscardLogger()

	pool, err := pgxpool.New(ctx, "postgresql://root@"+crdbAddr+"/defaultdb?sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		t.Fatal(err)
	}

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI("mongodb://"+mongoAddr))
	if err != nil {
		t.Fatal(err)
	}
	defer mongoClient.Disconnect(ctx)
	mongoDB := mongoClient.Database("classes")
	mongoCatalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	if err := mongoCatalog.EnsureIndexes(ctx); err != nil {
		t.Fatal(err)
	}
	audit := mongoadapter.NewAuditLogger(mongoDB, logger)

	for _, item := range []domain.Item{
		{Slug: "yoga-101", Title: "Yoga 101", Price: decimal.RequireFromString("12.50")},
		{Slug: "pilates-201", Title: "Pilates 201", Price: decimal.NewFromInt(20), DiscountPrice: decimal.NewNullDecimal(decimal.NewFromInt(15))},
	} {
		if _, err := mongoCatalog.CreateItem(ctx, item); err != nil {
			t.Fatal(err)
		}
	}

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: redisAddr})
	defer redisClient.Close()
	redisCache := redisadapter.NewCache(redisClient)

	rabbitConn, err := amqp.Dial("amqp://guest:guest@" + rabbitAddr + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
	if err != nil {
		t.Fatal(err)
	}
	cartEvents, err := rabbit.NewConsumer(rabbitConn, "test.cart", domain.EventItemBooked, domain.EventItemCanceled)
	if err != nil {
		t.Fatal(err)
	}
	churnQueue, err := rabbit.NewConsumer(rabbitConn, "churn.features", domain.EventFeedbackReceived)
	if err != nil {
		t.Fatal(err)
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	verifier, err := auth.NewVerifier(string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), "classes")
	if err != nil {
		t.Fatal(err)
	}

	catalogSvc := catalog.NewService(mongoCatalog, logger, catalog.WithCache(redisCache, time.Minute))
	cartSvc := cart.NewService(catalogSvc, repo, logger, cart.WithAuditor(audit))
	feedbackSvc := feedback.NewService(churn.NewRabbitPredictor(rabbitPub), logger, feedback.WithAuditor(audit))

	handlers := httphandler.NewHandlers(catalogSvc, cartSvc, feedbackSvc, logger, map[string]httphandler.Pinger{
		"crdb":  repo,
		"redis": redisCache,
	})
	srv := httptest.NewServer(httphandler.SetupRouter(handlers, logger, httphandler.RouterDeps{
		Verifier:    verifier,
		RateLimiter: rateLimit.NewRateLimiter(redisCache, rateLimit.Limits{PerUser: 100, PerIP: 1000, Window: time.Minute}),
		Idempotency: idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), time.Hour),
	}))
	defer srv.Close()

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}

	userID := uuid.New()
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Subject:   userID.String(),
		Issuer:    "classes",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(key)
	if err != nil {
		t.Fatal(err)
	}

	send := func(method, path, body, contentType, idempKey string) (*http.Response, httphandler.RedirectBody) {
		t.Helper()
		req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if idempKey != "" {
			req.Header.Set("Idempotency-Key", idempKey)
		}
		resp, err := client.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var rb httphandler.RedirectBody
		if resp.StatusCode == http.StatusSeeOther {
			if err := json.NewDecoder(resp.Body).Decode(&rb); err != nil {
				t.Fatal(err)
			}
		}
		return resp, rb
	}

	// no open order yet
	_, rb := send(http.MethodGet, "/order-summary/", "", "", "")
	if rb.Redirect != "/" || rb.Notice == nil || *rb.Notice != domain.NoticeNoOpenOrder {
		t.Fatalf("expected redirect home with error notice, got %+v", rb)
	}

	bookKey := uuid.NewString()
	for _, slug := range []string{"yoga-101", "pilates-201"} {
		_, rb := send(http.MethodPost, "/add-to-cart/"+slug+"/", "", "", bookKey+slug)
		if rb.Notice == nil || *rb.Notice != domain.NoticeBooked {
			t.Fatalf("%s: expected booked, got %+v", slug, rb)
		}
	}
	resp, rb := send(http.MethodPost, "/add-to-cart/yoga-101/", "", "", bookKey+"yoga-101")
	if resp.Header.Get("Idempotent-Replayed") != "true" || *rb.Notice != domain.NoticeBooked {
		t.Errorf("expected replay of the first booking, got %+v", rb)
	}
	_, rb = send(http.MethodPost, "/add-to-cart/yoga-101/", "", "", "")
	if *rb.Notice != domain.NoticeAlreadyBooked {
		t.Errorf("expected already booked, got %+v", rb)
	}

	resp, _ = send(http.MethodGet, "/order-summary/", "", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected summary, got %d", resp.StatusCode)
	}
	summary, err := cartSvc.Summary(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if len(summary.Lines) != 2 || !summary.Total.Equal(decimal.RequireFromString("27.50")) {
		t.Errorf("expected two lines totalling 27.50, got %d lines, %s", len(summary.Lines), summary.Total)
	}

	// relay the outbox and read it back from the broker
	relay := outbox.NewPublisher(repo, rabbitPub, logger, time.Second, 10)
	n, err := relay.PublishBatch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 relayed events, got %d", n)
	}
	deliveries, err := cartEvents.Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		select {
		case d := <-deliveries:
			var ev domain.CartEvent
			if err := json.Unmarshal(d.Body, &ev); err != nil {
				t.Fatal(err)
			}
			if ev.UserID != userID || ev.Type != domain.EventItemBooked {
				t.Errorf("unexpected event %+v", ev)
			}
			d.Ack(false)
		case <-time.After(10 * time.Second):
			t.Fatal("timed out waiting for cart events")
		}
	}

	form := url.Values{"timetable": {"Mon-9am"}, "capacity": {"20"}, "duration": {"1h"}, "facilities": {"mat"}, "price": {"10"}}
	_, rb = send(http.MethodPost, "/feedback/", form.Encode(), "application/x-www-form-urlencoded", "")
	if rb.Redirect != "/feedback/" {
		t.Errorf("expected redirect to the form, got %+v", rb)
	}
	features, err := churnQueue.Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case d := <-features:
		var f domain.ChurnFeatures
		if err := json.Unmarshal(d.Body, &f); err != nil {
			t.Fatal(err)
		}
		if f.Capacity != 20 || f.Time != "1h" {
			t.Errorf("unexpected features %+v", f)
		}
		d.Ack(false)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for churn features")
	}

	_, rb = send(http.MethodPost, "/remove-from-cart/yoga-101/", "", "", "")
	if *rb.Notice != domain.NoticeCanceled {
		t.Errorf("expected canceled, got %+v", rb)
	}
	order, err := repo.OpenOrder(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if order.HasItem("yoga-101") || !order.HasItem("pilates-201") {
		t.Errorf("unexpected order items %+v", order.Items)
	}
}
