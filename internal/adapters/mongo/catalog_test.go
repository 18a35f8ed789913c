package mongo_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	mongoadapter "github.com/robertarktes/class-bookings/internal/adapters/mongo"
	"github.com/robertarktes/class-bookings/internal/domain"
	"github.com/robertarktes/class-bookings/internal/observability"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func startDatabase(t *testing.T) *mongo.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping mongo container in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	mongoContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { mongoContainer.Terminate(ctx) })

	uri, err := mongoContainer.Endpoint(ctx, "mongodb")
	if err != nil {
		t.Fatal(err)
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Disconnect(ctx) })
	return client.Database("classes_test")
}

func TestCatalogRepository(t *testing.T) {
	db := startDatabase(t)
	ctx := context.Background()
	repo := mongoadapter.NewCatalogRepository(db, observability.NewDiscardLogger())
	if err := repo.EnsureIndexes(ctx); err != nil {
		t.Fatal(err)
	}

	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	yoga, err := repo.CreateItem(ctx, domain.Item{
		Slug:      "yoga-101",
		Title:     "Yoga 101",
		Price:     decimal.RequireFromString("12.50"),
		CreatedAt: base,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repo.CreateItem(ctx, domain.Item{
		Slug:          "pilates-201",
		Title:         "Pilates 201",
		Price:         decimal.NewFromInt(20),
		DiscountPrice: decimal.NewNullDecimal(decimal.NewFromInt(15)),
		CreatedAt:     base.Add(time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	_, err = repo.CreateItem(ctx, domain.Item{Slug: "yoga-101", Title: "again", Price: decimal.NewFromInt(1)})
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict for a duplicate slug, got %v", err)
	}

	n, err := repo.CountItems(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 items, got %d", n)
	}

	page, err := repo.ListItems(ctx, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 || page[0].Slug != "pilates-201" {
		t.Fatalf("expected pilates-201 after offset 1, got %+v", page)
	}
	if !page[0].EffectivePrice().Equal(decimal.NewFromInt(15)) {
		t.Errorf("expected discount price 15, got %s", page[0].EffectivePrice())
	}

	got, err := repo.GetItemBySlug(ctx, "yoga-101")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != yoga.ID || !got.Price.Equal(yoga.Price) || got.DiscountPrice.Valid {
		t.Errorf("unexpected item %+v", got)
	}

	if _, err := repo.GetItemBySlug(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
