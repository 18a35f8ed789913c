package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/class-bookings/internal/domain"
	"github.com/robertarktes/class-bookings/internal/observability"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type CatalogRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		coll:   db.Collection("items"),
		logger: logger,
	}
}

// ItemDoc stores prices as decimal strings so no precision is lost.
type ItemDoc struct {
	ID            string    `bson:"_id"`
	Slug          string    `bson:"slug"`
	Title         string    `bson:"title"`
	Price         string    `bson:"price"`
	DiscountPrice *string   `bson:"discount_price,omitempty"`
	Category      string    `bson:"category"`
	Label         string    `bson:"label"`
	Description   string    `bson:"description"`
	CreatedAt     time.Time `bson:"created_at"`
}

func toDoc(item domain.Item) ItemDoc {
	doc := ItemDoc{
		ID:          item.ID.String(),
		Slug:        item.Slug,
		Title:       item.Title,
		Price:       item.Price.String(),
		Category:    item.Category,
		Label:       item.Label,
		Description: item.Description,
		CreatedAt:   item.CreatedAt,
	}
	if item.DiscountPrice.Valid {
		s := item.DiscountPrice.Decimal.String()
		doc.DiscountPrice = &s
	}
	return doc
}

func (d ItemDoc) toItem() (domain.Item, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return domain.Item{}, errors.Wrapf(err, "item %q id", d.Slug)
	}
	price, err := decimal.NewFromString(d.Price)
	if err != nil {
		return domain.Item{}, errors.Wrapf(err, "item %q price", d.Slug)
	}
	item := domain.Item{
		ID:          id,
		Slug:        d.Slug,
		Title:       d.Title,
		Price:       price,
		Category:    d.Category,
		Label:       d.Label,
		Description: d.Description,
		CreatedAt:   d.CreatedAt.UTC(),
	}
	if d.DiscountPrice != nil {
		discount, err := decimal.NewFromString(*d.DiscountPrice)
		if err != nil {
			return domain.Item{}, errors.Wrapf(err, "item %q discount price", d.Slug)
		}
		item.DiscountPrice = decimal.NewNullDecimal(discount)
	}
	return item, nil
}

// EnsureIndexes makes slugs unique.
func (c *CatalogRepository) EnsureIndexes(ctx context.Context) error {
	_, err := c.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "slug", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return errors.Wrap(err, "create slug index")
}

func (c *CatalogRepository) CountItems(ctx context.Context) (int64, error) {
	n, err := c.coll.CountDocuments(ctx, bson.M{})
	return n, errors.Wrap(err, "count items")
}

func (c *CatalogRepository) ListItems(ctx context.Context, offset, limit int) ([]domain.Item, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "slug", Value: 1}}).
		SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := c.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find items")
	}
	defer cur.Close(ctx)

	var docs []ItemDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode items")
	}
	items := make([]domain.Item, 0, len(docs))
	for _, d := range docs {
		item, err := d.toItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (c *CatalogRepository) GetItemBySlug(ctx context.Context, slug string) (domain.Item, error) {
	var doc ItemDoc
	err := c.coll.FindOne(ctx, bson.M{"slug": slug}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Item{}, errors.Wrapf(domain.ErrNotFound, "item %q", slug)
	}
	if err != nil {
		c.logger.WithError(err).WithField("slug", slug).Error("failed to get item")
		return domain.Item{}, errors.Wrap(err, "find item")
	}
	return doc.toItem()
}

// CreateItem inserts an item. A duplicate slug is ErrConflict.
func (c *CatalogRepository) CreateItem(ctx context.Context, item domain.Item) (domain.Item, error) {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	// BSON dates keep millisecond precision.
	item.CreatedAt = item.CreatedAt.UTC().Truncate(time.Millisecond)

	_, err := c.coll.InsertOne(ctx, toDoc(item))
	if mongo.IsDuplicateKeyError(err) {
		return domain.Item{}, errors.Mark(errors.Wrapf(err, "insert item %q", item.Slug), domain.ErrConflict)
	}
	if err != nil {
		c.logger.WithError(err).WithField("slug", item.Slug).Error("failed to create item")
		return domain.Item{}, errors.Wrapf(err, "insert item %q", item.Slug)
	}
	return item, nil
}
