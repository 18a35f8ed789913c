package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/class-bookings/internal/domain"
	"github.com/robertarktes/class-bookings/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
	now    func() time.Time
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
		now:    time.Now,
	}
}

type AuditLog struct {
	ID        string    `bson:"_id"`
	Action    string    `bson:"action"`
	UserID    string    `bson:"user_id,omitempty"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) LogEvent(ctx context.Context, action string, userID uuid.UUID, data bson.M) error {
	log := AuditLog{
		ID:        uuid.NewString(),
		Action:    action,
		Timestamp: a.now(),
		Data:      data,
	}
	if userID != uuid.Nil {
		log.UserID = userID.String()
	}
	if _, err := a.coll.InsertOne(ctx, log); err != nil {
		a.logger.WithError(err).WithField("action", action).Error("failed to insert audit log")
		return errors.Wrap(err, "insert audit log")
	}
	return nil
}

func (a *AuditLogger) LogCartEvent(ctx context.Context, event domain.CartEvent) error {
	return a.LogEvent(ctx, event.Type, event.UserID, bson.M{
		"event_id":    event.ID.String(),
		"order_id":    event.OrderID.String(),
		"item_slug":   event.ItemSlug,
		"occurred_at": event.OccurredAt,
	})
}

// LogFeedback records a validated feedback submission.
func (a *AuditLogger) LogFeedback(ctx context.Context, userID uuid.UUID, features domain.ChurnFeatures) error {
	return a.LogEvent(ctx, domain.EventFeedbackReceived, userID, bson.M{
		"timetable":  features.Timetable,
		"capacity":   features.Capacity,
		"time":       features.Time,
		"facilities": features.Facilities,
		"price":      features.Price,
	})
}
