// Package feedback validates the class feedback form and forwards accepted
// submissions to the churn predictor.
package feedback

import (
	"context"

	"github.com/google/uuid"
	"github.com/robertarktes/class-bookings/internal/churn"
	"github.com/robertarktes/class-bookings/internal/domain"
	"github.com/robertarktes/class-bookings/internal/observability"
)

type Auditor interface {
	LogFeedback(ctx context.Context, userID uuid.UUID, features domain.ChurnFeatures) error
}

type Service struct {
	predictor churn.Predictor
	auditor   Auditor
	logger    observability.Logger
}

type Option func(*Service)

func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.auditor = a }
}

func NewService(predictor churn.Predictor, logger observability.Logger, opts ...Option) *Service {
	s := &Service{predictor: predictor, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates form. Invalid input is returned as a *domain.ValidationError
// and has no side effects. Predictor and audit failures are logged only.
func (s *Service) Submit(ctx context.Context, userID uuid.UUID, form domain.FeedbackForm) error {
	log := observability.FromContext(ctx, s.logger)

	in, err := form.Validate()
	if err != nil {
		observability.FeedbackSubmissions.WithLabelValues("invalid").Inc()
		log.WithError(err).Debug("feedback rejected")
		return err
	}
	observability.FeedbackSubmissions.WithLabelValues("accepted").Inc()

	features := in.Features()
	if s.predictor != nil {
		if err := s.predictor.Predict(ctx, features); err != nil {
			log.WithError(err).Warn("churn prediction failed")
		}
	}
	if s.auditor != nil {
		if err := s.auditor.LogFeedback(ctx, userID, features); err != nil {
			log.WithError(err).Warn("audit feedback")
		}
	}
	return nil
}

// Field describes one input of the feedback form.
type Field struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Required  bool   `json:"required"`
	MaxLength int    `json:"max_length,omitempty"`
	Min       *int   `json:"min,omitempty"`
}

func intPtr(v int) *int { return &v }

// Fields lists the form inputs in display order.
func Fields() []Field {
	return []Field{
		{Name: "timetable", Type: "text", Required: true, MaxLength: domain.MaxTimetableLen},
		{Name: "capacity", Type: "integer", Required: true, Min: intPtr(1)},
		{Name: "duration", Type: "text", Required: true, MaxLength: domain.MaxDurationLen},
		{Name: "facilities", Type: "text", Required: true, MaxLength: domain.MaxFacilitiesLen},
		{Name: "price", Type: "number", Required: true, Min: intPtr(0)},
	}
}
