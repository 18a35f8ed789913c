package feedback_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/class-bookings/internal/domain"
	"github.com/robertarktes/class-bookings/internal/feedback"
	"github.com/robertarktes/class-bookings/internal/observability"
)

type memPredictor struct {
	got []domain.ChurnFeatures
	err error
}

func (m *memPredictor) Predict(ctx context.Context, f domain.ChurnFeatures) error {
	m.got = append(m.got, f)
	return m.err
}

type memAuditor struct {
	users []uuid.UUID
}

func (m *memAuditor) LogFeedback(ctx context.Context, userID uuid.UUID, f domain.ChurnFeatures) error {
	m.users = append(m.users, userID)
	return nil
}

var validForm = domain.FeedbackForm{
	Timetable:  "Mon-9am",
	Capacity:   "20",
	Duration:   "1h",
	Facilities: "mat",
	Price:      "10",
}

func TestSubmit_Valid(t *testing.T) {
	predictor := &memPredictor{}
	auditor := &memAuditor{}
	svc := feedback.NewService(predictor, observability.NewDiscardLogger(), feedback.WithAuditor(auditor))
	userID := uuid.New()

	if err := svc.Submit(context.Background(), userID, validForm); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	want := domain.ChurnFeatures{Timetable: "Mon-9am", Capacity: 20, Time: "1h", Facilities: "mat", Price: 10}
	if len(predictor.got) != 1 || predictor.got[0] != want {
		t.Errorf("expected features %+v, got %+v", want, predictor.got)
	}
	if len(auditor.users) != 1 || auditor.users[0] != userID {
		t.Errorf("expected one audit entry for %s, got %v", userID, auditor.users)
	}
}

func TestSubmit_Invalid(t *testing.T) {
	predictor := &memPredictor{}
	auditor := &memAuditor{}
	svc := feedback.NewService(predictor, observability.NewDiscardLogger(), feedback.WithAuditor(auditor))

	form := validForm
	form.Capacity = "many"

	err := svc.Submit(context.Background(), uuid.Nil, form)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Fields["capacity"] == "" {
		t.Errorf("expected capacity error, got %v", err)
	}
	if len(predictor.got) != 0 || len(auditor.users) != 0 {
		t.Error("expected no side effects for invalid input")
	}
}

func TestSubmit_PredictorErrorIsDiscarded(t *testing.T) {
	predictor := &memPredictor{err: errors.New("broker down")}
	svc := feedback.NewService(predictor, observability.NewDiscardLogger())

	if err := svc.Submit(context.Background(), uuid.Nil, validForm); err != nil {
		t.Errorf("expected predictor error to be discarded, got %v", err)
	}
	if len(predictor.got) != 1 {
		t.Error("expected the predictor to be called")
	}
}

func TestFields(t *testing.T) {
	fields := feedback.Fields()
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Name)
	}
	want := []string{"timetable", "capacity", "duration", "facilities", "price"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("field %d: expected %s, got %s", i, want[i], names[i])
		}
	}
}
