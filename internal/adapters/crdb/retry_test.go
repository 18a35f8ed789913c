package crdb

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/robertarktes/class-bookings/internal/domain"
)

func serializationFailure() error {
	return errors.Wrap(&pgconn.PgError{Code: SerializationFailureCode, Message: "restart transaction"}, "commit")
}

func TestRetrySerializable(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name      string
		results   []error
		wantCalls int
		wantErr   error
	}{
		{
			name:      "first attempt succeeds",
			results:   []error{nil},
			wantCalls: 1,
		},
		{
			name:      "succeeds after a restart",
			results:   []error{serializationFailure(), nil},
			wantCalls: 2,
		},
		{
			name:      "other errors are not retried",
			results:   []error{boom},
			wantCalls: 1,
			wantErr:   boom,
		},
		{
			name:      "gives up after three attempts",
			results:   []error{serializationFailure(), serializationFailure(), serializationFailure(), nil},
			wantCalls: maxTxAttempts,
			wantErr:   domain.ErrSerializationFailure,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := retrySerializable(context.Background(), maxTxAttempts, time.Millisecond, func(ctx context.Context) error {
				res := tt.results[calls]
				calls++
				return res
			})
			if calls != tt.wantCalls {
				t.Errorf("expected %d attempts, got %d", tt.wantCalls, calls)
			}
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRetrySerializable_Backoff(t *testing.T) {
	var at []time.Time
	err := retrySerializable(context.Background(), 3, 20*time.Millisecond, func(ctx context.Context) error {
		at = append(at, time.Now())
		return serializationFailure()
	})
	if !errors.Is(err, domain.ErrSerializationFailure) {
		t.Fatalf("expected ErrSerializationFailure, got %v", err)
	}
	if len(at) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(at))
	}
	if d := at[1].Sub(at[0]); d < 20*time.Millisecond {
		t.Errorf("expected at least 20ms before the second attempt, got %v", d)
	}
	if d := at[2].Sub(at[1]); d < 40*time.Millisecond {
		t.Errorf("expected at least 40ms before the third attempt, got %v", d)
	}
}

func TestRetrySerializable_CanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	start := time.Now()
	err := retrySerializable(ctx, maxTxAttempts, time.Hour, func(ctx context.Context) error {
		calls++
		cancel()
		return serializationFailure()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 attempt, got %d", calls)
	}
	if time.Since(start) > time.Second {
		t.Error("expected cancellation to cut the backoff short")
	}
}
