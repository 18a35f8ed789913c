package rateLimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/class-bookings/internal/rateLimit"
)

type memCounter struct {
	counts map[string]int64
	err    error
}

func (m *memCounter) IncrWindow(ctx context.Context, key string, period time.Duration) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.counts[key]++
	return m.counts[key], nil
}

func TestRateLimiter_AllowUser(t *testing.T) {
	counter := &memCounter{counts: map[string]int64{}}
	rl := rateLimit.NewRateLimiter(counter, rateLimit.Limits{PerUser: 2, PerIP: 5, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := rl.AllowUser(ctx, "alice")
		if err != nil || !ok {
			t.Fatalf("request %d: expected allowed, got %v, %v", i, ok, err)
		}
	}
	ok, err := rl.AllowUser(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected third request to be limited")
	}

	if ok, _ := rl.AllowUser(ctx, "bob"); !ok {
		t.Error("expected other users to have their own window")
	}
	if counter.counts["user:alice"] != 3 || counter.counts["ip:alice"] != 0 {
		t.Errorf("unexpected counters %+v", counter.counts)
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	counter := &memCounter{counts: map[string]int64{}}
	rl := rateLimit.NewRateLimiter(counter, rateLimit.Limits{})

	for i := 0; i < 50; i++ {
		if ok, _ := rl.AllowIP(context.Background(), "10.0.0.1"); !ok {
			t.Fatal("expected a zero limit to allow everything")
		}
	}
	if len(counter.counts) != 0 {
		t.Error("expected no counter traffic when disabled")
	}
}

func TestRateLimiter_CounterError(t *testing.T) {
	rl := rateLimit.NewRateLimiter(&memCounter{err: errors.New("redis down")}, rateLimit.Limits{PerIP: 1})
	ok, err := rl.AllowIP(context.Background(), "10.0.0.1")
	if err == nil || ok {
		t.Errorf("expected error and deny, got %v, %v", ok, err)
	}
}
