// Package idempotency replays the stored response of a repeated request.
package idempotency

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	redisadapter "github.com/robertarktes/class-bookings/internal/adapters/redis"
)

const MinKeyLength = 16

var ErrInvalidKey = errors.New("invalid Idempotency-Key")

type Store interface {
	Get(ctx context.Context, key string) (*redisadapter.IdempResponse, error)
	Set(ctx context.Context, key string, resp redisadapter.IdempResponse, ttl time.Duration) error
}

type Idempotency struct {
	store Store
	ttl   time.Duration
}

func NewIdempotency(store Store, ttl time.Duration) *Idempotency {
	return &Idempotency{store: store, ttl: ttl}
}

type Response struct {
	Status      int
	Location    string
	ContentType string
	Body        []byte
}

// Key scopes a client supplied key to the caller and the request target so
// that two users cannot read each other's responses.
func Key(scope, method, path, clientKey string) (string, error) {
	if len(clientKey) < MinKeyLength {
		return "", errors.Wrapf(ErrInvalidKey, "key must be at least %d characters", MinKeyLength)
	}
	return scope + ":" + method + ":" + path + ":" + clientKey, nil
}

// Get returns the stored response for key, or nil when there is none.
func (i *Idempotency) Get(ctx context.Context, key string) (*Response, error) {
	stored, err := i.store.Get(ctx, key)
	if err != nil || stored == nil {
		return nil, err
	}
	return &Response{
		Status:      stored.Status,
		Location:    stored.Location,
		ContentType: stored.ContentType,
		Body:        stored.Body,
	}, nil
}

func (i *Idempotency) Set(ctx context.Context, key string, resp Response) error {
	return i.store.Set(ctx, key, redisadapter.IdempResponse{
		Status:      resp.Status,
		Location:    resp.Location,
		ContentType: resp.ContentType,
		Body:        resp.Body,
	}, i.ttl)
}
