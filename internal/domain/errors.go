package domain

import "github.com/cockroachdb/errors"

var (
	// ErrSerializationFailure means a cart transaction kept conflicting with
	// concurrent bookings after every retry.
	ErrSerializationFailure = errors.New("serialization failure")
	// ErrNotFound covers unknown slugs, pages out of range and a missing open order.
	ErrNotFound = errors.New("not found")
	// ErrConflict is a violated uniqueness rule: duplicate slug, second open order.
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
)
