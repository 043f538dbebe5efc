package domain

import "errors"

var (
	// ErrInput marks input that is rejected before any processing happens.
	ErrInput = errors.New("invalid input")

	// ErrDimensionMismatch marks a vector whose length differs from the index dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrPersistence marks a failed durable write or reload. The in-memory
	// state is already rolled back when this is returned.
	ErrPersistence = errors.New("persistence failure")

	// ErrUpstream marks a failure of the embedding or generation service.
	ErrUpstream = errors.New("upstream failure")
)
