// Package devicecache provides read-through caching for sensor metadata so
// consumers can enrich decoded samples without hitting the source of truth on
// every record.
package devicecache

import (
	"context"

	"github.com/google/uuid"
)

// Fetcher retrieves a value by key from a cache layer or a source of truth.
// Implementations that manage connections release them in Close.
type Fetcher[K comparable, V any] interface {
	Fetch(ctx context.Context, key K) (V, error)
	Close() error
}

// Store is a Fetcher that also accepts writes, for layers that double as a
// registration target.
type Store[K comparable, V any] interface {
	Fetcher[K, V]
	Set(ctx context.Context, key K, value V) error
}

// SensorMetadata is the per-sensor document cached and attached to samples.
type SensorMetadata struct {
	ID       uuid.UUID `json:"id" firestore:"id"`
	Name     string    `json:"name" firestore:"name"`
	Location string    `json:"location,omitempty" firestore:"location,omitempty"`
}
