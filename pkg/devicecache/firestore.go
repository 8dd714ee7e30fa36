package devicecache

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig holds configuration for the Firestore-backed source.
type FirestoreConfig struct {
	ProjectID      string
	CollectionName string
}

// NewFirestoreClient creates a Firestore client for the given project.
func NewFirestoreClient(ctx context.Context, projectID string, logger zerolog.Logger) (*firestore.Client, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	logger.Info().Str("project_id", projectID).Msg("Firestore client created.")
	return client, nil
}

// FirestoreSource is a Fetcher reading documents from one Firestore
// collection. It is the source of truth a read-through cache pulls from.
type FirestoreSource[K comparable, V any] struct {
	client         *firestore.Client
	collectionName string
	logger         zerolog.Logger
}

// NewFirestoreSource creates a FirestoreSource over an existing client.
func NewFirestoreSource[K comparable, V any](
	cfg *FirestoreConfig,
	client *firestore.Client,
	logger zerolog.Logger,
) (*FirestoreSource[K, V], error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client cannot be nil")
	}

	return &FirestoreSource[K, V]{
		client:         client,
		collectionName: cfg.CollectionName,
		logger:         logger.With().Str("component", "FirestoreSource").Str("collection", cfg.CollectionName).Logger(),
	}, nil
}

// Fetch retrieves a single document by its key.
func (s *FirestoreSource[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	var zero V
	stringKey := fmt.Sprintf("%v", key)
	docSnap, err := s.client.Collection(s.collectionName).Doc(stringKey).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			s.logger.Warn().Str("key", stringKey).Msg("Document not found in Firestore.")
			return zero, fmt.Errorf("document not found: %w", err)
		}
		return zero, fmt.Errorf("firestore get for %s: %w", stringKey, err)
	}

	var value V
	if err := docSnap.DataTo(&value); err != nil {
		return zero, fmt.Errorf("firestore DataTo for %s: %w", stringKey, err)
	}
	return value, nil
}

// Set writes the document, so sensor registrations can land in the source of
// truth through the same type.
func (s *FirestoreSource[K, V]) Set(ctx context.Context, key K, value V) error {
	stringKey := fmt.Sprintf("%v", key)
	if _, err := s.client.Collection(s.collectionName).Doc(stringKey).Set(ctx, value); err != nil {
		return fmt.Errorf("firestore set for %s: %w", stringKey, err)
	}
	return nil
}

// Close is a no-op. The Firestore client's lifecycle is managed externally.
func (s *FirestoreSource[K, V]) Close() error {
	return nil
}
