package telemetryqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrTopicExists reports that a topic required to be fresh already exists.
// This is a configuration error: the call fails and is not retried.
var ErrTopicExists = errors.New("topic already exists")

// TopicAdmin creates and verifies broker topics and subscriptions. It holds no
// state beyond the client handle, and every operation is idempotent unless
// exclusivity is explicitly requested.
type TopicAdmin struct {
	client *pubsub.Client
	logger zerolog.Logger
}

// NewTopicAdmin wraps an existing Pub/Sub client. The client's lifecycle is
// managed by the caller.
func NewTopicAdmin(client *pubsub.Client, logger zerolog.Logger) (*TopicAdmin, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil")
	}
	return &TopicAdmin{
		client: client,
		logger: logger.With().Str("component", "TopicAdmin").Logger(),
	}, nil
}

// EnsureTopic verifies the topic exists, creating it with the given retention
// when absent. With failIfExists set, a pre-existing topic is a configuration
// error; otherwise the call is an idempotent bootstrap no-op.
func (a *TopicAdmin) EnsureTopic(ctx context.Context, topicID string, retentionDays int, failIfExists bool) error {
	topic := a.client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return fmt.Errorf("failed to check for topic %s: %w", topicID, err)
	}
	if exists {
		if failIfExists {
			return fmt.Errorf("topic %q: %w", topicID, ErrTopicExists)
		}
		a.logger.Info().Str("topic_id", topicID).Msg("Topic already exists.")
		return nil
	}

	retention := time.Duration(retentionDays) * 24 * time.Hour
	a.logger.Info().Str("topic_id", topicID).Dur("retention", retention).Msg("Creating topic...")
	_, err = a.client.CreateTopicWithConfig(ctx, topicID, &pubsub.TopicConfig{
		RetentionDuration: retention,
	})
	if err != nil {
		// Another process can win the create race; that only matters when
		// exclusivity was requested.
		if status.Code(err) == codes.AlreadyExists {
			if failIfExists {
				return fmt.Errorf("topic %q: %w", topicID, ErrTopicExists)
			}
			a.logger.Info().Str("topic_id", topicID).Msg("Topic created concurrently by another process.")
			return nil
		}
		return fmt.Errorf("failed to create topic %s: %w", topicID, err)
	}
	a.logger.Info().Str("topic_id", topicID).Msg("Topic created.")
	return nil
}

// EnsureSubscription verifies a subscription on the given topic, creating it
// when absent. Idempotent: an existing subscription is returned as-is.
func (a *TopicAdmin) EnsureSubscription(ctx context.Context, subID, topicID string) (*pubsub.Subscription, error) {
	sub := a.client.Subscription(subID)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for subscription %s: %w", subID, err)
	}
	if exists {
		return sub, nil
	}

	a.logger.Info().Str("subscription_id", subID).Str("topic_id", topicID).Msg("Creating subscription...")
	sub, err = a.client.CreateSubscription(ctx, subID, pubsub.SubscriptionConfig{
		Topic: a.client.Topic(topicID),
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return a.client.Subscription(subID), nil
		}
		return nil, fmt.Errorf("failed to create subscription %s: %w", subID, err)
	}
	return sub, nil
}
