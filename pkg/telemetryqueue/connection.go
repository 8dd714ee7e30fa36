package telemetryqueue

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// Default connection settings. The Pub/Sub client itself honours
// PUBSUB_EMULATOR_HOST, which is how local deployments point the coordinator
// at a broker on localhost.
const (
	ProjectIDEnvVar = "GCP_PROJECT_ID"

	// DefaultProjectID is used when no project is configured, which only makes
	// sense against a local emulator.
	DefaultProjectID = "local-telemetry"
)

// ProjectIDFromEnv resolves the broker project from the environment, falling
// back to the local-emulator default.
func ProjectIDFromEnv() string {
	if id := os.Getenv(ProjectIDEnvVar); id != "" {
		return id
	}
	return DefaultProjectID
}

// NewPubsubClient creates a Pub/Sub client suitable for production use. It
// uses Application Default Credentials unless a credentials file is provided.
func NewPubsubClient(ctx context.Context, projectID string, credentialsFile string, logger zerolog.Logger) (*pubsub.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
		logger.Info().Str("credentials_file", credentialsFile).Msg("Using specified credentials file for Pub/Sub client.")
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}
	logger.Info().Str("project_id", projectID).Msg("Pub/Sub client created successfully.")
	return client, nil
}
