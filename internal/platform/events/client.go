package events

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/dishpatch/api/internal/platform/config"
)

// NewClient dials Pub/Sub using the configured project, pointing at the
// emulator when one is configured.
func NewClient(ctx context.Context, cfg config.PubSubConfig, opts ...option.ClientOption) (*pubsub.Client, error) {
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		return nil, errors.New("pubsub client: project id is required")
	}

	if host := strings.TrimSpace(cfg.EmulatorHost); host != "" {
		opts = append(opts,
			option.WithEndpoint(host),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	return client, nil
}

// EnsureTopic returns the named topic, creating it when it does not exist.
// Production topics are provisioned out of band; this only matters for the
// emulator and local development.
func EnsureTopic(ctx context.Context, client *pubsub.Client, name string) (*pubsub.Topic, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("pubsub topic: name is required")
	}

	topic := client.Topic(name)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("pubsub topic %s: %w", name, err)
	}
	if exists {
		return topic, nil
	}

	topic, err = client.CreateTopic(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("pubsub create topic %s: %w", name, err)
	}
	return topic, nil
}
