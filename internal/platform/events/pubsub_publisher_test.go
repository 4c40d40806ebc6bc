package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/dishpatch/api/internal/services"
)

func newTestClient(t *testing.T, srv *pstest.Server) *pubsub.Client {
	t.Helper()
	ctx := context.Background()
	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func TestPubSubOrderEventPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()
	client := newTestClient(t, srv)

	topic, err := client.CreateTopic(ctx, "order-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubOrderEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubOrderEventPublisher: %v", err)
	}

	occurredAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	event := services.OrderEvent{
		Type:           "order.status.changed",
		OrderID:        "ord_test",
		OrderNumber:    "DP-2026-000042",
		RestaurantID:   "rest_1",
		PreviousStatus: "pending",
		CurrentStatus:  "confirmed",
		ActorID:        "rest_1",
		OccurredAt:     occurredAt,
	}

	if err := publisher.PublishOrderEvent(ctx, event); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload services.OrderEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OrderID != event.OrderID || payload.CurrentStatus != event.CurrentStatus {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["type"]; attr != "order.status.changed" {
		t.Fatalf("expected type attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["restaurantId"]; attr != "rest_1" {
		t.Fatalf("expected restaurantId attribute, got %q", attr)
	}
}

func TestPubSubNotificationPublisherPublishesIntent(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()
	client := newTestClient(t, srv)

	topic, err := client.CreateTopic(ctx, "notification-intents")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubNotificationPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubNotificationPublisher: %v", err)
	}

	intent := services.NotificationIntent{
		OrderID:     "ord_test",
		OrderNumber: "DP-2026-000042",
		Status:      "confirmed",
		Channel:     "push",
		Template:    "order_confirmed",
		Recipient:   "tok_abc",
		OccurredAt:  time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}

	if err := publisher.PublishNotification(ctx, intent); err != nil {
		t.Fatalf("PublishNotification: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if attr := messages[0].Attributes["channel"]; attr != "push" {
		t.Fatalf("expected channel attribute, got %q", attr)
	}

	var payload services.NotificationIntent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Recipient != "tok_abc" || payload.Template != "order_confirmed" {
		t.Fatalf("unexpected payload %#v", payload)
	}
}

func TestNewPublishersRequireTopic(t *testing.T) {
	if _, err := NewPubSubOrderEventPublisher(nil); err == nil {
		t.Fatal("expected error for nil topic")
	}
	if _, err := NewPubSubNotificationPublisher(nil); err == nil {
		t.Fatal("expected error for nil topic")
	}
}
