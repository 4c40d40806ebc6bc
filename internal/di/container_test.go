package di

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dishpatch/api/internal/platform/config"
	"github.com/dishpatch/api/internal/platform/observability"
)

func TestNewContainerRequiresRegistry(t *testing.T) {
	if _, err := NewContainer(context.Background(), config.Config{}, nil, Publishers{}); err == nil {
		t.Fatal("expected error for nil registry")
	}
}

func TestServiceLoggerSanitizesIdentifierFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := observability.WithLogger(context.Background(), zap.New(core))

	logFn := serviceLogger()
	logFn(ctx, "tracking.driver.assigned", map[string]any{
		"order":  "ord_1\x00\x1b[31m",
		"driver": strings.Repeat("d", 80),
		"reason": "free\x00form",
	})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()

	order, _ := fields["order"].(string)
	if strings.ContainsRune(order, '\x00') || strings.ContainsRune(order, '\x1b') {
		t.Fatalf("order field kept control characters: %q", order)
	}
	driver, _ := fields["driver"].(string)
	if len(driver) != 64 {
		t.Fatalf("driver field length = %d, want 64", len(driver))
	}
	// Non-identifier fields pass through untouched.
	if reason, _ := fields["reason"].(string); reason != "free\x00form" {
		t.Fatalf("reason field = %q, want raw value", reason)
	}
}
