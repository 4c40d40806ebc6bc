package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dishpatch/api/internal/platform/config"
	"github.com/dishpatch/api/internal/platform/observability"
	"github.com/dishpatch/api/internal/repositories"
	"github.com/dishpatch/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders     services.OrderService
	Tracking   services.TrackingService
	Financials services.FinancialsService
}

// Publishers carries the asynchronous fan-out dependencies supplied by the caller.
// Both are optional; a nil publisher degrades to recording the drop.
type Publishers struct {
	Events        services.OrderEventPublisher
	Notifications services.NotificationPublisher
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides the
// Firestore-backed registry, while tests can supply in-memory registries.
func NewContainer(_ context.Context, cfg config.Config, reg repositories.Registry, pubs Publishers) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(reg, cfg, pubs)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(reg repositories.Registry, cfg config.Config, pubs Publishers) (Services, error) {
	var svc Services

	logger := serviceLogger()

	trackingSvc, err := services.NewTrackingService(services.TrackingServiceDeps{
		Tracking: reg.Tracking(),
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build tracking service: %w", err)
	}
	svc.Tracking = trackingSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:       reg.Orders(),
		Tracking:     reg.Tracking(),
		Transactions: reg.Transactions(),
		Counters:     reg.Counters(),
		UnitOfWork:   reg,
		Policy: services.NewNotificationPolicy(services.NotificationPolicySettings{
			SMSSenderID: cfg.Notifications.SMSSenderID,
			PushEnabled: cfg.Notifications.PushEnabled,
		}),
		Events:         pubs.Events,
		Notifications:  pubs.Notifications,
		CommissionRate: cfg.Commission.DefaultRate,
		Clock:          time.Now,
		Logger:         logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	financialsSvc, err := services.NewFinancialsService(services.FinancialsServiceDeps{
		Orders:       reg.Orders(),
		Transactions: reg.Transactions(),
		Clock:        time.Now,
		Logger:       logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build financials service: %w", err)
	}
	svc.Financials = financialsSvc

	return svc, nil
}

// identifierLogKeys marks service log fields whose values are caller-supplied
// identifiers and must be sanitized before they reach the log stream.
var identifierLogKeys = map[string]bool{
	"order":      true,
	"restaurant": true,
	"driver":     true,
}

// serviceLogger emits service-level events through the request-scoped zap
// logger so entries keep their request ID and trace fields.
func serviceLogger() func(ctx context.Context, event string, fields map[string]any) {
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := observability.FromContext(ctx)
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			if s, ok := value.(string); ok && identifierLogKeys[key] {
				value = observability.SanitizeActorID(s)
			}
			zapFields = append(zapFields, zap.Any(key, value))
		}
		logger.Info(event, zapFields...)
	}
}
