package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dishpatch/api/internal/di"
	"github.com/dishpatch/api/internal/handlers"
	"github.com/dishpatch/api/internal/platform/config"
	"github.com/dishpatch/api/internal/platform/events"
	pfirestore "github.com/dishpatch/api/internal/platform/firestore"
	"github.com/dishpatch/api/internal/platform/observability"
	firestoreRepo "github.com/dishpatch/api/internal/repositories/firestore"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	registry, err := firestoreRepo.NewRegistry(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	pubsubClient, err := events.NewClient(ctx, cfg.PubSub)
	if err != nil {
		logger.Fatal("failed to initialise pubsub client", zap.Error(err))
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("pubsub client close error", zap.Error(err))
		}
	}()

	orderEventsTopic, err := events.EnsureTopic(ctx, pubsubClient, cfg.PubSub.OrderEventsTopic)
	if err != nil {
		logger.Fatal("failed to prepare order events topic", zap.Error(err))
	}
	notificationsTopic, err := events.EnsureTopic(ctx, pubsubClient, cfg.PubSub.NotificationsTopic)
	if err != nil {
		logger.Fatal("failed to prepare notifications topic", zap.Error(err))
	}

	orderEventsPublisher, err := events.NewPubSubOrderEventPublisher(orderEventsTopic)
	if err != nil {
		logger.Fatal("failed to build order event publisher", zap.Error(err))
	}
	notificationsPublisher, err := events.NewPubSubNotificationPublisher(notificationsTopic)
	if err != nil {
		logger.Fatal("failed to build notification publisher", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, registry, di.Publishers{
		Events:        orderEventsPublisher,
		Notifications: notificationsPublisher,
	})
	if err != nil {
		logger.Fatal("failed to build service container", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	orderHandlers := handlers.NewOrderHandlers(container.Services.Orders, cfg.Features)
	trackingHandlers := handlers.NewTrackingHandlers(container.Services.Tracking, cfg.Features, cfg.Notifications)
	financialsHandlers := handlers.NewFinancialsHandlers(container.Services.Financials)
	healthHandlers := handlers.NewHealthHandlers(func() bool {
		return container.Services.Orders != nil
	})

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.RequestLoggerMiddleware(cfg.Firestore.ProjectID),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithTrackingRoutes(trackingHandlers.Routes),
		handlers.WithRestaurantRoutes(financialsHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("dishpatch api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
