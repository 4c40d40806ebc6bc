package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/dishpatch/api/internal/domain"
	"github.com/dishpatch/api/internal/repositories"
)

// ErrFinancialsInvalidInput signals an unusable reporting request.
var ErrFinancialsInvalidInput = errors.New("financials: invalid input")

// FinancialsServiceDeps bundles collaborators required to construct the financials service.
type FinancialsServiceDeps struct {
	Orders       repositories.OrderRepository
	Transactions repositories.TransactionRepository
	Clock        func() time.Time
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type financialsService struct {
	orders       repositories.OrderRepository
	transactions repositories.TransactionRepository
	clock        func() time.Time
	logger       func(context.Context, string, map[string]any)
}

// NewFinancialsService wires dependencies into a concrete FinancialsService implementation.
func NewFinancialsService(deps FinancialsServiceDeps) (FinancialsService, error) {
	if deps.Orders == nil {
		return nil, errors.New("financials service: order repository is required")
	}
	if deps.Transactions == nil {
		return nil, errors.New("financials service: transaction repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &financialsService{
		orders:       deps.Orders,
		transactions: deps.Transactions,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Report folds the restaurant's orders and transactions over [Start, End)
// into a financial snapshot. The fold is read-only; it may run while new
// orders are being written.
func (s *financialsService) Report(ctx context.Context, cmd FinancialsReportCommand) (RestaurantFinancials, error) {
	restaurantID := strings.TrimSpace(cmd.RestaurantID)
	if restaurantID == "" {
		return RestaurantFinancials{}, fmt.Errorf("%w: restaurant id is required", ErrFinancialsInvalidInput)
	}
	if cmd.Start.IsZero() || cmd.End.IsZero() {
		return RestaurantFinancials{}, fmt.Errorf("%w: start and end are required", ErrFinancialsInvalidInput)
	}
	if !cmd.Start.Before(cmd.End) {
		return RestaurantFinancials{}, fmt.Errorf("%w: start must precede end", ErrFinancialsInvalidInput)
	}

	window := repositories.TimeWindow{Start: cmd.Start.UTC(), End: cmd.End.UTC()}

	orders, err := s.orders.ListByRestaurant(ctx, restaurantID, window)
	if err != nil {
		return RestaurantFinancials{}, s.mapRepositoryError(err)
	}
	transactions, err := s.transactions.ListByRestaurant(ctx, restaurantID, window)
	if err != nil {
		return RestaurantFinancials{}, s.mapRepositoryError(err)
	}

	report := domain.AggregateFinancials(restaurantID, orders, transactions, window.Start, window.End)
	report.GeneratedAt = s.clock()

	if len(report.SkippedOrders) > 0 {
		s.logger(ctx, "financials.orders.skipped", map[string]any{
			"restaurant": restaurantID,
			"orders":     report.SkippedOrders,
			"count":      len(report.SkippedOrders),
		})
	}

	return report, nil
}

func (s *financialsService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		return fmt.Errorf("financials: repository unavailable: %w", err)
	}
	return err
}
