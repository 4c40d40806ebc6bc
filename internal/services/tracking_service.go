package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/dishpatch/api/internal/domain"
	"github.com/dishpatch/api/internal/repositories"
)

const interactionIDPrefix = "cin_"

var (
	// ErrTrackingInvalidInput signals the caller provided invalid data.
	ErrTrackingInvalidInput = errors.New("tracking: invalid input")
	// ErrTrackingNotFound indicates no tracking record exists for the order.
	ErrTrackingNotFound = errors.New("tracking: not found")
	// ErrTrackingConflict indicates a concurrent writer won the race.
	ErrTrackingConflict = errors.New("tracking: conflict")
	// ErrDriverAlreadyAssigned indicates the order already has an authoritative driver.
	ErrDriverAlreadyAssigned = errors.New("tracking: driver already assigned")
	// ErrInteractionNotFound indicates the referenced interaction is missing or already resolved.
	ErrInteractionNotFound = errors.New("tracking: interaction not found")
)

// TrackingServiceDeps bundles collaborators required to construct the tracking service.
type TrackingServiceDeps struct {
	Tracking    repositories.TrackingRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type trackingService struct {
	tracking repositories.TrackingRepository
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewTrackingService wires dependencies into a concrete TrackingService implementation.
func NewTrackingService(deps TrackingServiceDeps) (TrackingService, error) {
	if deps.Tracking == nil {
		return nil, errors.New("tracking service: tracking repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &trackingService{
		tracking: deps.Tracking,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *trackingService) GetTracking(ctx context.Context, orderID string) (OrderTracking, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return OrderTracking{}, fmt.Errorf("%w: order id is required", ErrTrackingInvalidInput)
	}

	tracking, err := s.tracking.FindByOrderID(ctx, orderID)
	if err != nil {
		return OrderTracking{}, s.mapRepositoryError(err)
	}
	return tracking, nil
}

func (s *trackingService) AssignDriver(ctx context.Context, cmd AssignDriverCommand) (OrderTracking, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return OrderTracking{}, fmt.Errorf("%w: order id is required", ErrTrackingInvalidInput)
	}
	driver := cmd.Driver
	driver.ID = strings.TrimSpace(driver.ID)
	driver.Name = strings.TrimSpace(driver.Name)
	if driver.ID == "" {
		return OrderTracking{}, fmt.Errorf("%w: driver id is required", ErrTrackingInvalidInput)
	}
	if driver.Name == "" {
		return OrderTracking{}, fmt.Errorf("%w: driver name is required", ErrTrackingInvalidInput)
	}

	tracking, err := s.tracking.FindByOrderID(ctx, orderID)
	if err != nil {
		return OrderTracking{}, s.mapRepositoryError(err)
	}
	if tracking.Driver != nil {
		return OrderTracking{}, fmt.Errorf("%w: order %s has driver %s", ErrDriverAlreadyAssigned, orderID, tracking.Driver.ID)
	}

	now := s.now()
	if err := s.tracking.SetDriver(ctx, orderID, &driver, now); err != nil {
		// The write re-checks the driver field; a conflict means another
		// assign won after our snapshot read.
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			return OrderTracking{}, fmt.Errorf("%w: order %s", ErrDriverAlreadyAssigned, orderID)
		}
		return OrderTracking{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "tracking.driver.assigned", map[string]any{
		"order":  orderID,
		"driver": driver.ID,
	})

	tracking.Driver = &driver
	tracking.UpdatedAt = now
	return tracking, nil
}

func (s *trackingService) UnassignDriver(ctx context.Context, cmd UnassignDriverCommand) (OrderTracking, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return OrderTracking{}, fmt.Errorf("%w: order id is required", ErrTrackingInvalidInput)
	}

	tracking, err := s.tracking.FindByOrderID(ctx, orderID)
	if err != nil {
		return OrderTracking{}, s.mapRepositoryError(err)
	}
	if tracking.Driver == nil {
		return OrderTracking{}, fmt.Errorf("%w: order %s has no driver assigned", ErrTrackingInvalidInput, orderID)
	}

	now := s.now()
	if err := s.tracking.SetDriver(ctx, orderID, nil, now); err != nil {
		return OrderTracking{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "tracking.driver.unassigned", map[string]any{
		"order":  orderID,
		"driver": tracking.Driver.ID,
		"reason": strings.TrimSpace(cmd.Reason),
	})

	tracking.Driver = nil
	tracking.UpdatedAt = now
	return tracking, nil
}

func (s *trackingService) AppendLocation(ctx context.Context, cmd AppendLocationCommand) (OrderTracking, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return OrderTracking{}, fmt.Errorf("%w: order id is required", ErrTrackingInvalidInput)
	}
	if cmd.Latitude < -90 || cmd.Latitude > 90 || cmd.Longitude < -180 || cmd.Longitude > 180 {
		return OrderTracking{}, fmt.Errorf("%w: coordinates out of range", ErrTrackingInvalidInput)
	}

	tracking, err := s.tracking.FindByOrderID(ctx, orderID)
	if err != nil {
		return OrderTracking{}, s.mapRepositoryError(err)
	}

	recordedAt := cmd.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = s.now()
	} else {
		recordedAt = recordedAt.UTC()
	}

	sample := LocationSample{
		Lat:       cmd.Latitude,
		Lng:       cmd.Longitude,
		Status:    tracking.DeliveryStatus,
		Timestamp: recordedAt,
	}
	if err := s.tracking.AppendLocation(ctx, orderID, sample); err != nil {
		return OrderTracking{}, s.mapRepositoryError(err)
	}

	tracking.LocationHistory = append(tracking.LocationHistory, sample)
	tracking.UpdatedAt = recordedAt
	return tracking, nil
}

func (s *trackingService) RequestInteraction(ctx context.Context, cmd RequestInteractionCommand) (CustomerInteraction, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return CustomerInteraction{}, fmt.Errorf("%w: order id is required", ErrTrackingInvalidInput)
	}
	switch cmd.Type {
	case domain.InteractionCallDriver, domain.InteractionCancelRequest:
	default:
		return CustomerInteraction{}, fmt.Errorf("%w: unknown interaction type %q", ErrTrackingInvalidInput, cmd.Type)
	}

	interaction := CustomerInteraction{
		ID:        interactionIDPrefix + s.newID(),
		Type:      cmd.Type,
		Outcome:   domain.InteractionPending,
		CreatedAt: s.now(),
	}
	if err := s.tracking.AppendInteraction(ctx, orderID, interaction); err != nil {
		return CustomerInteraction{}, s.mapRepositoryError(err)
	}
	return interaction, nil
}

func (s *trackingService) ResolveInteraction(ctx context.Context, cmd ResolveInteractionCommand) (OrderTracking, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return OrderTracking{}, fmt.Errorf("%w: order id is required", ErrTrackingInvalidInput)
	}
	interactionID := strings.TrimSpace(cmd.InteractionID)
	if interactionID == "" {
		return OrderTracking{}, fmt.Errorf("%w: interaction id is required", ErrTrackingInvalidInput)
	}
	switch cmd.Outcome {
	case domain.InteractionApproved, domain.InteractionRejected:
	default:
		return OrderTracking{}, fmt.Errorf("%w: outcome must be approved or rejected", ErrTrackingInvalidInput)
	}

	if err := s.tracking.ResolveInteraction(ctx, orderID, interactionID, cmd.Outcome, s.now()); err != nil {
		return OrderTracking{}, s.mapInteractionError(err)
	}

	tracking, err := s.tracking.FindByOrderID(ctx, orderID)
	if err != nil {
		return OrderTracking{}, s.mapRepositoryError(err)
	}
	return tracking, nil
}

func (s *trackingService) WatchTracking(ctx context.Context, orderID string) (<-chan OrderTracking, func(), error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, nil, fmt.Errorf("%w: order id is required", ErrTrackingInvalidInput)
	}

	updates, stop, err := s.tracking.Watch(ctx, orderID)
	if err != nil {
		return nil, nil, s.mapRepositoryError(err)
	}
	return updates, stop, nil
}

func (s *trackingService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrTrackingNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrTrackingConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("tracking: repository unavailable: %w", err)
		}
	}

	return err
}

// mapInteractionError is like mapRepositoryError but a missing document
// during resolution means the interaction, not the order, was not found.
func (s *trackingService) mapInteractionError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrInteractionNotFound, err)
	}
	return s.mapRepositoryError(err)
}

func (s *trackingService) now() time.Time {
	return s.clock()
}
