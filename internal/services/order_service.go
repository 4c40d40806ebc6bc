package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/dishpatch/api/internal/domain"
	"github.com/dishpatch/api/internal/repositories"
)

const (
	orderEventPlaced        = "order.placed"
	orderEventStatusChanged = "order.status.changed"
	orderEventSettled       = "order.settled"
	orderEventRefunded      = "order.refunded"

	orderIDPrefix       = "ord_"
	transactionIDPrefix = "txn_"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrInvalidTransition indicates the target status is not reachable from the current one.
	ErrInvalidTransition = errors.New("order: invalid status transition")
	// ErrTerminalState indicates the order already reached a terminal status.
	ErrTerminalState = errors.New("order: terminal state violation")
	// ErrStaleTransition indicates the transition lost a concurrency race or carried an old timestamp.
	ErrStaleTransition = errors.New("order: stale transition")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders         repositories.OrderRepository
	Tracking       repositories.TrackingRepository
	Transactions   repositories.TransactionRepository
	Counters       repositories.CounterRepository
	UnitOfWork     repositories.UnitOfWork
	Policy         *NotificationPolicy
	Events         OrderEventPublisher
	Notifications  NotificationPublisher
	CommissionRate float64
	Clock          func() time.Time
	IDGenerator    func() string
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders        repositories.OrderRepository
	tracking      repositories.TrackingRepository
	transactions  repositories.TransactionRepository
	counters      repositories.CounterRepository
	unitOfWork    repositories.UnitOfWork
	policy        *NotificationPolicy
	events        OrderEventPublisher
	notifications NotificationPublisher
	defaultRate   float64
	clock         func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Tracking == nil {
		return nil, errors.New("order service: tracking repository is required")
	}
	if deps.Transactions == nil {
		return nil, errors.New("order service: transaction repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	rate := deps.CommissionRate
	if rate == 0 {
		rate = domain.DefaultCommissionRate
	}
	if rate < 0 || rate >= 1 {
		return nil, fmt.Errorf("order service: default commission rate %v is out of range", rate)
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

	policy := deps.Policy
	if policy == nil {
		policy = NewNotificationPolicy(NotificationPolicySettings{PushEnabled: true})
	}

	return &orderService{
		orders:        deps.Orders,
		tracking:      deps.Tracking,
		transactions:  deps.Transactions,
		counters:      deps.Counters,
		unitOfWork:    unit,
		policy:        policy,
		events:        deps.Events,
		notifications: deps.Notifications,
		defaultRate:   rate,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	restaurantID := strings.TrimSpace(cmd.RestaurantID)
	if restaurantID == "" {
		return Order{}, fmt.Errorf("%w: restaurant id is required", ErrOrderInvalidInput)
	}
	customerID := strings.TrimSpace(cmd.CustomerID)
	if customerID == "" {
		return Order{}, fmt.Errorf("%w: customer id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: order must contain at least one item", ErrOrderInvalidInput)
	}
	if !cmd.PaymentMethod.Valid() {
		return Order{}, fmt.Errorf("%w: unknown payment method %q", ErrOrderInvalidInput, cmd.PaymentMethod)
	}

	rate := s.defaultRate
	if cmd.CommissionRate != nil {
		rate = *cmd.CommissionRate
	}

	// Commission terms are frozen here; later rate changes never touch placed orders.
	commission, err := domain.ComputeCommission(cmd.Subtotal, cmd.DeliveryFee, rate)
	if err != nil {
		return Order{}, err
	}

	now := s.now()
	number, err := s.generateOrderNumber(ctx, now)
	if err != nil {
		return Order{}, err
	}

	actorID := strings.TrimSpace(cmd.ActorID)
	if actorID == "" {
		actorID = customerID
	}

	order := Order{
		ID:            s.nextOrderID(),
		OrderNumber:   number,
		RestaurantID:  restaurantID,
		CustomerID:    customerID,
		Items:         append([]OrderLineItem(nil), cmd.Items...),
		Status:        domain.OrderStatusPending,
		Subtotal:      commission.Subtotal,
		DeliveryFee:   commission.DeliveryFee,
		Total:         commission.Total(),
		PaymentMethod: cmd.PaymentMethod,
		Contact:       cmd.Contact,
		Commission:    commission,
		StatusHistory: []StatusChange{
			domain.NewStatusChange(domain.OrderStatusPending, domain.ActorCustomer, now),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	tracking := OrderTracking{
		OrderID:        order.ID,
		RestaurantID:   restaurantID,
		DeliveryStatus: domain.DeliveryNotStarted,
		Timestamps: map[string]time.Time{
			domain.MilestoneKey(domain.OrderStatusPending): now,
		},
		EstimatedTimes: cmd.Estimates,
		StatusUpdates: []StatusUpdate{
			{
				Status:      domain.OrderStatusPending,
				Description: domain.StatusDescription(domain.OrderStatusPending),
				Actor:       domain.ActorCustomer,
				Timestamp:   now,
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.tracking.Insert(txCtx, tracking); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventPlaced,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		RestaurantID:  order.RestaurantID,
		CurrentStatus: string(order.Status),
		ActorID:       actorID,
		OccurredAt:    now,
	})
	s.dispatchNotifications(ctx, order, nil, now)

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) ([]Order, error) {
	restaurantID := strings.TrimSpace(filter.RestaurantID)
	if restaurantID == "" {
		return nil, fmt.Errorf("%w: restaurant id is required", ErrOrderInvalidInput)
	}

	window := repositories.TimeWindow{Start: filter.Start.UTC(), End: filter.End.UTC()}
	if filter.End.IsZero() {
		window.End = s.now()
	}
	if filter.Start.IsZero() {
		window.Start = time.Unix(0, 0).UTC()
	}
	orders, err := s.orders.ListByRestaurant(ctx, restaurantID, window)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return orders, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	return s.transition(ctx, cmd, "")
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	return s.transition(ctx, OrderStatusTransitionCommand{
		OrderID:      cmd.OrderID,
		TargetStatus: domain.OrderStatusCancelled,
		Actor:        cmd.Actor,
		ActorID:      cmd.ActorID,
		OccurredAt:   cmd.OccurredAt,
		Note:         cmd.Reason,
	}, strings.TrimSpace(cmd.Reason))
}

func (s *orderService) Refund(ctx context.Context, cmd RefundOrderCommand) (Order, error) {
	return s.transition(ctx, OrderStatusTransitionCommand{
		OrderID:      cmd.OrderID,
		TargetStatus: domain.OrderStatusRefunded,
		Actor:        cmd.Actor,
		ActorID:      cmd.ActorID,
		OccurredAt:   cmd.OccurredAt,
		Note:         cmd.Reason,
	}, strings.TrimSpace(cmd.Reason))
}

func (s *orderService) transition(ctx context.Context, cmd OrderStatusTransitionCommand, reason string) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := cmd.TargetStatus
	if !domain.IsValidStatus(target) {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, target)
	}
	actor := cmd.Actor
	if !actor.Valid() {
		return Order{}, fmt.Errorf("%w: unknown actor %q", ErrOrderInvalidInput, actor)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if domain.IsTerminalStatus(order.Status) {
		return Order{}, fmt.Errorf("%w: order %s is %s", ErrTerminalState, order.ID, order.Status)
	}
	if !domain.CanTransition(order.Status, target) {
		return Order{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, order.Status, target)
	}

	occurredAt := cmd.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now()
	} else {
		occurredAt = occurredAt.UTC()
	}
	if last := order.LastTransitionAt(); !last.IsZero() && occurredAt.Before(last) {
		return Order{}, fmt.Errorf("%w: timestamp %s is older than last transition %s",
			ErrStaleTransition, occurredAt.Format(time.RFC3339Nano), last.Format(time.RFC3339Nano))
	}

	basis := repositories.TransitionBasis{
		Status:        order.Status,
		HistoryLength: len(order.StatusHistory),
	}

	previous := order.Status
	updated := order
	updated.Status = target
	updated.StatusHistory = append(append([]StatusChange(nil), order.StatusHistory...),
		domain.NewStatusChange(target, actor, occurredAt))
	updated.UpdatedAt = occurredAt
	switch target {
	case domain.OrderStatusDelivered:
		updated.DeliveredAt = &occurredAt
	case domain.OrderStatusCancelled:
		updated.CancelledAt = &occurredAt
		if reason != "" {
			updated.CancelReason = &reason
		}
	}

	trackingUpdate, driver, err := s.buildTrackingUpdate(ctx, updated, previous, cmd, occurredAt)
	if err != nil {
		return Order{}, err
	}

	var settlement *Transaction
	switch target {
	case domain.OrderStatusDelivered:
		settlement = s.buildSettlement(updated, occurredAt)
	case domain.OrderStatusRefunded:
		settlement = s.buildRefund(updated, occurredAt)
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.ApplyTransition(txCtx, updated, basis); err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.tracking.RecordTransition(txCtx, updated.ID, trackingUpdate); err != nil {
			return s.mapRepositoryError(err)
		}
		if settlement != nil {
			if err := s.transactions.Insert(txCtx, *settlement); err != nil {
				return s.mapRepositoryError(err)
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	eventType := orderEventStatusChanged
	switch target {
	case domain.OrderStatusDelivered:
		eventType = orderEventSettled
	case domain.OrderStatusRefunded:
		eventType = orderEventRefunded
	}
	metadata := map[string]any{}
	if reason != "" {
		metadata["reason"] = reason
	}
	if settlement != nil {
		metadata["transactionId"] = settlement.ID
	}
	s.publishEvent(ctx, OrderEvent{
		Type:           eventType,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		RestaurantID:   updated.RestaurantID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(updated.Status),
		ActorID:        strings.TrimSpace(cmd.ActorID),
		OccurredAt:     occurredAt,
		Metadata:       metadata,
	})
	s.dispatchNotifications(ctx, updated, driver, occurredAt)

	return updated, nil
}

// buildTrackingUpdate projects the accepted transition onto the tracking record.
// Milestone timestamps are first-write-wins, so only absent keys are carried.
func (s *orderService) buildTrackingUpdate(ctx context.Context, order Order, previous domain.OrderStatus, cmd OrderStatusTransitionCommand, occurredAt time.Time) (repositories.TrackingTransitionUpdate, *DeliveryDriver, error) {
	tracking, err := s.tracking.FindByOrderID(ctx, order.ID)
	if err != nil {
		return repositories.TrackingTransitionUpdate{}, nil, s.mapRepositoryError(err)
	}

	var metadata map[string]any
	if actorID := strings.TrimSpace(cmd.ActorID); actorID != "" {
		metadata = map[string]any{"actorId": actorID}
	}
	if note := strings.TrimSpace(cmd.Note); note != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata["note"] = note
	}

	update := repositories.TrackingTransitionUpdate{
		DeliveryStatus: domain.DeliveryStatusFor(order.Status),
		Timestamps:     map[string]time.Time{},
		StatusUpdate: StatusUpdate{
			Status:      order.Status,
			Description: domain.StatusDescription(order.Status),
			Actor:       cmd.Actor,
			Metadata:    metadata,
			Timestamp:   occurredAt,
		},
		UpdatedAt: occurredAt,
	}

	milestone := domain.MilestoneKey(order.Status)
	if _, recorded := tracking.Timestamps[milestone]; !recorded {
		update.Timestamps[milestone] = occurredAt
	}

	actual := tracking.ActualTimes
	if previous == domain.OrderStatusPreparing && order.Status == domain.OrderStatusReady {
		if started, ok := tracking.Timestamps[domain.MilestoneKey(domain.OrderStatusPreparing)]; ok {
			elapsed := occurredAt.Sub(started)
			actual.Preparation = &elapsed
		}
	}
	if order.Status == domain.OrderStatusDelivered {
		if pickedUp, ok := tracking.Timestamps[domain.MilestoneKey(domain.OrderStatusPickedUp)]; ok {
			elapsed := occurredAt.Sub(pickedUp)
			actual.Delivery = &elapsed
		}
	}
	update.ActualTimes = actual

	return update, tracking.Driver, nil
}

func (s *orderService) buildSettlement(order Order, occurredAt time.Time) *Transaction {
	return &Transaction{
		ID:               s.nextTransactionID(),
		OrderID:          order.ID,
		RestaurantID:     order.RestaurantID,
		Type:             domain.TransactionSettlement,
		Amount:           order.Commission.Total(),
		CommissionAmount: order.Commission.CommissionAmount,
		RestaurantAmount: order.Commission.RestaurantEarning,
		PaymentMethod:    order.PaymentMethod,
		Status:           domain.TransactionCompleted,
		CreatedAt:        occurredAt,
	}
}

// buildRefund produces the compensating transaction; the order's frozen
// commission record is never recomputed.
func (s *orderService) buildRefund(order Order, occurredAt time.Time) *Transaction {
	return &Transaction{
		ID:               s.nextTransactionID(),
		OrderID:          order.ID,
		RestaurantID:     order.RestaurantID,
		Type:             domain.TransactionRefund,
		Amount:           order.Commission.Total(),
		CommissionAmount: order.Commission.CommissionAmount,
		RestaurantAmount: order.Commission.RestaurantEarning,
		PaymentMethod:    order.PaymentMethod,
		Status:           domain.TransactionCompleted,
		CreatedAt:        occurredAt,
	}
}

// dispatchNotifications is fire-and-forget: failures are logged and recorded
// on the tracking ledger, never surfaced to the caller.
func (s *orderService) dispatchNotifications(ctx context.Context, order Order, driver *DeliveryDriver, occurredAt time.Time) {
	intents, records := s.policy.Decide(order, driver, occurredAt)

	for i, intent := range intents {
		if s.notifications == nil {
			records[i].Sent = false
			records[i].Reason = "no publisher configured"
			continue
		}
		if err := s.notifications.PublishNotification(ctx, intent); err != nil {
			records[i].Sent = false
			records[i].Reason = "publish failed"
			s.logger(ctx, "order.notification.publish.failed", map[string]any{
				"order":   order.ID,
				"channel": string(intent.Channel),
				"error":   err.Error(),
			})
		}
	}

	if len(records) == 0 {
		return
	}
	if err := s.tracking.AppendNotifications(ctx, order.ID, records); err != nil {
		s.logger(ctx, "order.notification.record.failed", map[string]any{
			"order": order.ID,
			"error": err.Error(),
		})
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrStaleTransition, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, "orders", 1)
	if err != nil {
		return "", s.mapRepositoryError(err)
	}
	return fmt.Sprintf("DP-%04d-%06d", now.Year(), seq), nil
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}

func (s *orderService) nextTransactionID() string {
	return transactionIDPrefix + s.newID()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
