package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	domain "github.com/dishpatch/api/internal/domain"
	"github.com/dishpatch/api/internal/repositories"
)

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string       { return "stub repository error" }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

type stubOrderRepo struct {
	insertFn func(context.Context, domain.Order) error
	findFn   func(context.Context, string) (domain.Order, error)
	applyFn  func(context.Context, domain.Order, repositories.TransitionBasis) error
	listFn   func(context.Context, string, repositories.TimeWindow) ([]domain.Order, error)
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) ApplyTransition(ctx context.Context, order domain.Order, basis repositories.TransitionBasis) error {
	if s.applyFn != nil {
		return s.applyFn(ctx, order, basis)
	}
	return nil
}

func (s *stubOrderRepo) ListByRestaurant(ctx context.Context, restaurantID string, window repositories.TimeWindow) ([]domain.Order, error) {
	if s.listFn != nil {
		return s.listFn(ctx, restaurantID, window)
	}
	return nil, nil
}

type stubTrackingRepo struct {
	insertFn      func(context.Context, domain.OrderTracking) error
	findFn        func(context.Context, string) (domain.OrderTracking, error)
	recordFn      func(context.Context, string, repositories.TrackingTransitionUpdate) error
	setDriverFn   func(context.Context, string, *domain.DeliveryDriver, time.Time) error
	locationFn    func(context.Context, string, domain.LocationSample) error
	interactionFn func(context.Context, string, domain.CustomerInteraction) error
	resolveFn     func(context.Context, string, string, domain.InteractionOutcome, time.Time) error
	notifyFn      func(context.Context, string, []domain.NotificationRecord) error
	watchFn       func(context.Context, string) (<-chan domain.OrderTracking, func(), error)
}

func (s *stubTrackingRepo) Insert(ctx context.Context, tracking domain.OrderTracking) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, tracking)
	}
	return nil
}

func (s *stubTrackingRepo) FindByOrderID(ctx context.Context, orderID string) (domain.OrderTracking, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.OrderTracking{OrderID: orderID, Timestamps: map[string]time.Time{}}, nil
}

func (s *stubTrackingRepo) RecordTransition(ctx context.Context, orderID string, update repositories.TrackingTransitionUpdate) error {
	if s.recordFn != nil {
		return s.recordFn(ctx, orderID, update)
	}
	return nil
}

func (s *stubTrackingRepo) SetDriver(ctx context.Context, orderID string, driver *domain.DeliveryDriver, at time.Time) error {
	if s.setDriverFn != nil {
		return s.setDriverFn(ctx, orderID, driver, at)
	}
	return nil
}

func (s *stubTrackingRepo) AppendLocation(ctx context.Context, orderID string, sample domain.LocationSample) error {
	if s.locationFn != nil {
		return s.locationFn(ctx, orderID, sample)
	}
	return nil
}

func (s *stubTrackingRepo) AppendInteraction(ctx context.Context, orderID string, interaction domain.CustomerInteraction) error {
	if s.interactionFn != nil {
		return s.interactionFn(ctx, orderID, interaction)
	}
	return nil
}

func (s *stubTrackingRepo) ResolveInteraction(ctx context.Context, orderID string, interactionID string, outcome domain.InteractionOutcome, at time.Time) error {
	if s.resolveFn != nil {
		return s.resolveFn(ctx, orderID, interactionID, outcome, at)
	}
	return nil
}

func (s *stubTrackingRepo) AppendNotifications(ctx context.Context, orderID string, records []domain.NotificationRecord) error {
	if s.notifyFn != nil {
		return s.notifyFn(ctx, orderID, records)
	}
	return nil
}

func (s *stubTrackingRepo) Watch(ctx context.Context, orderID string) (<-chan domain.OrderTracking, func(), error) {
	if s.watchFn != nil {
		return s.watchFn(ctx, orderID)
	}
	return nil, nil, errors.New("not implemented")
}

type stubTransactionRepo struct {
	insertFn func(context.Context, domain.Transaction) error
	findFn   func(context.Context, string) (domain.Transaction, error)
	listFn   func(context.Context, string, repositories.TimeWindow) ([]domain.Transaction, error)
}

func (s *stubTransactionRepo) Insert(ctx context.Context, txn domain.Transaction) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, txn)
	}
	return nil
}

func (s *stubTransactionRepo) FindByID(ctx context.Context, txnID string) (domain.Transaction, error) {
	if s.findFn != nil {
		return s.findFn(ctx, txnID)
	}
	return domain.Transaction{}, errors.New("not implemented")
}

func (s *stubTransactionRepo) ListByRestaurant(ctx context.Context, restaurantID string, window repositories.TimeWindow) ([]domain.Transaction, error) {
	if s.listFn != nil {
		return s.listFn(ctx, restaurantID, window)
	}
	return nil, nil
}

type stubCounterRepo struct {
	nextFn func(context.Context, string, int64) (int64, error)
}

func (s *stubCounterRepo) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if s.nextFn != nil {
		return s.nextFn(ctx, counterID, step)
	}
	return 1, nil
}

type captureOrderEvents struct {
	events []OrderEvent
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.events = append(c.events, event)
	return nil
}

type captureNotifications struct {
	intents []NotificationIntent
	err     error
}

func (c *captureNotifications) PublishNotification(_ context.Context, intent NotificationIntent) error {
	if c.err != nil {
		return c.err
	}
	c.intents = append(c.intents, intent)
	return nil
}

type stubUnitOfWork struct {
	runFn func(context.Context, func(context.Context) error) error
}

func (s *stubUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.runFn != nil {
		return s.runFn(ctx, fn)
	}
	return fn(ctx)
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s%04d", prefix, n)
	}
}

func newOrderServiceForTest(t *testing.T, deps OrderServiceDeps) OrderService {
	t.Helper()
	if deps.Orders == nil {
		deps.Orders = &stubOrderRepo{}
	}
	if deps.Tracking == nil {
		deps.Tracking = &stubTrackingRepo{}
	}
	if deps.Transactions == nil {
		deps.Transactions = &stubTransactionRepo{}
	}
	if deps.Counters == nil {
		deps.Counters = &stubCounterRepo{}
	}
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService returned error: %v", err)
	}
	return svc
}

func deliverableOrder(status domain.OrderStatus, at time.Time) domain.Order {
	commission, _ := domain.ComputeCommission(10000, 1000, 0.09)
	return domain.Order{
		ID:            "ord_test",
		OrderNumber:   "DP-2026-000042",
		RestaurantID:  "rest_1",
		CustomerID:    "cust_1",
		Status:        status,
		Subtotal:      commission.Subtotal,
		DeliveryFee:   commission.DeliveryFee,
		Total:         commission.Total(),
		Commission:    commission,
		PaymentMethod: domain.PaymentCashOnDelivery,
		Contact: domain.OrderContact{
			CustomerPhone: "+15550100",
			CustomerEmail: "diner@example.com",
			PushToken:     "tok_abc",
		},
		StatusHistory: []domain.StatusChange{
			domain.NewStatusChange(status, domain.ActorSystem, at),
		},
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func TestOrderServicePlaceOrder(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	var insertedOrder *domain.Order
	var insertedTracking *domain.OrderTracking
	var recordedNotifications []domain.NotificationRecord
	events := &captureOrderEvents{}
	notifications := &captureNotifications{}

	orders := &stubOrderRepo{
		insertFn: func(_ context.Context, order domain.Order) error {
			insertedOrder = &order
			return nil
		},
	}
	tracking := &stubTrackingRepo{
		insertFn: func(_ context.Context, tr domain.OrderTracking) error {
			insertedTracking = &tr
			return nil
		},
		notifyFn: func(_ context.Context, _ string, records []domain.NotificationRecord) error {
			recordedNotifications = records
			return nil
		},
	}
	counters := &stubCounterRepo{
		nextFn: func(_ context.Context, counterID string, step int64) (int64, error) {
			if counterID != "orders" {
				t.Fatalf("unexpected counter id %s", counterID)
			}
			if step != 1 {
				t.Fatalf("unexpected step %d", step)
			}
			return 42, nil
		},
	}

	svc := newOrderServiceForTest(t, OrderServiceDeps{
		Orders:        orders,
		Tracking:      tracking,
		Counters:      counters,
		Events:        events,
		Notifications: notifications,
		Clock:         fixedClock(now),
		IDGenerator:   sequentialIDs("01TEST"),
	})

	order, err := svc.PlaceOrder(ctx, PlaceOrderCommand{
		RestaurantID: "rest_1",
		CustomerID:   "cust_1",
		Items: []OrderLineItem{
			{ItemRef: "item_1", Name: "Lamb shawarma", Quantity: 2, UnitPrice: 5000, Total: 10000},
		},
		Subtotal:      10000,
		DeliveryFee:   1000,
		PaymentMethod: domain.PaymentCashOnDelivery,
		Contact:       domain.OrderContact{PushToken: "tok_abc", CustomerPhone: "+15550100"},
	})
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}

	if order.OrderNumber != "DP-2026-000042" {
		t.Errorf("unexpected order number %s", order.OrderNumber)
	}
	if order.Status != domain.OrderStatusPending {
		t.Errorf("expected pending status, got %s", order.Status)
	}
	if order.Commission.CommissionAmount != 900 {
		t.Errorf("unexpected commission %d", order.Commission.CommissionAmount)
	}
	if order.Commission.RestaurantEarning != 10100 {
		t.Errorf("unexpected restaurant earning %d", order.Commission.RestaurantEarning)
	}
	if got := order.Commission.RestaurantEarning + order.Commission.PlatformEarning; got != order.Total {
		t.Errorf("earnings %d do not sum to total %d", got, order.Total)
	}
	if len(order.StatusHistory) != 1 || order.StatusHistory[0].Status != domain.OrderStatusPending {
		t.Errorf("unexpected status history %+v", order.StatusHistory)
	}

	if insertedOrder == nil {
		t.Fatal("order was not inserted")
	}
	if insertedTracking == nil {
		t.Fatal("tracking record was not inserted")
	}
	if insertedTracking.OrderID != order.ID {
		t.Errorf("tracking linked to %s, want %s", insertedTracking.OrderID, order.ID)
	}
	if insertedTracking.DeliveryStatus != domain.DeliveryNotStarted {
		t.Errorf("unexpected delivery status %s", insertedTracking.DeliveryStatus)
	}
	if _, ok := insertedTracking.Timestamps[domain.MilestoneKey(domain.OrderStatusPending)]; !ok {
		t.Error("pending milestone timestamp missing")
	}

	if len(events.events) != 1 || events.events[0].Type != orderEventPlaced {
		t.Errorf("unexpected events %+v", events.events)
	}
	if len(notifications.intents) != 1 || notifications.intents[0].Channel != domain.ChannelPush {
		t.Errorf("unexpected notification intents %+v", notifications.intents)
	}
	if len(recordedNotifications) != 1 || !recordedNotifications[0].Sent {
		t.Errorf("unexpected notification records %+v", recordedNotifications)
	}
}

func TestOrderServicePlaceOrderValidation(t *testing.T) {
	ctx := context.Background()
	svc := newOrderServiceForTest(t, OrderServiceDeps{})

	base := PlaceOrderCommand{
		RestaurantID:  "rest_1",
		CustomerID:    "cust_1",
		Items:         []OrderLineItem{{ItemRef: "item_1", Quantity: 1, UnitPrice: 100, Total: 100}},
		Subtotal:      100,
		PaymentMethod: domain.PaymentCardOnDelivery,
	}

	cases := []struct {
		name    string
		mutate  func(*PlaceOrderCommand)
		wantErr error
	}{
		{"missing restaurant", func(c *PlaceOrderCommand) { c.RestaurantID = " " }, ErrOrderInvalidInput},
		{"missing customer", func(c *PlaceOrderCommand) { c.CustomerID = "" }, ErrOrderInvalidInput},
		{"no items", func(c *PlaceOrderCommand) { c.Items = nil }, ErrOrderInvalidInput},
		{"bad payment method", func(c *PlaceOrderCommand) { c.PaymentMethod = "crypto" }, ErrOrderInvalidInput},
		{"rate too high", func(c *PlaceOrderCommand) { rate := 1.0; c.CommissionRate = &rate }, domain.ErrInvalidRate},
		{"negative rate", func(c *PlaceOrderCommand) { rate := -0.1; c.CommissionRate = &rate }, domain.ErrInvalidRate},
		{"negative subtotal", func(c *PlaceOrderCommand) { c.Subtotal = -1 }, domain.ErrInvalidAmount},
		{"negative delivery fee", func(c *PlaceOrderCommand) { c.DeliveryFee = -50 }, domain.ErrInvalidAmount},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := base
			tc.mutate(&cmd)
			if _, err := svc.PlaceOrder(ctx, cmd); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestOrderServiceTransitionAppendsHistoryAndProjectsTracking(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	now := base.Add(5 * time.Minute)

	existing := deliverableOrder(domain.OrderStatusPending, base)
	var appliedBasis repositories.TransitionBasis
	var appliedOrder domain.Order
	var recorded repositories.TrackingTransitionUpdate
	events := &captureOrderEvents{}
	notifications := &captureNotifications{}

	orders := &stubOrderRepo{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			if orderID != existing.ID {
				return domain.Order{}, &stubRepoError{notFound: true}
			}
			return existing, nil
		},
		applyFn: func(_ context.Context, order domain.Order, basis repositories.TransitionBasis) error {
			appliedOrder = order
			appliedBasis = basis
			return nil
		},
	}
	tracking := &stubTrackingRepo{
		findFn: func(_ context.Context, orderID string) (domain.OrderTracking, error) {
			return domain.OrderTracking{
				OrderID: orderID,
				Timestamps: map[string]time.Time{
					domain.MilestoneKey(domain.OrderStatusPending): base,
				},
				DeliveryStatus: domain.DeliveryNotStarted,
			}, nil
		},
		recordFn: func(_ context.Context, _ string, update repositories.TrackingTransitionUpdate) error {
			recorded = update
			return nil
		},
	}

	svc := newOrderServiceForTest(t, OrderServiceDeps{
		Orders:        orders,
		Tracking:      tracking,
		Events:        events,
		Notifications: notifications,
		Clock:         fixedClock(now),
	})

	order, err := svc.TransitionStatus(ctx, OrderStatusTransitionCommand{
		OrderID:      existing.ID,
		TargetStatus: domain.OrderStatusConfirmed,
		Actor:        domain.ActorRestaurant,
		ActorID:      "rest_1",
	})
	if err != nil {
		t.Fatalf("TransitionStatus returned error: %v", err)
	}

	if order.Status != domain.OrderStatusConfirmed {
		t.Errorf("unexpected status %s", order.Status)
	}
	if len(order.StatusHistory) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(order.StatusHistory))
	}
	if order.StatusHistory[1].Actor != domain.ActorRestaurant {
		t.Errorf("unexpected actor %s", order.StatusHistory[1].Actor)
	}

	if appliedBasis.Status != domain.OrderStatusPending || appliedBasis.HistoryLength != 1 {
		t.Errorf("unexpected transition basis %+v", appliedBasis)
	}
	if appliedOrder.Status != domain.OrderStatusConfirmed {
		t.Errorf("applied order has status %s", appliedOrder.Status)
	}

	if recorded.DeliveryStatus != domain.DeliveryNotStarted {
		t.Errorf("unexpected projected delivery status %s", recorded.DeliveryStatus)
	}
	milestone := domain.MilestoneKey(domain.OrderStatusConfirmed)
	if got, ok := recorded.Timestamps[milestone]; !ok || !got.Equal(now) {
		t.Errorf("confirmed milestone not recorded: %+v", recorded.Timestamps)
	}
	if recorded.StatusUpdate.Description != domain.StatusDescription(domain.OrderStatusConfirmed) {
		t.Errorf("unexpected status update description %q", recorded.StatusUpdate.Description)
	}

	if len(events.events) != 1 || events.events[0].Type != orderEventStatusChanged {
		t.Errorf("unexpected events %+v", events.events)
	}
	if events.events[0].PreviousStatus != string(domain.OrderStatusPending) {
		t.Errorf("unexpected previous status %s", events.events[0].PreviousStatus)
	}
	// confirmed notifies push + sms per the policy table
	if len(notifications.intents) != 2 {
		t.Errorf("unexpected notification intents %+v", notifications.intents)
	}
}

func TestOrderServiceTransitionMilestoneIsFirstWriteWins(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	existing := deliverableOrder(domain.OrderStatusPending, base)

	var recorded repositories.TrackingTransitionUpdate
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) { return existing, nil },
	}
	tracking := &stubTrackingRepo{
		findFn: func(_ context.Context, orderID string) (domain.OrderTracking, error) {
			return domain.OrderTracking{
				OrderID: orderID,
				Timestamps: map[string]time.Time{
					domain.MilestoneKey(domain.OrderStatusPending):   base,
					domain.MilestoneKey(domain.OrderStatusConfirmed): base.Add(time.Minute),
				},
			}, nil
		},
		recordFn: func(_ context.Context, _ string, update repositories.TrackingTransitionUpdate) error {
			recorded = update
			return nil
		},
	}

	svc := newOrderServiceForTest(t, OrderServiceDeps{
		Orders:   orders,
		Tracking: tracking,
		Clock:    fixedClock(base.Add(10 * time.Minute)),
	})

	if _, err := svc.TransitionStatus(ctx, OrderStatusTransitionCommand{
		OrderID:      existing.ID,
		TargetStatus: domain.OrderStatusConfirmed,
		Actor:        domain.ActorRestaurant,
	}); err != nil {
		t.Fatalf("TransitionStatus returned error: %v", err)
	}

	if len(recorded.Timestamps) != 0 {
		t.Errorf("already-recorded milestone must not be rewritten: %+v", recorded.Timestamps)
	}
}

func TestOrderServiceTransitionRejectsInvalidTargets(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		current domain.OrderStatus
		target  domain.OrderStatus
		wantErr error
	}{
		{"skip ahead", domain.OrderStatusPending, domain.OrderStatusReady, ErrInvalidTransition},
		{"self transition", domain.OrderStatusConfirmed, domain.OrderStatusConfirmed, ErrInvalidTransition},
		{"unknown status", domain.OrderStatusPending, domain.OrderStatus("lost"), ErrInvalidTransition},
		{"cancel after pickup", domain.OrderStatusPickedUp, domain.OrderStatusCancelled, ErrInvalidTransition},
		{"terminal cancelled", domain.OrderStatusCancelled, domain.OrderStatusConfirmed, ErrTerminalState},
		{"terminal refunded", domain.OrderStatusRefunded, domain.OrderStatusDelivered, ErrTerminalState},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			existing := deliverableOrder(tc.current, base)
			svc := newOrderServiceForTest(t, OrderServiceDeps{
				Orders: &stubOrderRepo{
					findFn: func(context.Context, string) (domain.Order, error) { return existing, nil },
				},
				Clock: fixedClock(base.Add(time.Minute)),
			})

			_, err := svc.TransitionStatus(ctx, OrderStatusTransitionCommand{
				OrderID:      existing.ID,
				TargetStatus: tc.target,
				Actor:        domain.ActorSystem,
			})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestOrderServiceCancelThenConfirmHitsTerminalGuard(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	stored := deliverableOrder(domain.OrderStatusPending, base)

	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) { return stored, nil },
		applyFn: func(_ context.Context, order domain.Order, _ repositories.TransitionBasis) error {
			stored = order
			return nil
		},
	}

	svc := newOrderServiceForTest(t, OrderServiceDeps{
		Orders: orders,
		Clock:  fixedClock(base.Add(time.Minute)),
	})

	cancelled, err := svc.Cancel(ctx, CancelOrderCommand{
		OrderID: stored.ID,
		Actor:   domain.ActorCustomer,
		Reason:  "changed my mind",
	})
	if err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Fatalf("unexpected status %s", cancelled.Status)
	}
	if cancelled.CancelReason == nil || *cancelled.CancelReason != "changed my mind" {
		t.Errorf("cancel reason not captured: %+v", cancelled.CancelReason)
	}

	_, err = svc.TransitionStatus(ctx, OrderStatusTransitionCommand{
		OrderID:      stored.ID,
		TargetStatus: domain.OrderStatusConfirmed,
		Actor:        domain.ActorRestaurant,
	})
	if !errors.Is(err, ErrTerminalState) {
		t.Fatalf("expected ErrTerminalState, got %v", err)
	}
}

func TestOrderServiceTransitionStaleTimestamp(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	existing := deliverableOrder(domain.OrderStatusPending, base)

	svc := newOrderServiceForTest(t, OrderServiceDeps{
		Orders: &stubOrderRepo{
			findFn: func(context.Context, string) (domain.Order, error) { return existing, nil },
		},
	})

	_, err := svc.TransitionStatus(ctx, OrderStatusTransitionCommand{
		OrderID:      existing.ID,
		TargetStatus: domain.OrderStatusConfirmed,
		Actor:        domain.ActorRestaurant,
		OccurredAt:   base.Add(-time.Second),
	})
	if !errors.Is(err, ErrStaleTransition) {
		t.Fatalf("expected ErrStaleTransition, got %v", err)
	}
}

func TestOrderServiceTransitionLosesConditionalWrite(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	existing := deliverableOrder(domain.OrderStatusPreparing, base)

	svc := newOrderServiceForTest(t, OrderServiceDeps{
		Orders: &stubOrderRepo{
			findFn: func(context.Context, string) (domain.Order, error) { return existing, nil },
			applyFn: func(context.Context, domain.Order, repositories.TransitionBasis) error {
				// Another writer moved the order between read and write.
				return &stubRepoError{conflict: true}
			},
		},
		Clock: fixedClock(base.Add(time.Minute)),
	})

	_, err := svc.TransitionStatus(ctx, OrderStatusTransitionCommand{
		OrderID:      existing.ID,
		TargetStatus: domain.OrderStatusReady,
		Actor:        domain.ActorRestaurant,
	})
	if !errors.Is(err, ErrStaleTransition) {
		t.Fatalf("expected ErrStaleTransition for losing writer, got %v", err)
	}
}

func TestOrderServiceDeliveredCreatesSettlement(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	pickedUpAt := base.Add(30 * time.Minute)
	now := base.Add(55 * time.Minute)
	existing := deliverableOrder(domain.OrderStatusArrived, base)

	var insertedTxn *domain.Transaction
	var recorded repositories.TrackingTransitionUpdate
	events := &captureOrderEvents{}

	svc := newOrderServiceForTest(t, OrderServiceDeps{
		Orders: &stubOrderRepo{
			findFn: func(context.Context, string) (domain.Order, error) { return existing, nil },
		},
		Tracking: &stubTrackingRepo{
			findFn: func(_ context.Context, orderID string) (domain.OrderTracking, error) {
				return domain.OrderTracking{
					OrderID: orderID,
					Timestamps: map[string]time.Time{
						domain.MilestoneKey(domain.OrderStatusPickedUp): pickedUpAt,
					},
					DeliveryStatus: domain.DeliveryDriverArrived,
				}, nil
			},
			recordFn: func(_ context.Context, _ string, update repositories.TrackingTransitionUpdate) error {
				recorded = update
				return nil
			},
		},
		Transactions: &stubTransactionRepo{
			insertFn: func(_ context.Context, txn domain.Transaction) error {
				insertedTxn = &txn
				return nil
			},
		},
		Events: events,
		Clock:  fixedClock(now),
	})

	order, err := svc.TransitionStatus(ctx, OrderStatusTransitionCommand{
		OrderID:      existing.ID,
		TargetStatus: domain.OrderStatusDelivered,
		Actor:        domain.ActorDriver,
		ActorID:      "drv_1",
	})
	if err != nil {
		t.Fatalf("TransitionStatus returned error: %v", err)
	}
	if order.DeliveredAt == nil || !order.DeliveredAt.Equal(now) {
		t.Errorf("DeliveredAt not set: %+v", order.DeliveredAt)
	}

	if insertedTxn == nil {
		t.Fatal("settlement transaction was not inserted")
	}
	if insertedTxn.Type != domain.TransactionSettlement {
		t.Errorf("unexpected transaction type %s", insertedTxn.Type)
	}
	if insertedTxn.Status != domain.TransactionCompleted {
		t.Errorf("unexpected transaction status %s", insertedTxn.Status)
	}
	if insertedTxn.Amount != existing.Commission.Total() {
		t.Errorf("unexpected amount %d", insertedTxn.Amount)
	}
	if insertedTxn.CommissionAmount != 900 || insertedTxn.RestaurantAmount != 10100 {
		t.Errorf("unexpected split %d/%d", insertedTxn.CommissionAmount, insertedTxn.RestaurantAmount)
	}

	if recorded.ActualTimes.Delivery == nil || *recorded.ActualTimes.Delivery != 25*time.Minute {
		t.Errorf("delivery duration not derived from pickup milestone: %+v", recorded.ActualTimes.Delivery)
	}
	if len(events.events) != 1 || events.events[0].Type != orderEventSettled {
		t.Errorf("unexpected events %+v", events.events)
	}
}

func TestOrderServiceRefundKeepsFrozenCommission(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	existing := deliverableOrder(domain.OrderStatusDelivered, base)

	var insertedTxn *domain.Transaction
	var appliedOrder domain.Order
	events := &captureOrderEvents{}

	svc := newOrderServiceForTest(t, OrderServiceDeps{
		Orders: &stubOrderRepo{
			findFn: func(context.Context, string) (domain.Order, error) { return existing, nil },
			applyFn: func(_ context.Context, order domain.Order, _ repositories.TransitionBasis) error {
				appliedOrder = order
				return nil
			},
		},
		Transactions: &stubTransactionRepo{
			insertFn: func(_ context.Context, txn domain.Transaction) error {
				insertedTxn = &txn
				return nil
			},
		},
		Events: events,
		Clock:  fixedClock(base.Add(2 * time.Hour)),
	})

	order, err := svc.Refund(ctx, RefundOrderCommand{
		OrderID: existing.ID,
		Actor:   domain.ActorSystem,
		Reason:  "missing items",
	})
	if err != nil {
		t.Fatalf("Refund returned error: %v", err)
	}

	if order.Status != domain.OrderStatusRefunded {
		t.Errorf("unexpected status %s", order.Status)
	}
	if appliedOrder.Commission != existing.Commission {
		t.Errorf("refund must not recompute the placement commission: %+v", appliedOrder.Commission)
	}

	if insertedTxn == nil {
		t.Fatal("refund transaction was not inserted")
	}
	if insertedTxn.Type != domain.TransactionRefund {
		t.Errorf("unexpected transaction type %s", insertedTxn.Type)
	}
	if insertedTxn.Status != domain.TransactionCompleted {
		t.Errorf("unexpected transaction status %s", insertedTxn.Status)
	}
	if len(events.events) != 1 || events.events[0].Type != orderEventRefunded {
		t.Errorf("unexpected events %+v", events.events)
	}
}

func TestOrderServiceNotificationFailureDoesNotFailTransition(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	existing := deliverableOrder(domain.OrderStatusPending, base)

	var recordedNotifications []domain.NotificationRecord
	svc := newOrderServiceForTest(t, OrderServiceDeps{
		Orders: &stubOrderRepo{
			findFn: func(context.Context, string) (domain.Order, error) { return existing, nil },
		},
		Tracking: &stubTrackingRepo{
			notifyFn: func(_ context.Context, _ string, records []domain.NotificationRecord) error {
				recordedNotifications = records
				return nil
			},
		},
		Notifications: &captureNotifications{err: errors.New("broker down")},
		Clock:         fixedClock(base.Add(time.Minute)),
	})

	if _, err := svc.TransitionStatus(ctx, OrderStatusTransitionCommand{
		OrderID:      existing.ID,
		TargetStatus: domain.OrderStatusConfirmed,
		Actor:        domain.ActorRestaurant,
	}); err != nil {
		t.Fatalf("TransitionStatus returned error: %v", err)
	}

	if len(recordedNotifications) == 0 {
		t.Fatal("notification records were not appended")
	}
	for _, record := range recordedNotifications {
		if record.Sent {
			t.Errorf("record %s/%s marked sent despite publish failure", record.Channel, record.Template)
		}
		if record.Reason == "" {
			t.Errorf("failed record %s/%s is missing a reason", record.Channel, record.Template)
		}
	}
}

func TestOrderServiceNotFound(t *testing.T) {
	ctx := context.Background()
	svc := newOrderServiceForTest(t, OrderServiceDeps{
		Orders: &stubOrderRepo{
			findFn: func(context.Context, string) (domain.Order, error) {
				return domain.Order{}, &stubRepoError{notFound: true}
			},
		},
	})

	if _, err := svc.GetOrder(ctx, "ord_missing"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	_, err := svc.TransitionStatus(ctx, OrderStatusTransitionCommand{
		OrderID:      "ord_missing",
		TargetStatus: domain.OrderStatusConfirmed,
		Actor:        domain.ActorRestaurant,
	})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}
