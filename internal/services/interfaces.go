package services

import (
	"context"
	"time"

	domain "github.com/dishpatch/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Actor                    = domain.Actor
	PaymentMethod            = domain.PaymentMethod
	Order                    = domain.Order
	OrderStatus              = domain.OrderStatus
	OrderLineItem            = domain.OrderLineItem
	OrderContact             = domain.OrderContact
	StatusChange             = domain.StatusChange
	CommissionCalculation    = domain.CommissionCalculation
	OrderTracking            = domain.OrderTracking
	DeliveryStatus           = domain.DeliveryStatus
	DeliveryDriver           = domain.DeliveryDriver
	LocationSample           = domain.LocationSample
	StatusUpdate             = domain.StatusUpdate
	CustomerInteraction      = domain.CustomerInteraction
	InteractionType          = domain.InteractionType
	InteractionOutcome       = domain.InteractionOutcome
	NotificationChannel      = domain.NotificationChannel
	NotificationRecord       = domain.NotificationRecord
	DurationEstimates        = domain.DurationEstimates
	Transaction              = domain.Transaction
	RestaurantFinancials     = domain.RestaurantFinancials
	DailyFinancials          = domain.DailyFinancials
	PaymentMethodFinancials  = domain.PaymentMethodFinancials
)

// OrderService encapsulates the order lifecycle: placement, status transitions,
// cancellation, and refunds with commission settlement.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) ([]Order, error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	Refund(ctx context.Context, cmd RefundOrderCommand) (Order, error)
}

// TrackingService maintains the per-order delivery tracking record.
type TrackingService interface {
	GetTracking(ctx context.Context, orderID string) (OrderTracking, error)
	AssignDriver(ctx context.Context, cmd AssignDriverCommand) (OrderTracking, error)
	UnassignDriver(ctx context.Context, cmd UnassignDriverCommand) (OrderTracking, error)
	AppendLocation(ctx context.Context, cmd AppendLocationCommand) (OrderTracking, error)
	RequestInteraction(ctx context.Context, cmd RequestInteractionCommand) (CustomerInteraction, error)
	ResolveInteraction(ctx context.Context, cmd ResolveInteractionCommand) (OrderTracking, error)
	WatchTracking(ctx context.Context, orderID string) (<-chan OrderTracking, func(), error)
}

// FinancialsService aggregates settled orders into restaurant earning reports.
type FinancialsService interface {
	Report(ctx context.Context, cmd FinancialsReportCommand) (RestaurantFinancials, error)
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// NotificationPublisher delivers notification intents to the outbound messaging pipeline.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, intent NotificationIntent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string         `json:"type"`
	OrderID        string         `json:"orderId"`
	OrderNumber    string         `json:"orderNumber"`
	RestaurantID   string         `json:"restaurantId"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	CurrentStatus  string         `json:"currentStatus"`
	ActorID        string         `json:"actorId,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// NotificationIntent describes a single outbound message for one recipient channel.
type NotificationIntent struct {
	OrderID     string              `json:"orderId"`
	OrderNumber string              `json:"orderNumber"`
	Status      string              `json:"status"`
	Channel     NotificationChannel `json:"channel"`
	Template    string              `json:"template"`
	Recipient   string              `json:"recipient"`
	Sender      string              `json:"sender,omitempty"`
	OccurredAt  time.Time           `json:"occurredAt"`
}

// PlaceOrderCommand carries the inputs required to create a new order.
type PlaceOrderCommand struct {
	RestaurantID   string
	CustomerID     string
	Items          []OrderLineItem
	Subtotal       int64
	DeliveryFee    int64
	PaymentMethod  PaymentMethod
	Contact        OrderContact
	CommissionRate *float64
	Estimates      DurationEstimates
	ActorID        string
}

// OrderListFilter narrows order listings by restaurant and placement window.
type OrderListFilter struct {
	RestaurantID string
	Start        time.Time
	End          time.Time
}

// OrderStatusTransitionCommand requests a lifecycle step for an order.
type OrderStatusTransitionCommand struct {
	OrderID      string
	TargetStatus OrderStatus
	Actor        Actor
	ActorID      string
	OccurredAt   time.Time
	Note         string
}

// CancelOrderCommand requests cancellation of an in-flight order.
type CancelOrderCommand struct {
	OrderID    string
	Actor      Actor
	ActorID    string
	Reason     string
	OccurredAt time.Time
}

// RefundOrderCommand requests a refund of a delivered order.
type RefundOrderCommand struct {
	OrderID    string
	Actor      Actor
	ActorID    string
	Reason     string
	OccurredAt time.Time
}

// AssignDriverCommand attaches a delivery driver to an order's tracking record.
type AssignDriverCommand struct {
	OrderID string
	Driver  DeliveryDriver
	ActorID string
}

// UnassignDriverCommand detaches the current driver so another can be assigned.
type UnassignDriverCommand struct {
	OrderID string
	ActorID string
	Reason  string
}

// AppendLocationCommand records a driver location sample on the tracking record.
type AppendLocationCommand struct {
	OrderID    string
	Latitude   float64
	Longitude  float64
	RecordedAt time.Time
}

// RequestInteractionCommand records a customer-initiated interaction.
type RequestInteractionCommand struct {
	OrderID string
	Type    InteractionType
	Note    string
	ActorID string
}

// ResolveInteractionCommand settles a pending customer interaction.
type ResolveInteractionCommand struct {
	OrderID       string
	InteractionID string
	Outcome       InteractionOutcome
	ActorID       string
}

// FinancialsReportCommand selects the restaurant and reporting window.
type FinancialsReportCommand struct {
	RestaurantID string
	Start        time.Time
	End          time.Time
}
