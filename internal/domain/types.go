package domain

import (
	"time"
)

// Actor identifies who initiated a lifecycle transition.
type Actor string

const (
	// ActorSystem marks transitions applied by automated processes.
	ActorSystem Actor = "system"
	// ActorRestaurant marks transitions from the restaurant back-office.
	ActorRestaurant Actor = "restaurant"
	// ActorDriver marks transitions from the driver app.
	ActorDriver Actor = "driver"
	// ActorCustomer marks transitions initiated by the customer.
	ActorCustomer Actor = "customer"
	// ActorExternalBot marks transitions relayed by messaging bots.
	ActorExternalBot Actor = "external-bot"
)

// Valid reports whether the actor is one of the known origins.
func (a Actor) Valid() bool {
	switch a {
	case ActorSystem, ActorRestaurant, ActorDriver, ActorCustomer, ActorExternalBot:
		return true
	}
	return false
}

// PaymentMethod enumerates how an order is settled at the door.
type PaymentMethod string

const (
	// PaymentCashOnDelivery settles in cash at delivery.
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
	// PaymentCardOnDelivery settles by card terminal at delivery.
	PaymentCardOnDelivery PaymentMethod = "card_on_delivery"
)

// Valid reports whether the payment method is supported.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCashOnDelivery, PaymentCardOnDelivery:
		return true
	}
	return false
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order has been placed and awaits restaurant confirmation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates the restaurant accepted the order.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusPreparing indicates the kitchen is preparing the order.
	OrderStatusPreparing OrderStatus = "preparing"
	// OrderStatusReady indicates the order is ready and awaits a driver.
	OrderStatusReady OrderStatus = "ready"
	// OrderStatusAssigned indicates a driver has been assigned.
	OrderStatusAssigned OrderStatus = "assigned"
	// OrderStatusPickedUp indicates the driver collected the order.
	OrderStatusPickedUp OrderStatus = "picked_up"
	// OrderStatusDelivering indicates the driver is en route to the customer.
	OrderStatusDelivering OrderStatus = "delivering"
	// OrderStatusArrived indicates the driver reached the customer address.
	OrderStatusArrived OrderStatus = "arrived"
	// OrderStatusDelivered indicates the order was handed over and settled.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled before pickup.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded indicates a delivered order was compensated.
	OrderStatusRefunded OrderStatus = "refunded"
)

// DeliveryStatus is the coarser delivery-focused projection of OrderStatus
// surfaced on the tracking record.
type DeliveryStatus string

const (
	// DeliveryNotStarted covers states before the kitchen finishes.
	DeliveryNotStarted DeliveryStatus = "not_started"
	// DeliveryAssigningDriver indicates the order is ready and a driver is being sought.
	DeliveryAssigningDriver DeliveryStatus = "assigning_driver"
	// DeliveryDriverAssigned indicates a driver accepted the delivery.
	DeliveryDriverAssigned DeliveryStatus = "driver_assigned"
	// DeliveryDriverPickingUp indicates the driver collected the order.
	DeliveryDriverPickingUp DeliveryStatus = "driver_picking_up"
	// DeliveryDriverOnWay indicates the driver is en route.
	DeliveryDriverOnWay DeliveryStatus = "driver_on_way"
	// DeliveryDriverArrived indicates the driver is at the customer address.
	DeliveryDriverArrived DeliveryStatus = "driver_arrived"
	// DeliveryDelivered indicates the delivery completed.
	DeliveryDelivered DeliveryStatus = "delivered"
	// DeliveryFailed indicates the order was cancelled before completion.
	DeliveryFailed DeliveryStatus = "failed"
)

// CommissionCalculation is the frozen money split computed once at order
// placement. Amounts are in minor currency units.
type CommissionCalculation struct {
	Subtotal          int64
	DeliveryFee       int64
	CommissionRate    float64
	CommissionAmount  int64
	RestaurantEarning int64
	PlatformEarning   int64
}

// Total returns the full amount paid by the customer.
func (c CommissionCalculation) Total() int64 {
	return c.Subtotal + c.DeliveryFee
}

// StatusChange records one accepted lifecycle transition on the order.
type StatusChange struct {
	Status    OrderStatus
	Actor     Actor
	Timestamp time.Time
}

// OrderLineItem snapshots a menu item at placement time.
type OrderLineItem struct {
	ItemRef   string
	Name      string
	Quantity  int
	UnitPrice int64
	Total     int64
}

// OrderContact stores the contact snapshot used for notification routing.
type OrderContact struct {
	CustomerPhone string
	CustomerEmail string
	PushToken     string
}

// Order is one customer purchase from one restaurant. Mutations go through
// the lifecycle service only; commission is immutable after placement.
type Order struct {
	ID            string
	OrderNumber   string
	CustomerID    string
	RestaurantID  string
	Status        OrderStatus
	Items         []OrderLineItem
	Subtotal      int64
	DeliveryFee   int64
	Total         int64
	Commission    CommissionCalculation
	PaymentMethod PaymentMethod
	Contact       OrderContact
	StatusHistory []StatusChange
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeliveredAt   *time.Time
	CancelledAt   *time.Time
	CancelReason  *string
}

// LastTransitionAt returns the timestamp of the most recent accepted
// transition, falling back to CreatedAt for a fresh order.
func (o Order) LastTransitionAt() time.Time {
	if len(o.StatusHistory) == 0 {
		return o.CreatedAt
	}
	return o.StatusHistory[len(o.StatusHistory)-1].Timestamp
}

// DeliveryDriver is the externally supplied driver record attached to a
// tracking document on assignment.
type DeliveryDriver struct {
	ID      string
	Name    string
	Phone   string
	Vehicle string
}

// LocationSample is one GPS ping from the driver app.
type LocationSample struct {
	Lat       float64
	Lng       float64
	Status    DeliveryStatus
	Timestamp time.Time
}

// StatusUpdate is a human-readable audit entry on the tracking record,
// distinct from Order.StatusHistory in carrying a description and metadata.
type StatusUpdate struct {
	Status      OrderStatus
	Description string
	Actor       Actor
	Metadata    map[string]any
	Timestamp   time.Time
}

// NotificationChannel enumerates outbound channels the policy may select.
type NotificationChannel string

const (
	// ChannelPush targets the customer's mobile push token.
	ChannelPush NotificationChannel = "push"
	// ChannelSMS targets a phone number by SMS.
	ChannelSMS NotificationChannel = "sms"
	// ChannelEmail targets an email address.
	ChannelEmail NotificationChannel = "email"
	// ChannelWhatsApp targets a phone number over WhatsApp.
	ChannelWhatsApp NotificationChannel = "whatsapp"
	// ChannelTelegram targets a Telegram chat.
	ChannelTelegram NotificationChannel = "telegram"
)

// NotificationRecord logs one notification intent and its dispatch outcome.
type NotificationRecord struct {
	Channel   NotificationChannel
	Template  string
	Recipient string
	Sent      bool
	Reason    string
	Timestamp time.Time
}

// InteractionType enumerates customer-initiated tracking requests.
type InteractionType string

const (
	// InteractionCallDriver asks the platform to bridge a call to the driver.
	InteractionCallDriver InteractionType = "call_driver"
	// InteractionCancelRequest asks for cancellation of an in-flight order.
	InteractionCancelRequest InteractionType = "cancel_request"
)

// InteractionOutcome is the resolution state of a customer interaction.
type InteractionOutcome string

const (
	// InteractionPending means the request awaits resolution.
	InteractionPending InteractionOutcome = "pending"
	// InteractionApproved means the request was granted.
	InteractionApproved InteractionOutcome = "approved"
	// InteractionRejected means the request was declined.
	InteractionRejected InteractionOutcome = "rejected"
)

// CustomerInteraction captures one customer request and its outcome.
type CustomerInteraction struct {
	ID         string
	Type       InteractionType
	Outcome    InteractionOutcome
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// DurationEstimates stores expected preparation/delivery durations.
type DurationEstimates struct {
	Preparation time.Duration
	Delivery    time.Duration
}

// ActualDurations stores observed durations derived from milestone
// timestamps once the relevant boundaries are crossed.
type ActualDurations struct {
	Preparation *time.Duration
	Delivery    *time.Duration
}

// OrderTracking is the append-heavy companion record to an order, created
// alongside it, 1:1.
type OrderTracking struct {
	OrderID              string
	RestaurantID         string
	DeliveryStatus       DeliveryStatus
	Driver               *DeliveryDriver
	Timestamps           map[string]time.Time
	EstimatedTimes       DurationEstimates
	ActualTimes          ActualDurations
	LocationHistory      []LocationSample
	StatusUpdates        []StatusUpdate
	Notifications        []NotificationRecord
	CustomerInteractions []CustomerInteraction
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// LatestLocation returns the most recent location sample, if any.
func (t OrderTracking) LatestLocation() (LocationSample, bool) {
	if len(t.LocationHistory) == 0 {
		return LocationSample{}, false
	}
	return t.LocationHistory[len(t.LocationHistory)-1], true
}

// TransactionStatus enumerates settlement transaction states.
type TransactionStatus string

const (
	// TransactionPending indicates the settlement is being recorded.
	TransactionPending TransactionStatus = "pending"
	// TransactionCompleted indicates a finalised settlement.
	TransactionCompleted TransactionStatus = "completed"
	// TransactionFailed indicates the settlement could not be recorded.
	TransactionFailed TransactionStatus = "failed"
)

// TransactionType distinguishes settlements from compensations.
type TransactionType string

const (
	// TransactionSettlement is created when an order reaches delivered.
	TransactionSettlement TransactionType = "settlement"
	// TransactionRefund compensates a delivered order.
	TransactionRefund TransactionType = "refund"
)

// Transaction is one settled order or one refund. Immutable once its
// status becomes terminal.
type Transaction struct {
	ID               string
	OrderID          string
	RestaurantID     string
	Type             TransactionType
	Amount           int64
	CommissionAmount int64
	RestaurantAmount int64
	PaymentMethod    PaymentMethod
	Status           TransactionStatus
	CreatedAt        time.Time
}

// DailyFinancials is one calendar day's totals in a financial report.
type DailyFinancials struct {
	Date       string
	Revenue    int64
	Commission int64
	NetEarning int64
	OrderCount int
}

// PaymentMethodFinancials partitions the same totals by payment method.
type PaymentMethodFinancials struct {
	Method     PaymentMethod
	Revenue    int64
	Commission int64
	NetEarning int64
	OrderCount int
}

// RestaurantFinancials is the derived report for one restaurant over a
// [start, end) window. Recomputed on demand, never stored as truth.
type RestaurantFinancials struct {
	RestaurantID           string
	PeriodStart            time.Time
	PeriodEnd              time.Time
	TotalRevenue           int64
	TotalCommission        int64
	TotalNetEarning        int64
	RefundedAmount         int64
	OrderCount             int
	DailyBreakdown         []DailyFinancials
	PaymentMethodBreakdown []PaymentMethodFinancials
	SkippedOrders          []string
	GeneratedAt            time.Time
}
