package domain

import "time"

// statusTransitions is the single authoritative transition table. Every
// caller (web UI, bots, admin overrides) goes through this guard; a target
// absent from the current state's row is never reachable.
var statusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusPreparing, OrderStatusCancelled},
	OrderStatusPreparing:  {OrderStatusReady, OrderStatusCancelled},
	OrderStatusReady:      {OrderStatusAssigned, OrderStatusCancelled},
	OrderStatusAssigned:   {OrderStatusPickedUp, OrderStatusCancelled},
	OrderStatusPickedUp:   {OrderStatusDelivering},
	OrderStatusDelivering: {OrderStatusArrived},
	OrderStatusArrived:    {OrderStatusDelivered},
	OrderStatusDelivered:  {OrderStatusRefunded},
	OrderStatusCancelled:  {},
	OrderStatusRefunded:   {},
}

// deliveryProjection maps an order status onto the tracking record's
// delivery-focused status.
var deliveryProjection = map[OrderStatus]DeliveryStatus{
	OrderStatusPending:    DeliveryNotStarted,
	OrderStatusConfirmed:  DeliveryNotStarted,
	OrderStatusPreparing:  DeliveryNotStarted,
	OrderStatusReady:      DeliveryAssigningDriver,
	OrderStatusAssigned:   DeliveryDriverAssigned,
	OrderStatusPickedUp:   DeliveryDriverPickingUp,
	OrderStatusDelivering: DeliveryDriverOnWay,
	OrderStatusArrived:    DeliveryDriverArrived,
	OrderStatusDelivered:  DeliveryDelivered,
	OrderStatusCancelled:  DeliveryFailed,
	OrderStatusRefunded:   DeliveryDelivered,
}

// statusDescriptions is the fixed per-status text appended to the tracking
// audit log. Localisation happens at the presentation boundary, not here.
var statusDescriptions = map[OrderStatus]string{
	OrderStatusPending:    "Order placed and awaiting restaurant confirmation",
	OrderStatusConfirmed:  "Restaurant confirmed the order",
	OrderStatusPreparing:  "Kitchen started preparing the order",
	OrderStatusReady:      "Order is ready, looking for a driver",
	OrderStatusAssigned:   "Driver assigned to the order",
	OrderStatusPickedUp:   "Driver picked up the order",
	OrderStatusDelivering: "Driver is on the way",
	OrderStatusArrived:    "Driver arrived at the delivery address",
	OrderStatusDelivered:  "Order delivered",
	OrderStatusCancelled:  "Order cancelled",
	OrderStatusRefunded:   "Order refunded",
}

// IsValidStatus reports whether the status appears in the transition table.
func IsValidStatus(status OrderStatus) bool {
	_, ok := statusTransitions[status]
	return ok
}

// IsTerminalStatus reports whether the status has no outgoing transitions.
func IsTerminalStatus(status OrderStatus) bool {
	targets, ok := statusTransitions[status]
	return ok && len(targets) == 0
}

// AllowedTargets returns the transition table row for the given status.
func AllowedTargets(status OrderStatus) []OrderStatus {
	targets := statusTransitions[status]
	out := make([]OrderStatus, len(targets))
	copy(out, targets)
	return out
}

// CanTransition reports whether current→target appears in the table.
// Re-sending the current status is not a transition and returns false.
func CanTransition(current, target OrderStatus) bool {
	for _, allowed := range statusTransitions[current] {
		if allowed == target {
			return true
		}
	}
	return false
}

// DeliveryStatusFor projects an order status onto the tracking record's
// delivery status. Unknown statuses project to DeliveryNotStarted.
func DeliveryStatusFor(status OrderStatus) DeliveryStatus {
	if projected, ok := deliveryProjection[status]; ok {
		return projected
	}
	return DeliveryNotStarted
}

// StatusDescription returns the fixed audit-log text for a status.
func StatusDescription(status OrderStatus) string {
	if text, ok := statusDescriptions[status]; ok {
		return text
	}
	return string(status)
}

// MilestoneKey is the key under which a status' first-reached time is
// recorded in OrderTracking.Timestamps.
func MilestoneKey(status OrderStatus) string {
	return string(status) + "_at"
}

// NewStatusChange builds a history entry with the timestamp normalised to UTC.
func NewStatusChange(status OrderStatus, actor Actor, at time.Time) StatusChange {
	return StatusChange{Status: status, Actor: actor, Timestamp: at.UTC()}
}
