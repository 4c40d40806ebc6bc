package firestore

import (
	"time"

	domain "github.com/dishpatch/api/internal/domain"
)

const (
	ordersCollection       = "orders"
	trackingCollection     = "orderTracking"
	transactionsCollection = "transactions"
	countersCollection     = "counters"
)

type orderLineItemDocument struct {
	ItemRef   string `firestore:"itemRef"`
	Name      string `firestore:"name"`
	Quantity  int    `firestore:"quantity"`
	UnitPrice int64  `firestore:"unitPrice"`
	Total     int64  `firestore:"total"`
}

type statusChangeDocument struct {
	Status    string    `firestore:"status"`
	Actor     string    `firestore:"actor"`
	Timestamp time.Time `firestore:"timestamp"`
}

type commissionDocument struct {
	Subtotal          int64   `firestore:"subtotal"`
	DeliveryFee       int64   `firestore:"deliveryFee"`
	CommissionRate    float64 `firestore:"commissionRate"`
	CommissionAmount  int64   `firestore:"commissionAmount"`
	RestaurantEarning int64   `firestore:"restaurantEarning"`
	PlatformEarning   int64   `firestore:"platformEarning"`
}

type orderContactDocument struct {
	CustomerPhone string `firestore:"customerPhone,omitempty"`
	CustomerEmail string `firestore:"customerEmail,omitempty"`
	PushToken     string `firestore:"pushToken,omitempty"`
}

type orderDocument struct {
	OrderNumber   string                  `firestore:"orderNumber"`
	CustomerID    string                  `firestore:"customerId"`
	RestaurantID  string                  `firestore:"restaurantId"`
	Status        string                  `firestore:"status"`
	Items         []orderLineItemDocument `firestore:"items"`
	Subtotal      int64                   `firestore:"subtotal"`
	DeliveryFee   int64                   `firestore:"deliveryFee"`
	Total         int64                   `firestore:"total"`
	Commission    commissionDocument      `firestore:"commission"`
	PaymentMethod string                  `firestore:"paymentMethod"`
	Contact       orderContactDocument    `firestore:"contact"`
	StatusHistory []statusChangeDocument  `firestore:"statusHistory"`
	CreatedAt     time.Time               `firestore:"createdAt"`
	UpdatedAt     time.Time               `firestore:"updatedAt"`
	DeliveredAt   *time.Time              `firestore:"deliveredAt,omitempty"`
	CancelledAt   *time.Time              `firestore:"cancelledAt,omitempty"`
	CancelReason  *string                 `firestore:"cancelReason,omitempty"`
}

func encodeOrder(order domain.Order) orderDocument {
	items := make([]orderLineItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderLineItemDocument{
			ItemRef:   item.ItemRef,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Total:     item.Total,
		})
	}

	history := make([]statusChangeDocument, 0, len(order.StatusHistory))
	for _, change := range order.StatusHistory {
		history = append(history, statusChangeDocument{
			Status:    string(change.Status),
			Actor:     string(change.Actor),
			Timestamp: change.Timestamp,
		})
	}

	return orderDocument{
		OrderNumber:  order.OrderNumber,
		CustomerID:   order.CustomerID,
		RestaurantID: order.RestaurantID,
		Status:       string(order.Status),
		Items:        items,
		Subtotal:     order.Subtotal,
		DeliveryFee:  order.DeliveryFee,
		Total:        order.Total,
		Commission: commissionDocument{
			Subtotal:          order.Commission.Subtotal,
			DeliveryFee:       order.Commission.DeliveryFee,
			CommissionRate:    order.Commission.CommissionRate,
			CommissionAmount:  order.Commission.CommissionAmount,
			RestaurantEarning: order.Commission.RestaurantEarning,
			PlatformEarning:   order.Commission.PlatformEarning,
		},
		PaymentMethod: string(order.PaymentMethod),
		Contact: orderContactDocument{
			CustomerPhone: order.Contact.CustomerPhone,
			CustomerEmail: order.Contact.CustomerEmail,
			PushToken:     order.Contact.PushToken,
		},
		StatusHistory: history,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
		DeliveredAt:   order.DeliveredAt,
		CancelledAt:   order.CancelledAt,
		CancelReason:  order.CancelReason,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderLineItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.OrderLineItem{
			ItemRef:   item.ItemRef,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Total:     item.Total,
		})
	}

	history := make([]domain.StatusChange, 0, len(d.StatusHistory))
	for _, change := range d.StatusHistory {
		history = append(history, domain.StatusChange{
			Status:    domain.OrderStatus(change.Status),
			Actor:     domain.Actor(change.Actor),
			Timestamp: change.Timestamp,
		})
	}

	return domain.Order{
		ID:           id,
		OrderNumber:  d.OrderNumber,
		CustomerID:   d.CustomerID,
		RestaurantID: d.RestaurantID,
		Status:       domain.OrderStatus(d.Status),
		Items:        items,
		Subtotal:     d.Subtotal,
		DeliveryFee:  d.DeliveryFee,
		Total:        d.Total,
		Commission: domain.CommissionCalculation{
			Subtotal:          d.Commission.Subtotal,
			DeliveryFee:       d.Commission.DeliveryFee,
			CommissionRate:    d.Commission.CommissionRate,
			CommissionAmount:  d.Commission.CommissionAmount,
			RestaurantEarning: d.Commission.RestaurantEarning,
			PlatformEarning:   d.Commission.PlatformEarning,
		},
		PaymentMethod: domain.PaymentMethod(d.PaymentMethod),
		Contact: domain.OrderContact{
			CustomerPhone: d.Contact.CustomerPhone,
			CustomerEmail: d.Contact.CustomerEmail,
			PushToken:     d.Contact.PushToken,
		},
		StatusHistory: history,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
		DeliveredAt:   d.DeliveredAt,
		CancelledAt:   d.CancelledAt,
		CancelReason:  d.CancelReason,
	}
}

type driverDocument struct {
	ID      string `firestore:"id"`
	Name    string `firestore:"name"`
	Phone   string `firestore:"phone,omitempty"`
	Vehicle string `firestore:"vehicle,omitempty"`
}

type locationSampleDocument struct {
	Lat       float64   `firestore:"lat"`
	Lng       float64   `firestore:"lng"`
	Status    string    `firestore:"status"`
	Timestamp time.Time `firestore:"timestamp"`
}

type statusUpdateDocument struct {
	Status      string         `firestore:"status"`
	Description string         `firestore:"description"`
	Actor       string         `firestore:"actor"`
	Metadata    map[string]any `firestore:"metadata,omitempty"`
	Timestamp   time.Time      `firestore:"timestamp"`
}

type notificationRecordDocument struct {
	Channel   string    `firestore:"channel"`
	Template  string    `firestore:"template"`
	Recipient string    `firestore:"recipient,omitempty"`
	Sent      bool      `firestore:"sent"`
	Reason    string    `firestore:"reason,omitempty"`
	Timestamp time.Time `firestore:"timestamp"`
}

type interactionDocument struct {
	ID         string     `firestore:"id"`
	Type       string     `firestore:"type"`
	Outcome    string     `firestore:"outcome"`
	CreatedAt  time.Time  `firestore:"createdAt"`
	ResolvedAt *time.Time `firestore:"resolvedAt,omitempty"`
}

// Durations are persisted as integer milliseconds; Firestore has no native
// duration type.
type durationEstimatesDocument struct {
	PreparationMillis int64 `firestore:"preparationMillis"`
	DeliveryMillis    int64 `firestore:"deliveryMillis"`
}

type actualDurationsDocument struct {
	PreparationMillis *int64 `firestore:"preparationMillis,omitempty"`
	DeliveryMillis    *int64 `firestore:"deliveryMillis,omitempty"`
}

type trackingDocument struct {
	RestaurantID         string                       `firestore:"restaurantId"`
	DeliveryStatus       string                       `firestore:"deliveryStatus"`
	Driver               *driverDocument              `firestore:"driver,omitempty"`
	Timestamps           map[string]time.Time         `firestore:"timestamps"`
	EstimatedTimes       durationEstimatesDocument    `firestore:"estimatedTimes"`
	ActualTimes          actualDurationsDocument      `firestore:"actualTimes"`
	LocationHistory      []locationSampleDocument     `firestore:"locationHistory"`
	StatusUpdates        []statusUpdateDocument       `firestore:"statusUpdates"`
	Notifications        []notificationRecordDocument `firestore:"notifications"`
	CustomerInteractions []interactionDocument        `firestore:"customerInteractions"`
	CreatedAt            time.Time                    `firestore:"createdAt"`
	UpdatedAt            time.Time                    `firestore:"updatedAt"`
}

func encodeDriver(driver *domain.DeliveryDriver) *driverDocument {
	if driver == nil {
		return nil
	}
	return &driverDocument{
		ID:      driver.ID,
		Name:    driver.Name,
		Phone:   driver.Phone,
		Vehicle: driver.Vehicle,
	}
}

func encodeLocationSample(sample domain.LocationSample) locationSampleDocument {
	return locationSampleDocument{
		Lat:       sample.Lat,
		Lng:       sample.Lng,
		Status:    string(sample.Status),
		Timestamp: sample.Timestamp,
	}
}

func encodeStatusUpdate(update domain.StatusUpdate) statusUpdateDocument {
	return statusUpdateDocument{
		Status:      string(update.Status),
		Description: update.Description,
		Actor:       string(update.Actor),
		Metadata:    update.Metadata,
		Timestamp:   update.Timestamp,
	}
}

func encodeNotificationRecord(record domain.NotificationRecord) notificationRecordDocument {
	return notificationRecordDocument{
		Channel:   string(record.Channel),
		Template:  record.Template,
		Recipient: record.Recipient,
		Sent:      record.Sent,
		Reason:    record.Reason,
		Timestamp: record.Timestamp,
	}
}

func encodeInteraction(interaction domain.CustomerInteraction) interactionDocument {
	return interactionDocument{
		ID:         interaction.ID,
		Type:       string(interaction.Type),
		Outcome:    string(interaction.Outcome),
		CreatedAt:  interaction.CreatedAt,
		ResolvedAt: interaction.ResolvedAt,
	}
}

func encodeActualDurations(actual domain.ActualDurations) actualDurationsDocument {
	return actualDurationsDocument{
		PreparationMillis: durationToMillis(actual.Preparation),
		DeliveryMillis:    durationToMillis(actual.Delivery),
	}
}

func durationToMillis(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	millis := d.Milliseconds()
	return &millis
}

func millisToDuration(millis *int64) *time.Duration {
	if millis == nil {
		return nil
	}
	d := time.Duration(*millis) * time.Millisecond
	return &d
}

func encodeTracking(tracking domain.OrderTracking) trackingDocument {
	locations := make([]locationSampleDocument, 0, len(tracking.LocationHistory))
	for _, sample := range tracking.LocationHistory {
		locations = append(locations, encodeLocationSample(sample))
	}

	updates := make([]statusUpdateDocument, 0, len(tracking.StatusUpdates))
	for _, update := range tracking.StatusUpdates {
		updates = append(updates, encodeStatusUpdate(update))
	}

	notifications := make([]notificationRecordDocument, 0, len(tracking.Notifications))
	for _, record := range tracking.Notifications {
		notifications = append(notifications, encodeNotificationRecord(record))
	}

	interactions := make([]interactionDocument, 0, len(tracking.CustomerInteractions))
	for _, interaction := range tracking.CustomerInteractions {
		interactions = append(interactions, encodeInteraction(interaction))
	}

	timestamps := tracking.Timestamps
	if timestamps == nil {
		timestamps = map[string]time.Time{}
	}

	return trackingDocument{
		RestaurantID:   tracking.RestaurantID,
		DeliveryStatus: string(tracking.DeliveryStatus),
		Driver:         encodeDriver(tracking.Driver),
		Timestamps:     timestamps,
		EstimatedTimes: durationEstimatesDocument{
			PreparationMillis: tracking.EstimatedTimes.Preparation.Milliseconds(),
			DeliveryMillis:    tracking.EstimatedTimes.Delivery.Milliseconds(),
		},
		ActualTimes:          encodeActualDurations(tracking.ActualTimes),
		LocationHistory:      locations,
		StatusUpdates:        updates,
		Notifications:        notifications,
		CustomerInteractions: interactions,
		CreatedAt:            tracking.CreatedAt,
		UpdatedAt:            tracking.UpdatedAt,
	}
}

func (d trackingDocument) toDomain(orderID string) domain.OrderTracking {
	var driver *domain.DeliveryDriver
	if d.Driver != nil {
		driver = &domain.DeliveryDriver{
			ID:      d.Driver.ID,
			Name:    d.Driver.Name,
			Phone:   d.Driver.Phone,
			Vehicle: d.Driver.Vehicle,
		}
	}

	locations := make([]domain.LocationSample, 0, len(d.LocationHistory))
	for _, sample := range d.LocationHistory {
		locations = append(locations, domain.LocationSample{
			Lat:       sample.Lat,
			Lng:       sample.Lng,
			Status:    domain.DeliveryStatus(sample.Status),
			Timestamp: sample.Timestamp,
		})
	}

	updates := make([]domain.StatusUpdate, 0, len(d.StatusUpdates))
	for _, update := range d.StatusUpdates {
		updates = append(updates, domain.StatusUpdate{
			Status:      domain.OrderStatus(update.Status),
			Description: update.Description,
			Actor:       domain.Actor(update.Actor),
			Metadata:    update.Metadata,
			Timestamp:   update.Timestamp,
		})
	}

	notifications := make([]domain.NotificationRecord, 0, len(d.Notifications))
	for _, record := range d.Notifications {
		notifications = append(notifications, domain.NotificationRecord{
			Channel:   domain.NotificationChannel(record.Channel),
			Template:  record.Template,
			Recipient: record.Recipient,
			Sent:      record.Sent,
			Reason:    record.Reason,
			Timestamp: record.Timestamp,
		})
	}

	interactions := make([]domain.CustomerInteraction, 0, len(d.CustomerInteractions))
	for _, interaction := range d.CustomerInteractions {
		interactions = append(interactions, domain.CustomerInteraction{
			ID:         interaction.ID,
			Type:       domain.InteractionType(interaction.Type),
			Outcome:    domain.InteractionOutcome(interaction.Outcome),
			CreatedAt:  interaction.CreatedAt,
			ResolvedAt: interaction.ResolvedAt,
		})
	}

	return domain.OrderTracking{
		OrderID:        orderID,
		RestaurantID:   d.RestaurantID,
		DeliveryStatus: domain.DeliveryStatus(d.DeliveryStatus),
		Driver:         driver,
		Timestamps:     d.Timestamps,
		EstimatedTimes: domain.DurationEstimates{
			Preparation: time.Duration(d.EstimatedTimes.PreparationMillis) * time.Millisecond,
			Delivery:    time.Duration(d.EstimatedTimes.DeliveryMillis) * time.Millisecond,
		},
		ActualTimes: domain.ActualDurations{
			Preparation: millisToDuration(d.ActualTimes.PreparationMillis),
			Delivery:    millisToDuration(d.ActualTimes.DeliveryMillis),
		},
		LocationHistory:      locations,
		StatusUpdates:        updates,
		Notifications:        notifications,
		CustomerInteractions: interactions,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
	}
}

type transactionDocument struct {
	OrderID          string    `firestore:"orderId"`
	RestaurantID     string    `firestore:"restaurantId"`
	Type             string    `firestore:"type"`
	Amount           int64     `firestore:"amount"`
	CommissionAmount int64     `firestore:"commissionAmount"`
	RestaurantAmount int64     `firestore:"restaurantAmount"`
	PaymentMethod    string    `firestore:"paymentMethod"`
	Status           string    `firestore:"status"`
	CreatedAt        time.Time `firestore:"createdAt"`
}

func encodeTransaction(txn domain.Transaction) transactionDocument {
	return transactionDocument{
		OrderID:          txn.OrderID,
		RestaurantID:     txn.RestaurantID,
		Type:             string(txn.Type),
		Amount:           txn.Amount,
		CommissionAmount: txn.CommissionAmount,
		RestaurantAmount: txn.RestaurantAmount,
		PaymentMethod:    string(txn.PaymentMethod),
		Status:           string(txn.Status),
		CreatedAt:        txn.CreatedAt,
	}
}

func (d transactionDocument) toDomain(id string) domain.Transaction {
	return domain.Transaction{
		ID:               id,
		OrderID:          d.OrderID,
		RestaurantID:     d.RestaurantID,
		Type:             domain.TransactionType(d.Type),
		Amount:           d.Amount,
		CommissionAmount: d.CommissionAmount,
		RestaurantAmount: d.RestaurantAmount,
		PaymentMethod:    domain.PaymentMethod(d.PaymentMethod),
		Status:           domain.TransactionStatus(d.Status),
		CreatedAt:        d.CreatedAt,
	}
}

type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	Step         int64     `firestore:"step"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}
