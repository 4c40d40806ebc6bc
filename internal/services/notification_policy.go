package services

import (
	"strings"
	"time"

	domain "github.com/dishpatch/api/internal/domain"
)

// channelTemplate pairs an outbound channel with the template rendered by
// the external dispatcher.
type channelTemplate struct {
	channel  NotificationChannel
	template string
}

// notificationTable is the explicit status to channel mapping. Statuses
// absent from the table notify nobody; adding a status never changes the
// behaviour of another one.
var notificationTable = map[domain.OrderStatus][]channelTemplate{
	domain.OrderStatusPending: {
		{domain.ChannelPush, "order_received"},
	},
	domain.OrderStatusConfirmed: {
		{domain.ChannelPush, "order_confirmed"},
		{domain.ChannelSMS, "order_confirmed"},
	},
	domain.OrderStatusPreparing: {
		{domain.ChannelPush, "order_preparing"},
	},
	domain.OrderStatusAssigned: {
		{domain.ChannelPush, "driver_assigned"},
	},
	domain.OrderStatusPickedUp: {
		{domain.ChannelPush, "order_picked_up"},
	},
	domain.OrderStatusDelivering: {
		{domain.ChannelPush, "order_on_way"},
	},
	domain.OrderStatusArrived: {
		{domain.ChannelPush, "driver_arrived"},
		{domain.ChannelSMS, "driver_arrived"},
	},
	domain.OrderStatusDelivered: {
		{domain.ChannelPush, "order_delivered"},
		{domain.ChannelEmail, "review_request"},
	},
	domain.OrderStatusCancelled: {
		{domain.ChannelPush, "order_cancelled"},
		{domain.ChannelSMS, "order_cancelled"},
	},
	domain.OrderStatusRefunded: {
		{domain.ChannelEmail, "refund_processed"},
	},
}

// NotificationPolicySettings carries the deployment-level switches applied
// on top of the status table.
type NotificationPolicySettings struct {
	// SMSSenderID is stamped on SMS-class intents so the dispatcher sends
	// from the right originator.
	SMSSenderID string
	// PushEnabled drops all push intents when false, recording the drop.
	PushEnabled bool
}

// NotificationPolicy decides which notification intents an accepted
// transition produces. It is a pure mapping; sending happens elsewhere.
type NotificationPolicy struct {
	table    map[domain.OrderStatus][]channelTemplate
	settings NotificationPolicySettings
}

// NewNotificationPolicy returns the policy backed by the standard table.
func NewNotificationPolicy(settings NotificationPolicySettings) *NotificationPolicy {
	return &NotificationPolicy{table: notificationTable, settings: settings}
}

// Decide maps the order's current status to notification intents and a
// parallel record log. The first len(intents) records correspond to the
// returned intents with Sent=true; trailing records are dropped intents
// (missing contact data) with Sent=false and a reason. Dropping never
// blocks the transition.
func (p *NotificationPolicy) Decide(order Order, driver *DeliveryDriver, at time.Time) ([]NotificationIntent, []NotificationRecord) {
	entries := p.table[order.Status]
	if len(entries) == 0 {
		return nil, nil
	}

	intents := make([]NotificationIntent, 0, len(entries))
	sent := make([]NotificationRecord, 0, len(entries))
	var dropped []NotificationRecord

	for _, entry := range entries {
		if entry.channel == domain.ChannelPush && !p.settings.PushEnabled {
			dropped = append(dropped, NotificationRecord{
				Channel:   entry.channel,
				Template:  entry.template,
				Sent:      false,
				Reason:    "push notifications disabled",
				Timestamp: at,
			})
			continue
		}
		recipient, reason := resolveRecipient(entry.channel, order.Contact)
		if reason != "" {
			dropped = append(dropped, NotificationRecord{
				Channel:   entry.channel,
				Template:  entry.template,
				Sent:      false,
				Reason:    reason,
				Timestamp: at,
			})
			continue
		}
		if entry.template == "driver_assigned" && driver == nil {
			dropped = append(dropped, NotificationRecord{
				Channel:   entry.channel,
				Template:  entry.template,
				Recipient: recipient,
				Sent:      false,
				Reason:    "driver record missing",
				Timestamp: at,
			})
			continue
		}

		intent := NotificationIntent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			Status:      string(order.Status),
			Channel:     entry.channel,
			Template:    entry.template,
			Recipient:   recipient,
			OccurredAt:  at,
		}
		switch entry.channel {
		case domain.ChannelSMS, domain.ChannelWhatsApp, domain.ChannelTelegram:
			intent.Sender = p.settings.SMSSenderID
		}
		intents = append(intents, intent)
		sent = append(sent, NotificationRecord{
			Channel:   entry.channel,
			Template:  entry.template,
			Recipient: recipient,
			Sent:      true,
			Timestamp: at,
		})
	}

	return intents, append(sent, dropped...)
}

func resolveRecipient(channel NotificationChannel, contact OrderContact) (string, string) {
	switch channel {
	case domain.ChannelPush:
		if token := strings.TrimSpace(contact.PushToken); token != "" {
			return token, ""
		}
		return "", "missing push token"
	case domain.ChannelSMS, domain.ChannelWhatsApp, domain.ChannelTelegram:
		if phone := strings.TrimSpace(contact.CustomerPhone); phone != "" {
			return phone, ""
		}
		return "", "missing customer phone"
	case domain.ChannelEmail:
		if email := strings.TrimSpace(contact.CustomerEmail); email != "" {
			return email, ""
		}
		return "", "missing customer email"
	}
	return "", "unsupported channel"
}
