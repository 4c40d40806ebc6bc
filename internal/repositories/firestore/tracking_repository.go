package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/dishpatch/api/internal/domain"
	pfirestore "github.com/dishpatch/api/internal/platform/firestore"
	"github.com/dishpatch/api/internal/repositories"
)

// TrackingRepository implements repositories.TrackingRepository backed by
// Firestore. Tracking documents share the order's id.
type TrackingRepository struct {
	provider *pfirestore.Provider
	tracking *pfirestore.BaseRepository[trackingDocument]
}

// NewTrackingRepository constructs a Firestore-backed tracking repository.
func NewTrackingRepository(provider *pfirestore.Provider) (*TrackingRepository, error) {
	if provider == nil {
		return nil, errors.New("tracking repository requires firestore provider")
	}
	base, err := pfirestore.NewBaseRepository[trackingDocument](provider, trackingCollection, nil)
	if err != nil {
		return nil, err
	}
	return &TrackingRepository{provider: provider, tracking: base}, nil
}

// Insert creates the tracking document alongside its order.
func (r *TrackingRepository) Insert(ctx context.Context, tracking domain.OrderTracking) error {
	if strings.TrimSpace(tracking.OrderID) == "" {
		return errors.New("tracking repository: order id is required")
	}
	return r.tracking.Create(ctx, tracking.OrderID, encodeTracking(tracking))
}

// FindByOrderID loads the tracking document for one order.
func (r *TrackingRepository) FindByOrderID(ctx context.Context, orderID string) (domain.OrderTracking, error) {
	doc, err := r.tracking.Get(ctx, orderID)
	if err != nil {
		return domain.OrderTracking{}, err
	}
	return doc.toDomain(orderID), nil
}

// RecordTransition applies the tracking projection of an accepted order
// transition. Milestone timestamps already present on the document are
// dropped, so replays and racing writers never move a recorded milestone.
func (r *TrackingRepository) RecordTransition(ctx context.Context, orderID string, update repositories.TrackingTransitionUpdate) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return errors.New("tracking repository: order id is required")
	}

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.tracking.Doc(ctx, orderID)
		if err != nil {
			return err
		}
		current, err := r.tracking.GetTx(ctx, tx, orderID)
		if err != nil {
			return err
		}

		updates := []firestore.Update{
			{Path: "deliveryStatus", Value: string(update.DeliveryStatus)},
			{Path: "statusUpdates", Value: append(current.StatusUpdates, encodeStatusUpdate(update.StatusUpdate))},
			{Path: "updatedAt", Value: update.UpdatedAt},
		}
		for key, at := range update.Timestamps {
			if _, recorded := current.Timestamps[key]; recorded {
				continue
			}
			updates = append(updates, firestore.Update{Path: "timestamps." + key, Value: at})
		}
		if millis := durationToMillis(update.ActualTimes.Preparation); millis != nil && current.ActualTimes.PreparationMillis == nil {
			updates = append(updates, firestore.Update{Path: "actualTimes.preparationMillis", Value: *millis})
		}
		if millis := durationToMillis(update.ActualTimes.Delivery); millis != nil && current.ActualTimes.DeliveryMillis == nil {
			updates = append(updates, firestore.Update{Path: "actualTimes.deliveryMillis", Value: *millis})
		}

		if err := tx.Update(ref, updates); err != nil {
			return pfirestore.WrapError("firestore.orderTracking.transition", err)
		}
		return nil
	})
}

// SetDriver stores or clears the assigned driver. Assignment re-reads the
// document inside the transaction: a driver already present fails the write
// with a conflict, so racing assigns can never swap identities.
func (r *TrackingRepository) SetDriver(ctx context.Context, orderID string, driver *domain.DeliveryDriver, at time.Time) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return errors.New("tracking repository: order id is required")
	}

	op := "firestore.orderTracking.driver"
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.tracking.Doc(ctx, orderID)
		if err != nil {
			return err
		}
		current, err := r.tracking.GetTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if driver != nil && current.Driver != nil {
			return pfirestore.NewConflict(op, fmt.Errorf(
				"order %s already has driver %s", orderID, current.Driver.ID,
			))
		}

		var value any = firestore.Delete
		if driver != nil {
			value = encodeDriver(driver)
		}
		if err := tx.Update(ref, []firestore.Update{
			{Path: "driver", Value: value},
			{Path: "updatedAt", Value: at},
		}); err != nil {
			return pfirestore.WrapError(op, err)
		}
		return nil
	})
}

// AppendLocation appends one GPS sample to the location history. The array
// is rewritten inside a transaction: ArrayUnion drops an element equal to
// one already stored, and the history must keep identical pings.
func (r *TrackingRepository) AppendLocation(ctx context.Context, orderID string, sample domain.LocationSample) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return errors.New("tracking repository: order id is required")
	}

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.tracking.Doc(ctx, orderID)
		if err != nil {
			return err
		}
		current, err := r.tracking.GetTx(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if err := tx.Update(ref, []firestore.Update{
			{Path: "locationHistory", Value: append(current.LocationHistory, encodeLocationSample(sample))},
			{Path: "updatedAt", Value: sample.Timestamp},
		}); err != nil {
			return pfirestore.WrapError("firestore.orderTracking.location", err)
		}
		return nil
	})
}

// AppendInteraction appends a pending customer interaction.
func (r *TrackingRepository) AppendInteraction(ctx context.Context, orderID string, interaction domain.CustomerInteraction) error {
	return r.tracking.Update(ctx, orderID, []firestore.Update{
		{Path: "customerInteractions", Value: firestore.ArrayUnion(encodeInteraction(interaction))},
		{Path: "updatedAt", Value: interaction.CreatedAt},
	})
}

// ResolveInteraction flips one pending interaction to the given outcome.
// The interactions array is rewritten inside a transaction; a missing or
// already-resolved entry yields a not-found error.
func (r *TrackingRepository) ResolveInteraction(ctx context.Context, orderID string, interactionID string, outcome domain.InteractionOutcome, at time.Time) error {
	orderID = strings.TrimSpace(orderID)
	interactionID = strings.TrimSpace(interactionID)
	if orderID == "" || interactionID == "" {
		return errors.New("tracking repository: order id and interaction id are required")
	}

	op := "firestore.orderTracking.resolveInteraction"
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.tracking.Doc(ctx, orderID)
		if err != nil {
			return err
		}
		current, err := r.tracking.GetTx(ctx, tx, orderID)
		if err != nil {
			return err
		}

		resolved := false
		interactions := make([]interactionDocument, 0, len(current.CustomerInteractions))
		for _, interaction := range current.CustomerInteractions {
			if interaction.ID == interactionID {
				if domain.InteractionOutcome(interaction.Outcome) != domain.InteractionPending {
					return pfirestore.NewNotFound(op, fmt.Errorf(
						"interaction %s already resolved as %s", interactionID, interaction.Outcome,
					))
				}
				resolvedAt := at
				interaction.Outcome = string(outcome)
				interaction.ResolvedAt = &resolvedAt
				resolved = true
			}
			interactions = append(interactions, interaction)
		}
		if !resolved {
			return pfirestore.NewNotFound(op, fmt.Errorf("interaction %s not found on order %s", interactionID, orderID))
		}

		if err := tx.Update(ref, []firestore.Update{
			{Path: "customerInteractions", Value: interactions},
			{Path: "updatedAt", Value: at},
		}); err != nil {
			return pfirestore.WrapError(op, err)
		}
		return nil
	})
}

// AppendNotifications appends the notification records produced by one
// transition. Rewritten in a transaction for the same reason as
// AppendLocation: identical dropped-intent records would merge under
// ArrayUnion.
func (r *TrackingRepository) AppendNotifications(ctx context.Context, orderID string, records []domain.NotificationRecord) error {
	if len(records) == 0 {
		return nil
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return errors.New("tracking repository: order id is required")
	}

	encoded := make([]notificationRecordDocument, 0, len(records))
	var latest time.Time
	for _, record := range records {
		encoded = append(encoded, encodeNotificationRecord(record))
		if record.Timestamp.After(latest) {
			latest = record.Timestamp
		}
	}

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.tracking.Doc(ctx, orderID)
		if err != nil {
			return err
		}
		current, err := r.tracking.GetTx(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if err := tx.Update(ref, []firestore.Update{
			{Path: "notifications", Value: append(current.Notifications, encoded...)},
			{Path: "updatedAt", Value: latest},
		}); err != nil {
			return pfirestore.WrapError("firestore.orderTracking.notifications", err)
		}
		return nil
	})
}

// Watch streams the tracking document on every write until the context is
// cancelled or the returned stop function is called.
func (r *TrackingRepository) Watch(ctx context.Context, orderID string) (<-chan domain.OrderTracking, func(), error) {
	ref, err := r.tracking.Doc(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	snapshots := ref.Snapshots(watchCtx)
	updates := make(chan domain.OrderTracking, 1)

	go func() {
		defer close(updates)
		defer snapshots.Stop()
		for {
			snap, err := snapshots.Next()
			if err != nil {
				return
			}
			if !snap.Exists() {
				continue
			}
			doc, err := r.tracking.Decode(snap)
			if err != nil {
				continue
			}
			select {
			case updates <- doc.toDomain(orderID):
			case <-watchCtx.Done():
				return
			}
		}
	}()

	return updates, cancel, nil
}
