package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/dishpatch/api/internal/domain"
	"github.com/dishpatch/api/internal/platform/config"
	"github.com/dishpatch/api/internal/platform/httpx"
	"github.com/dishpatch/api/internal/services"
)

const maxTrackingBodySize = 16 * 1024

type assignDriverRequest struct {
	Driver struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Phone   string `json:"phone,omitempty"`
		Vehicle string `json:"vehicle,omitempty"`
	} `json:"driver"`
	ActorID string `json:"actorId,omitempty"`
}

type unassignDriverRequest struct {
	ActorID string `json:"actorId,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type appendLocationRequest struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	RecordedAt string  `json:"recordedAt,omitempty"`
}

type requestInteractionRequest struct {
	Type    string `json:"type"`
	Note    string `json:"note,omitempty"`
	ActorID string `json:"actorId,omitempty"`
}

type resolveInteractionRequest struct {
	Outcome string `json:"outcome"`
	ActorID string `json:"actorId,omitempty"`
}

type driverPayload struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Vehicle string `json:"vehicle,omitempty"`
}

type locationSamplePayload struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Status    string  `json:"status"`
	Timestamp string  `json:"timestamp"`
}

type statusUpdatePayload struct {
	Status      string         `json:"status"`
	Description string         `json:"description"`
	Actor       string         `json:"actor"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Timestamp   string         `json:"timestamp"`
}

type notificationRecordPayload struct {
	Channel   string `json:"channel"`
	Template  string `json:"template"`
	Recipient string `json:"recipient,omitempty"`
	Sent      bool   `json:"sent"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

type interactionPayload struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Outcome    string `json:"outcome"`
	CreatedAt  string `json:"createdAt"`
	ResolvedAt string `json:"resolvedAt,omitempty"`
}

type trackingPayload struct {
	OrderID              string                      `json:"orderId"`
	RestaurantID         string                      `json:"restaurantId"`
	DeliveryStatus       string                      `json:"deliveryStatus"`
	Driver               *driverPayload              `json:"driver,omitempty"`
	Timestamps           map[string]string           `json:"timestamps"`
	EstimatedTimes       map[string]string           `json:"estimatedTimes"`
	ActualTimes          map[string]string           `json:"actualTimes"`
	LocationHistory      []locationSamplePayload     `json:"locationHistory"`
	StatusUpdates        []statusUpdatePayload       `json:"statusUpdates"`
	Notifications        []notificationRecordPayload `json:"notifications"`
	CustomerInteractions []interactionPayload        `json:"customerInteractions"`
	UpdatedAt            string                      `json:"updatedAt"`
}

// TrackingHandlers exposes the per-order tracking endpoints.
type TrackingHandlers struct {
	tracking     services.TrackingService
	liveTracking bool
	staleAfter   time.Duration
}

// NewTrackingHandlers constructs a new TrackingHandlers instance.
func NewTrackingHandlers(tracking services.TrackingService, features config.FeatureFlags, notifications config.NotificationConfig) *TrackingHandlers {
	staleAfter := notifications.TrackingStaleAfter
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	return &TrackingHandlers{
		tracking:     tracking,
		liveTracking: features.EnableLiveTracking,
		staleAfter:   staleAfter,
	}
}

// Routes registers the /orders/{orderID}/tracking endpoints.
func (h *TrackingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getTracking)
	r.Get("/stream", h.streamTracking)
	r.Put("/driver", h.assignDriver)
	r.Delete("/driver", h.unassignDriver)
	r.Post("/locations", h.appendLocation)
	r.Post("/interactions", h.requestInteraction)
	r.Post("/interactions/{interactionID}:resolve", h.resolveInteraction)
}

func (h *TrackingHandlers) getTracking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	tracking, err := h.tracking.GetTracking(ctx, orderID)
	if err != nil {
		writeTrackingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildTrackingPayload(tracking))
}

// streamTracking pushes tracking snapshots over server-sent events until the
// client disconnects.
func (h *TrackingHandlers) streamTracking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.liveTracking {
		httpx.WriteError(ctx, w, httpx.NewError("feature_disabled", "live tracking is disabled", http.StatusNotFound))
		return
	}
	orderID, ok := h.requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		httpx.WriteError(ctx, w, httpx.NewError("streaming_unsupported", "response writer does not support streaming", http.StatusInternalServerError))
		return
	}

	updates, stop, err := h.tracking.WatchTracking(ctx, orderID)
	if err != nil {
		writeTrackingError(ctx, w, err)
		return
	}
	defer stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// One stale marker per quiet period; the timer re-arms on the next
	// tracking update.
	stale := time.NewTimer(h.staleAfter)
	defer stale.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stale.C:
			fmt.Fprint(w, "event: stale\ndata: {}\n\n")
			flusher.Flush()
		case tracking, open := <-updates:
			if !open {
				return
			}
			data, err := json.Marshal(buildTrackingPayload(tracking))
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: tracking\ndata: %s\n\n", data)
			flusher.Flush()
			if !stale.Stop() {
				select {
				case <-stale.C:
				default:
				}
			}
			stale.Reset(h.staleAfter)
		}
	}
}

func (h *TrackingHandlers) assignDriver(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	var req assignDriverRequest
	if err := decodeJSONBody(w, r, &req, maxTrackingBodySize); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	tracking, err := h.tracking.AssignDriver(ctx, services.AssignDriverCommand{
		OrderID: orderID,
		Driver: domain.DeliveryDriver{
			ID:      strings.TrimSpace(req.Driver.ID),
			Name:    strings.TrimSpace(req.Driver.Name),
			Phone:   strings.TrimSpace(req.Driver.Phone),
			Vehicle: strings.TrimSpace(req.Driver.Vehicle),
		},
		ActorID: req.ActorID,
	})
	if err != nil {
		writeTrackingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildTrackingPayload(tracking))
}

func (h *TrackingHandlers) unassignDriver(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	var req unassignDriverRequest
	if r.ContentLength > 0 {
		if err := decodeJSONBody(w, r, &req, maxTrackingBodySize); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
	}

	tracking, err := h.tracking.UnassignDriver(ctx, services.UnassignDriverCommand{
		OrderID: orderID,
		ActorID: req.ActorID,
		Reason:  req.Reason,
	})
	if err != nil {
		writeTrackingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildTrackingPayload(tracking))
}

func (h *TrackingHandlers) appendLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	var req appendLocationRequest
	if err := decodeJSONBody(w, r, &req, maxTrackingBodySize); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	recordedAt, err := parseTimeParam(req.RecordedAt)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "recordedAt must be a valid RFC3339 timestamp", http.StatusBadRequest))
		return
	}

	tracking, err := h.tracking.AppendLocation(ctx, services.AppendLocationCommand{
		OrderID:    orderID,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		RecordedAt: recordedAt,
	})
	if err != nil {
		writeTrackingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildTrackingPayload(tracking))
}

func (h *TrackingHandlers) requestInteraction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	var req requestInteractionRequest
	if err := decodeJSONBody(w, r, &req, maxTrackingBodySize); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	interaction, err := h.tracking.RequestInteraction(ctx, services.RequestInteractionCommand{
		OrderID: orderID,
		Type:    domain.InteractionType(strings.TrimSpace(req.Type)),
		Note:    req.Note,
		ActorID: req.ActorID,
	})
	if err != nil {
		writeTrackingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildInteractionPayload(interaction))
}

func (h *TrackingHandlers) resolveInteraction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.requireOrderID(ctx, w, r)
	if !ok {
		return
	}

	interactionID := strings.TrimSpace(chi.URLParam(r, "interactionID"))
	if interactionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "interaction id is required", http.StatusBadRequest))
		return
	}

	var req resolveInteractionRequest
	if err := decodeJSONBody(w, r, &req, maxTrackingBodySize); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	tracking, err := h.tracking.ResolveInteraction(ctx, services.ResolveInteractionCommand{
		OrderID:       orderID,
		InteractionID: interactionID,
		Outcome:       domain.InteractionOutcome(strings.TrimSpace(req.Outcome)),
		ActorID:       req.ActorID,
	})
	if err != nil {
		writeTrackingError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildTrackingPayload(tracking))
}

func (h *TrackingHandlers) requireOrderID(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.tracking == nil {
		httpx.WriteError(ctx, w, httpx.NewError("tracking_service_unavailable", "tracking service unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return "", false
	}
	return orderID, true
}

func buildTrackingPayload(tracking services.OrderTracking) trackingPayload {
	var driver *driverPayload
	if tracking.Driver != nil {
		driver = &driverPayload{
			ID:      tracking.Driver.ID,
			Name:    tracking.Driver.Name,
			Phone:   tracking.Driver.Phone,
			Vehicle: tracking.Driver.Vehicle,
		}
	}

	timestamps := make(map[string]string, len(tracking.Timestamps))
	for key, at := range tracking.Timestamps {
		timestamps[key] = formatTime(at)
	}

	estimated := map[string]string{
		"preparation": tracking.EstimatedTimes.Preparation.String(),
		"delivery":    tracking.EstimatedTimes.Delivery.String(),
	}
	actual := map[string]string{}
	if tracking.ActualTimes.Preparation != nil {
		actual["preparation"] = tracking.ActualTimes.Preparation.String()
	}
	if tracking.ActualTimes.Delivery != nil {
		actual["delivery"] = tracking.ActualTimes.Delivery.String()
	}

	locations := make([]locationSamplePayload, 0, len(tracking.LocationHistory))
	for _, sample := range tracking.LocationHistory {
		locations = append(locations, locationSamplePayload{
			Lat:       sample.Lat,
			Lng:       sample.Lng,
			Status:    string(sample.Status),
			Timestamp: formatTime(sample.Timestamp),
		})
	}

	updates := make([]statusUpdatePayload, 0, len(tracking.StatusUpdates))
	for _, update := range tracking.StatusUpdates {
		updates = append(updates, statusUpdatePayload{
			Status:      string(update.Status),
			Description: update.Description,
			Actor:       string(update.Actor),
			Metadata:    update.Metadata,
			Timestamp:   formatTime(update.Timestamp),
		})
	}

	notifications := make([]notificationRecordPayload, 0, len(tracking.Notifications))
	for _, record := range tracking.Notifications {
		notifications = append(notifications, notificationRecordPayload{
			Channel:   string(record.Channel),
			Template:  record.Template,
			Recipient: record.Recipient,
			Sent:      record.Sent,
			Reason:    record.Reason,
			Timestamp: formatTime(record.Timestamp),
		})
	}

	interactions := make([]interactionPayload, 0, len(tracking.CustomerInteractions))
	for _, interaction := range tracking.CustomerInteractions {
		interactions = append(interactions, buildInteractionPayload(interaction))
	}

	return trackingPayload{
		OrderID:              tracking.OrderID,
		RestaurantID:         tracking.RestaurantID,
		DeliveryStatus:       string(tracking.DeliveryStatus),
		Driver:               driver,
		Timestamps:           timestamps,
		EstimatedTimes:       estimated,
		ActualTimes:          actual,
		LocationHistory:      locations,
		StatusUpdates:        updates,
		Notifications:        notifications,
		CustomerInteractions: interactions,
		UpdatedAt:            formatTime(tracking.UpdatedAt),
	}
}

func buildInteractionPayload(interaction services.CustomerInteraction) interactionPayload {
	payload := interactionPayload{
		ID:        interaction.ID,
		Type:      string(interaction.Type),
		Outcome:   string(interaction.Outcome),
		CreatedAt: formatTime(interaction.CreatedAt),
	}
	if interaction.ResolvedAt != nil {
		payload.ResolvedAt = formatTime(*interaction.ResolvedAt)
	}
	return payload
}

func writeTrackingError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrTrackingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrTrackingNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("tracking_not_found", "tracking record not found", http.StatusNotFound))
	case errors.Is(err, services.ErrDriverAlreadyAssigned):
		httpx.WriteError(ctx, w, httpx.NewError("driver_already_assigned", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrInteractionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("interaction_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrTrackingConflict):
		httpx.WriteError(ctx, w, httpx.NewError("tracking_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("tracking_error", "failed to process tracking request", http.StatusInternalServerError))
	}
}
