package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/dishpatch/api/internal/domain"
	"github.com/dishpatch/api/internal/platform/config"
	"github.com/dishpatch/api/internal/platform/httpx"
	"github.com/dishpatch/api/internal/services"
)

const maxOrderBodySize = 64 * 1024

type orderLineItemPayload struct {
	ItemRef   string `json:"itemRef"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
	Total     int64  `json:"total"`
}

type orderContactPayload struct {
	CustomerPhone string `json:"customerPhone,omitempty"`
	CustomerEmail string `json:"customerEmail,omitempty"`
	PushToken     string `json:"pushToken,omitempty"`
}

type placeOrderRequest struct {
	RestaurantID       string                 `json:"restaurantId"`
	CustomerID         string                 `json:"customerId"`
	Items              []orderLineItemPayload `json:"items"`
	Subtotal           int64                  `json:"subtotal"`
	DeliveryFee        int64                  `json:"deliveryFee"`
	PaymentMethod      string                 `json:"paymentMethod"`
	Contact            orderContactPayload    `json:"contact"`
	CommissionRate     *float64               `json:"commissionRate,omitempty"`
	EstPrepMinutes     int                    `json:"estimatedPreparationMinutes,omitempty"`
	EstDeliveryMinutes int                    `json:"estimatedDeliveryMinutes,omitempty"`
}

type transitionOrderRequest struct {
	TargetStatus string `json:"targetStatus"`
	Actor        string `json:"actor"`
	ActorID      string `json:"actorId,omitempty"`
	OccurredAt   string `json:"occurredAt,omitempty"`
	Note         string `json:"note,omitempty"`
}

type cancelOrderRequest struct {
	Actor      string `json:"actor"`
	ActorID    string `json:"actorId,omitempty"`
	Reason     string `json:"reason"`
	OccurredAt string `json:"occurredAt,omitempty"`
}

type statusChangePayload struct {
	Status    string `json:"status"`
	Actor     string `json:"actor"`
	Timestamp string `json:"timestamp"`
}

type commissionPayload struct {
	Subtotal          int64   `json:"subtotal"`
	DeliveryFee       int64   `json:"deliveryFee"`
	CommissionRate    float64 `json:"commissionRate"`
	CommissionAmount  int64   `json:"commissionAmount"`
	RestaurantEarning int64   `json:"restaurantEarning"`
	PlatformEarning   int64   `json:"platformEarning"`
}

type orderPayload struct {
	ID            string                 `json:"id"`
	OrderNumber   string                 `json:"orderNumber"`
	RestaurantID  string                 `json:"restaurantId"`
	CustomerID    string                 `json:"customerId"`
	Status        string                 `json:"status"`
	Items         []orderLineItemPayload `json:"items"`
	Subtotal      int64                  `json:"subtotal"`
	DeliveryFee   int64                  `json:"deliveryFee"`
	Total         int64                  `json:"total"`
	Commission    commissionPayload      `json:"commission"`
	PaymentMethod string                 `json:"paymentMethod"`
	StatusHistory []statusChangePayload  `json:"statusHistory"`
	CreatedAt     string                 `json:"createdAt"`
	UpdatedAt     string                 `json:"updatedAt"`
	DeliveredAt   string                 `json:"deliveredAt,omitempty"`
	CancelledAt   string                 `json:"cancelledAt,omitempty"`
	CancelReason  string                 `json:"cancelReason,omitempty"`
}

type orderListResponse struct {
	Items []orderPayload `json:"items"`
}

// OrderHandlers exposes the order lifecycle endpoints.
type OrderHandlers struct {
	orders        services.OrderService
	refundEnabled bool
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orders services.OrderService, features config.FeatureFlags) *OrderHandlers {
	return &OrderHandlers{
		orders:        orders,
		refundEnabled: features.EnableRefundWorkflow,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.placeOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:transition", h.transitionOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
	r.Post("/{orderID}:refund", h.refundOrder)
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req placeOrderRequest
	if err := decodeJSONBody(w, r, &req, maxOrderBodySize); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	items := make([]services.OrderLineItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.OrderLineItem{
			ItemRef:   strings.TrimSpace(item.ItemRef),
			Name:      strings.TrimSpace(item.Name),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Total:     item.Total,
		})
	}

	cmd := services.PlaceOrderCommand{
		RestaurantID:  req.RestaurantID,
		CustomerID:    req.CustomerID,
		Items:         items,
		Subtotal:      req.Subtotal,
		DeliveryFee:   req.DeliveryFee,
		PaymentMethod: domain.PaymentMethod(strings.TrimSpace(req.PaymentMethod)),
		Contact: domain.OrderContact{
			CustomerPhone: strings.TrimSpace(req.Contact.CustomerPhone),
			CustomerEmail: strings.TrimSpace(req.Contact.CustomerEmail),
			PushToken:     strings.TrimSpace(req.Contact.PushToken),
		},
		CommissionRate: req.CommissionRate,
		Estimates: domain.DurationEstimates{
			Preparation: time.Duration(req.EstPrepMinutes) * time.Minute,
			Delivery:    time.Duration(req.EstDeliveryMinutes) * time.Minute,
		},
		ActorID: req.CustomerID,
	}

	order, err := h.orders.PlaceOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildOrderPayload(order))
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	restaurantID := strings.TrimSpace(query.Get("restaurantId"))
	if restaurantID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "restaurantId is required", http.StatusBadRequest))
		return
	}

	start, err := parseTimeParam(query.Get("start"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "start must be a valid RFC3339 timestamp", http.StatusBadRequest))
		return
	}
	end, err := parseTimeParam(query.Get("end"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "end must be a valid RFC3339 timestamp", http.StatusBadRequest))
		return
	}

	orders, err := h.orders.ListOrders(ctx, services.OrderListFilter{
		RestaurantID: restaurantID,
		Start:        start,
		End:          end,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{Items: items})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) transitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req transitionOrderRequest
	if err := decodeJSONBody(w, r, &req, maxOrderBodySize); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	occurredAt, err := parseTimeParam(req.OccurredAt)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "occurredAt must be a valid RFC3339 timestamp", http.StatusBadRequest))
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.OrderStatusTransitionCommand{
		OrderID:      orderID,
		TargetStatus: domain.OrderStatus(strings.TrimSpace(req.TargetStatus)),
		Actor:        domain.Actor(strings.TrimSpace(req.Actor)),
		ActorID:      req.ActorID,
		OccurredAt:   occurredAt,
		Note:         req.Note,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	h.terminate(w, r, false)
}

func (h *OrderHandlers) refundOrder(w http.ResponseWriter, r *http.Request) {
	if !h.refundEnabled {
		httpx.WriteError(r.Context(), w, httpx.NewError("feature_disabled", "refund workflow is disabled", http.StatusNotFound))
		return
	}
	h.terminate(w, r, true)
}

func (h *OrderHandlers) terminate(w http.ResponseWriter, r *http.Request, refund bool) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req cancelOrderRequest
	if err := decodeJSONBody(w, r, &req, maxOrderBodySize); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	occurredAt, err := parseTimeParam(req.OccurredAt)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "occurredAt must be a valid RFC3339 timestamp", http.StatusBadRequest))
		return
	}

	var order services.Order
	if refund {
		order, err = h.orders.Refund(ctx, services.RefundOrderCommand{
			OrderID:    orderID,
			Actor:      domain.Actor(strings.TrimSpace(req.Actor)),
			ActorID:    req.ActorID,
			Reason:     req.Reason,
			OccurredAt: occurredAt,
		})
	} else {
		order, err = h.orders.Cancel(ctx, services.CancelOrderCommand{
			OrderID:    orderID,
			Actor:      domain.Actor(strings.TrimSpace(req.Actor)),
			ActorID:    req.ActorID,
			Reason:     req.Reason,
			OccurredAt: occurredAt,
		})
	}
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func buildOrderPayload(order services.Order) orderPayload {
	items := make([]orderLineItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderLineItemPayload{
			ItemRef:   item.ItemRef,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Total:     item.Total,
		})
	}

	history := make([]statusChangePayload, 0, len(order.StatusHistory))
	for _, change := range order.StatusHistory {
		history = append(history, statusChangePayload{
			Status:    string(change.Status),
			Actor:     string(change.Actor),
			Timestamp: formatTime(change.Timestamp),
		})
	}

	payload := orderPayload{
		ID:           order.ID,
		OrderNumber:  order.OrderNumber,
		RestaurantID: order.RestaurantID,
		CustomerID:   order.CustomerID,
		Status:       string(order.Status),
		Items:        items,
		Subtotal:     order.Subtotal,
		DeliveryFee:  order.DeliveryFee,
		Total:        order.Total,
		Commission: commissionPayload{
			Subtotal:          order.Commission.Subtotal,
			DeliveryFee:       order.Commission.DeliveryFee,
			CommissionRate:    order.Commission.CommissionRate,
			CommissionAmount:  order.Commission.CommissionAmount,
			RestaurantEarning: order.Commission.RestaurantEarning,
			PlatformEarning:   order.Commission.PlatformEarning,
		},
		PaymentMethod: string(order.PaymentMethod),
		StatusHistory: history,
		CreatedAt:     formatTime(order.CreatedAt),
		UpdatedAt:     formatTime(order.UpdatedAt),
	}
	if order.DeliveredAt != nil {
		payload.DeliveredAt = formatTime(*order.DeliveredAt)
	}
	if order.CancelledAt != nil {
		payload.CancelledAt = formatTime(*order.CancelledAt)
	}
	if order.CancelReason != nil {
		payload.CancelReason = *order.CancelReason
	}
	return payload
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, domain.ErrInvalidRate),
		errors.Is(err, domain.ErrInvalidAmount):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrTerminalState):
		httpx.WriteError(ctx, w, httpx.NewError("terminal_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrStaleTransition):
		httpx.WriteError(ctx, w, httpx.NewError("stale_transition", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return errors.New("request body must be valid JSON")
	}
	return nil
}

func parseTimeParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
