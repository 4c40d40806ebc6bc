package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dishpatch/api/internal/platform/httpx"
	"github.com/dishpatch/api/internal/services"
)

type dailyFinancialsPayload struct {
	Date       string `json:"date"`
	Revenue    int64  `json:"revenue"`
	Commission int64  `json:"commission"`
	NetEarning int64  `json:"netEarning"`
	OrderCount int    `json:"orderCount"`
}

type paymentMethodFinancialsPayload struct {
	Method     string `json:"method"`
	Revenue    int64  `json:"revenue"`
	Commission int64  `json:"commission"`
	NetEarning int64  `json:"netEarning"`
	OrderCount int    `json:"orderCount"`
}

type financialsPayload struct {
	RestaurantID           string                           `json:"restaurantId"`
	PeriodStart            string                           `json:"periodStart"`
	PeriodEnd              string                           `json:"periodEnd"`
	TotalRevenue           int64                            `json:"totalRevenue"`
	TotalCommission        int64                            `json:"totalCommission"`
	TotalNetEarning        int64                            `json:"totalNetEarning"`
	RefundedAmount         int64                            `json:"refundedAmount"`
	OrderCount             int                              `json:"orderCount"`
	DailyBreakdown         []dailyFinancialsPayload         `json:"dailyBreakdown"`
	PaymentMethodBreakdown []paymentMethodFinancialsPayload `json:"paymentMethodBreakdown"`
	SkippedOrders          []string                         `json:"skippedOrders,omitempty"`
	GeneratedAt            string                           `json:"generatedAt"`
}

// FinancialsHandlers exposes the restaurant settlement report endpoint.
type FinancialsHandlers struct {
	financials services.FinancialsService
}

// NewFinancialsHandlers constructs a new FinancialsHandlers instance.
func NewFinancialsHandlers(financials services.FinancialsService) *FinancialsHandlers {
	return &FinancialsHandlers{financials: financials}
}

// Routes registers the /restaurants endpoints.
func (h *FinancialsHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{restaurantID}/financials", h.report)
}

func (h *FinancialsHandlers) report(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.financials == nil {
		httpx.WriteError(ctx, w, httpx.NewError("financials_service_unavailable", "financials service unavailable", http.StatusServiceUnavailable))
		return
	}

	restaurantID := strings.TrimSpace(chi.URLParam(r, "restaurantID"))
	if restaurantID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "restaurant id is required", http.StatusBadRequest))
		return
	}

	query := r.URL.Query()
	start, err := parseTimeParam(query.Get("start"))
	if err != nil || start.IsZero() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "start must be a valid RFC3339 timestamp", http.StatusBadRequest))
		return
	}
	end, err := parseTimeParam(query.Get("end"))
	if err != nil || end.IsZero() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "end must be a valid RFC3339 timestamp", http.StatusBadRequest))
		return
	}

	report, err := h.financials.Report(ctx, services.FinancialsReportCommand{
		RestaurantID: restaurantID,
		Start:        start,
		End:          end,
	})
	if err != nil {
		writeFinancialsError(ctx, w, err)
		return
	}

	daily := make([]dailyFinancialsPayload, 0, len(report.DailyBreakdown))
	for _, day := range report.DailyBreakdown {
		daily = append(daily, dailyFinancialsPayload{
			Date:       day.Date,
			Revenue:    day.Revenue,
			Commission: day.Commission,
			NetEarning: day.NetEarning,
			OrderCount: day.OrderCount,
		})
	}

	methods := make([]paymentMethodFinancialsPayload, 0, len(report.PaymentMethodBreakdown))
	for _, method := range report.PaymentMethodBreakdown {
		methods = append(methods, paymentMethodFinancialsPayload{
			Method:     string(method.Method),
			Revenue:    method.Revenue,
			Commission: method.Commission,
			NetEarning: method.NetEarning,
			OrderCount: method.OrderCount,
		})
	}

	writeJSONResponse(w, http.StatusOK, financialsPayload{
		RestaurantID:           report.RestaurantID,
		PeriodStart:            formatTime(report.PeriodStart),
		PeriodEnd:              formatTime(report.PeriodEnd),
		TotalRevenue:           report.TotalRevenue,
		TotalCommission:        report.TotalCommission,
		TotalNetEarning:        report.TotalNetEarning,
		RefundedAmount:         report.RefundedAmount,
		OrderCount:             report.OrderCount,
		DailyBreakdown:         daily,
		PaymentMethodBreakdown: methods,
		SkippedOrders:          report.SkippedOrders,
		GeneratedAt:            formatTime(report.GeneratedAt),
	})
}

func writeFinancialsError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, services.ErrFinancialsInvalidInput) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("financials_error", "failed to build financial report", http.StatusInternalServerError))
}
