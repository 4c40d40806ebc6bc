package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/dishpatch/api/internal/domain"
	"github.com/dishpatch/api/internal/services"
)

type stubFinancialsService struct {
	reportFn func(context.Context, services.FinancialsReportCommand) (services.RestaurantFinancials, error)
}

func (s *stubFinancialsService) Report(ctx context.Context, cmd services.FinancialsReportCommand) (services.RestaurantFinancials, error) {
	if s.reportFn != nil {
		return s.reportFn(ctx, cmd)
	}
	return services.RestaurantFinancials{}, errors.New("not implemented")
}

func financialsRouter(service services.FinancialsService) chi.Router {
	handler := NewFinancialsHandlers(service)
	router := chi.NewRouter()
	router.Route("/restaurants", handler.Routes)
	return router
}

func TestFinancialsHandlersReport(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	generated := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

	var captured services.FinancialsReportCommand
	router := financialsRouter(&stubFinancialsService{
		reportFn: func(_ context.Context, cmd services.FinancialsReportCommand) (services.RestaurantFinancials, error) {
			captured = cmd
			return services.RestaurantFinancials{
				RestaurantID:    "rest_1",
				PeriodStart:     start,
				PeriodEnd:       end,
				TotalRevenue:    22000,
				TotalCommission: 1800,
				TotalNetEarning: 20200,
				OrderCount:      2,
				DailyBreakdown: []services.DailyFinancials{
					{Date: "2026-03-10", Revenue: 22000, Commission: 1800, NetEarning: 20200, OrderCount: 2},
				},
				PaymentMethodBreakdown: []services.PaymentMethodFinancials{
					{Method: domain.PaymentCashOnDelivery, Revenue: 22000, Commission: 1800, NetEarning: 20200, OrderCount: 2},
				},
				GeneratedAt: generated,
			}, nil
		},
	})

	target := fmt.Sprintf("/restaurants/rest_1/financials?start=%s&end=%s",
		start.Format(time.RFC3339), end.Format(time.RFC3339))
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.RestaurantID != "rest_1" || !captured.Start.Equal(start) || !captured.End.Equal(end) {
		t.Fatalf("unexpected command %+v", captured)
	}

	var resp financialsPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.TotalRevenue != 22000 || resp.TotalNetEarning != 20200 {
		t.Fatalf("unexpected totals %+v", resp)
	}
	if len(resp.DailyBreakdown) != 1 || resp.DailyBreakdown[0].Date != "2026-03-10" {
		t.Fatalf("unexpected daily breakdown %+v", resp.DailyBreakdown)
	}
	if len(resp.PaymentMethodBreakdown) != 1 || resp.PaymentMethodBreakdown[0].Method != "cash_on_delivery" {
		t.Fatalf("unexpected payment method breakdown %+v", resp.PaymentMethodBreakdown)
	}
}

func TestFinancialsHandlersRequiresWindow(t *testing.T) {
	cases := []struct {
		name   string
		target string
	}{
		{"missing start", "/restaurants/rest_1/financials?end=2026-04-01T00:00:00Z"},
		{"missing end", "/restaurants/rest_1/financials?start=2026-03-01T00:00:00Z"},
		{"malformed start", "/restaurants/rest_1/financials?start=yesterday&end=2026-04-01T00:00:00Z"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := financialsRouter(&stubFinancialsService{})
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rr.Code)
			}
		})
	}
}

func TestFinancialsHandlersInvalidWindowFromService(t *testing.T) {
	router := financialsRouter(&stubFinancialsService{
		reportFn: func(context.Context, services.FinancialsReportCommand) (services.RestaurantFinancials, error) {
			return services.RestaurantFinancials{}, services.ErrFinancialsInvalidInput
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/restaurants/rest_1/financials?start=2026-04-01T00:00:00Z&end=2026-03-01T00:00:00Z", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}
