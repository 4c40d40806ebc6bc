package domain

import (
	"reflect"
	"testing"
	"time"
)

func deliveredOrder(id string, createdAt time.Time, subtotal, fee int64, method PaymentMethod) Order {
	calc, err := ComputeCommission(subtotal, fee, DefaultCommissionRate)
	if err != nil {
		panic(err)
	}
	return Order{
		ID:            id,
		RestaurantID:  "rest-1",
		Status:        OrderStatusDelivered,
		Subtotal:      subtotal,
		DeliveryFee:   fee,
		Total:         subtotal + fee,
		Commission:    calc,
		PaymentMethod: method,
		CreatedAt:     createdAt,
	}
}

func TestAggregateFinancialsCrossInvariants(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC)

	orders := []Order{
		deliveredOrder("ord-1", start.Add(2*time.Hour), 10000, 1000, PaymentCashOnDelivery),
		deliveredOrder("ord-2", start.Add(26*time.Hour), 4500, 500, PaymentCardOnDelivery),
		deliveredOrder("ord-3", start.Add(27*time.Hour), 7300, 800, PaymentCashOnDelivery),
		// Cancelled orders never contribute revenue.
		{ID: "ord-4", Status: OrderStatusCancelled, Total: 9999, CreatedAt: start.Add(3 * time.Hour)},
		// Pending orders never contribute revenue.
		{ID: "ord-5", Status: OrderStatusPending, Total: 1234, CreatedAt: start.Add(4 * time.Hour)},
	}

	report := AggregateFinancials("rest-1", orders, nil, start, end)

	if report.OrderCount != 3 {
		t.Fatalf("expected 3 counted orders, got %d", report.OrderCount)
	}
	if report.TotalRevenue != 11000+5000+8100 {
		t.Fatalf("unexpected total revenue %d", report.TotalRevenue)
	}

	var dailySum, methodSum int64
	for _, day := range report.DailyBreakdown {
		dailySum += day.Revenue
	}
	for _, method := range report.PaymentMethodBreakdown {
		methodSum += method.Revenue
	}
	if dailySum != report.TotalRevenue {
		t.Fatalf("daily breakdown sums to %d, total is %d", dailySum, report.TotalRevenue)
	}
	if methodSum != report.TotalRevenue {
		t.Fatalf("payment method breakdown sums to %d, total is %d", methodSum, report.TotalRevenue)
	}

	var commissionSum int64
	for _, day := range report.DailyBreakdown {
		commissionSum += day.Commission
	}
	if commissionSum != report.TotalCommission {
		t.Fatalf("daily commission sums to %d, total is %d", commissionSum, report.TotalCommission)
	}
}

func TestAggregateFinancialsWindowIsHalfOpen(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)

	orders := []Order{
		deliveredOrder("on-start", start, 1000, 0, PaymentCashOnDelivery),
		deliveredOrder("inside", start.Add(12*time.Hour), 2000, 0, PaymentCashOnDelivery),
		deliveredOrder("on-end", end, 4000, 0, PaymentCashOnDelivery),
		deliveredOrder("before", start.Add(-time.Second), 8000, 0, PaymentCashOnDelivery),
	}

	report := AggregateFinancials("rest-1", orders, nil, start, end)
	if report.TotalRevenue != 3000 {
		t.Fatalf("expected inclusive-start/exclusive-end revenue 3000, got %d", report.TotalRevenue)
	}
	if report.OrderCount != 2 {
		t.Fatalf("expected 2 orders in window, got %d", report.OrderCount)
	}
}

func TestAggregateFinancialsOmitsEmptyDays(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	orders := []Order{
		deliveredOrder("ord-1", start.Add(1*time.Hour), 1000, 0, PaymentCashOnDelivery),
		deliveredOrder("ord-2", start.Add(5*24*time.Hour), 2000, 0, PaymentCashOnDelivery),
	}

	report := AggregateFinancials("rest-1", orders, nil, start, end)
	if len(report.DailyBreakdown) != 2 {
		t.Fatalf("expected 2 daily entries, got %d", len(report.DailyBreakdown))
	}
	if report.DailyBreakdown[0].Date != "2025-03-01" || report.DailyBreakdown[1].Date != "2025-03-06" {
		t.Fatalf("unexpected daily dates %v", report.DailyBreakdown)
	}
}

func TestAggregateFinancialsSkipsMalformedOrders(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)

	orders := []Order{
		deliveredOrder("good", start.Add(time.Hour), 1000, 100, PaymentCashOnDelivery),
		// Historical record missing its frozen commission.
		{ID: "bad", Status: OrderStatusDelivered, Total: 5000, CreatedAt: start.Add(2 * time.Hour)},
	}

	report := AggregateFinancials("rest-1", orders, nil, start, end)
	if report.TotalRevenue != 1100 {
		t.Fatalf("expected malformed order to contribute 0, got revenue %d", report.TotalRevenue)
	}
	if !reflect.DeepEqual(report.SkippedOrders, []string{"bad"}) {
		t.Fatalf("expected skipped [bad], got %v", report.SkippedOrders)
	}
}

func TestAggregateFinancialsCountsRefundedOrderRevenueOnce(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC)

	refunded := deliveredOrder("ord-ref", start.Add(2*time.Hour), 2000, 500, PaymentCardOnDelivery)
	refunded.Status = OrderStatusRefunded
	orders := []Order{
		deliveredOrder("ord-del", start.Add(time.Hour), 1000, 0, PaymentCashOnDelivery),
		refunded,
	}
	txns := []Transaction{{
		ID: "txn-ref", OrderID: "ord-ref", Type: TransactionRefund,
		Status: TransactionCompleted, Amount: 2500, CreatedAt: start.Add(3 * time.Hour),
	}}

	report := AggregateFinancials("rest-1", orders, txns, start, end)

	// The refunded order keeps its delivered revenue; the compensation is
	// reported once, through RefundedAmount.
	if report.TotalRevenue != 1000+2500 {
		t.Fatalf("expected revenue 3500 including the refunded order, got %d", report.TotalRevenue)
	}
	if report.OrderCount != 2 {
		t.Fatalf("expected both orders counted, got %d", report.OrderCount)
	}
	if report.RefundedAmount != 2500 {
		t.Fatalf("expected refunded amount 2500, got %d", report.RefundedAmount)
	}
}

func TestAggregateFinancialsIsDeterministic(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC)
	orders := []Order{
		deliveredOrder("a", start.Add(time.Hour), 1500, 300, PaymentCardOnDelivery),
		deliveredOrder("b", start.Add(30*time.Hour), 2500, 300, PaymentCashOnDelivery),
	}
	txns := []Transaction{{
		ID: "txn-1", OrderID: "a", Type: TransactionRefund,
		Status: TransactionCompleted, Amount: 1800, CreatedAt: start.Add(40 * time.Hour),
	}}

	first := AggregateFinancials("rest-1", orders, txns, start, end)
	second := AggregateFinancials("rest-1", orders, txns, start, end)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("aggregation is not deterministic:\n%+v\n%+v", first, second)
	}
	if first.RefundedAmount != 1800 {
		t.Fatalf("expected refunded amount 1800, got %d", first.RefundedAmount)
	}
}
