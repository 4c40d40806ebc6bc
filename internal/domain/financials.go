package domain

import (
	"sort"
	"time"
)

const financialsDateLayout = "2006-01-02"

// AggregateFinancials folds a restaurant's orders and transactions over the
// [start, end) window into a financial report. Revenue counts DELIVERED
// orders only; boundary orders belong to the period that starts on the
// boundary, never to the one that ends there. The fold is pure: inputs are
// never mutated and identical inputs produce identical output.
//
// An order missing its frozen commission record contributes zero and is
// listed in SkippedOrders so one bad historical document cannot block the
// whole report.
func AggregateFinancials(restaurantID string, orders []Order, transactions []Transaction, start, end time.Time) RestaurantFinancials {
	report := RestaurantFinancials{
		RestaurantID: restaurantID,
		PeriodStart:  start.UTC(),
		PeriodEnd:    end.UTC(),
	}

	daily := make(map[string]*DailyFinancials)
	byMethod := make(map[PaymentMethod]*PaymentMethodFinancials)

	for _, order := range orders {
		// Refunded orders stay in the revenue totals: the order was delivered
		// before the refund, and the compensation shows up once as
		// RefundedAmount from its refund transaction below. Skipping them
		// here would subtract the refund twice.
		if order.Status != OrderStatusDelivered && order.Status != OrderStatusRefunded {
			continue
		}
		if !inWindow(order.CreatedAt, start, end) {
			continue
		}
		if order.Commission == (CommissionCalculation{}) {
			report.SkippedOrders = append(report.SkippedOrders, order.ID)
			continue
		}

		revenue := order.Total
		commission := order.Commission.CommissionAmount
		net := order.Commission.RestaurantEarning

		report.TotalRevenue += revenue
		report.TotalCommission += commission
		report.TotalNetEarning += net
		report.OrderCount++

		day := order.CreatedAt.UTC().Format(financialsDateLayout)
		entry, ok := daily[day]
		if !ok {
			entry = &DailyFinancials{Date: day}
			daily[day] = entry
		}
		entry.Revenue += revenue
		entry.Commission += commission
		entry.NetEarning += net
		entry.OrderCount++

		method, ok := byMethod[order.PaymentMethod]
		if !ok {
			method = &PaymentMethodFinancials{Method: order.PaymentMethod}
			byMethod[order.PaymentMethod] = method
		}
		method.Revenue += revenue
		method.Commission += commission
		method.NetEarning += net
		method.OrderCount++
	}

	for _, txn := range transactions {
		if txn.Type != TransactionRefund || txn.Status != TransactionCompleted {
			continue
		}
		if !inWindow(txn.CreatedAt, start, end) {
			continue
		}
		report.RefundedAmount += txn.Amount
	}

	report.DailyBreakdown = make([]DailyFinancials, 0, len(daily))
	for _, entry := range daily {
		report.DailyBreakdown = append(report.DailyBreakdown, *entry)
	}
	sort.Slice(report.DailyBreakdown, func(i, j int) bool {
		return report.DailyBreakdown[i].Date < report.DailyBreakdown[j].Date
	})

	report.PaymentMethodBreakdown = make([]PaymentMethodFinancials, 0, len(byMethod))
	for _, entry := range byMethod {
		report.PaymentMethodBreakdown = append(report.PaymentMethodBreakdown, *entry)
	}
	sort.Slice(report.PaymentMethodBreakdown, func(i, j int) bool {
		return report.PaymentMethodBreakdown[i].Method < report.PaymentMethodBreakdown[j].Method
	})

	return report
}

func inWindow(at, start, end time.Time) bool {
	return !at.Before(start) && at.Before(end)
}
