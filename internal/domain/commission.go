package domain

import (
	"errors"
	"fmt"
	"math"
)

// DefaultCommissionRate is the platform's cut of the goods subtotal unless
// a restaurant negotiated its own rate.
const DefaultCommissionRate = 0.09

var (
	// ErrInvalidRate signals a commission rate outside [0, 1).
	ErrInvalidRate = errors.New("commission: invalid rate")
	// ErrInvalidAmount signals a negative subtotal or delivery fee.
	ErrInvalidAmount = errors.New("commission: invalid amount")
)

// ComputeCommission splits an order's money between the platform and the
// restaurant. Called exactly once at placement; the result is frozen onto
// the order and never recomputed, so a later rate change only affects
// orders placed after it.
//
// The commission is round-half-up of subtotal*rate; the restaurant keeps
// the full delivery fee and absorbs any rounding remainder, so
// RestaurantEarning + PlatformEarning == subtotal + deliveryFee exactly
// and the platform never gains from rounding.
func ComputeCommission(subtotal, deliveryFee int64, rate float64) (CommissionCalculation, error) {
	if rate < 0 || rate >= 1 || math.IsNaN(rate) {
		return CommissionCalculation{}, fmt.Errorf("%w: rate %v must be in [0, 1)", ErrInvalidRate, rate)
	}
	if subtotal < 0 {
		return CommissionCalculation{}, fmt.Errorf("%w: subtotal %d is negative", ErrInvalidAmount, subtotal)
	}
	if deliveryFee < 0 {
		return CommissionCalculation{}, fmt.Errorf("%w: delivery fee %d is negative", ErrInvalidAmount, deliveryFee)
	}

	commission := roundHalfUp(float64(subtotal) * rate)
	if commission > subtotal {
		commission = subtotal
	}

	return CommissionCalculation{
		Subtotal:          subtotal,
		DeliveryFee:       deliveryFee,
		CommissionRate:    rate,
		CommissionAmount:  commission,
		RestaurantEarning: subtotal - commission + deliveryFee,
		PlatformEarning:   commission,
	}, nil
}

func roundHalfUp(value float64) int64 {
	return int64(math.Floor(value + 0.5))
}
