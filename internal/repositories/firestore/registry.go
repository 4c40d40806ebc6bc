package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/dishpatch/api/internal/platform/firestore"
	"github.com/dishpatch/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry interface.
type Registry struct {
	provider     *pfirestore.Provider
	orders       *OrderRepository
	tracking     *TrackingRepository
	transactions *TransactionRepository
	counters     *CounterRepository
}

// NewRegistry constructs all repositories over a shared provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	tracking, err := NewTrackingRepository(provider)
	if err != nil {
		return nil, err
	}
	transactions, err := NewTransactionRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:     provider,
		orders:       orders,
		tracking:     tracking,
		transactions: transactions,
		counters:     counters,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}

// Orders returns the order repository.
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

// Tracking returns the tracking repository.
func (r *Registry) Tracking() repositories.TrackingRepository { return r.tracking }

// Transactions returns the transaction repository.
func (r *Registry) Transactions() repositories.TransactionRepository { return r.transactions }

// Counters returns the counter repository.
func (r *Registry) Counters() repositories.CounterRepository { return r.counters }

// RunInTx executes fn as a sequential unit. Conditional writes such as
// ApplyTransition carry their own Firestore transactions, so the registry
// does not open an outer transaction around fn.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("registry: transaction func is required")
	}
	return fn(ctx)
}
