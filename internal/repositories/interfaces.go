package repositories

import (
	"context"
	"time"

	domain "github.com/dishpatch/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for
// dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Tracking() TrackingRepository
	Transactions() TransactionRepository
	Counters() CounterRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with the
// categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in a transactional boundary when
// the backing store supports it.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TransitionBasis is the optimistic-concurrency basis a transition was
// validated against. The store rejects the write with a conflict error when
// the stored order no longer matches, so a losing concurrent writer never
// silently overwrites history.
type TransitionBasis struct {
	Status        domain.OrderStatus
	HistoryLength int
}

// TimeWindow is an inclusive-start/exclusive-end createdAt filter.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether the timestamp falls inside the window.
func (w TimeWindow) Contains(at time.Time) bool {
	return !at.Before(w.Start) && at.Before(w.End)
}

// OrderRepository persists order documents with conditional status writes.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// ApplyTransition persists an already-validated transition guarded by
	// the caller's basis; a moved basis yields a conflict error.
	ApplyTransition(ctx context.Context, order domain.Order, basis TransitionBasis) error
	ListByRestaurant(ctx context.Context, restaurantID string, window TimeWindow) ([]domain.Order, error)
}

// TrackingTransitionUpdate carries the tracking-side projection of one
// accepted order transition. Timestamps holds only milestone keys that are
// new for this document (idempotent first write, enforced by the caller
// against the current document).
type TrackingTransitionUpdate struct {
	DeliveryStatus domain.DeliveryStatus
	Timestamps     map[string]time.Time
	ActualTimes    domain.ActualDurations
	StatusUpdate   domain.StatusUpdate
	UpdatedAt      time.Time
}

// TrackingRepository persists the append-heavy tracking documents. Array
// fields are append-only; implementations must never rewrite or reorder
// existing elements outside ResolveInteraction.
type TrackingRepository interface {
	Insert(ctx context.Context, tracking domain.OrderTracking) error
	FindByOrderID(ctx context.Context, orderID string) (domain.OrderTracking, error)
	RecordTransition(ctx context.Context, orderID string, update TrackingTransitionUpdate) error
	// SetDriver stores the driver identity; nil clears it. Single-driver
	// enforcement happens in the service against the current document.
	SetDriver(ctx context.Context, orderID string, driver *domain.DeliveryDriver, at time.Time) error
	AppendLocation(ctx context.Context, orderID string, sample domain.LocationSample) error
	AppendInteraction(ctx context.Context, orderID string, interaction domain.CustomerInteraction) error
	// ResolveInteraction flips a pending interaction to its outcome; a
	// missing or already-resolved entry yields a not-found error.
	ResolveInteraction(ctx context.Context, orderID string, interactionID string, outcome domain.InteractionOutcome, at time.Time) error
	AppendNotifications(ctx context.Context, orderID string, records []domain.NotificationRecord) error
	// Watch streams the tracking document on every accepted write with
	// at-least-once delivery. The returned stop function releases the
	// underlying listener.
	Watch(ctx context.Context, orderID string) (<-chan domain.OrderTracking, func(), error)
}

// TransactionRepository persists settlement and refund transactions.
type TransactionRepository interface {
	Insert(ctx context.Context, txn domain.Transaction) error
	FindByID(ctx context.Context, txnID string) (domain.Transaction, error)
	ListByRestaurant(ctx context.Context, restaurantID string, window TimeWindow) ([]domain.Transaction, error)
}

// CounterRepository hands out monotonically increasing sequence values for
// human-readable order numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}
