package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/dishpatch/api/internal/domain"
	pfirestore "github.com/dishpatch/api/internal/platform/firestore"
	"github.com/dishpatch/api/internal/repositories"
)

// OrderRepository implements repositories.OrderRepository backed by Firestore.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base, err := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil)
	if err != nil {
		return nil, err
	}
	return &OrderRepository{provider: provider, orders: base}, nil
}

// Insert creates the order document, failing when the id already exists.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}
	return r.orders.Create(ctx, order.ID, encodeOrder(order))
}

// FindByID loads one order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.toDomain(orderID), nil
}

// ApplyTransition replaces the order document only while the stored status
// and history length still match the caller's basis. A concurrent writer
// that moved the order first makes the comparison fail with a conflict,
// which is how the first writer wins.
func (r *OrderRepository) ApplyTransition(ctx context.Context, order domain.Order, basis repositories.TransitionBasis) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}

	op := "firestore.orders.transition"
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.orders.Doc(ctx, order.ID)
		if err != nil {
			return err
		}

		current, err := r.orders.GetTx(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if domain.OrderStatus(current.Status) != basis.Status || len(current.StatusHistory) != basis.HistoryLength {
			return pfirestore.NewConflict(op, fmt.Errorf(
				"order %s moved to %s with %d history entries",
				order.ID, current.Status, len(current.StatusHistory),
			))
		}

		if err := tx.Set(ref, encodeOrder(order)); err != nil {
			return pfirestore.WrapError(op, err)
		}
		return nil
	})
}

// ListByRestaurant returns the restaurant's orders created in [start, end),
// oldest first.
func (r *OrderRepository) ListByRestaurant(ctx context.Context, restaurantID string, window repositories.TimeWindow) ([]domain.Order, error) {
	restaurantID = strings.TrimSpace(restaurantID)
	if restaurantID == "" {
		return nil, errors.New("order repository: restaurant id is required")
	}

	col, err := r.orders.Collection(ctx)
	if err != nil {
		return nil, err
	}

	query := col.
		Where("restaurantId", "==", restaurantID).
		Where("createdAt", ">=", window.Start).
		Where("createdAt", "<", window.End).
		OrderBy("createdAt", firestore.Asc)

	snaps, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, pfirestore.WrapError("firestore.orders.list", err)
	}

	orders := make([]domain.Order, 0, len(snaps))
	for _, snap := range snaps {
		doc, err := r.orders.Decode(snap)
		if err != nil {
			return nil, err
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}
	return orders, nil
}
