package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/dishpatch/api/internal/domain"
	pfirestore "github.com/dishpatch/api/internal/platform/firestore"
	"github.com/dishpatch/api/internal/repositories"
)

// TransactionRepository implements repositories.TransactionRepository backed
// by Firestore. Transaction documents are immutable once written.
type TransactionRepository struct {
	provider     *pfirestore.Provider
	transactions *pfirestore.BaseRepository[transactionDocument]
}

// NewTransactionRepository constructs a Firestore-backed transaction repository.
func NewTransactionRepository(provider *pfirestore.Provider) (*TransactionRepository, error) {
	if provider == nil {
		return nil, errors.New("transaction repository requires firestore provider")
	}
	base, err := pfirestore.NewBaseRepository[transactionDocument](provider, transactionsCollection, nil)
	if err != nil {
		return nil, err
	}
	return &TransactionRepository{provider: provider, transactions: base}, nil
}

// Insert creates the transaction document, failing when the id already exists.
func (r *TransactionRepository) Insert(ctx context.Context, txn domain.Transaction) error {
	if strings.TrimSpace(txn.ID) == "" {
		return errors.New("transaction repository: transaction id is required")
	}
	return r.transactions.Create(ctx, txn.ID, encodeTransaction(txn))
}

// FindByID loads one transaction.
func (r *TransactionRepository) FindByID(ctx context.Context, txnID string) (domain.Transaction, error) {
	doc, err := r.transactions.Get(ctx, txnID)
	if err != nil {
		return domain.Transaction{}, err
	}
	return doc.toDomain(txnID), nil
}

// ListByRestaurant returns the restaurant's transactions created in
// [start, end), oldest first.
func (r *TransactionRepository) ListByRestaurant(ctx context.Context, restaurantID string, window repositories.TimeWindow) ([]domain.Transaction, error) {
	restaurantID = strings.TrimSpace(restaurantID)
	if restaurantID == "" {
		return nil, errors.New("transaction repository: restaurant id is required")
	}

	col, err := r.transactions.Collection(ctx)
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
		return nil, pfirestore.WrapError("firestore.transactions.list", err)
	}

	txns := make([]domain.Transaction, 0, len(snaps))
	for _, snap := range snaps {
		doc, err := r.transactions.Decode(snap)
		if err != nil {
			return nil, err
		}
		txns = append(txns, doc.toDomain(snap.Ref.ID))
	}
	return txns, nil
}
