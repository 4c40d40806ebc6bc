package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// BaseRepository provides typed helpers shared by the Firestore repositories.
type BaseRepository[T any] struct {
	provider   *Provider
	collection string
	decode     func(doc *firestore.DocumentSnapshot) (T, error)
}

// NewBaseRepository builds a BaseRepository for a top-level collection.
func NewBaseRepository[T any](provider *Provider, collection string, decode func(doc *firestore.DocumentSnapshot) (T, error)) (*BaseRepository[T], error) {
	if provider == nil {
		return nil, errors.New("firestore: provider is required")
	}
	if strings.TrimSpace(collection) == "" {
		return nil, errors.New("firestore: collection is required")
	}
	if decode == nil {
		decode = func(doc *firestore.DocumentSnapshot) (T, error) {
			var out T
			if err := doc.DataTo(&out); err != nil {
				var zero T
				return zero, err
			}
			return out, nil
		}
	}
	return &BaseRepository[T]{provider: provider, collection: collection, decode: decode}, nil
}

// Collection returns the collection reference.
func (r *BaseRepository[T]) Collection(ctx context.Context) (*firestore.CollectionRef, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, WrapError(r.op("collection"), err)
	}
	return client.Collection(r.collection), nil
}

// Doc returns a document reference for the given id.
func (r *BaseRepository[T]) Doc(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(r.op("doc"), errors.New("document id is required"))
	}
	col, err := r.Collection(ctx)
	if err != nil {
		return nil, err
	}
	return col.Doc(id), nil
}

// Get loads and decodes a single document.
func (r *BaseRepository[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	ref, err := r.Doc(ctx, id)
	if err != nil {
		return zero, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return zero, WrapError(r.op("get"), err)
	}
	return r.Decode(snap)
}

// GetTx loads and decodes a single document inside a transaction.
func (r *BaseRepository[T]) GetTx(ctx context.Context, tx *firestore.Transaction, id string) (T, error) {
	var zero T
	if tx == nil {
		return zero, WrapError(r.op("get"), errors.New("transaction is required"))
	}
	ref, err := r.Doc(ctx, id)
	if err != nil {
		return zero, err
	}
	snap, err := tx.Get(ref)
	if err != nil {
		return zero, WrapError(r.op("get"), err)
	}
	return r.Decode(snap)
}

// Create inserts a document, failing when the id already exists.
func (r *BaseRepository[T]) Create(ctx context.Context, id string, data any) error {
	ref, err := r.Doc(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, data); err != nil {
		return WrapError(r.op("create"), err)
	}
	return nil
}

// Set writes a document, replacing any existing content.
func (r *BaseRepository[T]) Set(ctx context.Context, id string, data any) error {
	ref, err := r.Doc(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Set(ctx, data); err != nil {
		return WrapError(r.op("set"), err)
	}
	return nil
}

// Update applies field updates to an existing document.
func (r *BaseRepository[T]) Update(ctx context.Context, id string, updates []firestore.Update) error {
	if len(updates) == 0 {
		return nil
	}
	ref, err := r.Doc(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Update(ctx, updates); err != nil {
		return WrapError(r.op("update"), err)
	}
	return nil
}

// QueryAll runs a query and decodes every matching document.
func (r *BaseRepository[T]) QueryAll(ctx context.Context, query firestore.Query) ([]T, error) {
	iter := query.Documents(ctx)
	defer iter.Stop()

	var out []T
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, WrapError(r.op("query"), err)
		}
		item, err := r.Decode(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// Decode converts a snapshot into the repository's entity type.
func (r *BaseRepository[T]) Decode(snap *firestore.DocumentSnapshot) (T, error) {
	item, err := r.decode(snap)
	if err != nil {
		var zero T
		return zero, WrapError(r.op("decode"), err)
	}
	return item, nil
}

// RunTransaction executes fn using the provider's client.
func (r *BaseRepository[T]) RunTransaction(ctx context.Context, fn TxFunc, opts ...TxOption) error {
	return r.provider.RunTransaction(ctx, fn, opts...)
}

func (r *BaseRepository[T]) op(action string) string {
	return fmt.Sprintf("firestore.%s.%s", r.collection, action)
}
