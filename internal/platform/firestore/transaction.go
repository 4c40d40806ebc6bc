package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

const (
	defaultTxAttempts = 5
	defaultTxTimeout  = 15 * time.Second
)

// TxFunc is the unit of work executed inside a Firestore transaction.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

type txSettings struct {
	attempts int
	timeout  time.Duration
	readOnly bool
}

// TxOption adjusts transaction behaviour.
type TxOption func(*txSettings)

// WithMaxAttempts caps the number of optimistic retries.
func WithMaxAttempts(attempts int) TxOption {
	return func(s *txSettings) {
		if attempts > 0 {
			s.attempts = attempts
		}
	}
}

// WithTimeout bounds the total transaction runtime.
func WithTimeout(timeout time.Duration) TxOption {
	return func(s *txSettings) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithReadOnly marks the transaction as read only.
func WithReadOnly() TxOption {
	return func(s *txSettings) {
		s.readOnly = true
	}
}

// RunTransaction wraps client.RunTransaction with retry and timeout defaults
// and normalises failures into repository errors.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc, opts ...TxOption) error {
	if ctx == nil {
		return errors.New("firestore: context is required")
	}
	if client == nil {
		return errors.New("firestore: client is required")
	}
	if fn == nil {
		return errors.New("firestore: transaction func is required")
	}

	settings := txSettings{attempts: defaultTxAttempts, timeout: defaultTxTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}

	txCtx := ctx
	if settings.timeout > 0 {
		var cancel context.CancelFunc
		txCtx, cancel = context.WithTimeout(ctx, settings.timeout)
		defer cancel()
	}

	txOpts := []firestore.TransactionOption{firestore.MaxAttempts(settings.attempts)}
	if settings.readOnly {
		txOpts = append(txOpts, firestore.ReadOnly)
	}

	err := client.RunTransaction(txCtx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, tx)
	}, txOpts...)
	if err != nil {
		var repoErr *Error
		if errors.As(err, &repoErr) {
			return err
		}
		return WrapError("firestore.transaction", err)
	}
	return nil
}
