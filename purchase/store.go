package purchase

import (
	"context"
	"errors"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrEmptyUserToken  = errors.New("user token must not be empty")

	// ErrPaymentsNotAllowed is returned by EnqueuePayment when the current
	// context is not authorized to make payments.
	ErrPaymentsNotAllowed = errors.New("payments are not allowed")

	// ErrTransactionNotFound is returned by FinishTransaction for an unknown
	// or already finished transaction.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// ProductsHandler receives the asynchronous result of a catalog query.
type ProductsHandler interface {
	OnProductsResponse(products []Product)
}

// QueueObserver receives transaction lifecycle updates from the store's
// payment queue. Callbacks may arrive on any goroutine the store chooses.
type QueueObserver interface {
	OnTransactionsUpdated(txns []*Transaction)
	OnRestoreCompleted(queueTxns []*Transaction)
}

// StoreService is the platform store this library adapts: a product catalog
// plus a process-wide payment queue. It is injected rather than reached
// through a global so implementations can be swapped for test doubles.
type StoreService interface {
	// CanMakePayments reports whether the current execution context is
	// authorized to make payments (parental controls, region restrictions).
	CanMakePayments(ctx context.Context) bool

	// LoadProducts starts an asynchronous catalog lookup for the given
	// identifiers. The handler is invoked once with whatever the catalog
	// returns; there is no failure callback. A non-nil error means the query
	// could not be started.
	LoadProducts(ctx context.Context, ids []ProductID, handler ProductsHandler) error

	// AddObserver registers an observer with the payment queue. Registering
	// an already registered observer is a no-op.
	AddObserver(observer QueueObserver)

	// RemoveObserver deregisters an observer. Removing an observer that was
	// never registered is a no-op.
	RemoveObserver(observer QueueObserver)

	// EnqueuePayment submits a payment to the queue. Results arrive later
	// through registered observers, never as a return value.
	EnqueuePayment(ctx context.Context, payment Payment) error

	// FinishTransaction acknowledges a transaction so the queue stops
	// redelivering it. Only transactions in a terminal state may be finished.
	FinishTransaction(ctx context.Context, txnID string) error

	// RequestReview asks the platform to show its native review prompt.
	// Fire-and-forget; the store may throttle or ignore it.
	RequestReview(ctx context.Context)
}
