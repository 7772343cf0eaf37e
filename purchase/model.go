package purchase

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductID identifies a purchasable item in the store catalog. It is opaque
// to this library; only the store assigns meaning to it.
type ProductID string

// Product describes a purchasable catalog entry. It is owned by the store;
// this library never mutates one.
type Product struct {
	ID          ProductID
	Title       string
	Description string
	Price       decimal.Decimal
	Currency    string
}

type TransactionState uint8

const (
	StateUnknown TransactionState = iota
	StatePurchasing
	StatePurchased
	StateFailed
	StateRestored
	StateDeferred
)

func (s TransactionState) String() string {
	switch s {
	case StatePurchasing:
		return "purchasing"
	case StatePurchased:
		return "purchased"
	case StateFailed:
		return "failed"
	case StateRestored:
		return "restored"
	case StateDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the store expects the transaction to be finished
// (acknowledged) by the observing client. Purchasing and deferred transactions
// stay open until a later update resolves them.
func (s TransactionState) IsTerminal() bool {
	return s == StatePurchased || s == StateFailed || s == StateRestored
}

// Transaction is the store's record of one purchase attempt. The store owns
// the record and its lifecycle; observers only classify and acknowledge it.
type Transaction struct {
	ID        string
	ProductID ProductID
	Quantity  int
	UserToken string
	State     TransactionState

	// FailureReason is set by the store when State is StateFailed.
	FailureReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	cloned := *t
	return &cloned
}

// Payment is the transient request value enqueued with the store.
type Payment struct {
	Product   Product
	Quantity  int
	UserToken string
}
