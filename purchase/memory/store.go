package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ReneKroon/ttlcache"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/mobileiap/purchase-client/purchase"
)

const (
	reviewThrottleWindow = time.Minute
	reviewThrottleKey    = "review"
)

// InMemoryStore simulates the platform store: a seeded product catalog plus a
// payment queue that walks enqueued payments through the transaction
// lifecycle. Observer callbacks are delivered synchronously on the caller's
// goroutine, which keeps tests deterministic; real stores may deliver from
// anywhere.
type InMemoryStore struct {
	mu sync.Mutex

	available bool
	catalog   []purchase.Product

	observers []purchase.QueueObserver

	pending  map[string]*purchase.Transaction
	order    []string
	finished []*purchase.Transaction

	failNextReason string
	failNext       bool
	deferNext      bool

	reviewThrottle *ttlcache.Cache
	reviewPrompts  int
}

// NewInMemory returns a simulator seeded with the given catalog. Payments are
// available until SetPaymentsAvailable(false); enqueued payments are approved
// unless FailNextPayment or DeferNextPayment is armed.
func NewInMemory(catalog ...purchase.Product) *InMemoryStore {
	throttle := ttlcache.NewCache()
	throttle.SetTTL(reviewThrottleWindow)

	return &InMemoryStore{
		available:      true,
		catalog:        catalog,
		pending:        map[string]*purchase.Transaction{},
		reviewThrottle: throttle,
	}
}

func (s *InMemoryStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.available = true
	s.observers = nil
	s.pending = map[string]*purchase.Transaction{}
	s.order = nil
	s.finished = nil
	s.failNext = false
	s.failNextReason = ""
	s.deferNext = false
	s.reviewPrompts = 0
	s.reviewThrottle.Remove(reviewThrottleKey)
}

// SetPaymentsAvailable toggles the capability check.
func (s *InMemoryStore) SetPaymentsAvailable(available bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.available = available
}

// FailNextPayment makes the next enqueued payment resolve to failed with the
// given reason instead of purchased.
func (s *InMemoryStore) FailNextPayment(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failNext = true
	s.failNextReason = reason
}

// DeferNextPayment makes the next enqueued payment stop at deferred. Callers
// resolve it later with ResolveDeferred.
func (s *InMemoryStore) DeferNextPayment() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deferNext = true
}

func (s *InMemoryStore) CanMakePayments(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.available
}

func (s *InMemoryStore) LoadProducts(ctx context.Context, ids []purchase.ProductID, handler purchase.ProductsHandler) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	requested := make(map[purchase.ProductID]struct{}, len(ids))
	for _, id := range ids {
		requested[id] = struct{}{}
	}

	s.mu.Lock()
	// Catalog seed order stands in for whatever ordering the real catalog
	// service uses.
	response := make([]purchase.Product, 0, len(ids))
	for _, p := range s.catalog {
		if _, ok := requested[p.ID]; ok {
			response = append(response, p)
		}
	}
	s.mu.Unlock()

	handler.OnProductsResponse(response)
	return nil
}

func (s *InMemoryStore) AddObserver(observer purchase.QueueObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.observers {
		if existing == observer {
			return
		}
	}
	s.observers = append(s.observers, observer)
}

func (s *InMemoryStore) RemoveObserver(observer purchase.QueueObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.observers {
		if existing == observer {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}

func (s *InMemoryStore) EnqueuePayment(ctx context.Context, payment purchase.Payment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if payment.Quantity < 1 {
		return purchase.ErrInvalidQuantity
	}

	now := time.Now()

	s.mu.Lock()
	if !s.available {
		s.mu.Unlock()
		return purchase.ErrPaymentsNotAllowed
	}

	txn := &purchase.Transaction{
		ID:        uuid.NewString(),
		ProductID: payment.Product.ID,
		Quantity:  payment.Quantity,
		UserToken: payment.UserToken,
		State:     purchase.StatePurchasing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.pending[txn.ID] = txn
	s.order = append(s.order, txn.ID)

	failNext, failReason := s.failNext, s.failNextReason
	deferNext := s.deferNext
	s.failNext = false
	s.failNextReason = ""
	s.deferNext = false

	opened := txn.Clone()
	s.mu.Unlock()

	s.broadcastUpdated([]*purchase.Transaction{opened})

	switch {
	case failNext:
		s.transition(txn.ID, purchase.StateFailed, failReason)
	case deferNext:
		s.transition(txn.ID, purchase.StateDeferred, "")
	default:
		s.transition(txn.ID, purchase.StatePurchased, "")
	}

	return nil
}

func (s *InMemoryStore) FinishTransaction(ctx context.Context, txnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.pending[txnID]
	if !ok {
		return purchase.ErrTransactionNotFound
	}
	if !txn.State.IsTerminal() {
		return errors.Errorf("transaction %s is not in a terminal state", txnID)
	}

	delete(s.pending, txnID)
	for i, id := range s.order {
		if id == txnID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.finished = append(s.finished, txn.Clone())

	return nil
}

func (s *InMemoryStore) RequestReview(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, throttled := s.reviewThrottle.Get(reviewThrottleKey); throttled {
		return
	}
	s.reviewThrottle.Set(reviewThrottleKey, struct{}{})
	s.reviewPrompts++
}

// ResolveDeferred transitions every deferred transaction to purchased or
// failed and delivers the updates.
func (s *InMemoryStore) ResolveDeferred(approve bool) {
	s.mu.Lock()
	var ids []string
	for _, id := range s.order {
		if s.pending[id].State == purchase.StateDeferred {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	for _, id := range ids {
		if approve {
			s.transition(id, purchase.StatePurchased, "")
		} else {
			s.transition(id, purchase.StateFailed, "payment declined")
		}
	}
}

// Restore mints restored transactions for previously purchased products,
// delivers them through the update path, then announces restore completion
// with the queue's remaining contents.
func (s *InMemoryStore) Restore(ids ...purchase.ProductID) {
	now := time.Now()

	s.mu.Lock()
	batch := make([]*purchase.Transaction, 0, len(ids))
	for _, id := range ids {
		txn := &purchase.Transaction{
			ID:        uuid.NewString(),
			ProductID: id,
			Quantity:  1,
			State:     purchase.StateRestored,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.pending[txn.ID] = txn
		s.order = append(s.order, txn.ID)
		batch = append(batch, txn.Clone())
	}
	s.mu.Unlock()

	s.broadcastUpdated(batch)

	for _, observer := range s.snapshotObservers() {
		observer.OnRestoreCompleted(s.queueSnapshot())
	}
}

// Pending returns the open transactions in queue order.
func (s *InMemoryStore) Pending() []*purchase.Transaction {
	return s.queueSnapshot()
}

// Finished returns every transaction acknowledged so far, in finish order.
func (s *InMemoryStore) Finished() []*purchase.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	finished := make([]*purchase.Transaction, 0, len(s.finished))
	for _, txn := range s.finished {
		finished = append(finished, txn.Clone())
	}
	return finished
}

// ReviewPrompts returns how many review requests survived throttling.
func (s *InMemoryStore) ReviewPrompts() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.reviewPrompts
}

func (s *InMemoryStore) transition(txnID string, state purchase.TransactionState, failureReason string) {
	s.mu.Lock()
	txn, ok := s.pending[txnID]
	if !ok {
		s.mu.Unlock()
		return
	}
	txn.State = state
	txn.FailureReason = failureReason
	txn.UpdatedAt = time.Now()
	update := txn.Clone()
	s.mu.Unlock()

	s.broadcastUpdated([]*purchase.Transaction{update})
}

// broadcastUpdated delivers outside the lock: observers finish terminal
// transactions from within the callback, which reenters the store.
func (s *InMemoryStore) broadcastUpdated(batch []*purchase.Transaction) {
	for _, observer := range s.snapshotObservers() {
		cloned := make([]*purchase.Transaction, len(batch))
		for i, txn := range batch {
			cloned[i] = txn.Clone()
		}
		observer.OnTransactionsUpdated(cloned)
	}
}

func (s *InMemoryStore) snapshotObservers() []purchase.QueueObserver {
	s.mu.Lock()
	defer s.mu.Unlock()

	observers := make([]purchase.QueueObserver, len(s.observers))
	copy(observers, s.observers)
	return observers
}

func (s *InMemoryStore) queueSnapshot() []*purchase.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make([]*purchase.Transaction, 0, len(s.order))
	for _, id := range s.order {
		snapshot = append(snapshot, s.pending[id].Clone())
	}
	return snapshot
}
