package tests

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mobileiap/purchase-client/purchase"
)

// RunStoreServiceTests runs the StoreService contract tests against an
// implementation seeded with the given catalog. Payments must be available
// when the suite starts.
func RunStoreServiceTests(t *testing.T, s purchase.StoreService, catalog []purchase.Product, teardown func()) {
	for _, tf := range []func(t *testing.T, s purchase.StoreService, catalog []purchase.Product){
		testCapability,
		testProductsQuery,
		testPaymentLifecycle,
		testFinishUnknownTransaction,
		testObserverRegistration,
	} {
		tf(t, s, catalog)
		teardown()
	}
}

func testCapability(t *testing.T, s purchase.StoreService, _ []purchase.Product) {
	require.True(t, s.CanMakePayments(context.Background()))
}

func testProductsQuery(t *testing.T, s purchase.StoreService, catalog []purchase.Product) {
	require.NotEmpty(t, catalog)

	rec := &Recorder{}

	ids := []purchase.ProductID{catalog[0].ID, "no_such_product"}
	require.NoError(t, s.LoadProducts(context.Background(), ids, rec))

	responses := rec.ProductResponses()
	require.Len(t, responses, 1)
	require.Equal(t, []purchase.Product{catalog[0]}, responses[0])
}

func testPaymentLifecycle(t *testing.T, s purchase.StoreService, catalog []purchase.Product) {
	rec := &Recorder{}
	s.AddObserver(rec)
	defer s.RemoveObserver(rec)

	payment := purchase.Payment{
		Product:   catalog[0],
		Quantity:  2,
		UserToken: "token-1",
	}
	require.NoError(t, s.EnqueuePayment(context.Background(), payment))

	batches := rec.TransactionBatches()
	require.NotEmpty(t, batches)

	opened := batches[0]
	require.Len(t, opened, 1)
	require.Equal(t, purchase.StatePurchasing, opened[0].State)
	require.Equal(t, catalog[0].ID, opened[0].ProductID)
	require.Equal(t, 2, opened[0].Quantity)
	require.Equal(t, "token-1", opened[0].UserToken)

	// The payment must eventually reach a terminal state for the same
	// transaction.
	last := batches[len(batches)-1]
	require.Len(t, last, 1)
	require.Equal(t, opened[0].ID, last[0].ID)
	require.True(t, last[0].State.IsTerminal())

	// Terminal transactions are acknowledged exactly once.
	require.NoError(t, s.FinishTransaction(context.Background(), last[0].ID))
	require.Equal(t, purchase.ErrTransactionNotFound,
		s.FinishTransaction(context.Background(), last[0].ID))
}

func testFinishUnknownTransaction(t *testing.T, s purchase.StoreService, _ []purchase.Product) {
	require.Equal(t, purchase.ErrTransactionNotFound,
		s.FinishTransaction(context.Background(), "no-such-transaction"))
}

func testObserverRegistration(t *testing.T, s purchase.StoreService, catalog []purchase.Product) {
	rec := &Recorder{}

	// Double registration must not double deliveries.
	s.AddObserver(rec)
	s.AddObserver(rec)

	payment := purchase.Payment{Product: catalog[0], Quantity: 1, UserToken: "token-1"}
	require.NoError(t, s.EnqueuePayment(context.Background(), payment))

	batches := rec.TransactionBatches()
	require.NotEmpty(t, batches)
	seen := map[string]int{}
	for _, batch := range batches {
		for _, txn := range batch {
			seen[txn.ID+"/"+txn.State.String()]++
		}
	}
	for key, count := range seen {
		require.Equal(t, 1, count, "update %s delivered more than once", key)
	}

	// Removal is idempotent and stops deliveries.
	s.RemoveObserver(rec)
	s.RemoveObserver(rec)

	before := len(rec.TransactionBatches())
	require.NoError(t, s.EnqueuePayment(context.Background(), payment))
	require.Len(t, rec.TransactionBatches(), before)
}

// Recorder captures every notification a store delivers. It implements both
// purchase.ProductsHandler and purchase.QueueObserver.
type Recorder struct {
	mu sync.Mutex

	products [][]purchase.Product
	batches  [][]*purchase.Transaction
	restores [][]*purchase.Transaction
}

func (r *Recorder) OnProductsResponse(products []purchase.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.products = append(r.products, products)
}

func (r *Recorder) OnTransactionsUpdated(txns []*purchase.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.batches = append(r.batches, txns)
}

func (r *Recorder) OnRestoreCompleted(queueTxns []*purchase.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.restores = append(r.restores, queueTxns)
}

func (r *Recorder) ProductResponses() [][]purchase.Product {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([][]purchase.Product{}, r.products...)
}

func (r *Recorder) TransactionBatches() [][]*purchase.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([][]*purchase.Transaction{}, r.batches...)
}

func (r *Recorder) RestoreBatches() [][]*purchase.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([][]*purchase.Transaction{}, r.restores...)
}
