package purchase_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mobileiap/purchase-client/purchase"
	"github.com/mobileiap/purchase-client/purchase/memory"
)

// fakeStore records every call the client makes, and replays a canned
// products response when the query starts.
type fakeStore struct {
	available bool
	response  []purchase.Product

	loadErr    error
	enqueueErr error
	finishErr  error

	added    int
	removed  int
	enqueued []purchase.Payment
	finished []string
	reviews  int
}

func (f *fakeStore) CanMakePayments(context.Context) bool { return f.available }

func (f *fakeStore) LoadProducts(_ context.Context, _ []purchase.ProductID, handler purchase.ProductsHandler) error {
	if f.loadErr != nil {
		return f.loadErr
	}
	handler.OnProductsResponse(f.response)
	return nil
}

func (f *fakeStore) AddObserver(purchase.QueueObserver)    { f.added++ }
func (f *fakeStore) RemoveObserver(purchase.QueueObserver) { f.removed++ }

func (f *fakeStore) EnqueuePayment(_ context.Context, payment purchase.Payment) error {
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.enqueued = append(f.enqueued, payment)
	return nil
}

func (f *fakeStore) FinishTransaction(_ context.Context, txnID string) error {
	if f.finishErr != nil {
		return f.finishErr
	}
	f.finished = append(f.finished, txnID)
	return nil
}

func (f *fakeStore) RequestReview(context.Context) { f.reviews++ }

func product(id purchase.ProductID) purchase.Product {
	return purchase.Product{ID: id, Title: string(id), Currency: "USD"}
}

func txn(id string, state purchase.TransactionState) *purchase.Transaction {
	return &purchase.Transaction{ID: id, ProductID: "pro_upgrade", Quantity: 1, State: state}
}

func TestClient_FetchProducts_FiltersToRequestedIdentifiers(t *testing.T) {
	store := &fakeStore{
		response: []purchase.Product{product("pro_upgrade"), product("coins_100")},
	}

	var got [][]purchase.Product
	listener := purchase.ListenerFuncs{
		Products: func(products []purchase.Product) { got = append(got, products) },
	}

	client := purchase.NewClient(zap.NewNop(), store, listener, "pro_upgrade")
	require.NoError(t, client.FetchProducts(context.Background()))

	require.Len(t, got, 1)
	require.Equal(t, []purchase.Product{product("pro_upgrade")}, got[0])
}

func TestClient_FetchProducts_PreservesResponseOrder(t *testing.T) {
	store := &fakeStore{
		response: []purchase.Product{
			product("coins_100"),
			product("unrelated"),
			product("pro_upgrade"),
		},
	}

	var got []purchase.Product
	listener := purchase.ListenerFuncs{
		Products: func(products []purchase.Product) { got = products },
	}

	client := purchase.NewClient(zap.NewNop(), store, listener, "pro_upgrade", "coins_100")
	require.NoError(t, client.FetchProducts(context.Background()))

	require.Equal(t, []purchase.Product{product("coins_100"), product("pro_upgrade")}, got)
}

func TestClient_FetchProducts_StartError(t *testing.T) {
	startErr := errors.New("catalog unreachable")
	store := &fakeStore{loadErr: startErr}

	client := purchase.NewClient(zap.NewNop(), store, purchase.ListenerFuncs{}, "pro_upgrade")
	err := client.FetchProducts(context.Background())
	require.ErrorIs(t, err, startErr)
}

func TestClient_TransactionBatch_FinalizesTerminalStatesOnly(t *testing.T) {
	store := &fakeStore{}

	var got [][]*purchase.Transaction
	listener := purchase.ListenerFuncs{
		Transactions: func(txns []*purchase.Transaction) { got = append(got, txns) },
	}
	client := purchase.NewClient(zap.NewNop(), store, listener, "pro_upgrade")

	batch := []*purchase.Transaction{
		txn("a", purchase.StatePurchasing),
		txn("b", purchase.StatePurchased),
		txn("c", purchase.StateFailed),
		txn("d", purchase.StateRestored),
		txn("e", purchase.StateDeferred),
	}
	client.OnTransactionsUpdated(batch)

	require.Equal(t, []string{"b", "c", "d"}, store.finished)

	// The listener sees the entire original batch, finished or not.
	require.Len(t, got, 1)
	require.Equal(t, batch, got[0])
}

func TestClient_TransactionBatch_MixedStateScenario(t *testing.T) {
	store := &fakeStore{}

	var got []*purchase.Transaction
	listener := purchase.ListenerFuncs{
		Transactions: func(txns []*purchase.Transaction) { got = txns },
	}
	client := purchase.NewClient(zap.NewNop(), store, listener, "pro_upgrade")

	batch := []*purchase.Transaction{
		txn("A", purchase.StatePurchasing),
		txn("B", purchase.StatePurchased),
	}
	client.OnTransactionsUpdated(batch)

	require.Equal(t, []string{"B"}, store.finished)
	require.Equal(t, batch, got)
}

func TestClient_TransactionBatch_FinishFailureStillDelivers(t *testing.T) {
	store := &fakeStore{finishErr: errors.New("queue unavailable")}

	var got [][]*purchase.Transaction
	listener := purchase.ListenerFuncs{
		Transactions: func(txns []*purchase.Transaction) { got = append(got, txns) },
	}
	client := purchase.NewClient(zap.NewNop(), store, listener, "pro_upgrade")

	batch := []*purchase.Transaction{txn("a", purchase.StatePurchased)}
	client.OnTransactionsUpdated(batch)

	require.Len(t, got, 1)
	require.Equal(t, batch, got[0])
}

func TestClient_OnRestoreCompleted_ForwardsWithoutFinalizing(t *testing.T) {
	store := &fakeStore{}

	var got [][]*purchase.Transaction
	listener := purchase.ListenerFuncs{
		Transactions: func(txns []*purchase.Transaction) { got = append(got, txns) },
	}
	client := purchase.NewClient(zap.NewNop(), store, listener, "pro_upgrade")

	snapshot := []*purchase.Transaction{txn("a", purchase.StatePurchased)}
	client.OnRestoreCompleted(snapshot)

	require.Empty(t, store.finished)
	require.Len(t, got, 1)
	require.Equal(t, snapshot, got[0])
}

func TestClient_SubmitPayment_RejectsBadInput(t *testing.T) {
	store := &fakeStore{available: true}
	client := purchase.NewClient(zap.NewNop(), store, purchase.ListenerFuncs{}, "pro_upgrade")

	err := client.SubmitPayment(context.Background(), product("pro_upgrade"), 0, "u1")
	require.ErrorIs(t, err, purchase.ErrInvalidQuantity)

	err = client.SubmitPayment(context.Background(), product("pro_upgrade"), 1, "")
	require.ErrorIs(t, err, purchase.ErrEmptyUserToken)

	// Nothing reached the store.
	require.Zero(t, store.added)
	require.Empty(t, store.enqueued)
}

func TestClient_SubmitPayment_RegistersThenEnqueues(t *testing.T) {
	store := &fakeStore{available: true}
	client := purchase.NewClient(zap.NewNop(), store, purchase.ListenerFuncs{}, "pro_upgrade")

	require.NoError(t, client.SubmitPayment(context.Background(), product("pro_upgrade"), 3, "u1"))

	require.Equal(t, 1, store.added)
	require.Len(t, store.enqueued, 1)
	require.Equal(t, product("pro_upgrade"), store.enqueued[0].Product)
	require.Equal(t, 3, store.enqueued[0].Quantity)
	require.Equal(t, "u1", store.enqueued[0].UserToken)
}

func TestClient_StopObserving_Idempotent(t *testing.T) {
	store := &fakeStore{available: true}
	client := purchase.NewClient(zap.NewNop(), store, purchase.ListenerFuncs{}, "pro_upgrade")

	// Without a prior registration.
	client.StopObserving()

	require.NoError(t, client.SubmitPayment(context.Background(), product("pro_upgrade"), 1, "u1"))
	client.StopObserving()
	client.StopObserving()

	require.Equal(t, 3, store.removed)
}

func TestClient_CapabilityAndReviewPassThrough(t *testing.T) {
	store := &fakeStore{available: false}
	client := purchase.NewClient(zap.NewNop(), store, purchase.ListenerFuncs{}, "pro_upgrade")

	require.False(t, client.IsPaymentsAvailable(context.Background()))

	store.available = true
	require.True(t, client.IsPaymentsAvailable(context.Background()))

	client.RequestReview(context.Background())
	require.Equal(t, 1, store.reviews)
}

func TestClient_EndToEndPurchase(t *testing.T) {
	catalog := []purchase.Product{
		{ID: "pro_upgrade", Title: "Pro Upgrade", Price: decimal.RequireFromString("19.99"), Currency: "USD"},
		{ID: "coins_100", Title: "100 Coins", Price: decimal.RequireFromString("4.99"), Currency: "USD"},
	}
	store := memory.NewInMemory(catalog...)

	var products []purchase.Product
	var batches [][]*purchase.Transaction
	listener := purchase.ListenerFuncs{
		Products:     func(p []purchase.Product) { products = p },
		Transactions: func(txns []*purchase.Transaction) { batches = append(batches, txns) },
	}

	client := purchase.NewClient(zap.NewNop(), store, listener, "pro_upgrade")

	require.True(t, client.IsPaymentsAvailable(context.Background()))

	require.NoError(t, client.FetchProducts(context.Background()))
	require.Len(t, products, 1)
	require.Equal(t, purchase.ProductID("pro_upgrade"), products[0].ID)

	require.NoError(t, client.SubmitPayment(context.Background(), products[0], 1, "u1"))

	require.Len(t, batches, 2)
	require.Equal(t, purchase.StatePurchasing, batches[0][0].State)
	require.Equal(t, purchase.StatePurchased, batches[1][0].State)

	// The client acknowledged the purchase, so the queue drained.
	require.Empty(t, store.Pending())
	require.Len(t, store.Finished(), 1)
	require.Equal(t, purchase.StatePurchased, store.Finished()[0].State)

	client.StopObserving()

	// No deliveries after deregistration.
	store.Restore("pro_upgrade")
	require.Len(t, batches, 2)
}

func TestClient_EndToEndRestore(t *testing.T) {
	catalog := []purchase.Product{
		{ID: "pro_upgrade", Title: "Pro Upgrade", Price: decimal.RequireFromString("19.99"), Currency: "USD"},
	}
	store := memory.NewInMemory(catalog...)

	var batches [][]*purchase.Transaction
	listener := purchase.ListenerFuncs{
		Transactions: func(txns []*purchase.Transaction) { batches = append(batches, txns) },
	}

	client := purchase.NewClient(zap.NewNop(), store, listener, "pro_upgrade")

	// Register by submitting a payment, then restore a prior purchase.
	require.NoError(t, client.SubmitPayment(context.Background(), catalog[0], 1, "u1"))
	store.Restore("pro_upgrade")

	// purchasing, purchased, restored update, then the completion snapshot.
	require.Len(t, batches, 4)
	require.Equal(t, purchase.StateRestored, batches[2][0].State)

	// The restored transaction was finalized through the update path, so the
	// completion snapshot is already empty.
	require.Empty(t, batches[3])
	require.Len(t, store.Finished(), 2)
}
