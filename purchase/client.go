package purchase

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Client bridges purchase intent to an injected StoreService and relays
// asynchronous results to a caller-supplied Listener. It holds no state
// beyond its identifier set and performs no retries; everything durable
// lives on the store side.
type Client struct {
	log      *zap.Logger
	store    StoreService
	listener Listener

	// Fixed for the client's lifetime.
	ids   []ProductID
	idSet map[ProductID]struct{}
}

// NewClient returns a client scoped to the given product identifiers.
// Duplicate identifiers are collapsed; order is irrelevant to filtering.
func NewClient(log *zap.Logger, store StoreService, listener Listener, ids ...ProductID) *Client {
	c := &Client{
		log:      log,
		store:    store,
		listener: listener,
		idSet:    make(map[ProductID]struct{}, len(ids)),
	}
	for _, id := range ids {
		if _, ok := c.idSet[id]; ok {
			continue
		}
		c.idSet[id] = struct{}{}
		c.ids = append(c.ids, id)
	}
	return c
}

// IsPaymentsAvailable reports whether the store permits payments in the
// current context. Callers should check this before SubmitPayment.
func (c *Client) IsPaymentsAvailable(ctx context.Context) bool {
	return c.store.CanMakePayments(ctx)
}

// FetchProducts starts the asynchronous catalog query for the client's
// identifier set. Results arrive via the listener's OnProductsFetched; a
// non-nil error means the query never started.
func (c *Client) FetchProducts(ctx context.Context) error {
	if err := c.store.LoadProducts(ctx, c.ids, c); err != nil {
		return errors.Wrap(err, "starting products query")
	}
	return nil
}

// SubmitPayment registers the client as a queue observer and enqueues a
// payment for the given product. Results arrive later through the listener's
// OnTransactionsUpdated, never as a return value. The user token is opaque
// to this client; callers are expected to pre-hash anything sensitive.
func (c *Client) SubmitPayment(ctx context.Context, product Product, quantity int, userToken string) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	if userToken == "" {
		return ErrEmptyUserToken
	}

	// Safe to repeat while already registered, matching the queue contract.
	c.store.AddObserver(c)

	payment := Payment{
		Product:   product,
		Quantity:  quantity,
		UserToken: userToken,
	}
	if err := c.store.EnqueuePayment(ctx, payment); err != nil {
		return errors.Wrap(err, "enqueueing payment")
	}
	return nil
}

// StopObserving deregisters the client from the payment queue. Calling it
// without a prior registration is a no-op.
func (c *Client) StopObserving() {
	c.store.RemoveObserver(c)
}

// RequestReview asks the platform for its native review prompt. There is no
// callback and no guarantee the prompt is shown.
func (c *Client) RequestReview(ctx context.Context) {
	c.store.RequestReview(ctx)
}

// OnProductsResponse implements ProductsHandler. The response is filtered to
// the client's identifier set, preserving the store's ordering, and forwarded
// to the listener.
func (c *Client) OnProductsResponse(products []Product) {
	valid := make([]Product, 0, len(products))
	for _, p := range products {
		if _, ok := c.idSet[p.ID]; ok {
			valid = append(valid, p)
		}
	}
	c.listener.OnProductsFetched(valid)
}

// OnTransactionsUpdated implements QueueObserver. Terminal transactions are
// finished with the queue; purchasing and deferred ones are left open for a
// later update. The listener always receives the entire original batch,
// finished or not, and decides how to react per state.
func (c *Client) OnTransactionsUpdated(txns []*Transaction) {
	for _, txn := range txns {
		if !txn.State.IsTerminal() {
			continue
		}
		if err := c.store.FinishTransaction(context.Background(), txn.ID); err != nil {
			c.log.Warn("Failed to finish transaction",
				zap.String("transaction_id", txn.ID),
				zap.String("state", txn.State.String()),
				zap.Error(err),
			)
		}
	}

	c.listener.OnTransactionsUpdated(txns)
}

// OnRestoreCompleted implements QueueObserver. The queue's current snapshot
// is forwarded as-is; anything terminal in it was already finished through
// the update path.
func (c *Client) OnRestoreCompleted(queueTxns []*Transaction) {
	c.listener.OnTransactionsUpdated(queueTxns)
}
