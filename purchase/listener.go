package purchase

// Listener receives the client's asynchronous results. Both callbacks are
// purely notificational; no return value is expected. Callbacks arrive on
// whatever goroutine the store delivers on, so implementations must not
// assume a particular context.
type Listener interface {
	// OnProductsFetched delivers the catalog entries matching the client's
	// identifier set, in the order the store returned them.
	OnProductsFetched(products []Product)

	// OnTransactionsUpdated delivers a full batch of transaction updates,
	// including transactions the client left open (purchasing, deferred).
	// The listener decides how to react per state.
	OnTransactionsUpdated(txns []*Transaction)
}

// ListenerFuncs is an adapter to allow the use of ordinary functions as a
// Listener. Either field may be nil, in which case that notification is
// dropped.
type ListenerFuncs struct {
	Products     func(products []Product)
	Transactions func(txns []*Transaction)
}

func (l ListenerFuncs) OnProductsFetched(products []Product) {
	if l.Products != nil {
		l.Products(products)
	}
}

func (l ListenerFuncs) OnTransactionsUpdated(txns []*Transaction) {
	if l.Transactions != nil {
		l.Transactions(txns)
	}
}
