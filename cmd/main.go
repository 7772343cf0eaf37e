package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mobileiap/purchase-client/purchase"
	"github.com/mobileiap/purchase-client/purchase/memory"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logger.Sync()

	userToken := os.Getenv("PURCHASE_USER_TOKEN")
	if userToken == "" {
		userToken = "demo-user"
	}

	store := memory.NewInMemory(
		purchase.Product{
			ID:          "pro_upgrade",
			Title:       "Pro Upgrade",
			Description: "Unlocks the pro feature set",
			Price:       decimal.RequireFromString("19.99"),
			Currency:    "USD",
		},
		purchase.Product{
			ID:       "coins_100",
			Title:    "100 Coins",
			Price:    decimal.RequireFromString("4.99"),
			Currency: "USD",
		},
	)

	var fetched []purchase.Product
	listener := purchase.ListenerFuncs{
		Products: func(products []purchase.Product) {
			fetched = products
			for _, p := range products {
				fmt.Printf("Product: %s (%s %s)\n", p.ID, p.Price, p.Currency)
			}
		},
		Transactions: func(txns []*purchase.Transaction) {
			for _, txn := range txns {
				fmt.Printf("Transaction %s: %s %s\n", txn.ID, txn.ProductID, txn.State)
			}
		},
	}

	client := purchase.NewClient(logger, store, listener, "pro_upgrade", "coins_100")

	ctx := context.Background()
	if !client.IsPaymentsAvailable(ctx) {
		log.Fatal("Payments are not available")
	}

	if err := client.FetchProducts(ctx); err != nil {
		log.Fatal("Failed to fetch products:", err)
	}
	if len(fetched) == 0 {
		log.Fatal("Catalog returned no products")
	}

	if err := client.SubmitPayment(ctx, fetched[0], 1, userToken); err != nil {
		log.Fatal("Failed to submit payment:", err)
	}
	client.StopObserving()

	client.RequestReview(ctx)
}
