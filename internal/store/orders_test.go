package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/payment"
	"github.com/safar/storefront/internal/store"
	"github.com/shopspring/decimal"
)

var tolerance = decimal.RequireFromString("0.01")

func codRequest(owner *string, items []store.OrderItemRequest, total int64) store.CommitOrderRequest {
	return store.CommitOrderRequest{
		OwnerID:       owner,
		Customer:      testCustomer(),
		PaymentMethod: models.PaymentMethodCOD,
		PaymentStatus: models.PaymentStatusPending,
		Items:         items,
		Total:         decimal.NewFromInt(total),
		Tolerance:     tolerance,
	}
}

func TestCommitOrder(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	product1 := seedProduct(t, db, "Teak Chair", 100, 50)
	product2 := seedProduct(t, db, "Oak Table", 200, 30)

	order, err := store.CommitOrder(ctx, db, codRequest(nil, []store.OrderItemRequest{
		{ProductID: product1.ID, Quantity: 5, Price: decimal.NewFromInt(100)},
		{ProductID: product2.ID, Quantity: 3, Price: decimal.NewFromInt(200)},
	}, 1100))
	if err != nil {
		t.Fatalf("Commit order: %v", err)
	}

	if order.ID == 0 {
		t.Error("Order ID should not be 0")
	}
	if order.Status != models.OrderStatusPending {
		t.Errorf("Expected status pending, got %s", order.Status)
	}
	if !order.TotalAmount.Equal(decimal.NewFromInt(1100)) {
		t.Errorf("Expected total 1100, got %s", order.TotalAmount)
	}
	if len(order.Items) != 2 || order.Items[0].Product == nil {
		t.Fatalf("Expected 2 items with products, got %+v", order.Items)
	}

	product1After, err := store.GetProduct(ctx, db, product1.ID)
	if err != nil {
		t.Fatalf("Get product 1: %v", err)
	}
	if product1After.StockQuantity != 45 {
		t.Errorf("Expected product 1 stock 45, got %d", product1After.StockQuantity)
	}
}

func TestCommitOrderSnapshotSurvivesPriceChange(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	product := seedProduct(t, db, "Recliner", 500, 10)

	order, err := store.CommitOrder(ctx, db, codRequest(nil, []store.OrderItemRequest{
		{ProductID: product.ID, Quantity: 2, Price: decimal.NewFromInt(500)},
	}, 1000))
	if err != nil {
		t.Fatalf("Commit order: %v", err)
	}

	current, err := store.GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	_, err = store.UpdateProductPricing(ctx, db, product.ID, current.Version, store.PricingUpdate{
		Price: decimal.NewFromInt(900),
	})
	if err != nil {
		t.Fatalf("Update pricing: %v", err)
	}

	reloaded, err := store.GetOrderByNumber(ctx, db, order.OrderNumber)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if !reloaded.Items[0].UnitPrice.Equal(decimal.NewFromInt(500)) {
		t.Errorf("Expected snapshot price 500, got %s", reloaded.Items[0].UnitPrice)
	}
	if !reloaded.TotalAmount.Equal(reloaded.ItemsTotal()) {
		t.Errorf("Total %s does not match items %s", reloaded.TotalAmount, reloaded.ItemsTotal())
	}
}

func TestCommitOrderRejectsTamperedPrices(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	product := seedProduct(t, db, "Sofa", 1000, 5)

	_, err := store.CommitOrder(ctx, db, codRequest(nil, []store.OrderItemRequest{
		{ProductID: product.ID, Quantity: 1, Price: decimal.NewFromInt(1)},
	}, 1))
	if !errors.Is(err, database.ErrPriceMismatch) {
		t.Errorf("Expected price mismatch, got: %v", err)
	}

	_, err = store.CommitOrder(ctx, db, codRequest(nil, []store.OrderItemRequest{
		{ProductID: product.ID, Quantity: 1, Price: decimal.NewFromInt(1000)},
	}, 10))
	if !errors.Is(err, database.ErrTotalMismatch) {
		t.Errorf("Expected total mismatch, got: %v", err)
	}
}

func TestCommitOrderInsufficientStock(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	product := seedProduct(t, db, "Bookshelf", 100, 5)

	_, err := store.CommitOrder(ctx, db, codRequest(nil, []store.OrderItemRequest{
		{ProductID: product.ID, Quantity: 10, Price: decimal.NewFromInt(100)},
	}, 1000))
	if !errors.Is(err, database.ErrInsufficientStock) {
		t.Errorf("Expected insufficient stock error, got: %v", err)
	}

	productAfter, err := store.GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if productAfter.StockQuantity != 5 {
		t.Errorf("Stock should remain unchanged at 5, got %d", productAfter.StockQuantity)
	}
}

func TestCommitOrderMissingProductLeavesNoOrder(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	product := seedProduct(t, db, "Ottoman", 100, 5)

	_, err := store.CommitOrder(ctx, db, codRequest(nil, []store.OrderItemRequest{
		{ProductID: product.ID, Quantity: 1, Price: decimal.NewFromInt(100)},
		{ProductID: 999999, Quantity: 1, Price: decimal.NewFromInt(100)},
	}, 200))
	if !errors.Is(err, database.ErrProductNotFound) {
		t.Fatalf("Expected product not found, got: %v", err)
	}

	var orders int
	if err := db.GetContext(ctx, &orders, `SELECT COUNT(*) FROM orders`); err != nil {
		t.Fatalf("Count orders: %v", err)
	}
	if orders != 0 {
		t.Errorf("Expected no orders, got %d", orders)
	}
}

func TestCommitOrderConsumesCart(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	owner := "auth0|buyer"

	product := seedProduct(t, db, "Lamp", 500, 10)

	req := codRequest(&owner, []store.OrderItemRequest{
		{ProductID: product.ID, Quantity: 2, Price: decimal.NewFromInt(500)},
	}, 1000)
	req.ConsumeCart = true

	if _, err := store.CommitOrder(ctx, db, req); !errors.Is(err, database.ErrEmptyCart) {
		t.Fatalf("Expected empty cart error, got: %v", err)
	}

	if _, err := store.UpsertCartLine(ctx, db, owner, product.ID, 2); err != nil {
		t.Fatalf("Add cart line: %v", err)
	}

	if _, err := store.CommitOrder(ctx, db, req); err != nil {
		t.Fatalf("Commit order: %v", err)
	}

	n, err := store.CountCartLines(ctx, db, owner)
	if err != nil {
		t.Fatalf("Count cart lines: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected empty cart after commit, got %d lines", n)
	}

	// A second submit of the same cart finds nothing to consume.
	if _, err := store.CommitOrder(ctx, db, req); !errors.Is(err, database.ErrEmptyCart) {
		t.Errorf("Expected empty cart on resubmit, got: %v", err)
	}
}

func TestCommitOrderRejectsReusedPayment(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	product := seedProduct(t, db, "Desk", 300, 10)

	req := codRequest(nil, []store.OrderItemRequest{
		{ProductID: product.ID, Quantity: 1, Price: decimal.NewFromInt(300)},
	}, 300)
	req.PaymentMethod = models.PaymentMethodRazorpay
	req.PaymentStatus = models.PaymentStatusPaid
	req.Gateway = &store.GatewayRefs{OrderID: "order_1", PaymentID: "pay_1", Signature: "sig"}

	recordIntent(t, db, "order_1", 300)

	if _, err := store.CommitOrder(ctx, db, req); err != nil {
		t.Fatalf("Commit order: %v", err)
	}

	if _, err := store.CommitOrder(ctx, db, req); !errors.Is(err, database.ErrDuplicatePayment) {
		t.Errorf("Expected duplicate payment, got: %v", err)
	}
}

func recordIntent(t *testing.T, db *sqlx.DB, gatewayOrderID string, amount int64) {
	t.Helper()

	_, err := store.RecordPaymentIntent(context.Background(), db, models.PaymentIntent{
		GatewayOrderID: gatewayOrderID,
		Amount:         decimal.NewFromInt(amount),
		Currency:       "INR",
		Receipt:        "rcpt_" + gatewayOrderID,
	})
	if err != nil {
		t.Fatalf("Record payment intent: %v", err)
	}
}

func TestCommitOrderRequiresMatchingPaymentIntent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	product := seedProduct(t, db, "Sofa", 500, 20)
	recordIntent(t, db, "order_small", 500)

	paidRequest := func(gatewayOrderID string, quantity int) store.CommitOrderRequest {
		req := codRequest(nil, []store.OrderItemRequest{
			{ProductID: product.ID, Quantity: quantity, Price: decimal.NewFromInt(500)},
		}, int64(500*quantity))
		req.PaymentMethod = models.PaymentMethodRazorpay
		req.PaymentStatus = models.PaymentStatusPaid
		req.Gateway = &store.GatewayRefs{OrderID: gatewayOrderID, PaymentID: "pay_1", Signature: "sig"}
		return req
	}

	// A payment opened for one sofa cannot settle an order for ten.
	if _, err := store.CommitOrder(ctx, db, paidRequest("order_small", 10)); !errors.Is(err, payment.ErrVerificationFailed) {
		t.Errorf("Expected verification failure for a larger order, got: %v", err)
	}

	if _, err := store.CommitOrder(ctx, db, paidRequest("order_unknown", 1)); !errors.Is(err, payment.ErrVerificationFailed) {
		t.Errorf("Expected verification failure for an unknown gateway order, got: %v", err)
	}

	var orders int
	if err := db.GetContext(ctx, &orders, `SELECT COUNT(*) FROM orders`); err != nil {
		t.Fatalf("Count orders: %v", err)
	}
	if orders != 0 {
		t.Errorf("Expected no orders, got %d", orders)
	}

	productAfter, err := store.GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if productAfter.StockQuantity != 20 {
		t.Errorf("Stock should remain unchanged at 20, got %d", productAfter.StockQuantity)
	}

	order, err := store.CommitOrder(ctx, db, paidRequest("order_small", 1))
	if err != nil {
		t.Fatalf("Commit order matching its intent: %v", err)
	}
	if !order.TotalAmount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("Expected total 500, got %s", order.TotalAmount)
	}
}

func TestCommitOrderRejectsCartMismatch(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	owner := "auth0|buyer"

	chair := seedProduct(t, db, "Chair", 200, 10)
	table := seedProduct(t, db, "Table", 800, 10)

	for _, line := range []struct {
		id  int64
		qty int
	}{{chair.ID, 2}, {table.ID, 1}} {
		if _, err := store.UpsertCartLine(ctx, db, owner, line.id, line.qty); err != nil {
			t.Fatalf("Add cart line: %v", err)
		}
	}

	cartRequest := func(items []store.OrderItemRequest, total int64) store.CommitOrderRequest {
		req := codRequest(&owner, items, total)
		req.ConsumeCart = true
		return req
	}

	tests := []struct {
		name  string
		items []store.OrderItemRequest
		total int64
	}{
		{"line missing from order", []store.OrderItemRequest{
			{ProductID: chair.ID, Quantity: 2, Price: decimal.NewFromInt(200)},
		}, 400},
		{"quantity differs", []store.OrderItemRequest{
			{ProductID: chair.ID, Quantity: 1, Price: decimal.NewFromInt(200)},
			{ProductID: table.ID, Quantity: 1, Price: decimal.NewFromInt(800)},
		}, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.CommitOrder(ctx, db, cartRequest(tt.items, tt.total))
			if !errors.Is(err, database.ErrCartMismatch) {
				t.Errorf("Expected cart mismatch, got: %v", err)
			}
		})
	}

	n, err := store.CountCartLines(ctx, db, owner)
	if err != nil {
		t.Fatalf("Count cart lines: %v", err)
	}
	if n != 2 {
		t.Fatalf("Expected both cart lines kept, got %d", n)
	}

	order, err := store.CommitOrder(ctx, db, cartRequest([]store.OrderItemRequest{
		{ProductID: table.ID, Quantity: 1, Price: decimal.NewFromInt(800)},
		{ProductID: chair.ID, Quantity: 2, Price: decimal.NewFromInt(200)},
	}, 1200))
	if err != nil {
		t.Fatalf("Commit whole cart: %v", err)
	}
	if len(order.Items) != 2 {
		t.Errorf("Expected 2 order items, got %d", len(order.Items))
	}

	n, err = store.CountCartLines(ctx, db, owner)
	if err != nil {
		t.Fatalf("Count cart lines: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected empty cart after commit, got %d lines", n)
	}
}

func TestConcurrentCommitOrder(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	product := seedProduct(t, db, "Stool", 100, 20)

	concurrency := 10
	var wg sync.WaitGroup
	results := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := store.CommitOrder(ctx, db, codRequest(nil, []store.OrderItemRequest{
				{ProductID: product.ID, Quantity: 3, Price: decimal.NewFromInt(100)},
			}, 300))

			results <- err
		}()
	}

	wg.Wait()
	close(results)

	successCount := 0
	for err := range results {
		switch {
		case err == nil:
			successCount++
		case errors.Is(err, database.ErrInsufficientStock), errors.Is(err, database.ErrLockTimeout):
		default:
			t.Errorf("Unexpected error: %v", err)
		}
	}

	if successCount == 0 || successCount > 6 {
		t.Errorf("Expected between 1 and 6 successful orders, got %d", successCount)
	}

	productAfter, err := store.GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}

	expectedStock := 20 - (successCount * 3)
	if productAfter.StockQuantity != expectedStock {
		t.Errorf("Expected final stock %d, got %d", expectedStock, productAfter.StockQuantity)
	}
}

func TestListOrdersCursor(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	owner := "auth0|pager"

	product := seedProduct(t, db, "Cushion", 100, 100)

	for i := 0; i < 15; i++ {
		_, err := store.CommitOrder(ctx, db, codRequest(&owner, []store.OrderItemRequest{
			{ProductID: product.ID, Quantity: 1, Price: decimal.NewFromInt(100)},
		}, 100))
		if err != nil {
			t.Fatalf("Commit order %d: %v", i, err)
		}
	}

	page1, err := store.ListOrdersCursor(ctx, db, owner, "", 10)
	if err != nil {
		t.Fatalf("List orders page 1: %v", err)
	}

	if !page1.HasMore {
		t.Error("Page 1 should have more results")
	}
	if page1.NextCursor == "" {
		t.Error("Page 1 should have a next cursor")
	}

	page2, err := store.ListOrdersCursor(ctx, db, owner, page1.NextCursor, 10)
	if err != nil {
		t.Fatalf("List orders page 2: %v", err)
	}
	if page2.HasMore {
		t.Error("Page 2 should not have more results")
	}
	if got := len(page2.Items.([]models.Order)); got != 5 {
		t.Errorf("Expected 5 orders on page 2, got %d", got)
	}

	other, err := store.ListOrdersCursor(ctx, db, "auth0|someone-else", "", 10)
	if err != nil {
		t.Fatalf("List other owner: %v", err)
	}
	if got := len(other.Items.([]models.Order)); got != 0 {
		t.Errorf("Expected no orders for another owner, got %d", got)
	}
}

func TestOrderStatusLifecycle(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	product := seedProduct(t, db, "Wardrobe", 100, 10)

	order, err := store.CommitOrder(ctx, db, codRequest(nil, []store.OrderItemRequest{
		{ProductID: product.ID, Quantity: 1, Price: decimal.NewFromInt(100)},
	}, 100))
	if err != nil {
		t.Fatalf("Commit order: %v", err)
	}

	if _, err := store.UpdateOrderStatus(ctx, db, order.OrderNumber, models.OrderStatusDelivered); !errors.Is(err, database.ErrInvalidStatusTransition) {
		t.Errorf("Expected invalid transition, got: %v", err)
	}

	claimed, err := store.ClaimNextPendingOrder(ctx, db)
	if err != nil {
		t.Fatalf("Claim order: %v", err)
	}
	if claimed.ID != order.ID || claimed.Status != models.OrderStatusProcessing {
		t.Errorf("Expected order %d processing, got %d %s", order.ID, claimed.ID, claimed.Status)
	}

	if _, err := store.ClaimNextPendingOrder(ctx, db); !errors.Is(err, database.ErrOrderNotFound) {
		t.Errorf("Expected no pending orders, got: %v", err)
	}

	shipped, err := store.UpdateOrderStatus(ctx, db, order.OrderNumber, models.OrderStatusShipped)
	if err != nil {
		t.Fatalf("Ship order: %v", err)
	}
	if shipped.Version != order.Version+2 {
		t.Errorf("Expected version %d, got %d", order.Version+2, shipped.Version)
	}
}
