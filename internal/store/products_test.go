package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/store"
	"github.com/shopspring/decimal"
)

func TestOptimisticLocking(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	product := seedProduct(t, db, "Bench", 100, 50)

	err := store.UpdateStockOptimistic(ctx, db, product.ID, 40, product.Version)
	if err != nil {
		t.Fatalf("First update should succeed: %v", err)
	}

	err = store.UpdateStockOptimistic(ctx, db, product.ID, 30, product.Version)
	if !errors.Is(err, database.ErrOptimisticLockFailed) {
		t.Errorf("Expected optimistic lock failure, got: %v", err)
	}

	err = store.UpdateStockOptimistic(ctx, db, 999999, 30, 1)
	if !errors.Is(err, database.ErrProductNotFound) {
		t.Errorf("Expected product not found, got: %v", err)
	}
}

func TestLockProductNoWait(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	product := seedProduct(t, db, "Cabinet", 100, 20)

	tx1, err := db.BeginTxx(ctx, nil)
	if err != nil {
		t.Fatalf("Begin tx1: %v", err)
	}
	defer func() { _ = tx1.Rollback() }()

	if _, err := store.LockProduct(ctx, tx1, product.ID); err != nil {
		t.Fatalf("Lock product in tx1: %v", err)
	}

	tx2, err := db.BeginTxx(ctx, nil)
	if err != nil {
		t.Fatalf("Begin tx2: %v", err)
	}
	defer func() { _ = tx2.Rollback() }()

	_, err = store.LockProduct(ctx, tx2, product.ID)
	if err == nil || !database.IsRetryable(err) {
		t.Errorf("Expected retryable lock error, got: %v", err)
	}
}

func TestListProductsDealsOnly(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	category, err := store.CreateCategory(ctx, db, "Living Room")
	if err != nil {
		t.Fatalf("Create category: %v", err)
	}

	expired := time.Now().Add(-time.Hour)
	params := []store.CreateProductParams{
		{Name: "Plain Sofa", Price: decimal.NewFromInt(1000), Stock: 1, CategoryID: category.ID},
		{Name: "Deal Sofa", Price: decimal.NewFromInt(1000), DealPrice: decimal.NewNullDecimal(decimal.NewFromInt(800)), IsDeal: true, Stock: 1, CategoryID: category.ID},
		{Name: "Expired Sofa", Price: decimal.NewFromInt(1000), DealPrice: decimal.NewNullDecimal(decimal.NewFromInt(700)), IsDeal: true, DealExpiry: &expired, Stock: 1, CategoryID: category.ID},
	}
	for _, p := range params {
		if _, err := store.CreateProduct(ctx, db, p); err != nil {
			t.Fatalf("Create product %s: %v", p.Name, err)
		}
	}

	page, err := store.ListProducts(ctx, db, store.ProductFilter{CategoryID: &category.ID, DealsOnly: true})
	if err != nil {
		t.Fatalf("List products: %v", err)
	}

	products := page.Items.([]models.Product)
	if page.Total != 1 || len(products) != 1 || products[0].Name != "Deal Sofa" {
		t.Errorf("Expected only the active deal, got %+v", products)
	}

	all, err := store.ListProducts(ctx, db, store.ProductFilter{Search: "sofa", PageSize: 2})
	if err != nil {
		t.Fatalf("Search products: %v", err)
	}
	if all.Total != 3 || all.TotalPages != 2 {
		t.Errorf("Expected 3 results over 2 pages, got %d over %d", all.Total, all.TotalPages)
	}
}

func TestCreateProductUnknownCategory(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := store.CreateProduct(context.Background(), db, store.CreateProductParams{
		Name: "Orphan", Price: decimal.NewFromInt(1), Stock: 1, CategoryID: 424242,
	})
	if !errors.Is(err, database.ErrCategoryNotFound) {
		t.Errorf("Expected category not found, got: %v", err)
	}
}
