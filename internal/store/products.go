package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
	"github.com/shopspring/decimal"
)

const productColumns = `id, name, description, price, deal_price, is_deal, deal_expiry, stock_quantity,
		category_id, subcategory_id, created_at, updated_at, version`

type CreateProductParams struct {
	Name          string
	Description   string
	Price         decimal.Decimal
	DealPrice     decimal.NullDecimal
	IsDeal        bool
	DealExpiry    *time.Time
	Stock         int
	CategoryID    int64
	SubcategoryID *int64
}

// PricingUpdate replaces the price and deal fields of a product.
type PricingUpdate struct {
	Price      decimal.Decimal
	DealPrice  decimal.NullDecimal
	IsDeal     bool
	DealExpiry *time.Time
}

type ProductFilter struct {
	CategoryID    *int64
	SubcategoryID *int64
	DealsOnly     bool
	Search        string
	Page          int
	PageSize      int
}

func CreateProduct(ctx context.Context, db sqlx.ExtContext, p CreateProductParams) (*models.Product, error) {
	product := &models.Product{}

	query := `
		INSERT INTO products (name, description, price, deal_price, is_deal, deal_expiry, stock_quantity,
		                      category_id, subcategory_id, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW(), 1)
		RETURNING ` + productColumns

	err := sqlx.GetContext(ctx, db, product, query,
		p.Name, p.Description, p.Price, p.DealPrice, p.IsDeal, p.DealExpiry, p.Stock, p.CategoryID, p.SubcategoryID)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, database.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, db sqlx.QueryerContext, id int64) (*models.Product, error) {
	product := &models.Product{}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	if err := sqlx.GetContext(ctx, db, product, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// GetProductsByID returns the products that still exist, keyed by id.
func GetProductsByID(ctx context.Context, db sqlx.QueryerContext, ids []int64) (map[int64]models.Product, error) {
	out := make(map[int64]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var products []models.Product
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`
	if err := sqlx.SelectContext(ctx, db, &products, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}

	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

func ProductExists(ctx context.Context, db sqlx.QueryerContext, id int64) (bool, error) {
	var exists bool
	if err := sqlx.GetContext(ctx, db, &exists, `SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, id); err != nil {
		return false, fmt.Errorf("check product exists: %w", err)
	}
	return exists, nil
}

// LockProduct takes a row lock on the product for the rest of the transaction.
// A lock held elsewhere surfaces as a transient error so the caller's retry loop can repeat.
func LockProduct(ctx context.Context, tx *sqlx.Tx, productID int64) (*models.Product, error) {
	product := &models.Product{}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE NOWAIT`

	if err := tx.GetContext(ctx, product, query, productID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", database.ErrProductNotFound, productID)
		}
		return nil, fmt.Errorf("lock product %d: %w", productID, err)
	}

	return product, nil
}

func DecrementStock(ctx context.Context, tx *sqlx.Tx, productID int64, quantity int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET stock_quantity = stock_quantity - $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND stock_quantity >= $1`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrInsufficientStock
	}

	return nil
}

// UpdateProductPricing changes price and deal fields if version still matches.
// Orders already placed keep their snapshot prices.
func UpdateProductPricing(ctx context.Context, db sqlx.ExtContext, productID int64, version int, u PricingUpdate) (*models.Product, error) {
	product := &models.Product{}

	query := `
		UPDATE products
		SET price = $1, deal_price = $2, is_deal = $3, deal_expiry = $4,
		    version = version + 1, updated_at = NOW()
		WHERE id = $5 AND version = $6
		RETURNING ` + productColumns

	err := sqlx.GetContext(ctx, db, product, query, u.Price, u.DealPrice, u.IsDeal, u.DealExpiry, productID, version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, versionConflictOrMissing(ctx, db, productID)
		}
		return nil, fmt.Errorf("update product pricing: %w", err)
	}

	return product, nil
}

func UpdateStockOptimistic(ctx context.Context, db sqlx.ExtContext, productID int64, newStock int, version int) error {
	result, err := db.ExecContext(ctx,
		`UPDATE products
		 SET stock_quantity = $1, version = version + 1, updated_at = NOW()
		 WHERE id = $2 AND version = $3`,
		newStock, productID, version)
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return versionConflictOrMissing(ctx, db, productID)
	}

	return nil
}

func versionConflictOrMissing(ctx context.Context, db sqlx.QueryerContext, productID int64) error {
	exists, err := ProductExists(ctx, db, productID)
	if err != nil {
		return err
	}
	if !exists {
		return database.ErrProductNotFound
	}
	return database.ErrOptimisticLockFailed
}

func ListProducts(ctx context.Context, db sqlx.QueryerContext, filter ProductFilter) (*OffsetPage, error) {
	var (
		where []string
		args  []interface{}
	)
	addArg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.CategoryID != nil {
		where = append(where, "category_id = "+addArg(*filter.CategoryID))
	}
	if filter.SubcategoryID != nil {
		where = append(where, "subcategory_id = "+addArg(*filter.SubcategoryID))
	}
	if filter.DealsOnly {
		where = append(where, "is_deal AND deal_price IS NOT NULL AND (deal_expiry IS NULL OR deal_expiry > NOW())")
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		where = append(where, "name ILIKE '%' || "+addArg(s)+" || '%'")
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := sqlx.GetContext(ctx, db, &total, `SELECT COUNT(*) FROM products`+clause, args...); err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * pageSize
	query := `SELECT ` + productColumns + ` FROM products` + clause +
		` ORDER BY created_at DESC, id DESC LIMIT ` + addArg(pageSize) + ` OFFSET ` + addArg(offset)

	products := []models.Product{}
	if err := sqlx.SelectContext(ctx, db, &products, query, args...); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	return newOffsetPage(products, total, page, pageSize), nil
}

// Catalog binds product reads to a database handle.
type Catalog struct {
	db *sqlx.DB
}

func NewCatalog(db *sqlx.DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) GetProductsByID(ctx context.Context, ids []int64) (map[int64]models.Product, error) {
	return GetProductsByID(ctx, c.db, ids)
}
