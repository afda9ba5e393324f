package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
	"github.com/shopspring/decimal"
)

const cartLineColumns = `id, owner_id, product_id, quantity, created_at, updated_at`

func ListCartLines(ctx context.Context, db sqlx.QueryerContext, ownerID string) ([]models.CartLine, error) {
	lines := []models.CartLine{}

	query := `SELECT ` + cartLineColumns + ` FROM cart_lines WHERE owner_id = $1 ORDER BY created_at, id`
	if err := sqlx.SelectContext(ctx, db, &lines, query, ownerID); err != nil {
		return nil, fmt.Errorf("list cart lines: %w", err)
	}

	return lines, nil
}

// ListCartItems joins the owner's cart lines with current product data and prices them at now.
func ListCartItems(ctx context.Context, db sqlx.QueryerContext, ownerID string, now time.Time) ([]models.CartItem, error) {
	lines, err := ListCartLines(ctx, db, ownerID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}

	products, err := GetProductsByID(ctx, db, ids)
	if err != nil {
		return nil, err
	}

	items := make([]models.CartItem, 0, len(lines))
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			continue
		}
		price := product.EffectivePrice(now)
		items = append(items, models.CartItem{
			CartLine:  line,
			Product:   product,
			UnitPrice: price,
			Subtotal:  price.Mul(decimal.NewFromInt(int64(line.Quantity))),
		})
	}

	return items, nil
}

// UpsertCartLine adds quantity to the owner's line for productID, creating it if absent.
func UpsertCartLine(ctx context.Context, db sqlx.ExtContext, ownerID string, productID int64, quantity int) (*models.CartLine, error) {
	line := &models.CartLine{}

	query := `
		INSERT INTO cart_lines (owner_id, product_id, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT ON CONSTRAINT cart_lines_owner_product_key DO UPDATE
		SET quantity = cart_lines.quantity + EXCLUDED.quantity, updated_at = NOW()
		RETURNING ` + cartLineColumns

	if err := sqlx.GetContext(ctx, db, line, query, ownerID, productID, quantity); err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: %d", database.ErrProductNotFound, productID)
		}
		return nil, fmt.Errorf("upsert cart line: %w", err)
	}

	return line, nil
}

func SetCartLineQuantity(ctx context.Context, db sqlx.ExtContext, ownerID string, productID int64, quantity int) (*models.CartLine, error) {
	line := &models.CartLine{}

	query := `
		UPDATE cart_lines SET quantity = $3, updated_at = NOW()
		WHERE owner_id = $1 AND product_id = $2
		RETURNING ` + cartLineColumns

	if err := sqlx.GetContext(ctx, db, line, query, ownerID, productID, quantity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCartLineNotFound
		}
		return nil, fmt.Errorf("update cart line: %w", err)
	}

	return line, nil
}

func DeleteCartLine(ctx context.Context, db sqlx.ExecerContext, ownerID string, productID int64) error {
	result, err := db.ExecContext(ctx,
		`DELETE FROM cart_lines WHERE owner_id = $1 AND product_id = $2`, ownerID, productID)
	if err != nil {
		return fmt.Errorf("delete cart line: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrCartLineNotFound
	}

	return nil
}

// ClearCart deletes every line the owner holds and reports how many were removed.
func ClearCart(ctx context.Context, db sqlx.ExecerContext, ownerID string) (int64, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM cart_lines WHERE owner_id = $1`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("clear cart: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}

	return rowsAffected, nil
}

func CountCartLines(ctx context.Context, db sqlx.QueryerContext, ownerID string) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, db, &n, `SELECT COUNT(*) FROM cart_lines WHERE owner_id = $1`, ownerID); err != nil {
		return 0, fmt.Errorf("count cart lines: %w", err)
	}
	return n, nil
}
