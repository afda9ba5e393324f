package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, order_number, owner_id, customer_name, customer_email, customer_phone,
		shipping_address, pincode, payment_method, payment_status, gateway_order_id,
		gateway_payment_id, gateway_signature, status, total_amount, created_at, updated_at, version`

const orderItemColumns = `id, order_id, product_id, quantity, unit_price, subtotal, created_at`

// GatewayRefs are the identifiers returned by the payment gateway for a verified payment.
type GatewayRefs struct {
	OrderID   string
	PaymentID string
	Signature string
}

type OrderItemRequest struct {
	ProductID int64
	Quantity  int
	Price     decimal.Decimal
}

type CommitOrderRequest struct {
	OwnerID       *string
	Customer      models.CustomerInfo
	PaymentMethod string
	PaymentStatus string
	Gateway       *GatewayRefs
	Items         []OrderItemRequest
	Total         decimal.Decimal
	// Tolerance bounds how far client prices and total may drift from server prices.
	Tolerance decimal.Decimal
	// ConsumeCart requires Items to match the server cart for OwnerID line for line
	// and clears it in the same transaction.
	ConsumeCart bool
}

func generateOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), strings.ToUpper(uuid.NewString()[:8]))
}

// CommitOrder writes the order, its items and the stock decrements atomically.
// Item prices are re-read from the locked product rows; the stored snapshot is the
// server price, and the order total is the sum of the stored snapshots.
func CommitOrder(ctx context.Context, db *sqlx.DB, req CommitOrderRequest) (*models.Order, error) {
	if err := validateCommitRequest(&req); err != nil {
		return nil, err
	}

	items := make([]OrderItemRequest, len(req.Items))
	copy(items, req.Items)
	// Lock rows in a stable order so concurrent commits cannot deadlock each other.
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

	var order *models.Order

	err := database.WithRetry(ctx, db, database.LedgerTxOptions(), func(tx *sqlx.Tx) error {
		if req.OwnerID != nil {
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, *req.OwnerID); err != nil {
				return fmt.Errorf("lock owner: %w", err)
			}
		}

		if req.Gateway != nil {
			var used bool
			err := tx.GetContext(ctx, &used,
				`SELECT EXISTS(SELECT 1 FROM orders WHERE gateway_order_id = $1)`, req.Gateway.OrderID)
			if err != nil {
				return fmt.Errorf("check gateway order: %w", err)
			}
			if used {
				return database.ErrDuplicatePayment
			}
		}

		if req.ConsumeCart {
			if err := matchCart(ctx, tx, *req.OwnerID, items); err != nil {
				return err
			}
		}

		now := time.Now()
		total := decimal.Zero
		prices := make(map[int64]decimal.Decimal, len(items))
		products := make(map[int64]*models.Product, len(items))

		for _, item := range items {
			product, err := LockProduct(ctx, tx, item.ProductID)
			if err != nil {
				return err
			}

			price := product.EffectivePrice(now)
			if item.Price.Sub(price).Abs().GreaterThan(req.Tolerance) {
				return fmt.Errorf("%w: product %d is %s, got %s", database.ErrPriceMismatch, item.ProductID, price, item.Price)
			}
			if product.StockQuantity < item.Quantity {
				return fmt.Errorf("%w: product %d", database.ErrInsufficientStock, item.ProductID)
			}

			prices[item.ProductID] = price
			products[item.ProductID] = product
			total = total.Add(price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}

		if req.Total.Sub(total).Abs().GreaterThan(req.Tolerance) {
			return fmt.Errorf("%w: expected %s, got %s", database.ErrTotalMismatch, total, req.Total)
		}

		if req.Gateway != nil {
			if err := checkPaidAmount(ctx, tx, req.Gateway.OrderID, total, req.Tolerance); err != nil {
				return err
			}
		}

		var gatewayOrderID, gatewayPaymentID, gatewaySignature *string
		if req.Gateway != nil {
			gatewayOrderID = &req.Gateway.OrderID
			gatewayPaymentID = &req.Gateway.PaymentID
			gatewaySignature = &req.Gateway.Signature
		}

		created := &models.Order{}
		err := tx.GetContext(ctx, created,
			`INSERT INTO orders (order_number, owner_id, customer_name, customer_email, customer_phone,
			                     shipping_address, pincode, payment_method, payment_status, gateway_order_id,
			                     gateway_payment_id, gateway_signature, status, total_amount,
			                     created_at, updated_at, version)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW(), 1)
			 RETURNING `+orderColumns,
			generateOrderNumber(now), req.OwnerID, req.Customer.Name, req.Customer.Email, req.Customer.Phone,
			req.Customer.ShippingAddress, req.Customer.Pincode, req.PaymentMethod, req.PaymentStatus,
			gatewayOrderID, gatewayPaymentID, gatewaySignature, models.OrderStatusPending, total)
		if err != nil {
			if database.IsUniqueViolation(err, "orders_gateway_order_id_key") {
				return database.ErrDuplicatePayment
			}
			return fmt.Errorf("create order: %w", err)
		}

		created.Items = make([]models.OrderItem, 0, len(items))
		for _, item := range items {
			unitPrice := prices[item.ProductID]
			subtotal := unitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))

			var orderItem models.OrderItem
			err := tx.GetContext(ctx, &orderItem,
				`INSERT INTO order_items (order_id, product_id, quantity, unit_price, subtotal, created_at)
				 VALUES ($1, $2, $3, $4, $5, NOW())
				 RETURNING `+orderItemColumns,
				created.ID, item.ProductID, item.Quantity, unitPrice, subtotal)
			if err != nil {
				return fmt.Errorf("create order item: %w", err)
			}

			if err := DecrementStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}

			product := *products[item.ProductID]
			product.StockQuantity -= item.Quantity
			orderItem.Product = &product
			created.Items = append(created.Items, orderItem)
		}

		if req.ConsumeCart {
			if _, err := ClearCart(ctx, tx, *req.OwnerID); err != nil {
				return err
			}
		}

		order = created
		return nil
	})

	if err != nil {
		if database.IsRetryable(err) {
			return nil, fmt.Errorf("%w: %v", database.ErrLockTimeout, err)
		}
		return nil, err
	}

	return order, nil
}

// matchCart fails unless items are exactly the owner's cart lines, so clearing the
// cart never drops a line the order does not contain.
func matchCart(ctx context.Context, tx *sqlx.Tx, ownerID string, items []OrderItemRequest) error {
	lines, err := ListCartLines(ctx, tx, ownerID)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return database.ErrEmptyCart
	}
	if len(lines) != len(items) {
		return fmt.Errorf("%w: cart has %d lines, order has %d", database.ErrCartMismatch, len(lines), len(items))
	}

	inCart := make(map[int64]int, len(lines))
	for _, line := range lines {
		inCart[line.ProductID] = line.Quantity
	}
	for _, item := range items {
		qty, ok := inCart[item.ProductID]
		if !ok {
			return fmt.Errorf("%w: product %d is not in the cart", database.ErrCartMismatch, item.ProductID)
		}
		if qty != item.Quantity {
			return fmt.Errorf("%w: product %d has quantity %d in the cart, got %d",
				database.ErrCartMismatch, item.ProductID, qty, item.Quantity)
		}
	}

	return nil
}

func GetOrder(ctx context.Context, db sqlx.QueryerContext, id int64) (*models.Order, error) {
	return getOrderWhere(ctx, db, "id = $1", id)
}

func GetOrderByNumber(ctx context.Context, db sqlx.QueryerContext, orderNumber string) (*models.Order, error) {
	return getOrderWhere(ctx, db, "order_number = $1", orderNumber)
}

func getOrderWhere(ctx context.Context, db sqlx.QueryerContext, predicate string, arg interface{}) (*models.Order, error) {
	order := &models.Order{}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + predicate
	if err := sqlx.GetContext(ctx, db, order, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := loadOrderItems(ctx, db, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

// loadOrderItems returns the order's items with their product records attached.
// Prices come from the item rows, never from the products.
func loadOrderItems(ctx context.Context, db sqlx.QueryerContext, orderID int64) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	err := sqlx.SelectContext(ctx, db, &items,
		`SELECT `+orderItemColumns+` FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}

	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := GetProductsByID(ctx, db, ids)
	if err != nil {
		return nil, err
	}

	for i := range items {
		if p, ok := products[items[i].ProductID]; ok {
			p := p
			items[i].Product = &p
		}
	}

	return items, nil
}

// ListOrdersCursor pages the owner's orders newest first.
func ListOrdersCursor(ctx context.Context, db sqlx.QueryerContext, ownerID string, cursor string, limit int) (*CursorPage, error) {
	return listOrdersCursor(ctx, db, &ownerID, cursor, limit)
}

// ListAllOrdersCursor pages every order newest first.
func ListAllOrdersCursor(ctx context.Context, db sqlx.QueryerContext, cursor string, limit int) (*CursorPage, error) {
	return listOrdersCursor(ctx, db, nil, cursor, limit)
}

func listOrdersCursor(ctx context.Context, db sqlx.QueryerContext, ownerID *string, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	limit = normalizeLimit(limit)

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE ($1::text IS NULL OR owner_id = $1)
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	orders := []models.Order{}
	if err := sqlx.SelectContext(ctx, db, &orders, query, ownerID, cursorData.CreatedAt, cursorData.ID, limit+1); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// UpdateOrderStatus moves an order along the fulfilment lifecycle.
func UpdateOrderStatus(ctx context.Context, db *sqlx.DB, orderNumber, status string) (*models.Order, error) {
	var updated *models.Order

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sqlx.Tx) error {
		current := &models.Order{}
		err := tx.GetContext(ctx, current,
			`SELECT `+orderColumns+` FROM orders WHERE order_number = $1 FOR UPDATE`, orderNumber)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return database.ErrOrderNotFound
			}
			return fmt.Errorf("lock order: %w", err)
		}

		if !models.CanTransition(current.Status, status) {
			return fmt.Errorf("%w: %s -> %s", database.ErrInvalidStatusTransition, current.Status, status)
		}

		updated = &models.Order{}
		err = tx.GetContext(ctx, updated,
			`UPDATE orders SET status = $1, version = version + 1, updated_at = NOW()
			 WHERE id = $2
			 RETURNING `+orderColumns,
			status, current.ID)
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func GetNextPendingOrder(ctx context.Context, tx *sqlx.Tx) (*models.Order, error) {
	order := &models.Order{}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status = $1
		ORDER BY created_at
		FOR UPDATE SKIP LOCKED
		LIMIT 1`

	if err := tx.GetContext(ctx, order, query, models.OrderStatusPending); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get next pending order: %w", err)
	}

	return order, nil
}

// ClaimNextPendingOrder hands the oldest pending order to a fulfilment worker by moving it to processing.
// Concurrent claimers never receive the same order.
func ClaimNextPendingOrder(ctx context.Context, db *sqlx.DB) (*models.Order, error) {
	var claimed *models.Order

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sqlx.Tx) error {
		order, err := GetNextPendingOrder(ctx, tx)
		if err != nil {
			return err
		}

		claimed = &models.Order{}
		err = tx.GetContext(ctx, claimed,
			`UPDATE orders SET status = $1, version = version + 1, updated_at = NOW()
			 WHERE id = $2
			 RETURNING `+orderColumns,
			models.OrderStatusProcessing, order.ID)
		if err != nil {
			return fmt.Errorf("claim order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	items, err := loadOrderItems(ctx, db, claimed.ID)
	if err != nil {
		return nil, err
	}
	claimed.Items = items

	return claimed, nil
}

// Ledger binds the order functions to a database handle.
type Ledger struct {
	db *sqlx.DB
}

func NewLedger(db *sqlx.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) RecordPaymentIntent(ctx context.Context, intent models.PaymentIntent) error {
	_, err := RecordPaymentIntent(ctx, l.db, intent)
	return err
}

func (l *Ledger) CommitOrder(ctx context.Context, req CommitOrderRequest) (*models.Order, error) {
	return CommitOrder(ctx, l.db, req)
}
