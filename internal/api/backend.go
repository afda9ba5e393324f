package api

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/store"
)

// Backend is the read and admin surface the handlers need from storage.
type Backend interface {
	UpsertCustomer(ctx context.Context, subject, email, name string) (*models.Customer, error)

	ListProducts(ctx context.Context, filter store.ProductFilter) (*store.OffsetPage, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	CreateProduct(ctx context.Context, p store.CreateProductParams) (*models.Product, error)
	UpdateProductPricing(ctx context.Context, id int64, version int, u store.PricingUpdate) (*models.Product, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	CreateCategory(ctx context.Context, name string) (*models.Category, error)
	CreateSubcategory(ctx context.Context, categoryID int64, name string) (*models.Subcategory, error)

	GetOrderByNumber(ctx context.Context, number string) (*models.Order, error)
	ListOrders(ctx context.Context, owner string, cursor string, limit int) (*store.CursorPage, error)
	ListAllOrders(ctx context.Context, cursor string, limit int) (*store.CursorPage, error)
	UpdateOrderStatus(ctx context.Context, number, status string) (*models.Order, error)
	ClaimNextPendingOrder(ctx context.Context) (*models.Order, error)
	ListNotificationAttempts(ctx context.Context, triggerKind, subjectID string) ([]models.NotificationAttempt, error)
}

// SQLBackend serves Backend from Postgres.
type SQLBackend struct {
	db *sqlx.DB
}

func NewSQLBackend(db *sqlx.DB) *SQLBackend {
	return &SQLBackend{db: db}
}

func (b *SQLBackend) UpsertCustomer(ctx context.Context, subject, email, name string) (*models.Customer, error) {
	return store.UpsertCustomer(ctx, b.db, subject, email, name)
}

func (b *SQLBackend) ListProducts(ctx context.Context, filter store.ProductFilter) (*store.OffsetPage, error) {
	return store.ListProducts(ctx, b.db, filter)
}

func (b *SQLBackend) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	return store.GetProduct(ctx, b.db, id)
}

func (b *SQLBackend) CreateProduct(ctx context.Context, p store.CreateProductParams) (*models.Product, error) {
	return store.CreateProduct(ctx, b.db, p)
}

func (b *SQLBackend) UpdateProductPricing(ctx context.Context, id int64, version int, u store.PricingUpdate) (*models.Product, error) {
	return store.UpdateProductPricing(ctx, b.db, id, version, u)
}

func (b *SQLBackend) ListCategories(ctx context.Context) ([]models.Category, error) {
	return store.ListCategories(ctx, b.db)
}

func (b *SQLBackend) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	return store.CreateCategory(ctx, b.db, name)
}

func (b *SQLBackend) CreateSubcategory(ctx context.Context, categoryID int64, name string) (*models.Subcategory, error) {
	return store.CreateSubcategory(ctx, b.db, categoryID, name)
}

func (b *SQLBackend) GetOrderByNumber(ctx context.Context, number string) (*models.Order, error) {
	return store.GetOrderByNumber(ctx, b.db, number)
}

func (b *SQLBackend) ListOrders(ctx context.Context, owner string, cursor string, limit int) (*store.CursorPage, error) {
	return store.ListOrdersCursor(ctx, b.db, owner, cursor, limit)
}

func (b *SQLBackend) ListAllOrders(ctx context.Context, cursor string, limit int) (*store.CursorPage, error) {
	return store.ListAllOrdersCursor(ctx, b.db, cursor, limit)
}

func (b *SQLBackend) UpdateOrderStatus(ctx context.Context, number, status string) (*models.Order, error) {
	return store.UpdateOrderStatus(ctx, b.db, number, status)
}

func (b *SQLBackend) ClaimNextPendingOrder(ctx context.Context) (*models.Order, error) {
	return store.ClaimNextPendingOrder(ctx, b.db)
}

func (b *SQLBackend) ListNotificationAttempts(ctx context.Context, triggerKind, subjectID string) ([]models.NotificationAttempt, error) {
	return store.ListNotificationAttempts(ctx, b.db, triggerKind, subjectID)
}
