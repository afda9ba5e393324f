package cart

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/store"
)

// Repository is the server-side cart storage.
type Repository interface {
	ListLines(ctx context.Context, owner string) ([]models.CartLine, error)
	ListItems(ctx context.Context, owner string, now time.Time) ([]models.CartItem, error)
	UpsertLine(ctx context.Context, owner string, productID int64, quantity int) (*models.CartLine, error)
	SetQuantity(ctx context.Context, owner string, productID int64, quantity int) (*models.CartLine, error)
	DeleteLine(ctx context.Context, owner string, productID int64) error
	Clear(ctx context.Context, owner string) (int64, error)
}

// SQLRepository keeps carts in the cart_lines table.
type SQLRepository struct {
	db *sqlx.DB
}

func NewSQLRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) ListLines(ctx context.Context, owner string) ([]models.CartLine, error) {
	return store.ListCartLines(ctx, r.db, owner)
}

func (r *SQLRepository) ListItems(ctx context.Context, owner string, now time.Time) ([]models.CartItem, error) {
	return store.ListCartItems(ctx, r.db, owner, now)
}

func (r *SQLRepository) UpsertLine(ctx context.Context, owner string, productID int64, quantity int) (*models.CartLine, error) {
	return store.UpsertCartLine(ctx, r.db, owner, productID, quantity)
}

func (r *SQLRepository) SetQuantity(ctx context.Context, owner string, productID int64, quantity int) (*models.CartLine, error) {
	return store.SetCartLineQuantity(ctx, r.db, owner, productID, quantity)
}

func (r *SQLRepository) DeleteLine(ctx context.Context, owner string, productID int64) error {
	return store.DeleteCartLine(ctx, r.db, owner, productID)
}

func (r *SQLRepository) Clear(ctx context.Context, owner string) (int64, error) {
	return store.ClearCart(ctx, r.db, owner)
}
