package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
)

// UpsertCustomer records the identity-provider subject with its latest email and name.
func UpsertCustomer(ctx context.Context, db sqlx.ExtContext, subject, email, name string) (*models.Customer, error) {
	customer := &models.Customer{}

	query := `
		INSERT INTO customers (subject, email, name, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (subject) DO UPDATE
		SET email = EXCLUDED.email, name = EXCLUDED.name, updated_at = NOW()
		RETURNING subject, email, name, created_at, updated_at`

	if err := sqlx.GetContext(ctx, db, customer, query, subject, email, name); err != nil {
		return nil, fmt.Errorf("upsert customer: %w", err)
	}

	return customer, nil
}

func GetCustomer(ctx context.Context, db sqlx.QueryerContext, subject string) (*models.Customer, error) {
	customer := &models.Customer{}

	query := `
		SELECT subject, email, name, created_at, updated_at
		FROM customers
		WHERE subject = $1`

	if err := sqlx.GetContext(ctx, db, customer, query, subject); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}

	return customer, nil
}
