package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/payment"
	"github.com/shopspring/decimal"
)

const paymentIntentColumns = `gateway_order_id, amount, currency, receipt, created_at`

// RecordPaymentIntent stores the amount a gateway order was opened for.
func RecordPaymentIntent(ctx context.Context, db sqlx.ExtContext, intent models.PaymentIntent) (*models.PaymentIntent, error) {
	stored := &models.PaymentIntent{}

	err := sqlx.GetContext(ctx, db, stored,
		`INSERT INTO payment_intents (gateway_order_id, amount, currency, receipt, created_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 RETURNING `+paymentIntentColumns,
		intent.GatewayOrderID, intent.Amount, intent.Currency, intent.Receipt)
	if err != nil {
		return nil, fmt.Errorf("record payment intent: %w", err)
	}

	return stored, nil
}

func GetPaymentIntent(ctx context.Context, db sqlx.QueryerContext, gatewayOrderID string) (*models.PaymentIntent, error) {
	intent := &models.PaymentIntent{}

	err := sqlx.GetContext(ctx, db, intent,
		`SELECT `+paymentIntentColumns+` FROM payment_intents WHERE gateway_order_id = $1`, gatewayOrderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: unknown gateway order %s", payment.ErrVerificationFailed, gatewayOrderID)
		}
		return nil, fmt.Errorf("get payment intent: %w", err)
	}

	return intent, nil
}

// checkPaidAmount fails unless gatewayOrderID was opened by us for total.
func checkPaidAmount(ctx context.Context, tx *sqlx.Tx, gatewayOrderID string, total, tolerance decimal.Decimal) error {
	intent, err := GetPaymentIntent(ctx, tx, gatewayOrderID)
	if err != nil {
		return err
	}
	if intent.Amount.Sub(total).Abs().GreaterThan(tolerance) {
		return fmt.Errorf("%w: gateway order %s is for %s, order total is %s",
			payment.ErrVerificationFailed, gatewayOrderID, intent.Amount, total)
	}
	return nil
}
