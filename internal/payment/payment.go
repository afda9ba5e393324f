// Package payment talks to the online payment gateway: it opens gateway orders
// and checks the signatures the gateway hands back to the browser.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/razorpay/razorpay-go"
	"github.com/shopspring/decimal"
)

var (
	ErrVerificationFailed = errors.New("payment verification failed")
	ErrNotConfigured      = errors.New("payment gateway not configured")
)

// Intent is a gateway order the browser completes payment against.
type Intent struct {
	ID       string          `json:"id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	KeyID    string          `json:"key_id"`
}

type Gateway interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (*Intent, error)
	Verify(orderID, paymentID, signature string) error
}

// VerifySignature checks signature against HMAC-SHA256(orderID + "|" + paymentID) keyed by secret.
func VerifySignature(secret, orderID, paymentID, signature string) bool {
	if secret == "" || orderID == "" || paymentID == "" || signature == "" {
		return false
	}

	given, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}

	return hmac.Equal(given, sign(secret, orderID, paymentID))
}

// Sign returns the hex signature the gateway would produce for the pair.
func Sign(secret, orderID, paymentID string) string {
	return hex.EncodeToString(sign(secret, orderID, paymentID))
}

func sign(secret, orderID, paymentID string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return mac.Sum(nil)
}

// Razorpay is the Gateway backed by the Razorpay orders API.
type Razorpay struct {
	client  *razorpay.Client
	keyID   string
	secret  string
	timeout time.Duration
}

func NewRazorpay(keyID, secret string, timeout time.Duration) *Razorpay {
	return &Razorpay{
		client:  razorpay.NewClient(keyID, secret),
		keyID:   keyID,
		secret:  secret,
		timeout: timeout,
	}
}

type createResult struct {
	body map[string]interface{}
	err  error
}

// CreateOrder opens a gateway order for amount, expressed to the gateway in the currency's minor unit.
func (r *Razorpay) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (*Intent, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive, got %s", amount)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	minor := amount.Shift(2).Round(0).IntPart()
	data := map[string]interface{}{
		"amount":   minor,
		"currency": currency,
		"receipt":  receipt,
	}

	// The SDK has no context support; the call is abandoned, not cancelled, on timeout.
	done := make(chan createResult, 1)
	go func() {
		body, err := r.client.Order.Create(data, nil)
		done <- createResult{body: body, err: err}
	}()

	var res createResult
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("create gateway order: %w", ctx.Err())
	case res = <-done:
	}
	if res.err != nil {
		return nil, fmt.Errorf("create gateway order: %w", res.err)
	}

	id, _ := res.body["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("create gateway order: response has no id")
	}

	return &Intent{
		ID:       id,
		Amount:   amount,
		Currency: currency,
		KeyID:    r.keyID,
	}, nil
}

func (r *Razorpay) Verify(orderID, paymentID, signature string) error {
	if !VerifySignature(r.secret, orderID, paymentID, signature) {
		return ErrVerificationFailed
	}
	return nil
}

// Disabled is used when no gateway credentials are configured. Every online payment fails.
type Disabled struct{}

func (Disabled) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (*Intent, error) {
	return nil, ErrNotConfigured
}

func (Disabled) Verify(orderID, paymentID, signature string) error {
	return fmt.Errorf("%w: %v", ErrVerificationFailed, ErrNotConfigured)
}
