package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
)

var validate = validator.New()

// ValidationError names the offending field. errors.Is(err, database.ErrValidation) holds for it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return database.ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func checkVar(field, value, tag string) error {
	if err := validate.Var(value, tag); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return invalid(field, "failed "+fieldErrs[0].Tag())
		}
		return invalid(field, err.Error())
	}
	return nil
}

// NormalizeCustomerInfo trims every field and checks that all of them are present and well formed.
func NormalizeCustomerInfo(info models.CustomerInfo) (models.CustomerInfo, error) {
	info = models.CustomerInfo{
		Name:            strings.TrimSpace(info.Name),
		Email:           strings.ToLower(strings.TrimSpace(info.Email)),
		Phone:           strings.TrimSpace(info.Phone),
		ShippingAddress: strings.TrimSpace(info.ShippingAddress),
		Pincode:         strings.TrimSpace(info.Pincode),
	}

	checks := []struct {
		field, value, tag string
	}{
		{"customer_name", info.Name, "required,max=200"},
		{"customer_email", info.Email, "required,email,max=254"},
		{"customer_phone", info.Phone, "required,min=6,max=20"},
		{"shipping_address", info.ShippingAddress, "required,max=1000"},
		{"pincode", info.Pincode, "required,alphanum,min=3,max=10"},
	}
	for _, c := range checks {
		if err := checkVar(c.field, c.value, c.tag); err != nil {
			return info, err
		}
	}

	return info, nil
}

func validateCommitRequest(req *CommitOrderRequest) error {
	info, err := NormalizeCustomerInfo(req.Customer)
	if err != nil {
		return err
	}
	req.Customer = info

	if !models.IsKnownPaymentMethod(req.PaymentMethod) {
		return invalid("payment_method", "unsupported payment method")
	}
	switch req.PaymentStatus {
	case models.PaymentStatusPending, models.PaymentStatusPaid:
	default:
		return invalid("payment_status", "must be pending or paid")
	}
	if models.IsOnlinePaymentMethod(req.PaymentMethod) && req.Gateway == nil {
		return invalid("payment", "online payment requires gateway references")
	}
	if req.ConsumeCart && req.OwnerID == nil {
		return invalid("owner", "cart checkout requires a signed-in customer")
	}

	if len(req.Items) == 0 {
		return invalid("order_items", "at least one item is required")
	}
	seen := make(map[int64]bool, len(req.Items))
	for _, item := range req.Items {
		if item.ProductID <= 0 {
			return invalid("order_items.product_id", "must be positive")
		}
		if item.Quantity < 1 {
			return invalid("order_items.quantity", "must be at least 1")
		}
		if item.Price.IsNegative() {
			return invalid("order_items.price", "must not be negative")
		}
		if seen[item.ProductID] {
			return invalid("order_items", fmt.Sprintf("product %d listed twice", item.ProductID))
		}
		seen[item.ProductID] = true
	}
	if req.Total.IsNegative() {
		return invalid("total", "must not be negative")
	}

	return nil
}
