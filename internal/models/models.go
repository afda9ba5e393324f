package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer is the local record of an identity-provider subject, upserted at login.
type Customer struct {
	Subject   string    `json:"subject" db:"subject"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Category struct {
	ID            int64         `json:"id" db:"id"`
	Name          string        `json:"name" db:"name"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	Subcategories []Subcategory `json:"subcategories" db:"-"`
}

type Subcategory struct {
	ID         int64     `json:"id" db:"id"`
	CategoryID int64     `json:"category_id" db:"category_id"`
	Name       string    `json:"name" db:"name"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type Product struct {
	ID            int64               `json:"id" db:"id"`
	Name          string              `json:"name" db:"name"`
	Description   string              `json:"description,omitempty" db:"description"`
	Price         decimal.Decimal     `json:"price" db:"price"`
	DealPrice     decimal.NullDecimal `json:"deal_price" db:"deal_price"`
	IsDeal        bool                `json:"is_deal" db:"is_deal"`
	DealExpiry    *time.Time          `json:"deal_expiry,omitempty" db:"deal_expiry"`
	StockQuantity int                 `json:"stock_quantity" db:"stock_quantity"`
	CategoryID    int64               `json:"category_id" db:"category_id"`
	SubcategoryID *int64              `json:"subcategory_id,omitempty" db:"subcategory_id"`
	CreatedAt     time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at" db:"updated_at"`
	Version       int                 `json:"version" db:"version"`
}

// DealActive reports whether the deal price applies at now.
func (p Product) DealActive(now time.Time) bool {
	if !p.IsDeal || !p.DealPrice.Valid {
		return false
	}
	return p.DealExpiry == nil || now.Before(*p.DealExpiry)
}

// EffectivePrice is the price a customer pays at now.
func (p Product) EffectivePrice(now time.Time) decimal.Decimal {
	if p.DealActive(now) {
		return p.DealPrice.Decimal
	}
	return p.Price
}

type CartLine struct {
	ID        int64     `json:"id" db:"id"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	ProductID int64     `json:"product_id" db:"product_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CartItem is a server cart line joined with the current product record.
type CartItem struct {
	CartLine
	Product   Product         `json:"product"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// CustomerInfo holds the contact and shipping fields captured at checkout.
type CustomerInfo struct {
	Name            string `json:"customer_name" db:"customer_name"`
	Email           string `json:"customer_email" db:"customer_email"`
	Phone           string `json:"customer_phone" db:"customer_phone"`
	ShippingAddress string `json:"shipping_address" db:"shipping_address"`
	Pincode         string `json:"pincode" db:"pincode"`
}

type Order struct {
	ID          int64   `json:"id" db:"id"`
	OrderNumber string  `json:"order_number" db:"order_number"`
	OwnerID     *string `json:"owner_id,omitempty" db:"owner_id"`
	CustomerInfo
	PaymentMethod    string          `json:"payment_method" db:"payment_method"`
	PaymentStatus    string          `json:"payment_status" db:"payment_status"`
	GatewayOrderID   *string         `json:"gateway_order_id,omitempty" db:"gateway_order_id"`
	GatewayPaymentID *string         `json:"gateway_payment_id,omitempty" db:"gateway_payment_id"`
	GatewaySignature *string         `json:"-" db:"gateway_signature"`
	Status           string          `json:"status" db:"status"`
	TotalAmount      decimal.Decimal `json:"total_amount" db:"total_amount"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
	Version          int             `json:"version" db:"version"`
	Items            []OrderItem     `json:"items,omitempty" db:"-"`
}

// ItemsTotal sums the stored snapshot prices of the order's items.
func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

type OrderItem struct {
	ID        int64           `json:"id" db:"id"`
	OrderID   int64           `json:"order_id" db:"order_id"`
	ProductID int64           `json:"product_id" db:"product_id"`
	Quantity  int             `json:"quantity" db:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price" db:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal" db:"subtotal"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	Product   *Product        `json:"product,omitempty" db:"-"`
}

// Booking is an appointment request that triggers the same notification pair as an order.
type Booking struct {
	ID          int64      `json:"id" db:"id"`
	Name        string     `json:"name" db:"name"`
	Email       string     `json:"email" db:"email"`
	Phone       string     `json:"phone" db:"phone"`
	PreferredAt *time.Time `json:"preferred_at,omitempty" db:"preferred_at"`
	Message     string     `json:"message" db:"message"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// PaymentIntent is a gateway order opened for a server-computed amount.
// An online payment can only settle an order whose total matches it.
type PaymentIntent struct {
	GatewayOrderID string          `json:"gateway_order_id" db:"gateway_order_id"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	Currency       string          `json:"currency" db:"currency"`
	Receipt        string          `json:"receipt" db:"receipt"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// NotificationAttempt is one send to one recipient within a dispatch call.
type NotificationAttempt struct {
	ID          string    `json:"id" db:"id"`
	DispatchID  string    `json:"dispatch_id" db:"dispatch_id"`
	TriggerKind string    `json:"trigger_kind" db:"trigger_kind"`
	SubjectID   string    `json:"subject_id" db:"subject_id"`
	Recipient   string    `json:"recipient" db:"recipient"`
	Audience    string    `json:"audience" db:"audience"`
	Attempt     int       `json:"attempt" db:"attempt"`
	Sent        bool      `json:"sent" db:"sent"`
	Error       string    `json:"error,omitempty" db:"error"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
)

const (
	PaymentMethodCOD      = "cod"
	PaymentMethodRazorpay = "razorpay"
)

// IsOnlinePaymentMethod reports whether the method requires gateway verification.
func IsOnlinePaymentMethod(method string) bool {
	return method == PaymentMethodRazorpay
}

// IsKnownPaymentMethod reports whether method is accepted at checkout.
func IsKnownPaymentMethod(method string) bool {
	return method == PaymentMethodCOD || method == PaymentMethodRazorpay
}

var orderTransitions = map[string][]string{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
