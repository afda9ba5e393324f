// Package checkout runs the buy-now and cart checkout flows through one commit path.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/safar/storefront/internal/cart"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/identity"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/notify"
	"github.com/safar/storefront/internal/payment"
	"github.com/safar/storefront/internal/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ErrPaymentVerificationFailed means no order was written because the payment could not be confirmed.
var ErrPaymentVerificationFailed = payment.ErrVerificationFailed

type State string

const (
	StateAddressCollected       State = "address_collected"
	StatePaymentMethodChosen    State = "payment_method_chosen"
	StatePaymentVerified        State = "payment_verified"
	StateOrderCommitted         State = "order_committed"
	StateCartCleared            State = "cart_cleared"
	StateNotificationDispatched State = "notification_dispatched"
	StateDone                   State = "done"
)

// Ledger commits orders. An online order only commits against a payment intent it
// recorded earlier for the same amount.
type Ledger interface {
	RecordPaymentIntent(ctx context.Context, intent models.PaymentIntent) error
	CommitOrder(ctx context.Context, req store.CommitOrderRequest) (*models.Order, error)
}

type Notifier interface {
	DispatchOrder(ctx context.Context, order *models.Order) (*notify.Status, error)
	DispatchBooking(ctx context.Context, booking *models.Booking) (*notify.Status, error)
}

type Bookings interface {
	CreateBooking(ctx context.Context, p store.CreateBookingParams) (*models.Booking, error)
}

type Catalog interface {
	GetProductsByID(ctx context.Context, ids []int64) (map[int64]models.Product, error)
}

// PaymentProof is what the browser receives from the gateway after paying.
type PaymentProof struct {
	OrderID   string
	PaymentID string
	Signature string
}

type Request struct {
	Identity      identity.Identity
	Customer      models.CustomerInfo
	PaymentMethod string
	Items         []store.OrderItemRequest
	Total         decimal.Decimal
	Payment       *PaymentProof
	// FromCart marks a cart checkout: the signed-in owner's server cart is consumed by the commit.
	FromCart bool
}

type Result struct {
	Order       *models.Order `json:"order"`
	CartCleared bool          `json:"cart_cleared"`
}

type Options struct {
	Currency        string
	Tolerance       decimal.Decimal
	DispatchTimeout time.Duration
}

type Orchestrator struct {
	ledger   Ledger
	catalog  Catalog
	bookings Bookings
	gateway  payment.Gateway
	notifier Notifier
	opts     Options
	log      logrus.FieldLogger
	now      func() time.Time

	wg sync.WaitGroup
}

func NewOrchestrator(ledger Ledger, catalog Catalog, bookings Bookings, gateway payment.Gateway, notifier Notifier, opts Options, log logrus.FieldLogger) *Orchestrator {
	return &Orchestrator{
		ledger:   ledger,
		catalog:  catalog,
		bookings: bookings,
		gateway:  gateway,
		notifier: notifier,
		opts:     opts,
		log:      log,
		now:      time.Now,
	}
}

// Checkout commits the order and returns as soon as it is stored. Notification runs in
// the background; its outcome never changes the result.
func (o *Orchestrator) Checkout(ctx context.Context, req Request) (*Result, error) {
	log := o.log.WithFields(logrus.Fields{
		"payment_method": req.PaymentMethod,
		"from_cart":      req.FromCart,
		"authenticated":  req.Identity.IsAuthenticated(),
	})
	step := func(s State) { log.WithField("state", s).Debug("checkout step") }

	step(StateAddressCollected)

	method := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if !models.IsKnownPaymentMethod(method) {
		return nil, fmt.Errorf("%w: unsupported payment method %q", database.ErrValidation, req.PaymentMethod)
	}
	if req.FromCart && !req.Identity.IsAuthenticated() {
		return nil, cart.ErrAuthenticationRequired
	}
	step(StatePaymentMethodChosen)

	commit := store.CommitOrderRequest{
		OwnerID:       req.Identity.Owner(),
		Customer:      req.Customer,
		PaymentMethod: method,
		PaymentStatus: models.PaymentStatusPending,
		Items:         req.Items,
		Total:         req.Total,
		Tolerance:     o.opts.Tolerance,
		ConsumeCart:   req.FromCart,
	}

	if models.IsOnlinePaymentMethod(method) {
		refs, err := o.verify(req.Payment)
		if err != nil {
			log.WithError(err).Warn("payment verification failed, order not created")
			return nil, err
		}
		commit.Gateway = refs
		commit.PaymentStatus = models.PaymentStatusPaid
		step(StatePaymentVerified)
	}

	order, err := o.ledger.CommitOrder(ctx, commit)
	if err != nil {
		return nil, err
	}
	log = log.WithField("order_number", order.OrderNumber)
	step(StateOrderCommitted)

	if req.FromCart {
		step(StateCartCleared)
	}

	o.dispatch(ctx, log, order)
	step(StateNotificationDispatched)

	log.WithFields(logrus.Fields{
		"total":          order.TotalAmount.String(),
		"payment_status": order.PaymentStatus,
	}).Info("order placed")
	step(StateDone)

	return &Result{Order: order, CartCleared: req.FromCart}, nil
}

func (o *Orchestrator) verify(proof *PaymentProof) (*store.GatewayRefs, error) {
	if proof == nil || proof.OrderID == "" || proof.PaymentID == "" || proof.Signature == "" {
		return nil, fmt.Errorf("%w: missing gateway references", ErrPaymentVerificationFailed)
	}
	if err := o.gateway.Verify(proof.OrderID, proof.PaymentID, proof.Signature); err != nil {
		if errors.Is(err, payment.ErrVerificationFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrPaymentVerificationFailed, err)
	}
	return &store.GatewayRefs{
		OrderID:   proof.OrderID,
		PaymentID: proof.PaymentID,
		Signature: proof.Signature,
	}, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, log logrus.FieldLogger, order *models.Order) {
	o.background(ctx, func(ctx context.Context) {
		status, err := o.notifier.DispatchOrder(ctx, order)
		if err != nil {
			log.WithError(err).Warn("order notification not sent")
			return
		}
		if !status.Delivered() {
			log.WithField("dispatch_id", status.DispatchID).Warn("order notification partially delivered")
		}
	})
}

// background runs fn detached from the request, bounded by the dispatch timeout.
func (o *Orchestrator) background(ctx context.Context, fn func(ctx context.Context)) {
	// The request context ends with the response; the dispatch must outlive it.
	ctx = context.WithoutCancel(ctx)
	cancel := context.CancelFunc(func() {})
	if o.opts.DispatchTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, o.opts.DispatchTimeout)
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		fn(ctx)
	}()
}

// Book stores an appointment request and notifies the visitor and the admin address in the background.
func (o *Orchestrator) Book(ctx context.Context, p store.CreateBookingParams) (*models.Booking, error) {
	booking, err := o.bookings.CreateBooking(ctx, p)
	if err != nil {
		return nil, err
	}

	log := o.log.WithField("booking_id", booking.ID)
	log.Info("appointment booked")

	o.background(ctx, func(ctx context.Context) {
		status, err := o.notifier.DispatchBooking(ctx, booking)
		if err != nil {
			log.WithError(err).Warn("booking notification not sent")
			return
		}
		if !status.Delivered() {
			log.WithField("dispatch_id", status.DispatchID).Warn("booking notification partially delivered")
		}
	})

	return booking, nil
}

// Wait blocks until every background notification has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Quote prices items at the current effective prices.
func (o *Orchestrator) Quote(ctx context.Context, items []store.OrderItemRequest) (decimal.Decimal, error) {
	if len(items) == 0 {
		return decimal.Zero, database.ErrEmptyCart
	}

	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			return decimal.Zero, fmt.Errorf("%w: quantity must be at least 1", database.ErrValidation)
		}
		ids = append(ids, item.ProductID)
	}

	products, err := o.catalog.GetProductsByID(ctx, ids)
	if err != nil {
		return decimal.Zero, err
	}

	now := o.now()
	total := decimal.Zero
	for _, item := range items {
		p, ok := products[item.ProductID]
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: %d", database.ErrProductNotFound, item.ProductID)
		}
		total = total.Add(p.EffectivePrice(now).Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	return total, nil
}

// CreatePaymentIntent opens a gateway order for the server-side price of items.
// A client total that disagrees with it beyond the tolerance is rejected.
func (o *Orchestrator) CreatePaymentIntent(ctx context.Context, items []store.OrderItemRequest, clientTotal decimal.Decimal) (*payment.Intent, error) {
	amount, err := o.Quote(ctx, items)
	if err != nil {
		return nil, err
	}
	if clientTotal.Sub(amount).Abs().GreaterThan(o.opts.Tolerance) {
		return nil, fmt.Errorf("%w: expected %s, got %s", database.ErrTotalMismatch, amount, clientTotal)
	}

	receipt := "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
	intent, err := o.gateway.CreateOrder(ctx, amount, o.opts.Currency, receipt)
	if err != nil {
		o.log.WithError(err).WithField("amount", amount.String()).Error("payment intent failed")
		return nil, fmt.Errorf("%w: %v", ErrPaymentVerificationFailed, err)
	}

	err = o.ledger.RecordPaymentIntent(ctx, models.PaymentIntent{
		GatewayOrderID: intent.ID,
		Amount:         amount,
		Currency:       intent.Currency,
		Receipt:        receipt,
	})
	if err != nil {
		o.log.WithError(err).WithField("gateway_order_id", intent.ID).Error("payment intent not recorded")
		return nil, err
	}

	o.log.WithFields(logrus.Fields{
		"gateway_order_id": intent.ID,
		"amount":           amount.String(),
	}).Info("payment intent created")

	return intent, nil
}
