package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/safar/storefront/internal/cart"
	"github.com/safar/storefront/internal/checkout"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/store"
	"github.com/shopspring/decimal"
)

type orderItemRequest struct {
	ProductID int64           `json:"productId" binding:"required,gt=0"`
	Quantity  int             `json:"quantity" binding:"required,gte=1"`
	Price     decimal.Decimal `json:"price"`
}

type orderRequest struct {
	CustomerName      string             `json:"customerName"`
	CustomerEmail     string             `json:"customerEmail"`
	CustomerPhone     string             `json:"customerPhone"`
	ShippingAddress   string             `json:"shippingAddress"`
	Pincode           string             `json:"pincode"`
	PaymentMethod     string             `json:"paymentMethod" binding:"required"`
	OrderItems        []orderItemRequest `json:"orderItems" binding:"required,min=1,dive"`
	Total             decimal.Decimal    `json:"total"`
	RazorpayOrderID   string             `json:"razorpayOrderId"`
	RazorpayPaymentID string             `json:"razorpayPaymentId"`
	RazorpaySignature string             `json:"razorpaySignature"`
}

func (r orderRequest) items() []store.OrderItemRequest {
	items := make([]store.OrderItemRequest, 0, len(r.OrderItems))
	for _, item := range r.OrderItems {
		items = append(items, store.OrderItemRequest{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	return items
}

func (r orderRequest) proof() *checkout.PaymentProof {
	if r.RazorpayOrderID == "" && r.RazorpayPaymentID == "" && r.RazorpaySignature == "" {
		return nil
	}
	return &checkout.PaymentProof{
		OrderID:   r.RazorpayOrderID,
		PaymentID: r.RazorpayPaymentID,
		Signature: r.RazorpaySignature,
	}
}

func (s *Server) cartCheckout(c *gin.Context) {
	s.placeOrder(c, true)
}

func (s *Server) directCheckout(c *gin.Context) {
	s.placeOrder(c, false)
}

func (s *Server) placeOrder(c *gin.Context, fromCart bool) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	result, err := s.checkout.Checkout(c.Request.Context(), checkout.Request{
		Identity: currentIdentity(c),
		Customer: models.CustomerInfo{
			Name:            req.CustomerName,
			Email:           req.CustomerEmail,
			Phone:           req.CustomerPhone,
			ShippingAddress: req.ShippingAddress,
			Pincode:         req.Pincode,
		},
		PaymentMethod: req.PaymentMethod,
		Items:         req.items(),
		Total:         req.Total,
		Payment:       req.proof(),
		FromCart:      fromCart,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

type intentRequest struct {
	OrderItems []orderItemRequest `json:"orderItems" binding:"required,min=1,dive"`
	Total      decimal.Decimal    `json:"total"`
}

func (s *Server) createPaymentIntent(c *gin.Context) {
	var req intentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	items := make([]store.OrderItemRequest, 0, len(req.OrderItems))
	for _, item := range req.OrderItems {
		items = append(items, store.OrderItemRequest{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.Price})
	}

	intent, err := s.checkout.CreatePaymentIntent(c.Request.Context(), items, req.Total)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, intent)
}

func (s *Server) listOrders(c *gin.Context) {
	id := currentIdentity(c)
	if !id.IsAuthenticated() {
		respondError(c, cart.ErrAuthenticationRequired)
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	page, err := s.backend.ListOrders(c.Request.Context(), id.Subject, c.Query("cursor"), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// getOrder returns one of the caller's own orders. Other owners' orders look missing.
func (s *Server) getOrder(c *gin.Context) {
	id := currentIdentity(c)
	if !id.IsAuthenticated() {
		respondError(c, cart.ErrAuthenticationRequired)
		return
	}

	order, err := s.backend.GetOrderByNumber(c.Request.Context(), c.Param("number"))
	if err != nil {
		respondError(c, err)
		return
	}
	if order.OwnerID == nil || *order.OwnerID != id.Subject {
		respondError(c, database.ErrOrderNotFound)
		return
	}

	c.JSON(http.StatusOK, order)
}

type bookingRequest struct {
	Name        string     `json:"name" binding:"required"`
	Email       string     `json:"email" binding:"required"`
	Phone       string     `json:"phone"`
	PreferredAt *time.Time `json:"preferredAt"`
	Message     string     `json:"message"`
}

func (s *Server) createBooking(c *gin.Context) {
	var req bookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	booking, err := s.checkout.Book(c.Request.Context(), store.CreateBookingParams{
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		PreferredAt: req.PreferredAt,
		Message:     req.Message,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, booking)
}
