package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/safar/storefront/internal/notify"
	"github.com/safar/storefront/internal/store"
	"github.com/shopspring/decimal"
)

func (s *Server) adminListOrders(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	page, err := s.backend.ListAllOrders(c.Request.Context(), c.Query("cursor"), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// adminGetOrder returns any order with its notification audit trail.
func (s *Server) adminGetOrder(c *gin.Context) {
	ctx := c.Request.Context()
	number := c.Param("number")

	order, err := s.backend.GetOrderByNumber(ctx, number)
	if err != nil {
		respondError(c, err)
		return
	}

	attempts, err := s.backend.ListNotificationAttempts(ctx, notify.TriggerOrder, number)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order, "notifications": attempts})
}

type statusRequest struct {
	Status string `json:"status" binding:"required,oneof=pending processing shipped delivered cancelled"`
}

func (s *Server) adminUpdateOrderStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	order, err := s.backend.UpdateOrderStatus(c.Request.Context(), c.Param("number"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	requestLogger(c).WithField("order_number", order.OrderNumber).WithField("status", order.Status).Info("order status changed")
	c.JSON(http.StatusOK, order)
}

func (s *Server) adminClaimOrder(c *gin.Context) {
	order, err := s.backend.ClaimNextPendingOrder(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

type categoryRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}

func (s *Server) adminCreateCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	category, err := s.backend.CreateCategory(c.Request.Context(), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, category)
}

func (s *Server) adminCreateSubcategory(c *gin.Context) {
	categoryID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	sub, err := s.backend.CreateSubcategory(c.Request.Context(), categoryID, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, sub)
}

type productRequest struct {
	Name          string              `json:"name" binding:"required,max=200"`
	Description   string              `json:"description"`
	Price         decimal.Decimal     `json:"price"`
	DealPrice     decimal.NullDecimal `json:"dealPrice"`
	IsDeal        bool                `json:"isDeal"`
	DealExpiry    *time.Time          `json:"dealExpiry"`
	Stock         int                 `json:"stock" binding:"gte=0"`
	CategoryID    int64               `json:"categoryId" binding:"required,gt=0"`
	SubcategoryID *int64              `json:"subcategoryId"`
}

func validPricing(price decimal.Decimal, deal decimal.NullDecimal) bool {
	if !price.IsPositive() {
		return false
	}
	return !deal.Valid || (deal.Decimal.IsPositive() && deal.Decimal.LessThanOrEqual(price))
}

func (s *Server) adminCreateProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if !validPricing(req.Price, req.DealPrice) {
		badRequest(c, "price must be positive and deal price must not exceed it")
		return
	}

	product, err := s.backend.CreateProduct(c.Request.Context(), store.CreateProductParams{
		Name:          req.Name,
		Description:   req.Description,
		Price:         req.Price,
		DealPrice:     req.DealPrice,
		IsDeal:        req.IsDeal,
		DealExpiry:    req.DealExpiry,
		Stock:         req.Stock,
		CategoryID:    req.CategoryID,
		SubcategoryID: req.SubcategoryID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, product)
}

type pricingRequest struct {
	Version    int                 `json:"version" binding:"required,gte=1"`
	Price      decimal.Decimal     `json:"price"`
	DealPrice  decimal.NullDecimal `json:"dealPrice"`
	IsDeal     bool                `json:"isDeal"`
	DealExpiry *time.Time          `json:"dealExpiry"`
}

// adminUpdatePricing changes live prices. Orders already placed keep their snapshot.
func (s *Server) adminUpdatePricing(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req pricingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if !validPricing(req.Price, req.DealPrice) {
		badRequest(c, "price must be positive and deal price must not exceed it")
		return
	}

	product, err := s.backend.UpdateProductPricing(c.Request.Context(), id, req.Version, store.PricingUpdate{
		Price:      req.Price,
		DealPrice:  req.DealPrice,
		IsDeal:     req.IsDeal,
		DealExpiry: req.DealExpiry,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, product)
}
