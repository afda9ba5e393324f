// Package api exposes the storefront over HTTP.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/safar/storefront/internal/cart"
	"github.com/safar/storefront/internal/checkout"
	"github.com/safar/storefront/internal/identity"
	"github.com/sirupsen/logrus"
)

type Server struct {
	backend  Backend
	carts    *cart.Service
	checkout *checkout.Orchestrator
	verifier *identity.Verifier
	adminKey string
	log      logrus.FieldLogger
}

func NewServer(backend Backend, carts *cart.Service, orchestrator *checkout.Orchestrator, verifier *identity.Verifier, adminKey string, log logrus.FieldLogger) *Server {
	return &Server{
		backend:  backend,
		carts:    carts,
		checkout: orchestrator,
		verifier: verifier,
		adminKey: adminKey,
		log:      log,
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), AccessLog(s.log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/products", s.listProducts)
	r.GET("/products/:id", s.getProduct)
	r.GET("/categories", s.listCategories)

	authed := r.Group("/", Authenticate(s.verifier))
	{
		authed.GET("/cart", s.getCart)
		authed.POST("/cart", s.addCartLine)
		authed.POST("/cart/merge", s.mergeCart)
		authed.PUT("/cart/:productId", s.updateCartLine)
		authed.DELETE("/cart/:productId", s.removeCartLine)
		authed.DELETE("/cart", s.clearCart)

		authed.POST("/orders", s.cartCheckout)
		authed.POST("/orders/direct-checkout", s.directCheckout)
		authed.GET("/orders", s.listOrders)
		authed.GET("/orders/:number", s.getOrder)

		authed.POST("/payments/intent", s.createPaymentIntent)
		authed.POST("/bookings", s.createBooking)
	}

	admin := r.Group("/admin", AdminKey(s.adminKey))
	{
		admin.GET("/orders", s.adminListOrders)
		admin.GET("/orders/:number", s.adminGetOrder)
		admin.PATCH("/orders/:number/status", s.adminUpdateOrderStatus)
		admin.POST("/orders/claim", s.adminClaimOrder)
		admin.POST("/categories", s.adminCreateCategory)
		admin.POST("/categories/:id/subcategories", s.adminCreateSubcategory)
		admin.POST("/products", s.adminCreateProduct)
		admin.PATCH("/products/:id/pricing", s.adminUpdatePricing)
	}

	return r
}
