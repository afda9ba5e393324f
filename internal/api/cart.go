package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/safar/storefront/internal/cart"
)

type addLineRequest struct {
	ProductID int64 `json:"productId" binding:"required,gt=0"`
	Quantity  int   `json:"quantity" binding:"required,gte=1"`
}

type updateLineRequest struct {
	Quantity int `json:"quantity" binding:"required,gte=1"`
}

type mergeRequest struct {
	Items []cart.Line `json:"items" binding:"dive"`
}

func (s *Server) getCart(c *gin.Context) {
	view, err := s.carts.GetCart(c.Request.Context(), currentIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (s *Server) addCartLine(c *gin.Context) {
	var req addLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	line, err := s.carts.AddLine(c.Request.Context(), currentIdentity(c), req.ProductID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, line)
}

func (s *Server) updateCartLine(c *gin.Context) {
	productID, ok := parseID(c, "productId")
	if !ok {
		return
	}

	var req updateLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	line, err := s.carts.UpdateLine(c.Request.Context(), currentIdentity(c), productID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	if line == nil {
		c.JSON(http.StatusOK, gin.H{"acknowledged": true})
		return
	}

	c.JSON(http.StatusOK, line)
}

func (s *Server) removeCartLine(c *gin.Context) {
	productID, ok := parseID(c, "productId")
	if !ok {
		return
	}

	if err := s.carts.RemoveLine(c.Request.Context(), currentIdentity(c), productID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}

func (s *Server) clearCart(c *gin.Context) {
	removed, err := s.carts.ClearCart(c.Request.Context(), currentIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// mergeCart is called once by the client right after sign-in with its guest cart.
// It also records the customer.
func (s *Server) mergeCart(c *gin.Context) {
	id := currentIdentity(c)
	if !id.IsAuthenticated() {
		respondError(c, cart.ErrAuthenticationRequired)
		return
	}

	var req mergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	ctx := c.Request.Context()
	if _, err := s.backend.UpsertCustomer(ctx, id.Subject, id.Email, id.Name); err != nil {
		respondError(c, err)
		return
	}

	result, err := s.carts.MergeOnLogin(ctx, id, req.Items)
	if err != nil {
		respondError(c, err)
		return
	}

	view, err := s.carts.GetCart(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"merge": result, "cart": view})
}
