package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/safar/storefront/internal/store"
)

func parseID(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id < 1 {
		badRequest(c, "invalid "+param)
		return 0, false
	}
	return id, true
}

func optionalID(c *gin.Context, key string) (*int64, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		badRequest(c, "invalid "+key)
		return nil, false
	}
	return &id, true
}

func (s *Server) listProducts(c *gin.Context) {
	categoryID, ok := optionalID(c, "category_id")
	if !ok {
		return
	}
	subcategoryID, ok := optionalID(c, "subcategory_id")
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("page_size"))
	deals, _ := strconv.ParseBool(c.Query("deals"))

	result, err := s.backend.ListProducts(c.Request.Context(), store.ProductFilter{
		CategoryID:    categoryID,
		SubcategoryID: subcategoryID,
		DealsOnly:     deals,
		Search:        c.Query("q"),
		Page:          page,
		PageSize:      pageSize,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) getProduct(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	product, err := s.backend.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, product)
}

func (s *Server) listCategories(c *gin.Context) {
	categories, err := s.backend.ListCategories(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": categories})
}
