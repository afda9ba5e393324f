package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/safar/storefront/internal/cart"
	"github.com/safar/storefront/internal/checkout"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/identity"
	"github.com/safar/storefront/internal/store"
	"github.com/sirupsen/logrus"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

var conflictErrors = []error{
	database.ErrInsufficientStock,
	database.ErrEmptyCart,
	database.ErrCartMismatch,
	database.ErrDuplicatePayment,
	database.ErrOptimisticLockFailed,
	database.ErrLockTimeout,
	database.ErrInvalidStatusTransition,
	database.ErrTotalMismatch,
	database.ErrPriceMismatch,
}

var notFoundErrors = []error{
	database.ErrProductNotFound,
	database.ErrCategoryNotFound,
	database.ErrOrderNotFound,
	database.ErrCartLineNotFound,
	database.ErrBookingNotFound,
	database.ErrCustomerNotFound,
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, database.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, cart.ErrAuthenticationRequired),
		errors.Is(err, identity.ErrMissingToken),
		errors.Is(err, identity.ErrInvalidToken):
		return http.StatusUnauthorized, "authentication_required"
	case errors.Is(err, checkout.ErrPaymentVerificationFailed):
		return http.StatusPaymentRequired, "payment_failed"
	case isAny(err, notFoundErrors):
		return http.StatusNotFound, "not_found"
	case isAny(err, conflictErrors):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// respondError maps domain errors to HTTP statuses. Server errors are logged and never echoed.
func respondError(c *gin.Context, err error) {
	status, code := classify(err)

	resp := errorResponse{Error: err.Error(), Code: code}
	var verr *store.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}

	entry := requestLogger(c).WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
		resp.Error = "internal server error"
	} else {
		entry.Debug("request rejected")
	}

	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, message string) {
	requestLogger(c).WithField("reason", message).Debug("bad request")
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: message, Code: "validation_error"})
}

func requestLogger(c *gin.Context) logrus.FieldLogger {
	if v, ok := c.Get(loggerKey); ok {
		if l, ok := v.(logrus.FieldLogger); ok {
			return l
		}
	}
	return logrus.StandardLogger()
}
