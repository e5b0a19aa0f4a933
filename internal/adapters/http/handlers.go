package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"orderflow/internal/lock"
	"orderflow/internal/orders"
	"orderflow/internal/payments"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleCreateOrder(c *gin.Context) {
	var req orders.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if key := c.GetHeader("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}

	order, err := s.orders.CreateOrder(c.Request.Context(), c.Param("member_id"), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (s *Server) handleGetOrder(c *gin.Context) {
	order, err := s.orders.GetOrder(c.Request.Context(), c.Param("order_id"), c.Param("member_id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) handleListOrders(c *gin.Context) {
	page := orders.Page{
		Number: intQuery(c, "page", 0),
		Size:   intQuery(c, "size", 20),
	}
	list, err := s.orders.ListOrders(c.Request.Context(), c.Param("member_id"), page)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if list == nil {
		list = []*orders.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": list, "page": page.Number, "size": page.Size})
}

func (s *Server) handleCancelOrder(c *gin.Context) {
	orderID := c.Param("order_id")
	if err := s.orders.CancelOrder(c.Request.Context(), orderID, c.Param("member_id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "status": "CANCELLED"})
}

func (s *Server) writeError(c *gin.Context, err error) {
	code := statusFromError(err)
	if code >= http.StatusInternalServerError {
		s.logf("[http] %s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	case errors.Is(err, orders.ErrIdempotencyKeyRequired):
		return http.StatusBadRequest
	case errors.Is(err, orders.ErrMemberNotFound),
		errors.Is(err, orders.ErrProductNotFound),
		errors.Is(err, orders.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrInsufficientStock),
		errors.Is(err, orders.ErrOrderInProgress),
		errors.Is(err, orders.ErrOrderAlreadyCancelled),
		errors.Is(err, orders.ErrOrderCancellationNotAllowed),
		errors.Is(err, orders.ErrVersionConflict),
		errors.Is(err, payments.ErrPaymentAlreadyInProgress):
		return http.StatusConflict
	case errors.Is(err, payments.ErrPaymentProcessingFailed):
		return http.StatusBadGateway
	case errors.Is(err, lock.ErrLockUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
