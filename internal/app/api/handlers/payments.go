package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/fatflowers/payment-engine/internal/app/service/payment"
	"github.com/fatflowers/payment-engine/internal/app/service/refund"
	"github.com/fatflowers/payment-engine/internal/models"
	"github.com/fatflowers/payment-engine/pkg/response"
	"github.com/fatflowers/payment-engine/pkg/types"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentService is the intake and query side used by the payment routes.
type PaymentService interface {
	Create(ctx context.Context, req payment.CreateRequest) (*models.Payment, bool, error)
	Get(ctx context.Context, id string) (*models.Payment, error)
	List(ctx context.Context, q payment.ListQuery) ([]*models.Payment, int64, error)
}

type RefundService interface {
	Refund(ctx context.Context, paymentID string, req refund.Request) (*models.Refund, error)
	List(ctx context.Context, paymentID string) ([]*models.Refund, error)
}

type CreatePaymentRequest struct {
	OrderID  string          `json:"orderId" binding:"required"`
	UserID   string          `json:"userId" binding:"required"`
	Amount   decimal.Decimal `json:"amount" swaggertype:"number"`
	Currency string          `json:"currency" binding:"required"`
	// Provider defaults to the configured provider when empty.
	Provider string `json:"provider" enums:"razorpay,stripe"`
}

type ListPaymentsRequest struct {
	UserID  string `form:"userId"`
	OrderID string `form:"orderId"`
	Status  string `form:"status"`
	From    int    `form:"from" binding:"gte=0"`
	Size    int    `form:"size" binding:"gte=0,lte=200"`
}

// SearchPaymentsRequest combines the list parameters with structured filters.
type SearchPaymentsRequest struct {
	UserID    string                 `json:"userId"`
	OrderID   string                 `json:"orderId"`
	Status    string                 `json:"status"`
	Filters   []*types.PaymentFilter `json:"filters"`
	From      int                    `json:"from" binding:"gte=0"`
	Size      int                    `json:"size" binding:"gte=0,lte=200"`
	SortBy    string                 `json:"sortBy" enums:"created_at,updated_at,amount,status"`
	SortOrder string                 `json:"sortOrder" enums:"asc,desc"`
}

type ListPaymentsResponse struct {
	Items []*models.Payment `json:"items"`
	Total int64             `json:"total"`
}

type RefundRequest struct {
	// Amount defaults to the full payment amount.
	Amount *decimal.Decimal `json:"amount" swaggertype:"number"`
	Reason string           `json:"reason"`
}

// @Summary      Create payment
// @Description  Creates the payment for an order and schedules the provider charge. Repeating the call for the same order returns the existing payment with 200.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        request body handlers.CreatePaymentRequest true "Payment request"
// @Success      201  {object}  handlers.RespPayment
// @Success      200  {object}  handlers.RespPayment
// @Failure      400  {object}  handlers.RespOK
// @Failure      403  {object}  handlers.RespOK
// @Failure      404  {object}  handlers.RespOK
// @Failure      409  {object}  handlers.RespOK
// @Failure      502  {object}  handlers.RespOK
// @Router       /payments [post]
func ApiCreatePayment(svc PaymentService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreatePaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		p, created, err := svc.Create(c.Request.Context(), payment.CreateRequest{
			OrderID:  req.OrderID,
			UserID:   req.UserID,
			Amount:   req.Amount,
			Currency: req.Currency,
			Provider: req.Provider,
		})
		if err != nil {
			writeError(c, log, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		c.JSON(status, response.OKT(p))
	}
}

// @Summary      List payments
// @Tags         Payment
// @Produce      json
// @Param        userId   query  string  false  "Filter by user"
// @Param        orderId  query  string  false  "Filter by order"
// @Param        status   query  string  false  "Filter by status"  Enums(processing, pending, succeeded, failed)
// @Param        from     query  int     false  "Offset"
// @Param        size     query  int     false  "Page size"
// @Success      200  {object}  handlers.RespListPayments
// @Router       /payments [get]
func ApiListPayments(svc PaymentService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ListPaymentsRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			badRequest(c, err)
			return
		}
		rows, total, err := svc.List(c.Request.Context(), payment.ListQuery{
			UserID:  req.UserID,
			OrderID: req.OrderID,
			Status:  types.PaymentStatus(req.Status),
			From:    req.From,
			Size:    req.Size,
		})
		if err != nil {
			writeError(c, log, err)
			return
		}
		if rows == nil {
			rows = []*models.Payment{}
		}
		c.JSON(http.StatusOK, response.OKT(ListPaymentsResponse{Items: rows, Total: total}))
	}
}

// @Summary      Search payments
// @Description  Lists payments matching structured filters. A field is a payment column or metadata.<key>.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        request body handlers.SearchPaymentsRequest true "Search request"
// @Success      200  {object}  handlers.RespListPayments
// @Failure      400  {object}  handlers.RespOK
// @Router       /payments/search [post]
func ApiSearchPayments(svc PaymentService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SearchPaymentsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		rows, total, err := svc.List(c.Request.Context(), payment.ListQuery{
			UserID:    req.UserID,
			OrderID:   req.OrderID,
			Status:    types.PaymentStatus(req.Status),
			Filters:   req.Filters,
			From:      req.From,
			Size:      req.Size,
			SortBy:    req.SortBy,
			SortOrder: req.SortOrder,
		})
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(ListPaymentsResponse{Items: lo.CoalesceSliceOrEmpty(rows), Total: total}))
	}
}

// @Summary      Get payment
// @Tags         Payment
// @Produce      json
// @Param        id   path  string  true  "Payment ID"
// @Success      200  {object}  handlers.RespPayment
// @Failure      404  {object}  handlers.RespOK
// @Router       /payments/{id} [get]
func ApiGetPayment(svc PaymentService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(p))
	}
}

// @Summary      Refund payment
// @Description  Issues a provider refund against a captured payment. Omitting amount refunds the full payment.
// @Tags         Refund
// @Accept       json
// @Produce      json
// @Param        id       path  string                  true   "Payment ID"
// @Param        request  body  handlers.RefundRequest  false  "Refund request"
// @Success      201  {object}  handlers.RespRefund
// @Failure      404  {object}  handlers.RespOK
// @Failure      422  {object}  handlers.RespOK
// @Failure      502  {object}  handlers.RespOK
// @Router       /payments/{id}/refund [post]
func ApiRefundPayment(svc RefundService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RefundRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			badRequest(c, err)
			return
		}
		r, err := svc.Refund(c.Request.Context(), c.Param("id"), refund.Request{Amount: req.Amount, Reason: req.Reason})
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, response.OKT(r))
	}
}

// @Summary      List refunds
// @Tags         Refund
// @Produce      json
// @Param        id   path  string  true  "Payment ID"
// @Success      200  {object}  handlers.RespListRefunds
// @Failure      404  {object}  handlers.RespOK
// @Router       /payments/{id}/refunds [get]
func ApiListRefunds(svc RefundService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := svc.List(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, log, err)
			return
		}
		if rows == nil {
			rows = []*models.Refund{}
		}
		c.JSON(http.StatusOK, response.OKT(rows))
	}
}

func RegisterPaymentRoutes(r gin.IRouter, payments PaymentService, refunds RefundService, log *zap.SugaredLogger) {
	r.POST("", ApiCreatePayment(payments, log))
	r.GET("", ApiListPayments(payments, log))
	r.POST("/search", ApiSearchPayments(payments, log))
	r.GET("/:id", ApiGetPayment(payments, log))
	r.POST("/:id/refund", ApiRefundPayment(refunds, log))
	r.GET("/:id/refunds", ApiListRefunds(refunds, log))
}
