package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"portfolio-payments/internal/models"
	"portfolio-payments/internal/services"
)

// PaymentHandler handles payment-related HTTP requests
type PaymentHandler struct {
	payments *services.PaymentService
	receipts *services.ReceiptService
	logger   *logrus.Entry
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(payments *services.PaymentService, receipts *services.ReceiptService) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		receipts: receipts,
		logger:   logrus.WithField("component", "payment-handler"),
	}
}

// CreatePayment handles POST /api/v1/payments
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req models.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	resp, err := h.payments.CreatePayment(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err, "Failed to create payment")
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// VerifyPayment handles POST /api/v1/payments/verify
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	var req models.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	resp, err := h.payments.VerifyPayment(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err, "Failed to verify payment")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetPayment handles GET /api/v1/payments/:id
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	record, err := h.payments.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to get payment")
		return
	}
	c.JSON(http.StatusOK, record)
}

// GenerateReceipt handles POST /api/v1/payments/receipt
func (h *PaymentHandler) GenerateReceipt(c *gin.Context) {
	var req models.ReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	record, err := h.payments.GetPayment(c.Request.Context(), req.MerchantTransactionID)
	if err != nil {
		h.respondError(c, err, "Failed to get payment")
		return
	}
	if record.Status != models.PaymentCompleted {
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "Receipt unavailable",
			Message: fmt.Sprintf("payment is %s, receipts exist only for completed payments", record.Status),
		})
		return
	}

	pdf, filename, err := h.receipts.GenerateReceipt(record)
	if err != nil {
		h.logger.WithError(err).Error("Failed to generate receipt")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: "Failed to generate receipt",
		})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// Health handles GET /health
func (h *PaymentHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "portfolio-payments",
	})
}

func (h *PaymentHandler) respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, models.ErrValidation):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Message: err.Error()})
	case errors.Is(err, models.ErrPaymentNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Payment not found", Message: err.Error()})
	case errors.Is(err, models.ErrSignatureInvalid):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Signature verification failed", Message: err.Error()})
	case errors.Is(err, models.ErrConfiguration):
		h.logger.WithError(err).Error("Provider not configured")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Payment provider not configured",
			Message: err.Error(),
		})
	case errors.Is(err, models.ErrProviderAuth):
		h.logger.WithError(err).Error("Provider rejected credentials")
		c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: "Payment provider rejected credentials"})
	default:
		h.logger.WithError(err).Error(fallback)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: fallback})
	}
}
