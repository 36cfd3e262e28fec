package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"portfolio-payments/internal/models"
	"portfolio-payments/internal/services"
)

// WebhookHandler handles provider callback HTTP requests.
//
// Providers retry deliveries that do not get a 2xx, so processing failures
// other than signature rejection still ack with 200. The failure is logged
// and the verify endpoint acts as the recovery path.
type WebhookHandler struct {
	service *services.WebhookService
	logger  *logrus.Entry
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(service *services.WebhookService) *WebhookHandler {
	return &WebhookHandler{
		service: service,
		logger:  logrus.WithField("component", "webhook-handler"),
	}
}

// HandlePhonePeWebhook handles POST /webhooks/phonepe
func (h *WebhookHandler) HandlePhonePeWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Failed to read request body",
			Message: err.Error(),
		})
		return
	}

	err = h.service.ProcessPhonePeWebhook(c.Request.Context(), body, c.GetHeader("X-VERIFY"))
	h.respond(c, err, "PhonePe")
}

// HandleRazorpayWebhook handles POST /webhooks/razorpay
func (h *WebhookHandler) HandleRazorpayWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Failed to read request body",
			Message: err.Error(),
		})
		return
	}

	err = h.service.ProcessRazorpayWebhook(
		c.Request.Context(), body,
		c.GetHeader("X-Razorpay-Signature"),
		c.GetHeader("X-Razorpay-Event-Id"),
	)
	h.respond(c, err, "Razorpay")
}

func (h *WebhookHandler) respond(c *gin.Context, err error, gateway string) {
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"message": "Webhook processed successfully"})
		return
	}

	if errors.Is(err, models.ErrSignatureInvalid) {
		h.logger.WithError(err).WithField("gateway", gateway).Warn("Rejected webhook with bad signature")
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error: "Signature verification failed",
		})
		return
	}

	h.logger.WithError(err).WithField("gateway", gateway).Error("Webhook processing failed")
	c.JSON(http.StatusOK, gin.H{"message": "Webhook received"})
}
