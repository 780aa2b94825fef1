package handler

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appwebhook "github.com/blingsync/backend/internal/application/webhook"
)

// Webhook signature headers sent by the provider
const (
	SignatureHeader  = "X-Signature"
	TimestampHeader  = "X-Timestamp"
	DeliveryIDHeader = "X-Delivery-Id"
)

// WebhookHandler receives provider deliveries and hands them to the
// ingestion processor
type WebhookHandler struct {
	BaseHandler
	service *appwebhook.Service
}

// NewWebhookHandler creates a webhook handler
func NewWebhookHandler(service *appwebhook.Service) *WebhookHandler {
	return &WebhookHandler{service: service}
}

// RegisterRoutes registers the webhook ingestion route
func (h *WebhookHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/webhooks/bling/:tenantID", h.Receive)
}

// Receive handles POST /webhooks/bling/:tenantID
func (h *WebhookHandler) Receive(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("tenantID"))
	if err != nil {
		h.BadRequest(c, "invalid tenant ID")
		return
	}

	deliveryID := c.GetHeader(DeliveryIDHeader)
	if deliveryID == "" {
		h.BadRequest(c, "missing delivery ID header")
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.BadRequest(c, "failed to read request body")
		return
	}

	record, err := h.service.Process(c.Request.Context(), appwebhook.Delivery{
		TenantID:   tenantID,
		DeliveryID: deliveryID,
		Body:       body,
		Signature:  c.GetHeader(SignatureHeader),
		Timestamp:  c.GetHeader(TimestampHeader),
	})

	switch {
	case err == nil:
		h.Success(c, gin.H{"status": string(record.Status)})
	case errors.Is(err, appwebhook.ErrDuplicateDelivery):
		// acknowledged so the provider stops redelivering
		h.Success(c, gin.H{"status": "duplicate"})
	case errors.Is(err, appwebhook.ErrInvalidSignature):
		h.Unauthorized(c, "signature verification failed")
	case errors.Is(err, appwebhook.ErrStaleTimestamp),
		errors.Is(err, appwebhook.ErrMalformedPayload):
		h.BadRequest(c, err.Error())
	default:
		h.HandleError(c, err)
	}
}
