// Package handler provides HTTP request handlers for the application.
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Sdongmaker/emby-cdn-preheat/internal/models"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/service"
	"github.com/Sdongmaker/emby-cdn-preheat/pkg/logger"
)

// WebhookHandler handles Emby webhook deliveries.
type WebhookHandler struct {
	preheat *service.PreheatService
}

// NewWebhookHandler creates a new WebhookHandler instance.
func NewWebhookHandler(preheat *service.PreheatService) *WebhookHandler {
	return &WebhookHandler{preheat: preheat}
}

// HandleEmbyWebhook processes one Emby notification. Emby disables webhooks
// that keep failing, so pipeline errors past payload validation are still
// acknowledged with 200; the failure is reported in the body and logged.
func (h *WebhookHandler) HandleEmbyWebhook(c *gin.Context) {
	var payload models.EmbyWebhookPayload

	if err := c.ShouldBindJSON(&payload); err != nil {
		logger.Log.Warn("Invalid webhook payload",
			zap.Error(err),
			zap.String("path", c.Request.URL.Path),
		)
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Status:    http.StatusBadRequest,
			Error:     "Bad Request",
			Message:   "Invalid request payload: " + err.Error(),
			Timestamp: time.Now(),
			Path:      c.Request.URL.Path,
		})
		return
	}

	logger.Log.Info("Received Emby webhook",
		zap.String("event", payload.Event),
		zap.String("itemName", payload.Item.Name),
		zap.String("itemType", payload.Item.Type),
	)

	result, err := h.preheat.HandleNewItem(c.Request.Context(), &payload)
	if err != nil {
		logger.Log.Error("Webhook processing failed",
			zap.Error(err),
			zap.String("event", payload.Event),
		)
		c.JSON(http.StatusOK, models.WebhookResponse{
			Status:  "error",
			Message: "event acknowledged but not recorded",
		})
		return
	}

	c.JSON(http.StatusOK, models.WebhookResponse{
		Status:  result.Status,
		Message: result.Message,
		Data:    result,
	})
}
