package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/posly/settlement-service/internal/gateway"
	"github.com/posly/settlement-service/internal/service"
	"github.com/posly/settlement-service/pkg/logger"
)

// WebhookHandler обработчик для вебхуков внешнего процессора
type WebhookHandler struct {
	parser *gateway.WebhookParser
	engine *service.SettlementEngine
	log    *logger.Logger
}

// NewWebhookHandler создает новый обработчик вебхуков
func NewWebhookHandler(parser *gateway.WebhookParser, engine *service.SettlementEngine, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		parser: parser,
		engine: engine,
		log:    log,
	}
}

// HandleStripeWebhook обрабатывает вебхуки от Stripe.
// Повторные доставки одного события поглощаются движком без ошибок,
// поэтому любой успешно разобранный вебхук получает 200.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	bodyBytes, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.log.Error("Failed to read webhook body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read webhook body"})
		return
	}

	event, err := h.parser.Parse(bodyBytes, c.GetHeader("Stripe-Signature"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to verify webhook signature"})
		return
	}

	switch event.Type {
	case gateway.WebhookSessionCompleted:
		err = h.engine.ConfirmExternalSuccess(c.Request.Context(), event.SessionID)
	case gateway.WebhookSessionExpired:
		err = h.engine.CancelExternal(c.Request.Context(), event.SessionID)
	case gateway.WebhookIgnored:
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if err != nil {
		// Инфраструктурный сбой: процессор повторит доставку позже
		h.log.Errorw("Failed to process webhook event",
			"type", string(event.Type),
			"sessionID", event.SessionID,
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}
