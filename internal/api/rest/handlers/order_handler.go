package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/posly/settlement-service/internal/service"
	"github.com/posly/settlement-service/pkg/logger"
)

// OrderHandler обработчик итогов заказа
type OrderHandler struct {
	snapshot *service.OrderSnapshotService
	log      *logger.Logger
}

// NewOrderHandler создает новый обработчик итогов заказа
func NewOrderHandler(snapshot *service.OrderSnapshotService, log *logger.Logger) *OrderHandler {
	return &OrderHandler{
		snapshot: snapshot,
		log:      log,
	}
}

// GetOrderTotal возвращает сумму к оплате по заказу.
// Касса запрашивает итог и передает его без изменений в создание платежа.
func (h *OrderHandler) GetOrderTotal(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order ID format"})
		return
	}

	currency := c.DefaultQuery("currency", "usd")

	total, err := h.snapshot.ResolveOrderTotal(c.Request.Context(), orderID, currency)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, total)
}
