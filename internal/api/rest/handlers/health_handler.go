package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/posly/settlement-service/pkg/logger"
)

const serviceName = "settlement-service"

// HealthHandler обработчик проверок работоспособности сервиса
type HealthHandler struct {
	ready func(ctx context.Context) error
	log   *logger.Logger
}

// NewHealthHandler создает обработчик проверок. ready проверяет доступность
// хранилища платежей; nil оставляет только проверку живости процесса.
func NewHealthHandler(ready func(ctx context.Context) error, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		ready: ready,
		log:   log,
	}
}

// HealthCheck проверяет готовность сервиса вести расчеты.
// Без хранилища платежей сервис бесполезен: отказ базы возвращает 503
// и выводит инстанс из балансировки.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	if h.ready != nil {
		if err := h.ready(c.Request.Context()); err != nil {
			h.log.Errorw("Health check failed, payment storage unreachable", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unavailable",
				"service": serviceName,
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "OK",
		"service": serviceName,
		"time":    time.Now().Format(time.RFC3339),
	})
}
