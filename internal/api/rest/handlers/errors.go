package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/posly/settlement-service/internal/domain"
	"github.com/posly/settlement-service/pkg/logger"
)

// reasonStatus сопоставляет код бизнес-причины HTTP статусу.
// Сами коды доходят до клиента без изменений: интерфейс кассы
// показывает конкретную причину отказа, а не общий текст.
var reasonStatus = map[domain.ReasonCode]int{
	domain.ReasonInvalidGiftCard:     http.StatusUnprocessableEntity,
	domain.ReasonWrongBusiness:       http.StatusForbidden,
	domain.ReasonBlocked:             http.StatusUnprocessableEntity,
	domain.ReasonExpired:             http.StatusUnprocessableEntity,
	domain.ReasonInvalidAmount:       http.StatusBadRequest,
	domain.ReasonNotFound:            http.StatusNotFound,
	domain.ReasonInvalidState:        http.StatusConflict,
	domain.ReasonInsufficientBalance: http.StatusUnprocessableEntity,
}

// respondError переводит ошибку сервиса в HTTP ответ.
// Бизнес-ошибки несут код причины; инфраструктурные ошибки его не имеют
// и отдаются обобщенно.
func respondError(c *gin.Context, log *logger.Logger, err error) {
	if reason, ok := domain.ReasonOf(err); ok {
		status, known := reasonStatus[reason]
		if !known {
			status = http.StatusUnprocessableEntity
		}
		log.Warnw("Request rejected", "reason", string(reason), "error", err)
		c.JSON(status, gin.H{
			"error":  err.Error(),
			"reason": string(reason),
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrExternalServiceUnavailable):
		log.Errorw("External service unavailable", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "external payment service unavailable"})
	case errors.Is(err, domain.ErrConflictRetryExhausted):
		log.Warnw("Concurrent update conflict", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporary conflict, please retry"})
	default:
		log.Errorw("Internal error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
