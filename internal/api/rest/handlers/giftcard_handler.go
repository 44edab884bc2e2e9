package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/posly/settlement-service/internal/api/rest/middleware"
	"github.com/posly/settlement-service/internal/service"
	"github.com/posly/settlement-service/pkg/logger"
)

// GiftCardHandler обработчик для подарочных карт
type GiftCardHandler struct {
	ledger *service.GiftCardLedger
	log    *logger.Logger
}

// NewGiftCardHandler создает новый обработчик подарочных карт
func NewGiftCardHandler(ledger *service.GiftCardLedger, log *logger.Logger) *GiftCardHandler {
	return &GiftCardHandler{
		ledger: ledger,
		log:    log,
	}
}

// issueGiftCardRequest тело запроса на выпуск карты
type issueGiftCardRequest struct {
	Code                string     `json:"code" binding:"required"`
	InitialBalanceCents int64      `json:"initial_balance_cents"`
	ExpiresAt           *time.Time `json:"expires_at"`
}

// IssueGiftCard выпускает новую подарочную карту
func (h *GiftCardHandler) IssueGiftCard(c *gin.Context) {
	var req issueGiftCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid issue gift card request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	card, err := h.ledger.Issue(c.Request.Context(), middleware.BusinessID(c), req.Code, req.InitialBalanceCents, req.ExpiresAt)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, card)
}

// ValidateGiftCard проверяет карту по коду без побочных эффектов.
// Касса вызывает этот маршрут перед предложением оплаты картой.
func (h *GiftCardHandler) ValidateGiftCard(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code query parameter is required"})
		return
	}

	card, err := h.ledger.Validate(c.Request.Context(), middleware.BusinessID(c), code)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, card)
}

// topUpRequest тело запроса на пополнение карты
type topUpRequest struct {
	AmountCents int64 `json:"amount_cents" binding:"required"`
}

// TopUpGiftCard пополняет баланс карты
func (h *GiftCardHandler) TopUpGiftCard(c *gin.Context) {
	cardID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid gift card ID format"})
		return
	}

	var req topUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid top-up request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	card, err := h.ledger.TopUp(c.Request.Context(), middleware.BusinessID(c), cardID, req.AmountCents)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, card)
}

// GetGiftCard возвращает карту по идентификатору
func (h *GiftCardHandler) GetGiftCard(c *gin.Context) {
	cardID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid gift card ID format"})
		return
	}

	card, err := h.ledger.GetByID(c.Request.Context(), middleware.BusinessID(c), cardID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, card)
}
