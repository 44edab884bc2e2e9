package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/posly/settlement-service/internal/api/rest/middleware"
	"github.com/posly/settlement-service/internal/domain"
	"github.com/posly/settlement-service/internal/service"
	"github.com/posly/settlement-service/pkg/logger"
)

// PaymentHandler обработчик для платежей
type PaymentHandler struct {
	engine *service.SettlementEngine
	log    *logger.Logger
}

// NewPaymentHandler создает новый обработчик платежей
func NewPaymentHandler(engine *service.SettlementEngine, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{
		engine: engine,
		log:    log,
	}
}

// createPaymentRequest тело запроса на создание платежа
type createPaymentRequest struct {
	OrderID             string `json:"order_id" binding:"required,uuid"`
	AmountCents         int64  `json:"amount_cents" binding:"required"`
	Currency            string `json:"currency" binding:"required,len=3"`
	GiftCardCode        string `json:"gift_card_code"`
	GiftCardAmountCents *int64 `json:"gift_card_amount_cents"`
	SuccessURL          string `json:"success_url"`
	CancelURL           string `json:"cancel_url"`
}

// CreatePayment создает новую попытку расчета по заказу
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid create payment request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order ID format"})
		return
	}

	result, err := h.engine.CreatePayment(c.Request.Context(), domain.CreatePaymentRequest{
		OrderID:             orderID,
		BusinessID:          middleware.BusinessID(c),
		AmountCents:         req.AmountCents,
		Currency:            req.Currency,
		GiftCardCode:        req.GiftCardCode,
		GiftCardAmountCents: req.GiftCardAmountCents,
		EmployeeID:          middleware.EmployeeID(c),
		SuccessURL:          req.SuccessURL,
		CancelURL:           req.CancelURL,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// GetPayment возвращает платеж по ID
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment ID format"})
		return
	}

	payment, err := h.engine.GetPayment(c.Request.Context(), middleware.BusinessID(c), paymentID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

// GetPayments возвращает платежи бизнеса, опционально отфильтрованные по заказу
func (h *PaymentHandler) GetPayments(c *gin.Context) {
	businessID := middleware.BusinessID(c)

	if rawOrderID := c.Query("order_id"); rawOrderID != "" {
		orderID, err := uuid.Parse(rawOrderID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order ID format"})
			return
		}

		payments, err := h.engine.ListByOrder(c.Request.Context(), businessID, orderID)
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		c.JSON(http.StatusOK, payments)
		return
	}

	payments, err := h.engine.ListByBusiness(c.Request.Context(), businessID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, payments)
}

// RefundPayment полностью возвращает успешный платеж
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment ID format"})
		return
	}

	if err := h.engine.RefundFull(c.Request.Context(), middleware.BusinessID(c), paymentID); err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "refunded"})
}
