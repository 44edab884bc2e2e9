package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/posly/settlement-service/internal/api/rest/handlers"
	"github.com/posly/settlement-service/internal/api/rest/middleware"
	"github.com/posly/settlement-service/internal/gateway"
	"github.com/posly/settlement-service/internal/service"
	"github.com/posly/settlement-service/pkg/logger"
)

// SetupRouter настраивает маршрутизатор Gin с маршрутами и middleware
func SetupRouter(
	engine *service.SettlementEngine,
	ledger *service.GiftCardLedger,
	snapshot *service.OrderSnapshotService,
	webhookParser *gateway.WebhookParser,
	health *handlers.HealthHandler,
	registry *prometheus.Registry,
	log *logger.Logger,
) *gin.Engine {
	r := gin.New()

	// Подключение middleware
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(gin.Recovery())

	// Endpoint для проверки работоспособности сервиса
	r.GET("/health", health.HealthCheck)

	// Prometheus метрики
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// Инициализация обработчиков
	paymentHandler := handlers.NewPaymentHandler(engine, log)
	giftCardHandler := handlers.NewGiftCardHandler(ledger, log)
	orderHandler := handlers.NewOrderHandler(snapshot, log)
	webhookHandler := handlers.NewWebhookHandler(webhookParser, engine, log)

	// API в рамках контекста арендатора
	v1 := r.Group("/api/v1")
	v1.Use(middleware.TenantMiddleware(log))
	{
		// Платежи
		payments := v1.Group("/payments")
		{
			payments.GET("", paymentHandler.GetPayments)
			payments.GET("/:id", paymentHandler.GetPayment)
			payments.POST("", paymentHandler.CreatePayment)
			payments.POST("/:id/refund", paymentHandler.RefundPayment)
		}

		// Подарочные карты
		giftcards := v1.Group("/giftcards")
		{
			giftcards.POST("", giftCardHandler.IssueGiftCard)
			giftcards.GET("", giftCardHandler.ValidateGiftCard)
			giftcards.GET("/:id", giftCardHandler.GetGiftCard)
			giftcards.POST("/:id/topup", giftCardHandler.TopUpGiftCard)
		}

		// Итог заказа к оплате
		orders := v1.Group("/orders")
		{
			orders.GET("/:id/total", orderHandler.GetOrderTotal)
		}
	}

	// Вебхуки на корневом уровне роутера: процессор не знает про арендаторов
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/stripe", webhookHandler.HandleStripeWebhook)
	}

	return r
}
