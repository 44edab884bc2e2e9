package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/posly/settlement-service/config"
	"github.com/posly/settlement-service/internal/api/rest"
	"github.com/posly/settlement-service/internal/api/rest/handlers"
	"github.com/posly/settlement-service/internal/gateway"
	"github.com/posly/settlement-service/internal/kafka"
	"github.com/posly/settlement-service/internal/kafka/producer"
	"github.com/posly/settlement-service/internal/metrics"
	"github.com/posly/settlement-service/internal/repository"
	"github.com/posly/settlement-service/internal/repository/postgres"
	"github.com/posly/settlement-service/internal/service"
	"github.com/posly/settlement-service/pkg/logger"
)

var log *logger.Logger

func init() {
	// Загружаем переменные окружения
	if err := godotenv.Load(); err != nil {
		// Пропускаем ошибку, если .env файл не найден
	}

	// Инициализация логгера; уровень уточняется после загрузки конфигурации
	log = logger.New(logger.INFO)
}

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}
	log.SetLevel(logger.ParseLevel(cfg.Logging.Level))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Инициализация Prometheus
	promRegistry := prometheus.NewRegistry()
	paymentMetrics := metrics.NewPaymentMetrics(promRegistry, log)

	// Подключение к базе данных
	dbPool, err := postgres.NewConnection(ctx, cfg.Database.GetDSN(), log)
	if err != nil {
		log.Fatal("Failed to connect to database: %v", err)
	}
	defer dbPool.Close()

	paymentRepo := repository.PaymentRepository(postgres.NewPostgresPaymentRepository(dbPool, log))
	giftCardRepo := postgres.NewPostgresGiftCardRepository(dbPool, log)

	// Кеш платежей: недоступность Redis не мешает запуску
	cache, err := repository.NewRedisCacheRepository(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
	if err != nil {
		log.Warn("Redis unavailable, running without payment cache: %v", err)
	} else {
		defer cache.Close()
		paymentRepo = repository.NewCachedPaymentRepository(paymentRepo, cache, log)
	}

	// Инициализация Kafka продюсера: без брокера события не публикуются
	var paymentProducer producer.PaymentProducer
	kafkaConfig := kafka.NewConfig(cfg.Kafka.Brokers)
	saramaConfig := kafka.NewSaramaConfig(kafkaConfig)
	kafkaProducer, err := sarama.NewSyncProducer(kafkaConfig.Brokers, saramaConfig)
	if err != nil {
		log.Warn("Kafka unavailable, running without event publishing: %v", err)
	} else {
		defer kafkaProducer.Close()
		paymentProducer = producer.NewKafkaPaymentProducer(kafkaProducer, log)
	}

	// Шлюз внешнего процессора и парсер вебхуков
	checkoutGateway := gateway.NewStripeGateway(cfg.Stripe.APIKey, cfg.Checkout.SuccessURL, cfg.Checkout.CancelURL, log)
	webhookParser := gateway.NewWebhookParser(cfg.Stripe.WebhookSecret, log)

	// Сервисы
	ledger := service.NewGiftCardLedger(giftCardRepo, log)
	engine := service.NewSettlementEngine(paymentRepo, ledger, checkoutGateway, paymentProducer, paymentMetrics, log)
	snapshot := service.NewOrderSnapshotService(postgres.NewPostgresOrderLineRepository(dbPool, log), log)

	// Установка режима Gin
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Готовность сервиса определяется доступностью хранилища платежей
	healthHandler := handlers.NewHealthHandler(dbPool.Ping, log)

	// Настройка маршрутизатора
	router := rest.SetupRouter(engine, ledger, snapshot, webhookParser, healthHandler, promRegistry, log)

	// Создание и запуск HTTP сервера
	server := rest.NewServer(router, cfg, log)

	// Запуск сервера в горутине
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Останавливаем сервер
	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatal("Server forced to shutdown: %v", err)
	}

	log.Info("Server stopped gracefully")
}
