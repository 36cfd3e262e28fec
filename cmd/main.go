package main

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"portfolio-payments/internal/clients"
	"portfolio-payments/internal/config"
	"portfolio-payments/internal/handlers"
	"portfolio-payments/internal/middleware"
	"portfolio-payments/internal/models"
	"portfolio-payments/internal/phonepe"
	"portfolio-payments/internal/razorpay"
	"portfolio-payments/internal/repository"
	"portfolio-payments/internal/services"
)

func main() {
	cfg := config.Load()

	setupLogging(cfg)
	log := logrus.WithField("component", "main")

	if missing := cfg.MissingPhonePeKeys(); len(missing) > 0 {
		log.WithField("keys", missing).Warn("PhonePe not fully configured, PhonePe payments will fail")
	}
	if missing := cfg.MissingRazorpayKeys(); len(missing) > 0 {
		log.WithField("keys", missing).Warn("Razorpay not fully configured, Razorpay payments will fail")
	}
	if missing := cfg.MissingSMTPKeys(); len(missing) > 0 {
		log.WithField("keys", missing).Warn("SMTP not fully configured, email notifications will be skipped")
	}

	store, events := setupStores(cfg, log)
	environment := models.Environment(cfg.Environment)

	// Provider clients
	phonepeVerifier := phonepe.NewSignatureVerifier(cfg.PhonePeSaltKey, cfg.PhonePeSaltIndex, "/webhooks/phonepe")
	phonepeClient := phonepe.NewClient(cfg.PhonePeMerchantID, phonepeVerifier, environment, cfg.PhonePeBaseURL)
	razorpayClient := razorpay.NewClient(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.RazorpayWebhookSecret)

	// Notification stack
	mailer := clients.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFromName)
	smsClient := clients.NewSMSClient(cfg.SMSAccountSID, cfg.SMSAuthToken, cfg.SMSFromNumber, cfg.SMSBaseURL)
	receiptService := services.NewReceiptService(cfg.SMTPFromName)
	dispatcher := services.NewDispatcher(mailer, smsClient, receiptService,
		cfg.AdminEmails, cfg.SMSAdminNumbers, cfg.DefaultCountryCode)
	coordinator := services.NewNotificationCoordinator(store, dispatcher)

	// Core services
	reconciler := services.NewReconciler(store)
	poller := services.NewStatusPoller(cfg.StatusRetryAttempts, cfg.StatusRetryBackoff)
	paymentService := services.NewPaymentService(
		store, phonepeClient, razorpayClient,
		reconciler, poller, coordinator,
		environment, cfg.PhonePeRedirectURL, cfg.PhonePeCallbackURL,
	)
	webhookService := services.NewWebhookService(
		phonepeVerifier, razorpayClient,
		reconciler, coordinator, events, environment,
	)

	paymentHandler := handlers.NewPaymentHandler(paymentService, receiptService)
	webhookHandler := handlers.NewWebhookHandler(webhookService)

	router := setupRouter(cfg, paymentHandler, webhookHandler)

	log.WithFields(logrus.Fields{
		"port":        cfg.Port,
		"environment": cfg.Environment,
	}).Info("Starting payments service")
	if err := router.Run(":" + cfg.Port); err != nil {
		log.WithError(err).Fatal("Server exited")
	}
}

func setupLogging(cfg *config.Config) {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	if cfg.IsProduction() {
		logrus.SetLevel(logrus.InfoLevel)
	} else {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if cfg.LogFile != "" {
		logrus.SetOutput(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
	}
}

// setupStores connects to Postgres when DATABASE_URL is set, falling back to
// the in-memory store so the service stays usable in local development. A
// Redis claim layer is added when REDIS_URL is set.
func setupStores(cfg *config.Config, log *logrus.Entry) (repository.Store, repository.WebhookEventStore) {
	var store repository.Store
	var events repository.WebhookEventStore

	if cfg.DatabaseURL != "" {
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			log.WithError(err).Error("Failed to connect to database, falling back to in-memory store")
		} else {
			if err := db.AutoMigrate(&models.PaymentRecord{}, &models.WebhookEvent{}); err != nil {
				log.WithError(err).Fatal("Database migration failed")
			}
			store = repository.NewPaymentRepository(db)
			events = repository.NewWebhookEventRepository(db)
			log.Info("Connected to Postgres")
		}
	}
	if store == nil {
		log.Warn("Using in-memory payment store, records will not survive restarts")
		store = repository.NewMemoryRepository()
		events = repository.NewMemoryWebhookEventStore()
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Error("Invalid REDIS_URL, skipping Redis claim layer")
		} else {
			store = repository.NewRedisClaimStore(store, redis.NewClient(opts))
			log.Info("Redis notification claim enabled")
		}
	}
	return store, events
}

func setupRouter(cfg *config.Config, paymentHandler *handlers.PaymentHandler, webhookHandler *handlers.WebhookHandler) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.CORSAllowedOrigins
	router.Use(middleware.CORS(corsConfig))
	router.Use(middleware.ValidateRequest())

	limits := middleware.NewPaymentRateLimits()

	router.GET("/health", paymentHandler.Health)

	api := router.Group("/api/v1", middleware.RateLimitMiddleware(limits.APIGeneral))
	{
		api.POST("/payments", middleware.RateLimitMiddleware(limits.CreatePayment), paymentHandler.CreatePayment)
		api.POST("/payments/verify", paymentHandler.VerifyPayment)
		api.POST("/payments/receipt", paymentHandler.GenerateReceipt)
		api.GET("/payments/:id", paymentHandler.GetPayment)
	}

	webhooks := router.Group("/webhooks", middleware.RateLimitMiddleware(limits.Webhook))
	{
		webhooks.POST("/phonepe", webhookHandler.HandlePhonePeWebhook)
		webhooks.POST("/razorpay", webhookHandler.HandleRazorpayWebhook)
	}

	return router
}
