package api

import (
	"proxyhub-api/internal/config"
	"proxyhub-api/internal/database"
	"proxyhub-api/internal/middleware"
	"proxyhub-api/internal/services"

	"github.com/gin-gonic/gin"
)

var (
	userService         *services.UserService
	provisioningService *services.ProvisioningService
	activationService   *services.ActivationService
	paymentService      *services.PaymentService
	settlementService   *services.SettlementService
	subscriptionRepo    *database.SubscriptionRepository
	reconciliationRepo  *database.ReconciliationRepository
	lolaClient          *services.LolaClient
)

// SetupRoutes wires services and registers all routes
func SetupRoutes(r *gin.Engine) {
	db := database.GetDB()
	locker := services.NewRedisLocker(database.GetRedis())

	userRepo := database.NewUserRepository(db)
	paymentRepo := database.NewPaymentRepository(db)
	reconciliationRepo = database.NewReconciliationRepository(db)
	subscriptionRepo = database.NewSubscriptionRepository(db)

	lolaClient = services.NewLolaClient()

	userService = services.NewUserService(userRepo)
	provisioningService = services.NewProvisioningService(
		subscriptionRepo,
		reconciliationRepo,
		lolaClient,
		services.NewIPLookupService(),
		locker,
	)
	activationService = services.NewActivationService(services.DefaultEndpointTable())
	paymentService = services.NewPaymentService(services.NewCryptomusClient(), paymentRepo)

	var mailer services.Mailer
	if m := services.NewBrevoMailer(); m != nil {
		mailer = m
	}
	settlementService = services.NewSettlementService(
		paymentRepo,
		userRepo,
		mailer,
		locker,
		config.AppConfig.CryptomusAPIKey,
	)

	// Auth routes
	auth := r.Group("/auth")
	{
		auth.POST("/register", Register)
		auth.POST("/login", Login)
	}

	// Proxy purchase routes
	lola := r.Group("/lola")
	lola.Use(middleware.AuthMiddleware())
	{
		lola.POST("/buy", BuyProxy)
		lola.GET("/get-bandwidth/:planId", GetBandwidth)
	}

	// Proxy activation routes
	proxy := r.Group("/v1/proxy")
	proxy.Use(middleware.AuthMiddleware())
	{
		proxy.POST("/activate-proxy", ActivateProxy)
	}

	// Payment routes. The callback is gateway-originated: no bearer auth,
	// the signature check inside settlement is the authentication.
	payment := r.Group("/payment")
	{
		payment.POST("/checkout-cryptomus", middleware.AuthMiddleware(), CheckoutCryptomus)
		payment.POST("/cryptomus-callback", CryptomusCallback)
	}

	// Operator routes
	admin := r.Group("/admin")
	admin.Use(middleware.AuthMiddleware())
	{
		admin.GET("/reconciliation", ListReconciliationTasks)
		admin.POST("/reconciliation/:taskId/resolve", ResolveReconciliationTask)
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "proxyhub-api",
		})
	})
}
