package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"captable/internal/cache"
	"captable/internal/config"
	"captable/internal/database"
	"captable/internal/handlers"
	"captable/internal/logger"
	"captable/internal/middleware"
	"captable/internal/notify"
	"captable/internal/plans"
	"captable/internal/scheduler"
	"captable/internal/services"
	"captable/internal/validator"
)

func main() {
	// Initialize logger (use ENV var if available, default to development)
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	// Load configuration
	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize database configuration
	dbConfig, err := database.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to load database configuration: %w", err)
	}

	// Create database manager
	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}

	// Run migrations
	if err := dbManager.Migrate(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	// Register custom binding validators
	validator.Register()

	// Projection cache: Redis when configured, in-process otherwise
	var store cache.Store
	if appConfig.RedisAddr != "" {
		store = cache.NewRedis(appConfig.RedisAddr, appConfig.RedisPassword)
	} else {
		store = cache.NewMemory()
		log.Info("Redis not configured, using in-process projection cache")
	}

	// Initialize services
	db := dbManager.DB()
	catalog := plans.Default()
	validationService := services.NewValidationService(db, catalog)
	shareholderService := services.NewShareholderService(db, validationService, store)
	companyService := services.NewCompanyService(db, shareholderService, validationService, store, appConfig.CacheTTL)
	positionService := services.NewPositionService(db, shareholderService, validationService, store)
	optionService := services.NewOptionService(db, shareholderService, validationService, store)
	splitService := services.NewSplitService(db, shareholderService, validationService, notify.NewLogNotifier(), store)

	// Initialize handlers
	companyHandler := handlers.NewCompanyHandler(companyService, splitService, validationService)
	shareholderHandler := handlers.NewShareholderHandler(shareholderService, validationService)
	positionHandler := handlers.NewPositionHandler(positionService)
	optionHandler := handlers.NewOptionHandler(optionService)

	// Background order-cache rebuilds
	jobs, err := scheduler.New(companyService, appConfig.OrderCacheRebuildEvery)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	jobs.Start()
	defer func() {
		if err := jobs.Shutdown(); err != nil {
			log.Warnf("scheduler shutdown error: %v", err)
		}
	}()

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())

	// Health check endpoint
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1 group, all routes behind the operator key
	v1 := router.Group("/api/v1")
	v1.Use(middleware.OperatorAuthMiddleware(appConfig.OperatorAPIKey))

	// Company routes
	companies := v1.Group("/companies")
	companies.POST("", companyHandler.CreateCompany)
	companies.GET("/:id", companyHandler.GetCompanyByID)
	companies.POST("/:id/securities", companyHandler.CreateSecurity)
	companies.GET("/:id/active-shareholders", companyHandler.GetActiveShareholders)
	companies.GET("/:id/total-votes", companyHandler.GetTotalVotes)
	companies.POST("/:id/split", companyHandler.SplitShares)
	companies.POST("/:id/plan/validate", companyHandler.ValidatePlan)
	companies.POST("/:id/shareholders", shareholderHandler.CreateShareholder)
	companies.GET("/:id/shareholders", shareholderHandler.GetCompanyShareholders)
	companies.POST("/:id/positions", positionHandler.CreatePosition)
	companies.GET("/:id/positions", positionHandler.GetCompanyPositions)
	companies.POST("/:id/option-plans", optionHandler.CreateOptionPlan)
	companies.POST("/:id/option-transactions", optionHandler.CreateOptionTransaction)

	// Security routes
	v1.GET("/securities/:id", companyHandler.GetSecurityByID)

	// Shareholder routes
	shareholders := v1.Group("/shareholders")
	shareholders.GET("/:id", shareholderHandler.GetShareholderByID)
	shareholders.GET("/:id/balance", shareholderHandler.GetBalance)
	shareholders.GET("/:id/segments", shareholderHandler.GetSegments)
	shareholders.GET("/:id/option-segments", shareholderHandler.GetOptionSegments)
	shareholders.POST("/:id/owns-segments", shareholderHandler.CheckOwnsSegments)
	shareholders.GET("/:id/gafi", shareholderHandler.GafiValidate)

	// Position routes
	positions := v1.Group("/positions")
	positions.GET("/:id", positionHandler.GetPositionByID)
	positions.POST("/:id/confirm", positionHandler.ConfirmPosition)
	positions.DELETE("/:id", positionHandler.DeletePosition)
	positions.POST("/:id/invalidate-certificate", positionHandler.InvalidateCertificate)

	// Option routes
	optionPlans := v1.Group("/option-plans")
	optionPlans.GET("/:id", optionHandler.GetOptionPlanByID)
	optionTxs := v1.Group("/option-transactions")
	optionTxs.POST("/:id/confirm", optionHandler.ConfirmOptionTransaction)
	optionTxs.DELETE("/:id", optionHandler.DeleteOptionTransaction)

	log.Infof("Starting cap-table server on port %s", appConfig.Port)
	return router.Run(":" + appConfig.Port)
}
