package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/atelier-api/api/swagger"
	"github.com/noah-isme/atelier-api/internal/handler"
	"github.com/noah-isme/atelier-api/internal/middleware"
	"github.com/noah-isme/atelier-api/internal/models"
	"github.com/noah-isme/atelier-api/internal/repository"
	"github.com/noah-isme/atelier-api/internal/service"
	"github.com/noah-isme/atelier-api/pkg/cache"
	"github.com/noah-isme/atelier-api/pkg/config"
	"github.com/noah-isme/atelier-api/pkg/database"
	"github.com/noah-isme/atelier-api/pkg/export"
	"github.com/noah-isme/atelier-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/atelier-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/atelier-api/pkg/middleware/requestid"
	"github.com/noah-isme/atelier-api/pkg/storage"
)

// @title Atelier API
// @version 1.0.0
// @description Production, inventory and payroll backend for an artisan workshop
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	payslipStorage, err := storage.NewLocalStorage(cfg.Payslips.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init payslip storage", "error", err)
	}

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	productRepo := repository.NewProductRepository(db)
	ledgerRepo := repository.NewStageLedgerRepository(db)
	finishedRepo := repository.NewFinishedStockRepository(db)
	jobRepo := repository.NewJobRepository(db)
	payRateRepo := repository.NewPayRateRepository(db)
	payslipRepo := repository.NewPayslipRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	artisanRepo := repository.NewArtisanRepository(db)
	customerRepo := repository.NewCustomerRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Inventory.CacheTTL, logr, cfg.Inventory.CacheEnabled)

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		Secret:             cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "atelier-api",
	})
	productSvc := service.NewProductService(productRepo, db, nil, logr)
	payRateSvc := service.NewPayRateService(payRateRepo, productRepo, nil, logr)
	inventorySvc := service.NewInventoryService(ledgerRepo, finishedRepo, cacheSvc, export.NewCSVExporter(), cfg.Inventory.CacheTTL, nil, logr)
	jobSvc := service.NewJobService(jobRepo, ledgerRepo, finishedRepo, productRepo, artisanRepo, payRateRepo, inventorySvc, db, nil, logr)
	payslipSvc := service.NewPayslipService(
		payslipRepo,
		jobRepo,
		artisanRepo,
		productRepo,
		export.NewPayslipRenderer(),
		payslipStorage,
		storage.NewSignedURLSigner(cfg.Payslips.SignedURLSecret, cfg.Payslips.SignedURLTTL),
		db,
		nil,
		logr,
	)
	orderSvc := service.NewOrderService(orderRepo, finishedRepo, customerRepo, productRepo, inventorySvc, db, nil, logr)
	artisanSvc := service.NewArtisanService(artisanRepo, nil, logr)
	customerSvc := service.NewCustomerService(customerRepo, nil, logr)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	productHandler := handler.NewProductHandler(productSvc)
	payRateHandler := handler.NewPayRateHandler(payRateSvc)
	jobHandler := handler.NewJobHandler(jobSvc)
	payslipHandler := handler.NewPayslipHandler(payslipSvc)
	orderHandler := handler.NewOrderHandler(orderSvc)
	inventoryHandler := handler.NewInventoryHandler(inventorySvc)
	artisanHandler := handler.NewArtisanHandler(artisanSvc)
	customerHandler := handler.NewCustomerHandler(customerSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// Public routes. The payslip download route authorises via signed token.
	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)
	api.GET("/payslips/download", payslipHandler.Download)

	auth := api.Group("")
	auth.Use(middleware.JWT(authSvc))

	auth.GET("/auth/me", authHandler.Me)
	auth.PUT("/auth/password", authHandler.ChangePassword)

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleManager)

	auth.POST("/products", staff, productHandler.Create)
	auth.PUT("/products/:id", staff, productHandler.Update)
	auth.GET("/products/:id", productHandler.Get)
	auth.GET("/products", productHandler.List)
	auth.GET("/products/:id/price-history", productHandler.PriceHistory)

	auth.POST("/artisans", staff, artisanHandler.Create)
	auth.PUT("/artisans/:id", staff, artisanHandler.Update)
	auth.GET("/artisans/:id", artisanHandler.Get)
	auth.GET("/artisans", artisanHandler.List)
	auth.GET("/artisans/:id/stats", artisanHandler.Stats)

	auth.POST("/customers", customerHandler.Create)
	auth.PUT("/customers/:id", customerHandler.Update)
	auth.GET("/customers/:id", customerHandler.Get)
	auth.GET("/customers", customerHandler.List)
	auth.DELETE("/customers/:id", staff, customerHandler.Delete)

	auth.PUT("/pay-rates", staff, payRateHandler.Upsert)
	auth.GET("/pay-rates/:productId/:stage", payRateHandler.Resolve)
	auth.GET("/pay-rates", payRateHandler.List)
	auth.DELETE("/pay-rates/:id", staff, payRateHandler.Delete)

	auth.GET("/inventory/ledger", inventoryHandler.ListLedger)
	auth.GET("/inventory/finished", inventoryHandler.ListFinished)
	auth.GET("/inventory/quantity/:productId/:stage", inventoryHandler.StageQuantity)
	auth.GET("/inventory/summary", inventoryHandler.Summary)
	auth.POST("/inventory/adjust", staff, inventoryHandler.Adjust)
	auth.GET("/inventory/ledger/export", inventoryHandler.ExportCSV)

	auth.POST("/jobs", jobHandler.Create)
	auth.GET("/jobs/:id", jobHandler.Get)
	auth.GET("/jobs", jobHandler.List)
	auth.GET("/jobs/dashboard", jobHandler.Dashboard)
	auth.GET("/jobs/:id/summary", jobHandler.Summary)
	auth.POST("/jobs/:id/items", jobHandler.AddItem)
	auth.GET("/job-items", jobHandler.ListItems)
	auth.DELETE("/job-items/:id", staff, jobHandler.DeleteItem)
	auth.POST("/job-items/:id/reset-payslip", staff, jobHandler.ResetItemPayslip)
	auth.POST("/job-items/:id/deliveries", jobHandler.RecordDelivery)
	auth.DELETE("/deliveries/:id", staff, jobHandler.DeleteDelivery)

	auth.POST("/orders", orderHandler.Create)
	auth.PUT("/orders/:id/status", orderHandler.UpdateStatus)
	auth.GET("/orders/:id", orderHandler.Get)
	auth.GET("/orders", orderHandler.List)
	auth.DELETE("/orders/:id", staff, orderHandler.Delete)

	auth.POST("/payslips", staff, payslipHandler.Generate)
	auth.GET("/payslips/:id", payslipHandler.Get)
	auth.GET("/payslips", payslipHandler.List)
	auth.DELETE("/payslips/:id", staff, payslipHandler.Delete)
	auth.GET("/payslips/:id/download", payslipHandler.DownloadURL)

	auth.GET("/system/stats", staff, metricsHandler.System)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
