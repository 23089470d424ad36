package main

import (
	"context"
	"log"
	"net/http"

	_ "prs/api/swagger" // swagger docs
	"prs/internal/config"
	"prs/internal/database"
	"prs/internal/handler"
	"prs/internal/logger"
	"prs/internal/middleware"
	"prs/internal/repository"
	"prs/internal/service"
	"prs/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title           Purchase Request System API
// @version         1.0
// @description     Purchase requests, line items and their review workflow.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config load failed: %v", err)
	}

	zlog, err := logger.New(cfg.LogLevel, cfg.GinMode)
	if err != nil {
		log.Fatalf("Logger setup failed: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	threshold, err := cfg.Approval.Threshold()
	if err != nil {
		zlog.Fatal("invalid approval config", zap.Error(err))
	}

	db, err := database.NewConnection(cfg.Database.DSN())
	if err != nil {
		zlog.Fatal("database connection failed", zap.Error(err))
	}
	zlog.Info("connected to PostgreSQL", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.Name))

	// Set up WebSocket Hub
	wsHub := websocket.NewHub(zlog.Named("ws"))
	go wsHub.Run()

	// Set up dependencies (Repository -> Service -> Handler)
	txManager := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	vendorRepo := repository.NewVendorRepository(db)
	productRepo := repository.NewProductRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	lineItemRepo := repository.NewLineItemRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	locks := service.NewRequestLocks()
	totals := service.NewTotalService(requestRepo, lineItemRepo, productRepo, zlog.Named("totals"))
	numbering := service.NewNumberingService(requestRepo, txManager, nil, cfg.Approval.NumberMaxAttempts, zlog.Named("numbering"))

	userService := service.NewUserService(userRepo, []byte(cfg.JWTSecret))
	productService := service.NewProductService(productRepo, vendorRepo, requestRepo, auditRepo, txManager, totals, locks, wsHub, zlog.Named("products"))
	lineItemService := service.NewLineItemService(lineItemRepo, requestRepo, productRepo, auditRepo, txManager, totals, locks, wsHub, zlog.Named("line_items"))
	requestService := service.NewRequestService(service.RequestServiceDeps{
		RequestRepo:          requestRepo,
		LineItemRepo:         lineItemRepo,
		UserRepo:             userRepo,
		AuditRepo:            auditRepo,
		TxManager:            txManager,
		Numbering:            numbering,
		Locks:                locks,
		Notifier:             wsHub,
		AutoApproveThreshold: threshold,
		Log:                  zlog.Named("requests"),
	})
	auditService := service.NewAuditService(auditRepo, requestRepo)

	created, err := userService.EnsureAdmin(context.Background(), cfg.Admin.Username, cfg.Admin.Password, cfg.Admin.Email)
	switch {
	case err != nil:
		zlog.Fatal("admin bootstrap failed", zap.Error(err))
	case created:
		zlog.Info("created bootstrap administrator", zap.String("username", cfg.Admin.Username))
	case cfg.Admin.Username == "":
		zlog.Warn("PRS_ADMIN_USERNAME not set; no administrator is created on startup")
	}

	// Initialize Handlers
	release := cfg.GinMode == gin.ReleaseMode
	userHandler := handler.NewUserHandler(userService, release, zlog)
	productHandler := handler.NewProductHandler(productService, zlog)
	requestHandler := handler.NewRequestHandler(requestService, lineItemService, zlog)
	lineItemHandler := handler.NewLineItemHandler(lineItemService, zlog)
	auditHandler := handler.NewAuditHandler(auditService, zlog)

	// Set up Gin Router
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(zlog.Named("http")))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", middleware.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, []byte(cfg.JWTSecret))
	})

	// API Routing
	userHandler.RegisterPublicRoutes(router.Group(""))

	api := router.Group("/api", middleware.RequireAuth([]byte(cfg.JWTSecret)))
	userHandler.RegisterRoutes(api)
	productHandler.RegisterRoutes(api)
	requestHandler.RegisterRoutes(api)
	lineItemHandler.RegisterRoutes(api)
	auditHandler.RegisterRoutes(api)

	zlog.Info("server listening",
		zap.String("port", cfg.Port),
		zap.String("auto_approve_threshold", threshold.StringFixed(2)))
	if err := router.Run(":" + cfg.Port); err != nil {
		zlog.Fatal("server failed", zap.Error(err))
	}
}
