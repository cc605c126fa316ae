package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"defendend-backend/internal/config"
	"defendend-backend/internal/handler"
	"defendend-backend/internal/provider"
	"defendend-backend/internal/security"
	"defendend-backend/internal/service"
	"defendend-backend/internal/storage"
	"defendend-backend/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Log.Level, cfg.Log.Format)
	logger.Info("配置加载完成")

	store, err := newStorage(cfg.Storage)
	if err != nil {
		logger.Fatalf("初始化存储失败: %v", err)
	}
	defer store.Close()

	coordinator := provider.NewCoordinator(
		provider.NewClaudeClient(cfg.Claude),
		provider.NewDeepSeekClient(cfg.DeepSeek),
	)

	loginLimiter := security.NewRateLimiter("login", cfg.RateLimit.Login.MaxAttempts, cfg.RateLimit.Login.Window)
	registerLimiter := security.NewRateLimiter("register", cfg.RateLimit.Register.MaxAttempts, cfg.RateLimit.Register.Window)
	apiLimiter := security.NewRateLimiter("api", cfg.RateLimit.API.MaxAttempts, cfg.RateLimit.API.Window)
	quotaLimiter := security.NewRateLimiter("quota", 0, 24*time.Hour)

	sweepInterval := cfg.RateLimit.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Minute
	}
	for _, limiter := range []*security.RateLimiter{loginLimiter, registerLimiter, apiLimiter, quotaLimiter} {
		stop := limiter.StartSweeper(sweepInterval)
		defer stop()
	}

	guard := security.NewOriginGuard(cfg.Security.TrustedOrigins, cfg.Security.DevOrigins)
	tokens := security.NewTokenManager(cfg.Security.JWTSecret, cfg.Security.JWTTTL)

	authService := service.NewAuthService(store, tokens, cfg.Security)
	chatService := service.NewChatService(store, coordinator)
	adminService := service.NewAdminService(store)

	router := setupRouter(cfg, store, guard, tokens, routeLimiters{
		login:    loginLimiter,
		register: registerLimiter,
		api:      apiLimiter,
		quota:    quotaLimiter,
	}, handler.NewAuthHandler(authService, loginLimiter), handler.NewChatHandler(chatService), handler.NewAdminHandler(adminService))

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		logger.Infof("服务启动，监听 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("服务异常退出: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("收到退出信号，开始优雅关闭")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("优雅关闭失败: %v", err)
	}
	logger.Info("服务已退出")
}

func newStorage(cfg config.StorageConfig) (storage.Storage, error) {
	var store storage.Storage
	switch cfg.Type {
	case "postgres":
		store = storage.NewPostgresStorage(cfg.DSN)
	case "memory", "":
		store = storage.NewMemoryStorage()
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}

	if err := store.Init(); err != nil {
		return nil, err
	}
	return store, nil
}

type routeLimiters struct {
	login    *security.RateLimiter
	register *security.RateLimiter
	api      *security.RateLimiter
	quota    *security.RateLimiter
}

func setupRouter(cfg *config.Config, store storage.Storage, guard *security.OriginGuard, tokens *security.TokenManager, limiters routeLimiters, authH *handler.AuthHandler, chatH *handler.ChatHandler, adminH *handler.AdminHandler) *gin.Engine {
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 顺序即准入顺序：来源校验 → 认证 → 限流
	api := router.Group("/api")
	api.Use(handler.SecurityHeaders())
	api.Use(handler.OriginCheck(guard, cfg.Security.DevelopmentMode))

	auth := api.Group("/auth")
	{
		auth.POST("/register", handler.RateLimit(limiters.register), authH.Register)
		auth.POST("/login", handler.RateLimit(limiters.login), authH.Login)
		auth.GET("/me", handler.Auth(tokens, store), authH.Me)
	}

	chats := api.Group("/chats")
	chats.Use(handler.Auth(tokens, store), handler.RateLimit(limiters.api))
	{
		chats.POST("", chatH.CreateChat)
		chats.GET("", chatH.ListChats)
		chats.GET("/:chatId", chatH.GetChat)
		chats.DELETE("/:chatId", chatH.DeleteChat)
		chats.PUT("/:chatId/config", chatH.UpdateConfig)
		chats.GET("/:chatId/messages", chatH.GetMessages)
		chats.POST("/:chatId/messages", handler.Quota(limiters.quota), chatH.SendMessage)
		chats.POST("/:chatId/messages/stream", handler.Quota(limiters.quota), chatH.StreamMessage)
	}

	admin := api.Group("/admin")
	admin.Use(handler.Auth(tokens, store), handler.AdminOnly())
	{
		admin.GET("/users", adminH.ListUsers)
		admin.PUT("/users/:userId/access", adminH.UpdateAccess)
	}

	return router
}
