package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	jwtpkg "mailledger/backend/internal/auth/jwt"
	"mailledger/backend/internal/config"
	"mailledger/backend/internal/health"
	"mailledger/backend/internal/logger"
	"mailledger/backend/internal/monitoring"
	"mailledger/backend/internal/notify"
	"mailledger/backend/internal/payment"
	"mailledger/backend/internal/pool"
	"mailledger/backend/internal/service"
	"mailledger/backend/internal/smtp"
	"mailledger/backend/internal/storage"
	"mailledger/backend/internal/storage/memory"
	"mailledger/backend/internal/storage/pebble"
	"mailledger/backend/internal/storage/redis"
	sqlstore "mailledger/backend/internal/storage/sql"
	httptransport "mailledger/backend/internal/transport/http"
	"mailledger/backend/internal/websocket"
)

// main 启动同时包含 HTTP API 与 SMTP 的记账服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     "",
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting mailledger server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 初始化存储层
	store, err := initializeStorage(cfg, log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize storage: %v", err))
	}
	defer store.Close()

	// 初始化监控系统
	metrics := monitoring.NewMetrics()

	// Redis 读缓存（可选）
	var cache *redis.Cache
	if cfg.Redis.Enabled {
		cache, err = redis.NewCache(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, 5*time.Minute)
		if err != nil {
			log.Warn("failed to connect redis, continuing without cache", zap.Error(err))
			cache = nil
		} else {
			log.Info("redis cache enabled", zap.String("address", cfg.Redis.Address))
			defer cache.Close()
		}
	}

	// 初始化健康检查
	healthChecker := health.NewChecker(store, cache, log)

	// 出站通知工作池与编排器
	workers := pool.NewWorkerPool(cfg.Notify.Workers, cfg.Notify.QueueSize)
	notifier := notify.NewHTTPNotifier(cfg.Notify.URL, cfg.Notify.Secret, cfg.Notify.Timeout)
	orchestrator := notify.NewOrchestrator(notifier, store, workers, metrics, log)

	// 支付划转服务
	var transferrer payment.Transferrer
	switch cfg.Payment.Mode {
	case "http":
		transferrer = payment.NewHTTPTransferrer(cfg.Payment.URL, cfg.Payment.Timeout)
	default:
		transferrer = payment.NewLogTransferrer(log)
	}

	// 初始化服务层
	mailService := service.NewMailService(
		store,
		orchestrator,
		transferrer,
		metrics,
		cfg.Ledger.StorageCost,
		cfg.Ledger.DonationAccount,
		log,
	)
	if cache != nil {
		mailService.SetCache(cache)
	}
	accountService := service.NewAccountService(store, log)
	donationService := service.NewDonationService(mailService, store, log)

	jwtManager := jwtpkg.NewManager(
		cfg.JWT.Secret,
		cfg.JWT.Issuer,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)

	// WebSocket Hub 实时推送新消息事件
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, jwtManager, log)
	mailService.SetEventSink(wsHub)

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:          cfg,
		MailService:     mailService,
		AccountService:  accountService,
		DonationService: donationService,
		JWTManager:      jwtManager,
		WebSocketHub:    wsHub,
		Metrics:         metrics,
		Logger:          log,
	})

	// 健康探针与 Prometheus 指标端点
	router.GET("/health/live", gin.WrapF(healthChecker.LiveEndpoint))
	router.GET("/health/ready", gin.WrapF(healthChecker.ReadyEndpoint))
	router.GET("/metrics", gin.WrapH(metrics.HTTPHandler()))

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workers.Start(ctx)
	defer workers.Stop()

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// SMTP 服务器 goroutine（可选）
	var smtpServer *gosmtp.Server
	if cfg.SMTP.Enabled {
		smtpBackend := smtp.NewBackend(mailService, cfg.SMTP.Domain, log)
		smtpServer = gosmtp.NewServer(smtpBackend)
		smtpServer.Addr = cfg.SMTP.BindAddr
		smtpServer.Domain = cfg.SMTP.Domain
		smtpServer.ReadTimeout = 10 * time.Second
		smtpServer.WriteTimeout = 10 * time.Second
		smtpServer.MaxMessageBytes = 1024 * 1024
		smtpServer.MaxRecipients = 10

		group.Go(func() error {
			log.Info("starting SMTP server",
				zap.String("address", cfg.SMTP.BindAddr),
				zap.String("domain", cfg.SMTP.Domain),
			)
			if err := smtpServer.ListenAndServe(); err != nil {
				log.Error("SMTP server error", zap.Error(err))
				return err
			}
			return nil
		})
	}

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if smtpServer != nil {
			if err := smtpServer.Shutdown(shutdownCtx); err != nil {
				log.Warn("SMTP server shutdown error", zap.Error(err))
			}
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("HTTP server shutdown error", zap.Error(err))
			return err
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		log.Error("server exited with error", zap.Error(err))
	}
	log.Info("server stopped")
}

// initializeStorage 根据配置选择存储后端。
func initializeStorage(cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	switch cfg.Storage.Type {
	case "pebble":
		log.Info("using pebble storage", zap.String("path", cfg.Storage.Path))
		return pebble.NewStore(cfg.Storage.Path)
	case "mysql", "postgres":
		log.Info("using database storage", zap.String("type", cfg.Storage.Type))
		return sqlstore.NewStore(
			cfg.Storage.Type,
			cfg.Storage.DSN,
			cfg.Storage.MaxOpenConns,
			cfg.Storage.MaxIdleConns,
			cfg.Storage.ConnMaxLifetime,
		)
	default:
		log.Info("using memory storage (development mode)")
		return memory.NewStore(), nil
	}
}
