package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	jwtpkg "mailledger/backend/internal/auth/jwt"
	"mailledger/backend/internal/config"
	"mailledger/backend/internal/middleware"
	"mailledger/backend/internal/monitoring"
	"mailledger/backend/internal/service"
	"mailledger/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config          *config.Config
	MailService     *service.MailService
	AccountService  *service.AccountService
	DonationService *service.DonationService
	JWTManager      *jwtpkg.Manager
	WebSocketHub    *websocket.Hub
	Metrics         *monitoring.Metrics
	Logger          *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	// 使用自定义中间件替代默认中间件
	router.Use(middleware.RecoveryHandler(deps.Logger, deps.Metrics))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(1 * 1024 * 1024))
	if deps.Metrics != nil {
		router.Use(middleware.Monitoring(deps.Metrics))
	}

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	// 创建处理器
	mailHandler := NewMailHandler(deps.MailService)
	accountHandler := NewAccountHandler(deps.AccountService, deps.JWTManager)
	donationHandler := NewDonationHandler(deps.DonationService)

	// 创建中间件
	jwtAuth := middleware.NewJWTAuth(deps.JWTManager, deps.Logger)
	rateLimiter := middleware.NewRateLimiter(deps.Config.RateLimit.RPS, deps.Config.RateLimit.Burst)

	v1 := router.Group("/v1")
	{
		// 公开接口：账户开通与认证
		v1.POST("/accounts", accountHandler.Provision)
		v1.POST("/auth/token", accountHandler.Token)
		v1.POST("/auth/refresh", accountHandler.Refresh)

		// WebSocket 连接自行校验令牌
		if deps.WebSocketHub != nil {
			v1.GET("/ws", websocket.HandleWebSocket(deps.WebSocketHub))
		}

		// 需要认证的接口
		authed := v1.Group("")
		authed.Use(jwtAuth.RequireAuth())
		{
			authed.POST("/messages", rateLimiter.Handler(), mailHandler.SendMessage)
			authed.GET("/messages/:id", mailHandler.GetMessage)
			authed.DELETE("/messages/:id", mailHandler.DeleteMessage)

			authed.GET("/accounts/:account", accountHandler.GetAccount)
			authed.GET("/accounts/:account/sent", mailHandler.ListSent)
			authed.GET("/accounts/:account/received", mailHandler.ListReceived)
			authed.GET("/accounts/:account/sent/count", mailHandler.CountSent)
			authed.GET("/accounts/:account/received/count", mailHandler.CountReceived)

			authed.GET("/stats/messages", mailHandler.Stats)

			authed.POST("/donations", rateLimiter.Handler(), donationHandler.SendDonation)
			authed.GET("/donations/:account", donationHandler.GetDonation)
		}
	}

	return router
}
