package router

import (
	"github.com/member-next/internal/config"
	adminhandlers "github.com/member-next/internal/http/handlers/admin"
	publichandlers "github.com/member-next/internal/http/handlers/public"
	"github.com/member-next/internal/logger"
	"github.com/member-next/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（按公开/后台分组）
	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		// 公开接口：凭状态令牌自助查询
		public := apiV1.Group("/public")
		{
			public.GET("/status", publicHandler.GetMemberStatus)
		}

		// 管理员接口
		admin := apiV1.Group("/admin")
		{
			// 登录接口（无需鉴权），失败限流在服务层
			admin.POST("/login", adminHandler.AdminLogin)

			// 需要鉴权的接口
			authorized := admin.Use(JWTAuthMiddleware(cfg.AdminJWT.SecretKey, c.AdminRepo))
			{
				// 仪表盘
				authorized.GET("/dashboard/overview", adminHandler.GetDashboardOverview)

				// 会员管理
				authorized.GET("/users", adminHandler.GetUsers)
				authorized.POST("/users", adminHandler.CreateUser)
				authorized.GET("/users/:id", adminHandler.GetUser)
				authorized.PUT("/users/:id/profile", adminHandler.UpdateUserProfile)
				authorized.POST("/users/:id/token/reset", adminHandler.ResetUserToken)
				authorized.GET("/users/:id/change-logs", adminHandler.GetUserChangeLogs)

				// 时长账本
				authorized.POST("/users/:id/recharges", adminHandler.CreateRecharge)
				authorized.POST("/users/:id/backfills", adminHandler.CreateBackfill)
				authorized.GET("/users/:id/ledger", adminHandler.GetUserLedger)
				authorized.POST("/users/:id/ledger/rebuild", adminHandler.RebuildUserLedger)
				authorized.GET("/recharges", adminHandler.GetRechargeRecords)
				authorized.GET("/recharges/:id", adminHandler.GetRechargeRecord)
				authorized.POST("/recharges/:id/refund", adminHandler.RefundRecharge)

				// 推荐返利
				authorized.POST("/referrals/bindings", adminHandler.BindReferral)
				authorized.GET("/referrals/inviters/:id/bindings", adminHandler.GetReferralBindings)
				authorized.GET("/referrals/inviters/:id/summary", adminHandler.GetReferralSummary)
				authorized.POST("/referrals/inviters/:id/withdrawals", adminHandler.CreateReferralWithdrawal)
				authorized.GET("/referrals/rewards", adminHandler.GetReferralRewards)
				authorized.GET("/referrals/withdrawals", adminHandler.GetReferralWithdrawals)
				authorized.GET("/referrals/withdrawals/:id", adminHandler.GetReferralWithdrawal)
				authorized.POST("/referrals/rewards/unlock", adminHandler.UnlockReferralRewards)

				// 账号设置
				authorized.PUT("/password", adminHandler.UpdateAdminPassword) // 修改密码
			}
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
