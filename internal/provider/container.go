package provider

import (
	"time"

	"github.com/member-next/internal/cache"
	"github.com/member-next/internal/config"
	"github.com/member-next/internal/constants"
	"github.com/member-next/internal/logger"
	"github.com/member-next/internal/models"
	"github.com/member-next/internal/queue"
	"github.com/member-next/internal/ratelimit"
	"github.com/member-next/internal/repository"
	"github.com/member-next/internal/service"
	"github.com/member-next/internal/statustoken"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Repositories
	AdminRepo     repository.AdminRepository
	UserRepo      repository.UserRepository
	LedgerRepo    repository.LedgerRepository
	ReferralRepo  repository.ReferralRepository
	ChangeLogRepo repository.ChangeLogRepository
	DashboardRepo repository.DashboardRepository

	// Services
	AuthService      *service.AuthService
	UserService      *service.UserService
	LedgerService    *service.LedgerService
	ReferralService  *service.ReferralService
	StatusService    *service.StatusService
	DashboardService *service.DashboardService

	StatusCodec  *statustoken.Codec
	LoginLimiter ratelimit.Limiter
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.AdminRepo = repository.NewAdminRepository(db)
	c.UserRepo = repository.NewUserRepository(db)
	c.LedgerRepo = repository.NewLedgerRepository(db)
	c.ReferralRepo = repository.NewReferralRepository(db)
	c.ChangeLogRepo = repository.NewChangeLogRepository(db)
	c.DashboardRepo = repository.NewDashboardRepository(db)
}

func (c *Container) initServices() {
	c.StatusCodec = statustoken.New(c.Config.StatusToken.Secret)
	c.LoginLimiter = buildLoginLimiter(c.Config.Security.LoginRateLimit)

	c.AuthService = service.NewAuthService(c.Config, c.AdminRepo, c.LoginLimiter)
	c.UserService = service.NewUserService(c.UserRepo, c.ChangeLogRepo, c.StatusCodec)
	c.LedgerService = service.NewLedgerService(c.LedgerRepo, c.UserRepo)
	c.ReferralService = service.NewReferralService(c.ReferralRepo, c.UserRepo, c.LedgerService, c.QueueClient, c.Config.Referral)
	c.StatusService = service.NewStatusService(c.UserRepo, c.LedgerRepo, c.StatusCodec)
	c.DashboardService = service.NewDashboardService(c.DashboardRepo)

	// 充值账务事件驱动返利发放与回收
	c.LedgerService.SetObserver(c.ReferralService)
}

func buildLoginLimiter(cfg config.LoginRateLimitConfig) ratelimit.Limiter {
	opts := ratelimit.Options{
		Window:      time.Duration(cfg.WindowSeconds) * time.Second,
		MaxFailures: cfg.MaxFailures,
		Block:       time.Duration(cfg.BlockSeconds) * time.Second,
	}
	if cfg.Store == constants.RateLimitStoreRedis && cache.Enabled() {
		return ratelimit.NewRedisLimiter(cache.Client(), cache.Prefix(), opts)
	}
	if cfg.Store == constants.RateLimitStoreRedis {
		logger.Warnw("provider_login_limiter_redis_unavailable", "fallback", constants.RateLimitStoreMemory)
	}
	mem := ratelimit.NewMemoryLimiter(opts)
	// 进程内存储需要周期回收闲置条目
	mem.StartSweep(0)
	return mem
}
