package main

import (
	"time"

	"github.com/member-next/internal/config"
	"github.com/member-next/internal/constants"
	"github.com/member-next/internal/logger"
	"github.com/member-next/internal/models"
	"github.com/member-next/internal/provider"
	"github.com/member-next/internal/service"
)

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	// 初始化默认管理员
	if err := models.InitDefaultAdmin("", ""); err != nil {
		stdLog.Printf("Failed to init default admin: %v", err)
	}

	c := provider.NewContainer(cfg)

	// 示例会员
	seeds := []service.CreateUserInput{
		{Username: "alice", DisplayName: "Alice", Email: "alice@example.com", GroupName: "vip"},
		{Username: "bob", DisplayName: "Bob", Email: "bob@example.com"},
		{Username: "carol", DisplayName: "Carol", Email: "carol@example.com"},
	}

	userIDs := map[string]uint{}
	for _, input := range seeds {
		existing, err := c.UserRepo.GetByUsername(input.Username)
		if err != nil {
			stdLog.Printf("Failed to check user %s: %v", input.Username, err)
			continue
		}
		if existing != nil {
			stdLog.Printf("User already exists: %s", input.Username)
			userIDs[input.Username] = existing.ID
			continue
		}
		user, token, err := c.UserService.Create(input)
		if err != nil {
			stdLog.Printf("Failed to create user %s: %v", input.Username, err)
			continue
		}
		userIDs[input.Username] = user.ID
		// 令牌明文只在创建时出现一次，种子数据直接打印供演示使用
		stdLog.Printf("Created user %s, status token: %s", user.Username, token)
	}

	// 邀请关系：alice 邀请 bob
	if inviterID, inviteeID := userIDs["alice"], userIDs["bob"]; inviterID != 0 && inviteeID != 0 {
		result, err := c.ReferralService.Bind(service.BindInput{
			InviteeID: inviteeID,
			InviterID: inviterID,
		})
		if err != nil {
			stdLog.Printf("Failed to bind referral: %v", err)
		} else if result.AlreadyBound {
			stdLog.Printf("Referral already bound: alice -> bob")
		} else {
			stdLog.Printf("Bound referral: alice -> bob")
		}
	}

	// 示例充值
	recharges := []struct {
		username string
		days     int
		reason   string
		amount   models.Amount
	}{
		{"alice", 365, constants.RechargeReasonPlatformOrder, 19900},
		{"bob", 30, constants.RechargeReasonPaymentChannel, 2900},
		{"carol", 7, constants.RechargeReasonCampaignGift, 0},
	}
	for _, r := range recharges {
		userID := userIDs[r.username]
		if userID == 0 {
			continue
		}
		count, err := c.LedgerRepo.CountRecordsByUser(userID)
		if err != nil {
			stdLog.Printf("Failed to check ledger for %s: %v", r.username, err)
			continue
		}
		if count > 0 {
			stdLog.Printf("Ledger already seeded for %s", r.username)
			continue
		}
		record, err := c.LedgerService.Recharge(service.RechargeInput{
			UserID:      userID,
			ChangeDays:  r.days,
			Reason:      r.reason,
			AmountMinor: r.amount,
			Note:        "seed data",
		})
		if err != nil {
			stdLog.Printf("Failed to recharge %s: %v", r.username, err)
			continue
		}
		stdLog.Printf("Recharged %s: +%d days, expire at %s",
			r.username, r.days, time.Unix(record.ExpireAfter, 0).Format("2006-01-02"))
	}

	stdLog.Printf("Seed completed")
}
