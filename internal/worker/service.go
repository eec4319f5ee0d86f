package worker

import (
	"context"
	"errors"
	"time"

	"github.com/member-next/internal/config"
	"github.com/member-next/internal/logger"
	"github.com/member-next/internal/queue"

	"github.com/hibiken/asynq"
)

const (
	defaultReferralSweepInterval = time.Minute
)

// Service 异步队列服务
type Service struct {
	name     string
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:     "worker",
		server:   server,
		mux:      mux,
		consumer: consumer,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if s.consumer != nil && s.consumer.ReferralService != nil {
		go s.runReferralUnlockLoop(ctx)
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

// runReferralUnlockLoop 定期兜底解锁到期奖励，覆盖延迟任务丢失的场景
func (s *Service) runReferralUnlockLoop(ctx context.Context) {
	if s == nil || s.consumer == nil || s.consumer.ReferralService == nil {
		return
	}
	interval := defaultReferralSweepInterval
	if s.consumer.Config != nil && s.consumer.Config.Referral.SweepSeconds > 0 {
		interval = time.Duration(s.consumer.Config.Referral.SweepSeconds) * time.Second
	}
	runOnce := func() {
		unlocked, err := s.consumer.ReferralService.UnlockPendingRewards()
		if err != nil {
			logger.Warnw("worker_referral_sweep_failed", "error", err)
			return
		}
		if unlocked > 0 {
			logger.Infow("worker_referral_sweep_done", "unlocked", unlocked)
		}
	}
	runOnce()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
