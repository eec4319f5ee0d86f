package worker

import (
	"context"
	"encoding/json"

	"github.com/member-next/internal/logger"
	"github.com/member-next/internal/provider"
	"github.com/member-next/internal/queue"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskReferralUnlock, c.handleReferralUnlock)
}

func (c *Consumer) handleReferralUnlock(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_referral_unlock_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.ReferralUnlockPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_referral_unlock_unmarshal_failed", "error", err)
		return err
	}
	if c.ReferralService == nil {
		logger.Warnw("worker_referral_unlock_skip_service_nil", "reward_id", payload.RewardID)
		return nil
	}
	// 批量解锁所有到期奖励，任务携带的 reward_id 仅用于追踪
	unlocked, err := c.ReferralService.UnlockPendingRewards()
	if err != nil {
		logger.Warnw("worker_referral_unlock_failed", "reward_id", payload.RewardID, "error", err)
		return err
	}
	if unlocked > 0 {
		logger.Infow("worker_referral_unlock_done", "reward_id", payload.RewardID, "unlocked", unlocked)
	}
	return nil
}
