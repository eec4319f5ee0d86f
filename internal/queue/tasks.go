package queue

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/member-next/internal/constants"
)

// TaskReferralUnlock 返利解锁任务类型
const TaskReferralUnlock = constants.TaskReferralUnlock

// ReferralUnlockPayload 返利解锁任务负载
type ReferralUnlockPayload struct {
	RewardID uint `json:"reward_id"`
}

// NewReferralUnlockTask 构造返利解锁任务
func NewReferralUnlockTask(payload ReferralUnlockPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReferralUnlock, body), nil
}
