package constants

// 充值原因常量
const (
	RechargeReasonPaymentChannel = "payment_channel"
	RechargeReasonPlatformOrder  = "platform_order"
	RechargeReasonReferralReward = "referral_reward"
	RechargeReasonCampaignGift   = "campaign_gift"
	RechargeReasonAfterSales     = "after_sales"
	RechargeReasonManualFix      = "manual_fix"
)

// 充值来源常量
const (
	RechargeSourceNormal         = "normal"
	RechargeSourceBackfill       = "backfill"
	RechargeSourceSystemBonus    = "system_bonus"
	RechargeSourceRefundRollback = "refund_rollback"
)

// 返利奖励状态常量
const (
	RewardStatusPending   = "pending"
	RewardStatusAvailable = "available"
	RewardStatusCanceled  = "canceled"
	RewardStatusWithdrawn = "withdrawn"
)

// 邀新赠送状态常量
const (
	BonusGrantStatusPending = "pending"
	BonusGrantStatusGranted = "granted"
	BonusGrantStatusRevoked = "revoked"
)

// 登录限流存储常量
const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"
)

// 异步队列常量
const (
	QueueDefault       = "default"
	TaskReferralUnlock = "referral:unlock"
)

// 单次充值/回填的天数与金额上限
const (
	MaxRechargeDays    = 3650
	MaxNoteLength      = 255
	SecondsPerDay      = 86400
	RewardRateBpsScale = 10000
)

// IsValidRechargeReason 校验充值原因
func IsValidRechargeReason(reason string) bool {
	switch reason {
	case RechargeReasonPaymentChannel,
		RechargeReasonPlatformOrder,
		RechargeReasonReferralReward,
		RechargeReasonCampaignGift,
		RechargeReasonAfterSales,
		RechargeReasonManualFix:
		return true
	default:
		return false
	}
}

// IsRewardEligibleReason 判断原因是否参与返利
func IsRewardEligibleReason(reason string) bool {
	return reason == RechargeReasonPaymentChannel || reason == RechargeReasonPlatformOrder
}
