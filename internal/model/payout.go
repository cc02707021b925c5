package model

import (
	"time"
)

const (
	PayoutStatusRequested = "REQUESTED"
	PayoutStatusApproved  = "APPROVED"
	PayoutStatusRejected  = "REJECTED"
	PayoutStatusPaid      = "PAID"
)

// ValidPayoutTransitions 提现审批状态机
// REJECTED 为终态；只有 APPROVED 才能结算为 PAID
var ValidPayoutTransitions = map[string][]string{
	PayoutStatusRequested: {PayoutStatusApproved, PayoutStatusRejected},
	PayoutStatusApproved:  {PayoutStatusPaid},
}

func CanPayoutTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidPayoutTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// PayoutRequest 提现申请表
// 申请时校验余额仅作参考，结算时必须在同一事务内重新校验并扣减
type PayoutRequest struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	PayoutNo    string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"payout_no"`
	StoreID     int64      `gorm:"index;not null" json:"store_id"`
	Amount      int64      `gorm:"not null" json:"amount"`
	Status      string     `gorm:"type:varchar(20);index;not null" json:"status"`
	RequestedAt time.Time  `gorm:"autoCreateTime" json:"requested_at"`
	DecidedAt   *time.Time `json:"decided_at"`
	DecidedBy   *int64     `json:"decided_by"` // 审批管理员ID
	PaidAt      *time.Time `json:"paid_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PayoutRequest) TableName() string {
	return "payout_request"
}
