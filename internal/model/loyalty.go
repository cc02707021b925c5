package model

import (
	"time"
)

const (
	PointTypeAccrual    = "ACCRUAL"    // 完成预订累积
	PointTypeRedemption = "REDEMPTION" // 兑换代金券
)

// LoyaltyAccount 用户积分账户
// points 是 point_transaction 的物化缓存，必须满足 points == Σ 流水
type LoyaltyAccount struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"uniqueIndex;not null" json:"user_id"`
	Points    int64     `gorm:"not null;default:0" json:"points"`
	Version   int       `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (LoyaltyAccount) TableName() string {
	return "loyalty_account"
}

// PointTransaction 积分流水表
// 只追加，不修改，不删除；正数累积，负数兑换
type PointTransaction struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	UserID        int64     `gorm:"index;not null" json:"user_id"`
	Points        int64     `gorm:"not null" json:"points"` // 有符号
	Type          string    `gorm:"type:varchar(20);not null" json:"type"`
	Description   string    `gorm:"type:varchar(256)" json:"description"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (PointTransaction) TableName() string {
	return "point_transaction"
}
