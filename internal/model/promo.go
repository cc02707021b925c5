package model

import (
	"time"
)

const (
	PromoStatusActive   = "ACTIVE"
	PromoStatusInactive = "INACTIVE"
)

const (
	DiscountTypeFixed      = "FIXED"
	DiscountTypePercentage = "PERCENTAGE"
)

// Promo 优惠码表
// 【重要】usage_count <= usage_limit 在并发兑换下也绝不允许被打破，
// 递增必须走条件更新（compare-and-increment），不能先读后写
//
// 积分兑换产生的代金券也是一条 Promo：owner_user_id 非空、usage_limit=1，
// consumed 标记一次性使用，并发使用同一张券时只允许一个赢家
type Promo struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Code           string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	DiscountType   string    `gorm:"type:varchar(20);not null" json:"discount_type"` // FIXED / PERCENTAGE
	Value          int64     `gorm:"not null" json:"value"`                          // FIXED: 金额；PERCENTAGE: 百分比
	MinTransaction int64     `gorm:"not null;default:0" json:"min_transaction"`      // 折扣前金额门槛
	UsageLimit     int       `gorm:"not null;default:1" json:"usage_limit"`
	UsageCount     int       `gorm:"not null;default:0" json:"usage_count"`
	ForNewUser     bool      `gorm:"not null;default:false" json:"for_new_user"`
	Status         string    `gorm:"type:varchar(20);index;not null" json:"status"`
	StartDate      time.Time `gorm:"not null" json:"start_date"`
	EndDate        time.Time `gorm:"not null" json:"end_date"`
	OwnerUserID    *int64    `gorm:"index" json:"owner_user_id"` // 非空表示积分兑换的个人代金券
	Consumed       bool      `gorm:"not null;default:false" json:"consumed"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Promo) TableName() string {
	return "promo"
}

// StorePromo 商家参与的优惠活动，带单店兑换计数
type StorePromo struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PromoID   int64     `gorm:"index:idx_store_promo,unique;not null" json:"promo_id"`
	StoreID   int64     `gorm:"index:idx_store_promo,unique;not null" json:"store_id"`
	Redeemed  int       `gorm:"not null;default:0" json:"redeemed"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (StorePromo) TableName() string {
	return "store_promo"
}
