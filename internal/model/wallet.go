package model

import (
	"time"
)

// StoreWallet 商家钱包表
// balance 是账本分录的物化缓存，可随时用账本重算校验；不一致视为致命账务错误
type StoreWallet struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	StoreID   int64     `gorm:"uniqueIndex;not null" json:"store_id"`
	Balance   int64     `gorm:"not null;default:0" json:"balance"` // 可提现余额（最小货币单位）
	Version   int       `gorm:"not null;default:0" json:"version"` // 乐观锁版本号
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (StoreWallet) TableName() string {
	return "store_wallet"
}
