package model

import (
	"time"
)

// ============================================================================
// 账本分录类型常量
// ============================================================================

const (
	EntryKindPaymentReceived           = "PAYMENT_RECEIVED"            // 顾客付款（外部资金流入，负数记账）
	EntryKindPlatformFee               = "PLATFORM_FEE"                // 平台佣金
	EntryKindStoreCredit               = "STORE_CREDIT"                // 商家入账
	EntryKindPayoutDebit               = "PAYOUT_DEBIT"                // 提现出账
	EntryKindPointRedemptionAdjustment = "POINT_REDEMPTION_ADJUSTMENT" // 积分券平台补贴
)

// ============================================================================
// 账本分录实体
// ============================================================================

// LedgerEntry 账本分录表，资金事实的唯一来源
//
// 【重要】账本设计原则：
// 1. 只追加，不修改，不删除 —— 钱包余额是派生缓存，账本才是真相
// 2. 同一事件的一批分录必须原子写入，且金额之和为零（复式记账）
// 3. store_id 为空表示平台侧 / 外部侧分录，钱包余额只汇总各自 store_id 的分录
type LedgerEntry struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryNo     string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"entry_no"`
	StoreID     *int64    `gorm:"index" json:"store_id"`                           // 为空表示平台/外部分录
	Amount      int64     `gorm:"not null" json:"amount"`                          // 有符号金额（最小货币单位）
	Kind        string    `gorm:"type:varchar(40);not null" json:"kind"`           // 分录类型
	ReferenceNo string    `gorm:"type:varchar(64);index;not null" json:"reference_no"` // 关联 booking_no / payout_no
	Remark      string    `gorm:"type:varchar(256)" json:"remark"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entry"
}
