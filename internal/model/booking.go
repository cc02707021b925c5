package model

import (
	"time"
)

const (
	BookingStatusPending    = "PENDING"
	BookingStatusConfirmed  = "CONFIRMED"
	BookingStatusInProgress = "IN_PROGRESS"
	BookingStatusCompleted  = "COMPLETED"
	BookingStatusCancelled  = "CANCELLED"
	BookingStatusReviewed   = "REVIEWED"
)

// ValidBookingTransitions 预订状态机的合法边
// CANCELLED 只能从 PENDING / CONFIRMED / IN_PROGRESS 到达
// REVIEWED 是终态，不可逆
var ValidBookingTransitions = map[string][]string{
	BookingStatusPending:    {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed:  {BookingStatusInProgress, BookingStatusCancelled},
	BookingStatusInProgress: {BookingStatusCompleted, BookingStatusCancelled},
	BookingStatusCompleted:  {BookingStatusReviewed},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidBookingTransitions[currentStatus]
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

// Booking 预订表
// 状态只能由状态机推进，记录永不删除（软历史）
type Booking struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	BookingNo       string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"booking_no"`
	RequestID       string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"request_id"` // 幂等ID，客户端生成
	CustomerID      int64      `gorm:"index;not null" json:"customer_id"`
	StoreID         int64      `gorm:"index;not null" json:"store_id"`
	ServiceID       int64      `gorm:"not null" json:"service_id"`
	TotalPrice      int64      `gorm:"not null" json:"total_price"`            // 实付金额（最小货币单位）
	OriginalPrice   int64      `gorm:"not null" json:"original_price"`         // 折扣前金额
	PromoCode       *string    `gorm:"type:varchar(64)" json:"promo_code"`     // 使用的优惠码
	VoucherDiscount int64      `gorm:"not null;default:0" json:"voucher_discount"` // 积分兑换券抵扣部分（平台承担）
	Status          string     `gorm:"type:varchar(20);index;not null" json:"status"`
	ScheduleDate    time.Time  `gorm:"not null" json:"schedule_date"`
	CompletedAt     *time.Time `json:"completed_at"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Booking) TableName() string {
	return "booking"
}

// Review 评价表，每个已完成预订最多一条
type Review struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	BookingNo  string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"booking_no"`
	CustomerID int64     `gorm:"index;not null" json:"customer_id"`
	Rating     int       `gorm:"not null" json:"rating"` // 1-5
	Comment    string    `gorm:"type:varchar(512)" json:"comment"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Review) TableName() string {
	return "review"
}
