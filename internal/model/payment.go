package model

import (
	"time"
)

const (
	PaymentStatusPending = "PENDING"
	PaymentStatusPaid    = "PAID"
	PaymentStatusFailed  = "FAILED"
	PaymentStatusExpired = "EXPIRED"
)

// IsTerminalPaymentStatus PAID / FAILED / EXPIRED 为终态
func IsTerminalPaymentStatus(status string) bool {
	return status == PaymentStatusPaid ||
		status == PaymentStatusFailed ||
		status == PaymentStatusExpired
}

// Payment 支付单，与预订 1:1
// gateway_order_id 是网关侧的唯一引用，也是回调的幂等键
type Payment struct {
	ID             int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	BookingNo      string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"booking_no"`
	GatewayOrderID string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"gateway_order_id"`
	Amount         int64      `gorm:"not null" json:"amount"`
	Status         string     `gorm:"type:varchar(20);index;not null" json:"status"`
	ExpiredAt      time.Time  `gorm:"not null" json:"expired_at"`
	PaidAt         *time.Time `json:"paid_at"`
	CreatedAt      time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Payment) TableName() string {
	return "payment"
}
