package repository

import (
	"context"
	"errors"
	"time"

	"marketplace/internal/model"

	"gorm.io/gorm"
)

var (
	ErrPaymentNotFound      = errors.New("支付单不存在")
	ErrPaymentStatusInvalid = errors.New("支付单状态不合法")
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, tx *gorm.DB, payment *model.Payment) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(payment).Error
}

func (r *PaymentRepository) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.WithContext(ctx).Where("gateway_order_id = ?", gatewayOrderID).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) GetByBookingNo(ctx context.Context, bookingNo string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.WithContext(ctx).Where("booking_no = ?", bookingNo).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

// UpdateStatus 支付单状态迁移，只允许 PENDING -> 终态
//
// WHERE status = 'PENDING' 的条件更新是回调幂等性的最终防线：
// 同一 gateway_order_id 的重复回调第二次命中不了任何行，不会重复记账
func (r *PaymentRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, gatewayOrderID string, toStatus string) error {
	if !model.IsTerminalPaymentStatus(toStatus) {
		return ErrPaymentStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}
	if toStatus == model.PaymentStatusPaid {
		now := time.Now()
		updates["paid_at"] = &now
	}

	result := tx.WithContext(ctx).
		Model(&model.Payment{}).
		Where("gateway_order_id = ? AND status = ?", gatewayOrderID, model.PaymentStatusPending).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrPaymentStatusInvalid
	}

	return nil
}

// GetExpiredPending 查询已过有效期仍未支付的支付单
func (r *PaymentRepository) GetExpiredPending(ctx context.Context, limit int) ([]*model.Payment, error) {
	var payments []*model.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND expired_at < ?", model.PaymentStatusPending, time.Now()).
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

// GetStalePending 查询超过预期窗口仍无回调的支付单，供对账任务重扫
func (r *PaymentRepository) GetStalePending(ctx context.Context, beforeTime time.Time, limit int) ([]*model.Payment, error) {
	var payments []*model.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.PaymentStatusPending, beforeTime).
		Limit(limit).
		Find(&payments).Error
	return payments, err
}
