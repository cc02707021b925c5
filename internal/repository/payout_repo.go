package repository

import (
	"context"
	"errors"
	"time"

	"marketplace/internal/model"

	"gorm.io/gorm"
)

var (
	ErrPayoutNotFound      = errors.New("提现申请不存在")
	ErrPayoutStatusInvalid = errors.New("提现状态不允许该操作")
)

type PayoutRepository struct {
	db *gorm.DB
}

func NewPayoutRepository(db *gorm.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

func (r *PayoutRepository) Create(ctx context.Context, tx *gorm.DB, payout *model.PayoutRequest) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(payout).Error
}

func (r *PayoutRepository) GetByPayoutNo(ctx context.Context, payoutNo string) (*model.PayoutRequest, error) {
	var payout model.PayoutRequest
	err := r.db.WithContext(ctx).Where("payout_no = ?", payoutNo).First(&payout).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPayoutNotFound
		}
		return nil, err
	}
	return &payout, nil
}

// UpdateStatus 审批状态迁移，条件更新保证并发下只有一次生效
func (r *PayoutRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, payoutNo string, fromStatus, toStatus string, decidedBy *int64) error {
	if !model.CanPayoutTransitionTo(fromStatus, toStatus) {
		return ErrPayoutStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}

	now := time.Now()
	switch toStatus {
	case model.PayoutStatusApproved, model.PayoutStatusRejected:
		updates["decided_at"] = &now
		updates["decided_by"] = decidedBy
	case model.PayoutStatusPaid:
		updates["paid_at"] = &now
	}

	result := tx.WithContext(ctx).
		Model(&model.PayoutRequest{}).
		Where("payout_no = ? AND status = ?", payoutNo, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrPayoutStatusInvalid
	}

	return nil
}

func (r *PayoutRepository) ListByStoreID(ctx context.Context, storeID int64, page, pageSize int) ([]*model.PayoutRequest, int64, error) {
	var payouts []*model.PayoutRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&model.PayoutRequest{}).Where("store_id = ?", storeID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("requested_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&payouts).Error

	return payouts, total, err
}

func (r *PayoutRepository) ListByStatus(ctx context.Context, status string, limit int) ([]*model.PayoutRequest, error) {
	var payouts []*model.PayoutRequest
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("requested_at ASC").
		Limit(limit).
		Find(&payouts).Error
	return payouts, err
}
