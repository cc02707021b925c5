package repository

import (
	"context"
	"errors"
	"time"

	"marketplace/internal/model"

	"gorm.io/gorm"
)

var (
	ErrBookingNotFound      = errors.New("预订不存在")
	ErrBookingStatusInvalid = errors.New("预订状态不允许该操作")
	ErrReviewExists         = errors.New("该预订已评价")
)

type BookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) Create(ctx context.Context, tx *gorm.DB, booking *model.Booking) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(booking).Error
}

func (r *BookingRepository) GetByBookingNo(ctx context.Context, bookingNo string) (*model.Booking, error) {
	var booking model.Booking
	err := r.db.WithContext(ctx).Where("booking_no = ?", bookingNo).First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &booking, nil
}

func (r *BookingRepository) GetByRequestID(ctx context.Context, requestID string) (*model.Booking, error) {
	var booking model.Booking
	err := r.db.WithContext(ctx).Where("request_id = ?", requestID).First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &booking, nil
}

// UpdateStatus 状态迁移
//
// 先查状态机边表，再用条件更新保证迁移原子性：
// WHERE status = fromStatus 没命中说明状态已被并发改走，迁移失败且不落任何变更
func (r *BookingRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, bookingNo string, fromStatus, toStatus string) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrBookingStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}

	if toStatus == model.BookingStatusCompleted {
		now := time.Now()
		updates["completed_at"] = &now
	}

	result := tx.WithContext(ctx).
		Model(&model.Booking{}).
		Where("booking_no = ? AND status = ?", bookingNo, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrBookingStatusInvalid
	}

	return nil
}

func (r *BookingRepository) ListByCustomerID(ctx context.Context, customerID int64, page, pageSize int) ([]*model.Booking, int64, error) {
	var bookings []*model.Booking
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Booking{}).Where("customer_id = ?", customerID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&bookings).Error

	return bookings, total, err
}

// CountCompletedByCustomerID 统计顾客已完成的预订数（含已评价），用于新客优惠判定
func (r *BookingRepository) CountCompletedByCustomerID(ctx context.Context, customerID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Booking{}).
		Where("customer_id = ? AND status IN ?", customerID,
			[]string{model.BookingStatusCompleted, model.BookingStatusReviewed}).
		Count(&count).Error
	return count, err
}

func (r *BookingRepository) CreateReview(ctx context.Context, tx *gorm.DB, review *model.Review) error {
	if tx == nil {
		tx = r.db
	}
	err := tx.WithContext(ctx).Create(review).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrReviewExists
	}
	return err
}

func (r *BookingRepository) GetReviewByBookingNo(ctx context.Context, bookingNo string) (*model.Review, error) {
	var review model.Review
	err := r.db.WithContext(ctx).Where("booking_no = ?", bookingNo).First(&review).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &review, nil
}
