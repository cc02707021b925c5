package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace/internal/model"
	"marketplace/internal/repository"

	"gorm.io/gorm"
)

var (
	ErrPromoInactive       = errors.New("优惠码未启用")
	ErrPromoOutOfWindow    = errors.New("优惠码不在有效期内")
	ErrPromoMinTransaction = errors.New("订单金额未达优惠门槛")
	ErrPromoNotNewUser     = errors.New("该优惠码仅限新用户使用")
	ErrVoucherNotOwned     = errors.New("代金券不属于该用户")
)

type PromoService struct {
	db          *gorm.DB
	promoRepo   *repository.PromoRepository
	bookingRepo *repository.BookingRepository
}

func NewPromoService(db *gorm.DB) *PromoService {
	return &PromoService{
		db:          db,
		promoRepo:   repository.NewPromoRepository(db),
		bookingRepo: repository.NewBookingRepository(db),
	}
}

// Validate 校验优惠码对给定顾客、折扣前金额是否可用，返回可用的 Promo
//
// 这里的校验只是资格判断，usage_count 的余量在 Redeem 的条件更新里最终裁决
func (s *PromoService) Validate(ctx context.Context, code string, customerID int64, total int64) (*model.Promo, error) {
	promo, err := s.promoRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if promo.Status != model.PromoStatusActive {
		return nil, ErrPromoInactive
	}

	now := time.Now()
	if now.Before(promo.StartDate) || now.After(promo.EndDate) {
		return nil, ErrPromoOutOfWindow
	}

	if promo.UsageCount >= promo.UsageLimit {
		return nil, repository.ErrPromoLimitReached
	}

	if total < promo.MinTransaction {
		return nil, ErrPromoMinTransaction
	}

	// 个人代金券只能由持有人使用，且未被核销
	if promo.OwnerUserID != nil {
		if *promo.OwnerUserID != customerID {
			return nil, ErrVoucherNotOwned
		}
		if promo.Consumed {
			return nil, repository.ErrVoucherConsumed
		}
	}

	if promo.ForNewUser {
		completed, err := s.bookingRepo.CountCompletedByCustomerID(ctx, customerID)
		if err != nil {
			return nil, fmt.Errorf("查询历史预订失败: %w", err)
		}
		if completed > 0 {
			return nil, ErrPromoNotNewUser
		}
	}

	return promo, nil
}

// ComputeDiscount 计算折扣金额
//
// FIXED 直接减面值；PERCENTAGE 按整数除法向下取整到最小货币单位；
// 折扣封顶为订单金额，实付永不为负
func (s *PromoService) ComputeDiscount(promo *model.Promo, total int64) int64 {
	var discount int64
	switch promo.DiscountType {
	case model.DiscountTypePercentage:
		discount = total * promo.Value / 100
	default:
		discount = promo.Value
	}

	if discount > total {
		discount = total
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}

// Redeem 在预订创建事务内核销优惠
//
// usage_count 的递增是 compare-and-increment，上限边界的并发兑换最多成功 usage_limit 次；
// 个人代金券另有一次性核销，同一张券并发使用只有一个赢家
func (s *PromoService) Redeem(ctx context.Context, tx *gorm.DB, promo *model.Promo, storeID int64) error {
	if err := s.promoRepo.IncrementUsage(ctx, tx, promo.ID); err != nil {
		return err
	}

	if promo.OwnerUserID != nil {
		if err := s.promoRepo.ConsumeVoucher(ctx, tx, promo.ID); err != nil {
			return err
		}
	}

	if err := s.promoRepo.IncrementStoreRedeemed(ctx, tx, promo.ID, storeID); err != nil {
		return fmt.Errorf("更新商家兑换计数失败: %w", err)
	}

	return nil
}
