package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/model"
	"marketplace/internal/repository"
	"marketplace/pkg/idgen"

	"gorm.io/gorm"
)

var (
	// ErrPointsDrift 积分账户与流水汇总不一致，致命账务错误，绝不自动修正
	ErrPointsDrift = errors.New("积分账户与流水不一致")
)

type LoyaltyService struct {
	db          *gorm.DB
	cfg         *config.Config
	loyaltyRepo *repository.LoyaltyRepository
	promoRepo   *repository.PromoRepository
}

func NewLoyaltyService(db *gorm.DB, cfg *config.Config) *LoyaltyService {
	return &LoyaltyService{
		db:          db,
		cfg:         cfg,
		loyaltyRepo: repository.NewLoyaltyRepository(db),
		promoRepo:   repository.NewPromoRepository(db),
	}
}

func (s *LoyaltyService) GetAccount(ctx context.Context, userID int64) (*model.LoyaltyAccount, error) {
	return s.loyaltyRepo.GetOrCreate(ctx, userID)
}

func (s *LoyaltyService) ListTransactions(ctx context.Context, userID int64, page, pageSize int) ([]*model.PointTransaction, int64, error) {
	return s.loyaltyRepo.ListTransactionsByUserID(ctx, userID, page, pageSize)
}

// AwardPoints 完成预订后累积积分，运行在预订完成的事务内
// 每消费 point_earn_divisor 个最小货币单位累积 1 积分，不足部分舍去
func (s *LoyaltyService) AwardPoints(ctx context.Context, tx *gorm.DB, userID int64, bookingNo string, amount int64) error {
	if s.cfg.Business.PointEarnDivisor <= 0 {
		return nil
	}

	points := amount / s.cfg.Business.PointEarnDivisor
	if points <= 0 {
		return nil
	}

	if _, err := s.loyaltyRepo.GetOrCreate(ctx, userID); err != nil {
		return err
	}

	if err := s.loyaltyRepo.AddPoints(ctx, tx, userID, points); err != nil {
		return err
	}

	trans := &model.PointTransaction{
		TransactionNo: idgen.GenerateTransactionNo(),
		UserID:        userID,
		Points:        points,
		Type:          model.PointTypeAccrual,
		Description:   fmt.Sprintf("完成预订累积-%s", bookingNo),
	}
	return s.loyaltyRepo.CreateTransaction(ctx, tx, trans)
}

type RedeemResponse struct {
	VoucherCode string    `json:"voucher_code"`
	Value       int64     `json:"value"`
	EndDate     time.Time `json:"end_date"`
	Points      int64     `json:"points"` // 兑换后剩余积分
}

// Redeem 积分兑换代金券
//
// 扣减积分、记录流水、生成券在同一事务内：
// points >= n 的条件更新是防超兑的最终防线，余额不足整体回滚
func (s *LoyaltyService) Redeem(ctx context.Context, userID int64, points int64) (*RedeemResponse, error) {
	if points <= 0 {
		return nil, errors.New("兑换积分必须大于0")
	}

	account, err := s.loyaltyRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("获取积分账户失败: %w", err)
	}
	if account.Points < points {
		return nil, repository.ErrInsufficientPoints
	}

	now := time.Now()
	voucher := &model.Promo{
		Code:           idgen.GenerateVoucherCode(),
		DiscountType:   model.DiscountTypeFixed,
		Value:          points * s.cfg.Business.PointValue,
		MinTransaction: 0,
		UsageLimit:     1,
		UsageCount:     0,
		ForNewUser:     false,
		Status:         model.PromoStatusActive,
		StartDate:      now,
		EndDate:        now.AddDate(0, 0, s.cfg.Business.VoucherValidDays),
		OwnerUserID:    &userID,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.loyaltyRepo.DeductPoints(ctx, tx, userID, points); err != nil {
			return err
		}

		trans := &model.PointTransaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        userID,
			Points:        -points,
			Type:          model.PointTypeRedemption,
			Description:   fmt.Sprintf("兑换代金券-%s", voucher.Code),
		}
		if err := s.loyaltyRepo.CreateTransaction(ctx, tx, trans); err != nil {
			return fmt.Errorf("记录积分流水失败: %w", err)
		}

		if err := s.promoRepo.Create(ctx, tx, voucher); err != nil {
			return fmt.Errorf("创建代金券失败: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	log.Printf("积分兑换成功: userID=%d, points=%d, voucher=%s", userID, points, voucher.Code)

	return &RedeemResponse{
		VoucherCode: voucher.Code,
		Value:       voucher.Value,
		EndDate:     voucher.EndDate,
		Points:      account.Points - points,
	}, nil
}

// Verify 用流水重算积分余额并与账户缓存比对
// 不一致说明存在真实的账务缺陷，记高危日志并返回错误，绝不悄悄修正
func (s *LoyaltyService) Verify(ctx context.Context, userID int64) (int64, error) {
	account, err := s.loyaltyRepo.GetByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}

	sum, err := s.loyaltyRepo.SumByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}

	if sum != account.Points {
		log.Printf("[FATAL] 积分账户漂移: userID=%d, cached=%d, recomputed=%d", userID, account.Points, sum)
		return 0, ErrPointsDrift
	}

	return account.Points, nil
}
