package service

import (
	"context"
	"testing"

	"marketplace/internal/model"
	"marketplace/internal/repository"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedLoyaltyAccount(t *testing.T, db *gorm.DB, svc *LoyaltyService, userID, points int64) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.GetAccount(ctx, userID)
	require.NoError(t, err)
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.AwardPoints(ctx, tx, userID, "BKG-seed", points*newTestConfig().Business.PointEarnDivisor)
	}))
}

func TestLoyaltyAwardPoints(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	svc := NewLoyaltyService(db, cfg)
	ctx := context.Background()

	// 25000 / 10000 = 2 积分，余数舍去
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.AwardPoints(ctx, tx, 101, "BKG-1", 25000)
	}))

	account, err := svc.GetAccount(ctx, 101)
	require.NoError(t, err)
	require.Equal(t, int64(2), account.Points)

	// 不足一个积分单位不累积，也不留流水
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.AwardPoints(ctx, tx, 101, "BKG-2", 9999)
	}))

	account, err = svc.GetAccount(ctx, 101)
	require.NoError(t, err)
	require.Equal(t, int64(2), account.Points)

	var txnCount int64
	require.NoError(t, db.Model(&model.PointTransaction{}).Where("user_id = ?", int64(101)).Count(&txnCount).Error)
	require.Equal(t, int64(1), txnCount)
}

func TestLoyaltyRedeem(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	svc := NewLoyaltyService(db, cfg)
	ctx := context.Background()

	seedLoyaltyAccount(t, db, svc, 101, 150)

	result, err := svc.Redeem(ctx, 101, 100)
	require.NoError(t, err)
	require.NotEmpty(t, result.VoucherCode)
	require.Equal(t, int64(100*cfg.Business.PointValue), result.Value)
	require.Equal(t, int64(50), result.Points)

	// 兑换产物是一张个人一次性代金券
	var voucher model.Promo
	require.NoError(t, db.Where("code = ?", result.VoucherCode).First(&voucher).Error)
	require.Equal(t, model.DiscountTypeFixed, voucher.DiscountType)
	require.Equal(t, 1, voucher.UsageLimit)
	require.NotNil(t, voucher.OwnerUserID)
	require.Equal(t, int64(101), *voucher.OwnerUserID)
	require.False(t, voucher.Consumed)

	// 余额不足的二次兑换整体回滚
	_, err = svc.Redeem(ctx, 101, 100)
	require.ErrorIs(t, err, repository.ErrInsufficientPoints)

	account, err := svc.GetAccount(ctx, 101)
	require.NoError(t, err)
	require.Equal(t, int64(50), account.Points)

	// 账户余额与流水汇总一致
	balance, err := svc.Verify(ctx, 101)
	require.NoError(t, err)
	require.Equal(t, int64(50), balance)
}

func TestLoyaltyRedeemInvalidPoints(t *testing.T) {
	db := newTestDB(t)
	svc := NewLoyaltyService(db, newTestConfig())

	_, err := svc.Redeem(context.Background(), 101, 0)
	require.Error(t, err)
}

func TestLoyaltyVerifyDrift(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	svc := NewLoyaltyService(db, cfg)
	ctx := context.Background()

	seedLoyaltyAccount(t, db, svc, 101, 100)

	// 绕过流水直接改账户，模拟真实账务缺陷
	require.NoError(t, db.Model(&model.LoyaltyAccount{}).
		Where("user_id = ?", int64(101)).
		Update("points", 999).Error)

	_, err := svc.Verify(ctx, 101)
	require.ErrorIs(t, err, ErrPointsDrift)
}

func TestLoyaltyListTransactions(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	svc := NewLoyaltyService(db, cfg)
	ctx := context.Background()

	seedLoyaltyAccount(t, db, svc, 101, 150)
	_, err := svc.Redeem(ctx, 101, 100)
	require.NoError(t, err)

	transactions, total, err := svc.ListTransactions(ctx, 101, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, transactions, 2)

	var sum int64
	for _, txn := range transactions {
		sum += txn.Points
	}
	require.Equal(t, int64(50), sum)
}
