package service

import (
	"context"
	"testing"
	"time"

	"marketplace/internal/model"
	"marketplace/internal/repository"

	"github.com/stretchr/testify/require"
)

func TestPromoFlatDiscount(t *testing.T) {
	db := newTestDB(t)
	svc := NewPromoService(db)
	ctx := context.Background()

	newActivePromo(t, db, "FLAT10K", model.DiscountTypeFixed, 10000, 100)

	promo, err := svc.Validate(ctx, "FLAT10K", 101, 100000)
	require.NoError(t, err)
	require.Equal(t, int64(10000), svc.ComputeDiscount(promo, 100000))
}

func TestPromoPercentageDiscount(t *testing.T) {
	db := newTestDB(t)
	svc := NewPromoService(db)

	promo := newActivePromo(t, db, "PCT15", model.DiscountTypePercentage, 15, 100)

	// 整数除法向下取整
	require.Equal(t, int64(15), svc.ComputeDiscount(promo, 101))
	require.Equal(t, int64(15000), svc.ComputeDiscount(promo, 100000))
}

func TestPromoDiscountCappedAtTotal(t *testing.T) {
	db := newTestDB(t)
	svc := NewPromoService(db)

	promo := newActivePromo(t, db, "BIG", model.DiscountTypeFixed, 50000, 100)

	// 折扣封顶为订单金额，实付为零但不为负
	require.Equal(t, int64(30000), svc.ComputeDiscount(promo, 30000))
}

func TestPromoMinTransaction(t *testing.T) {
	db := newTestDB(t)
	svc := NewPromoService(db)
	ctx := context.Background()

	promo := newActivePromo(t, db, "MIN50K", model.DiscountTypeFixed, 10000, 100)
	require.NoError(t, db.Model(promo).Update("min_transaction", 50000).Error)

	// 门槛按折扣前金额判断
	_, err := svc.Validate(ctx, "MIN50K", 101, 49999)
	require.ErrorIs(t, err, ErrPromoMinTransaction)

	_, err = svc.Validate(ctx, "MIN50K", 101, 50000)
	require.NoError(t, err)
}

func TestPromoWindow(t *testing.T) {
	db := newTestDB(t)
	svc := NewPromoService(db)
	ctx := context.Background()

	now := time.Now()
	expired := &model.Promo{
		Code:         "EXPIRED",
		DiscountType: model.DiscountTypeFixed,
		Value:        10000,
		UsageLimit:   100,
		Status:       model.PromoStatusActive,
		StartDate:    now.Add(-48 * time.Hour),
		EndDate:      now.Add(-24 * time.Hour),
	}
	require.NoError(t, db.Create(expired).Error)

	_, err := svc.Validate(ctx, "EXPIRED", 101, 100000)
	require.ErrorIs(t, err, ErrPromoOutOfWindow)
}

func TestPromoInactive(t *testing.T) {
	db := newTestDB(t)
	svc := NewPromoService(db)

	promo := newActivePromo(t, db, "OFF", model.DiscountTypeFixed, 10000, 100)
	require.NoError(t, db.Model(promo).Update("status", model.PromoStatusInactive).Error)

	_, err := svc.Validate(context.Background(), "OFF", 101, 100000)
	require.ErrorIs(t, err, ErrPromoInactive)
}

func TestPromoNotFound(t *testing.T) {
	db := newTestDB(t)
	svc := NewPromoService(db)

	_, err := svc.Validate(context.Background(), "NOPE", 101, 100000)
	require.ErrorIs(t, err, repository.ErrPromoNotFound)
}

func TestPromoForNewUserOnly(t *testing.T) {
	db := newTestDB(t)
	svc := NewPromoService(db)
	ctx := context.Background()

	promo := newActivePromo(t, db, "WELCOME", model.DiscountTypeFixed, 10000, 100)
	require.NoError(t, db.Model(promo).Update("for_new_user", true).Error)

	// 没有完成过预订的顾客可以用
	_, err := svc.Validate(ctx, "WELCOME", 101, 100000)
	require.NoError(t, err)

	// 有完成记录的顾客不行
	booking := &model.Booking{
		BookingNo:     "BKG-done",
		RequestID:     "req-done",
		CustomerID:    102,
		StoreID:       201,
		ServiceID:     301,
		TotalPrice:    50000,
		OriginalPrice: 50000,
		Status:        model.BookingStatusCompleted,
		ScheduleDate:  time.Now(),
	}
	require.NoError(t, db.Create(booking).Error)

	_, err = svc.Validate(ctx, "WELCOME", 102, 100000)
	require.ErrorIs(t, err, ErrPromoNotNewUser)
}

// 上限边界：usage_count 的递增是条件更新，上限打满后兑换失败
func TestPromoUsageLimitBoundary(t *testing.T) {
	db := newTestDB(t)
	svc := NewPromoService(db)
	ctx := context.Background()

	promo := newActivePromo(t, db, "LAST1", model.DiscountTypeFixed, 10000, 1)

	require.NoError(t, svc.Redeem(ctx, db, promo, 201))

	// 已打满：资格校验和条件更新都要拒绝
	_, err := svc.Validate(ctx, "LAST1", 101, 100000)
	require.ErrorIs(t, err, repository.ErrPromoLimitReached)
	require.ErrorIs(t, svc.Redeem(ctx, db, promo, 201), repository.ErrPromoLimitReached)

	var got model.Promo
	require.NoError(t, db.Where("code = ?", "LAST1").First(&got).Error)
	require.Equal(t, 1, got.UsageCount)
}

func TestPromoRedeemTracksStoreCount(t *testing.T) {
	db := newTestDB(t)
	svc := NewPromoService(db)
	ctx := context.Background()

	promo := newActivePromo(t, db, "MULTI", model.DiscountTypeFixed, 10000, 10)

	require.NoError(t, svc.Redeem(ctx, db, promo, 201))
	require.NoError(t, svc.Redeem(ctx, db, promo, 201))
	require.NoError(t, svc.Redeem(ctx, db, promo, 202))

	repo := repository.NewPromoRepository(db)

	sp, err := repo.GetStorePromo(ctx, promo.ID, 201)
	require.NoError(t, err)
	require.NotNil(t, sp)
	require.Equal(t, 2, sp.Redeemed)

	sp, err = repo.GetStorePromo(ctx, promo.ID, 202)
	require.NoError(t, err)
	require.NotNil(t, sp)
	require.Equal(t, 1, sp.Redeemed)

	// 没参与过的商家查不出统计行
	sp, err = repo.GetStorePromo(ctx, promo.ID, 203)
	require.NoError(t, err)
	require.Nil(t, sp)
}

func TestVoucherOwnership(t *testing.T) {
	db := newTestDB(t)
	svc := NewPromoService(db)
	ctx := context.Background()

	owner := int64(101)
	promo := newActivePromo(t, db, "VCR-ABC", model.DiscountTypeFixed, 5000, 1)
	require.NoError(t, db.Model(promo).Update("owner_user_id", owner).Error)

	// 持有人可用，其他人不行
	_, err := svc.Validate(ctx, "VCR-ABC", 101, 100000)
	require.NoError(t, err)

	_, err = svc.Validate(ctx, "VCR-ABC", 102, 100000)
	require.ErrorIs(t, err, ErrVoucherNotOwned)

	// 核销后持有人也不能再用
	require.NoError(t, db.Model(promo).Update("consumed", true).Error)
	_, err = svc.Validate(ctx, "VCR-ABC", 101, 100000)
	require.ErrorIs(t, err, repository.ErrVoucherConsumed)
}
