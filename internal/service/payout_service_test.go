package service

import (
	"context"
	"testing"

	"marketplace/internal/model"
	"marketplace/internal/repository"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedWallet(t *testing.T, db *gorm.DB, storeID, balance int64) {
	t.Helper()
	require.NoError(t, db.Create(&model.StoreWallet{StoreID: storeID, Balance: balance}).Error)
}

func TestPayoutLifecycle(t *testing.T) {
	db := newTestDB(t)
	rdb := newTestRedis(t)
	cfg := newTestConfig()
	svc := NewPayoutService(db, rdb, cfg)
	ctx := context.Background()

	seedWallet(t, db, 201, 50000)

	payout, err := svc.RequestPayout(ctx, 201, 30000)
	require.NoError(t, err)
	require.Equal(t, model.PayoutStatusRequested, payout.Status)

	require.NoError(t, svc.Decide(ctx, payout.PayoutNo, 1, true))

	got, err := svc.GetPayout(ctx, payout.PayoutNo)
	require.NoError(t, err)
	require.Equal(t, model.PayoutStatusApproved, got.Status)
	require.NotNil(t, got.DecidedBy)
	require.Equal(t, int64(1), *got.DecidedBy)
	require.NotNil(t, got.DecidedAt)

	require.NoError(t, svc.Settle(ctx, payout.PayoutNo))

	got, err = svc.GetPayout(ctx, payout.PayoutNo)
	require.NoError(t, err)
	require.Equal(t, model.PayoutStatusPaid, got.Status)
	require.NotNil(t, got.PaidAt)

	var wallet model.StoreWallet
	require.NoError(t, db.Where("store_id = ?", int64(201)).First(&wallet).Error)
	require.Equal(t, int64(20000), wallet.Balance)

	// 出账单分录：对侧是银行转账，只记商家侧负项
	var entry model.LedgerEntry
	require.NoError(t, db.Where("reference_no = ?", payout.PayoutNo).First(&entry).Error)
	require.Equal(t, model.EntryKindPayoutDebit, entry.Kind)
	require.Equal(t, int64(-30000), entry.Amount)
	require.NotNil(t, entry.StoreID)
	require.Equal(t, int64(201), *entry.StoreID)

	// 结算通知进发件箱
	var mailCount int64
	require.NoError(t, db.Model(&model.OutboxMessage{}).Where("message_key = ?", payout.PayoutNo).Count(&mailCount).Error)
	require.Equal(t, int64(1), mailCount)
}

func TestPayoutDecideInsufficientBalance(t *testing.T) {
	db := newTestDB(t)
	rdb := newTestRedis(t)
	cfg := newTestConfig()
	svc := NewPayoutService(db, rdb, cfg)
	ctx := context.Background()

	seedWallet(t, db, 201, 50000)

	payout, err := svc.RequestPayout(ctx, 201, 30000)
	require.NoError(t, err)

	// 申请后余额被其它结算扣走，审批时复核应拦截
	require.NoError(t, db.Model(&model.StoreWallet{}).
		Where("store_id = ?", int64(201)).
		Update("balance", int64(10000)).Error)

	err = svc.Decide(ctx, payout.PayoutNo, 1, true)
	require.ErrorIs(t, err, repository.ErrInsufficientFunds)

	got, err := svc.GetPayout(ctx, payout.PayoutNo)
	require.NoError(t, err)
	require.Equal(t, model.PayoutStatusRequested, got.Status)
	require.Nil(t, got.DecidedBy)

	// 余额恢复后可以正常批准
	require.NoError(t, db.Model(&model.StoreWallet{}).
		Where("store_id = ?", int64(201)).
		Update("balance", int64(40000)).Error)

	require.NoError(t, svc.Decide(ctx, payout.PayoutNo, 1, true))

	got, err = svc.GetPayout(ctx, payout.PayoutNo)
	require.NoError(t, err)
	require.Equal(t, model.PayoutStatusApproved, got.Status)
}

func TestPayoutQueueByStatus(t *testing.T) {
	db := newTestDB(t)
	rdb := newTestRedis(t)
	cfg := newTestConfig()
	svc := NewPayoutService(db, rdb, cfg)
	ctx := context.Background()

	seedWallet(t, db, 201, 100000)
	seedWallet(t, db, 202, 100000)

	first, err := svc.RequestPayout(ctx, 201, 30000)
	require.NoError(t, err)
	second, err := svc.RequestPayout(ctx, 202, 40000)
	require.NoError(t, err)

	require.NoError(t, svc.Decide(ctx, first.PayoutNo, 1, true))

	requested, err := svc.ListPayoutsByStatus(ctx, model.PayoutStatusRequested, 50)
	require.NoError(t, err)
	require.Len(t, requested, 1)
	require.Equal(t, second.PayoutNo, requested[0].PayoutNo)

	approved, err := svc.ListPayoutsByStatus(ctx, model.PayoutStatusApproved, 50)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	require.Equal(t, first.PayoutNo, approved[0].PayoutNo)

	_, err = svc.ListPayoutsByStatus(ctx, "SETTLING", 50)
	require.ErrorIs(t, err, ErrPayoutStatusUnknown)
}

func TestPayoutReject(t *testing.T) {
	db := newTestDB(t)
	rdb := newTestRedis(t)
	cfg := newTestConfig()
	svc := NewPayoutService(db, rdb, cfg)
	ctx := context.Background()

	seedWallet(t, db, 201, 50000)

	payout, err := svc.RequestPayout(ctx, 201, 30000)
	require.NoError(t, err)

	require.NoError(t, svc.Decide(ctx, payout.PayoutNo, 2, false))

	got, err := svc.GetPayout(ctx, payout.PayoutNo)
	require.NoError(t, err)
	require.Equal(t, model.PayoutStatusRejected, got.Status)

	// 驳回后不能结算，余额不动
	require.ErrorIs(t, svc.Settle(ctx, payout.PayoutNo), repository.ErrPayoutStatusInvalid)

	var wallet model.StoreWallet
	require.NoError(t, db.Where("store_id = ?", int64(201)).First(&wallet).Error)
	require.Equal(t, int64(50000), wallet.Balance)
}

func TestPayoutRequestInsufficientBalance(t *testing.T) {
	db := newTestDB(t)
	rdb := newTestRedis(t)
	cfg := newTestConfig()
	svc := NewPayoutService(db, rdb, cfg)

	seedWallet(t, db, 201, 10000)

	_, err := svc.RequestPayout(context.Background(), 201, 30000)
	require.ErrorIs(t, err, repository.ErrInsufficientFunds)
}

// 两笔合计超过余额的提现都拿到批准后，结算只允许成功一笔：
// 第二笔在事务内的条件扣减没命中，整体回滚并保持 APPROVED 等人工决策
func TestPayoutSettleOverdraw(t *testing.T) {
	db := newTestDB(t)
	rdb := newTestRedis(t)
	cfg := newTestConfig()
	svc := NewPayoutService(db, rdb, cfg)
	ctx := context.Background()

	seedWallet(t, db, 201, 50000)

	first, err := svc.RequestPayout(ctx, 201, 30000)
	require.NoError(t, err)
	second, err := svc.RequestPayout(ctx, 201, 30000)
	require.NoError(t, err)

	require.NoError(t, svc.Decide(ctx, first.PayoutNo, 1, true))
	require.NoError(t, svc.Decide(ctx, second.PayoutNo, 1, true))

	require.NoError(t, svc.Settle(ctx, first.PayoutNo))
	require.ErrorIs(t, svc.Settle(ctx, second.PayoutNo), repository.ErrInsufficientFunds)

	gotFirst, err := svc.GetPayout(ctx, first.PayoutNo)
	require.NoError(t, err)
	require.Equal(t, model.PayoutStatusPaid, gotFirst.Status)

	gotSecond, err := svc.GetPayout(ctx, second.PayoutNo)
	require.NoError(t, err)
	require.Equal(t, model.PayoutStatusApproved, gotSecond.Status)

	var wallet model.StoreWallet
	require.NoError(t, db.Where("store_id = ?", int64(201)).First(&wallet).Error)
	require.Equal(t, int64(20000), wallet.Balance)

	// 失败的结算不留任何分录
	var entryCount int64
	require.NoError(t, db.Model(&model.LedgerEntry{}).Where("reference_no = ?", second.PayoutNo).Count(&entryCount).Error)
	require.Zero(t, entryCount)
}

func TestPayoutDoubleSettle(t *testing.T) {
	db := newTestDB(t)
	rdb := newTestRedis(t)
	cfg := newTestConfig()
	svc := NewPayoutService(db, rdb, cfg)
	ctx := context.Background()

	seedWallet(t, db, 201, 50000)

	payout, err := svc.RequestPayout(ctx, 201, 30000)
	require.NoError(t, err)
	require.NoError(t, svc.Decide(ctx, payout.PayoutNo, 1, true))
	require.NoError(t, svc.Settle(ctx, payout.PayoutNo))

	// 重复结算被状态机拒绝，不会二次扣款
	require.ErrorIs(t, svc.Settle(ctx, payout.PayoutNo), repository.ErrPayoutStatusInvalid)

	var wallet model.StoreWallet
	require.NoError(t, db.Where("store_id = ?", int64(201)).First(&wallet).Error)
	require.Equal(t, int64(20000), wallet.Balance)
}
