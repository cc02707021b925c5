package repository

import (
	"context"
	"errors"

	"marketplace/internal/model"

	"gorm.io/gorm"
)

var (
	// ErrLedgerUnbalanced 同一事件的分录之和不为零，属于致命账务错误
	ErrLedgerUnbalanced = errors.New("账本分录不平衡")
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// CreateBatch 原子写入一个事件的全部分录
//
// 【重要】复式记账约束：一批分录必须恰好抵消（Σ amount == 0），
// 不平衡的批次在入账前拒绝，绝不部分写入
func (r *LedgerRepository) CreateBatch(ctx context.Context, tx *gorm.DB, entries []*model.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}

	var sum int64
	for _, e := range entries {
		sum += e.Amount
	}
	if sum != 0 {
		return ErrLedgerUnbalanced
	}

	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(&entries).Error
}

// Create 写入单条分录
//
// 仅用于提现出账这类对侧资金在平台体系外（银行转账）的事件；
// 体系内的多分录事件一律走 CreateBatch 的平衡校验
func (r *LedgerRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.LedgerEntry) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

// SumByStoreID 按商家汇总账本，作为钱包余额的对账基准
func (r *LedgerRepository) SumByStoreID(ctx context.Context, storeID int64) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Where("store_id = ?", storeID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}

func (r *LedgerRepository) ListByStoreID(ctx context.Context, storeID int64, page, pageSize int) ([]*model.LedgerEntry, int64, error) {
	var entries []*model.LedgerEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&model.LedgerEntry{}).Where("store_id = ?", storeID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error

	return entries, total, err
}

// ListByReferenceNo 查询某一事件（booking_no / payout_no）的全部分录
func (r *LedgerRepository) ListByReferenceNo(ctx context.Context, referenceNo string) ([]*model.LedgerEntry, error) {
	var entries []*model.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("reference_no = ?", referenceNo).
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}

// CountByReferenceNoAndKind 按事件+类型计数，用于幂等校验
func (r *LedgerRepository) CountByReferenceNoAndKind(ctx context.Context, referenceNo, kind string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Where("reference_no = ? AND kind = ?", referenceNo, kind).
		Count(&count).Error
	return count, err
}
