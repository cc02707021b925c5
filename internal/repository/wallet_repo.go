package repository

import (
	"context"
	"errors"

	"marketplace/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrWalletNotFound    = errors.New("商家钱包不存在")
	ErrInsufficientFunds = errors.New("钱包余额不足")
	ErrWalletOptimistic  = errors.New("钱包并发冲突，请重试")
)

type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) GetByStoreID(ctx context.Context, storeID int64) (*model.StoreWallet, error) {
	var wallet model.StoreWallet
	err := r.db.WithContext(ctx).Where("store_id = ?", storeID).First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

func (r *WalletRepository) GetOrCreate(ctx context.Context, storeID int64) (*model.StoreWallet, error) {
	wallet, err := r.GetByStoreID(ctx, storeID)
	if err == nil {
		return wallet, nil
	}

	if !errors.Is(err, ErrWalletNotFound) {
		return nil, err
	}

	newWallet := &model.StoreWallet{
		StoreID: storeID,
		Balance: 0,
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "store_id"}},
			DoNothing: true,
		}).
		Create(newWallet).Error

	if err != nil {
		return nil, err
	}

	return r.GetByStoreID(ctx, storeID)
}

func (r *WalletRepository) List(ctx context.Context, limit int) ([]*model.StoreWallet, error) {
	var wallets []*model.StoreWallet
	err := r.db.WithContext(ctx).
		Order("store_id ASC").
		Limit(limit).
		Find(&wallets).Error
	return wallets, err
}

// Credit 入账，余额与账本分录在同一外部事务中更新
func (r *WalletRepository) Credit(ctx context.Context, tx *gorm.DB, storeID int64, amount int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.StoreWallet{}).
		Where("store_id = ?", storeID).
		Updates(map[string]interface{}{
			"balance": gorm.Expr("balance + ?", amount),
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrWalletNotFound
	}

	return nil
}

// Debit 出账
//
// 【关键点】余额校验和扣减必须是一条条件更新：
// WHERE balance >= amount 没命中说明余额已被并发扣走，返回余额不足，
// 调用方的事务整体回滚，绝不允许余额为负
func (r *WalletRepository) Debit(ctx context.Context, tx *gorm.DB, storeID int64, amount int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.StoreWallet{}).
		Where("store_id = ? AND balance >= ?", storeID, amount).
		Updates(map[string]interface{}{
			"balance": gorm.Expr("balance - ?", amount),
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		wallet, err := r.GetByStoreID(ctx, storeID)
		if err != nil {
			return err
		}
		if wallet.Balance < amount {
			return ErrInsufficientFunds
		}
		return ErrWalletOptimistic
	}

	return nil
}
