package service

import (
	"context"
	"errors"
	"log"

	"marketplace/internal/model"
	"marketplace/internal/repository"

	"gorm.io/gorm"
)

var (
	// ErrWalletDrift 钱包缓存与账本重算不一致
	// 这是真实账务缺陷的信号，操作中止、记高危日志，绝不自动修正
	ErrWalletDrift = errors.New("钱包余额与账本不一致")
)

type WalletService struct {
	db         *gorm.DB
	walletRepo *repository.WalletRepository
	ledgerRepo *repository.LedgerRepository
}

func NewWalletService(db *gorm.DB) *WalletService {
	return &WalletService{
		db:         db,
		walletRepo: repository.NewWalletRepository(db),
		ledgerRepo: repository.NewLedgerRepository(db),
	}
}

// GetBalance 读取钱包缓存余额
func (s *WalletService) GetBalance(ctx context.Context, storeID int64) (int64, error) {
	wallet, err := s.walletRepo.GetOrCreate(ctx, storeID)
	if err != nil {
		return 0, err
	}
	return wallet.Balance, nil
}

func (s *WalletService) GetWallet(ctx context.Context, storeID int64) (*model.StoreWallet, error) {
	return s.walletRepo.GetOrCreate(ctx, storeID)
}

func (s *WalletService) ListLedger(ctx context.Context, storeID int64, page, pageSize int) ([]*model.LedgerEntry, int64, error) {
	return s.ledgerRepo.ListByStoreID(ctx, storeID, page, pageSize)
}

// Verify 用账本重算余额并与缓存比对
//
// 账本是资金事实的唯一来源，钱包只是物化缓存；
// 两者不一致说明某次入账/出账绕过了事务边界，必须报警人工介入
func (s *WalletService) Verify(ctx context.Context, storeID int64) (int64, error) {
	wallet, err := s.walletRepo.GetByStoreID(ctx, storeID)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			return 0, nil
		}
		return 0, err
	}

	sum, err := s.ledgerRepo.SumByStoreID(ctx, storeID)
	if err != nil {
		return 0, err
	}

	if sum != wallet.Balance {
		log.Printf("[FATAL] 钱包余额漂移: storeID=%d, cached=%d, recomputed=%d",
			storeID, wallet.Balance, sum)
		return 0, ErrWalletDrift
	}

	return wallet.Balance, nil
}
