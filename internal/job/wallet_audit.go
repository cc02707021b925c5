package job

import (
	"context"
	"errors"
	"log"
	"time"

	"marketplace/internal/repository"
	"marketplace/internal/service"

	"gorm.io/gorm"
)

// WalletAuditJob 定期用账本重算每个商家钱包余额并与缓存比对。
// 发现漂移只报警不修正，账务差异必须人工定位根因。
type WalletAuditJob struct {
	db            *gorm.DB
	walletRepo    *repository.WalletRepository
	walletService *service.WalletService
	stopCh        chan struct{}
	interval      time.Duration
	batchSize     int
}

func NewWalletAuditJob(db *gorm.DB) *WalletAuditJob {
	return &WalletAuditJob{
		db:            db,
		walletRepo:    repository.NewWalletRepository(db),
		walletService: service.NewWalletService(db),
		stopCh:        make(chan struct{}),
		interval:      5 * time.Minute,
		batchSize:     1000,
	}
}

func (j *WalletAuditJob) Start(ctx context.Context) {
	log.Println("[WalletAuditJob] 钱包对账任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[WalletAuditJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[WalletAuditJob] 任务停止")
			return
		case <-ticker.C:
			j.auditWallets(ctx)
		}
	}
}

func (j *WalletAuditJob) Stop() {
	close(j.stopCh)
}

func (j *WalletAuditJob) auditWallets(ctx context.Context) {
	wallets, err := j.walletRepo.List(ctx, j.batchSize)
	if err != nil {
		log.Printf("[WalletAuditJob] 查询钱包列表失败: %v", err)
		return
	}

	driftCount := 0
	for _, wallet := range wallets {
		_, err := j.walletService.Verify(ctx, wallet.StoreID)
		if err != nil {
			if errors.Is(err, service.ErrWalletDrift) {
				driftCount++
				continue
			}
			log.Printf("[WalletAuditJob] 对账失败: storeID=%d, err=%v", wallet.StoreID, err)
		}
	}

	if driftCount > 0 {
		log.Printf("[WalletAuditJob] 本次对账发现 %d 个钱包余额漂移", driftCount)
	}
}
