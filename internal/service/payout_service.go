package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/infrastructure/lock"
	"marketplace/internal/model"
	"marketplace/internal/repository"
	"marketplace/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

var ErrPayoutStatusUnknown = errors.New("无法识别的提现单状态")

type PayoutService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	payoutRepo  *repository.PayoutRepository
	walletRepo  *repository.WalletRepository
	ledgerRepo  *repository.LedgerRepository
	outboxRepo  *repository.OutboxRepository
}

func NewPayoutService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *PayoutService {
	return &PayoutService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		payoutRepo:  repository.NewPayoutRepository(db),
		walletRepo:  repository.NewWalletRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

// RequestPayout 商家发起提现申请
// 申请时的余额校验只是参考读：余额在审批和结算之间还会变化，结算事务里必须再校验
func (s *PayoutService) RequestPayout(ctx context.Context, storeID int64, amount int64) (*model.PayoutRequest, error) {
	if amount <= 0 {
		return nil, errors.New("提现金额必须大于0")
	}

	wallet, err := s.walletRepo.GetOrCreate(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("获取商家钱包失败: %w", err)
	}
	if wallet.Balance < amount {
		return nil, repository.ErrInsufficientFunds
	}

	payout := &model.PayoutRequest{
		PayoutNo: idgen.GeneratePayoutNo(),
		StoreID:  storeID,
		Amount:   amount,
		Status:   model.PayoutStatusRequested,
	}
	if err := s.payoutRepo.Create(ctx, nil, payout); err != nil {
		return nil, fmt.Errorf("创建提现申请失败: %w", err)
	}

	log.Printf("提现申请创建: payoutNo=%s, storeID=%d, amount=%d", payout.PayoutNo, storeID, amount)
	return payout, nil
}

// Decide 管理员审批：REQUESTED -> APPROVED / REJECTED
// 批准前复核一次余额：申请到审批之间余额可能已被其它结算扣走，
// 不足就留在 REQUESTED 等余额恢复或人工驳回；结算事务内的条件扣减仍是最终裁决
func (s *PayoutService) Decide(ctx context.Context, payoutNo string, adminID int64, approve bool) error {
	payout, err := s.payoutRepo.GetByPayoutNo(ctx, payoutNo)
	if err != nil {
		return err
	}

	toStatus := model.PayoutStatusRejected
	if approve {
		toStatus = model.PayoutStatusApproved

		wallet, err := s.walletRepo.GetOrCreate(ctx, payout.StoreID)
		if err != nil {
			return fmt.Errorf("获取商家钱包失败: %w", err)
		}
		if wallet.Balance < payout.Amount {
			log.Printf("提现审批余额不足: payoutNo=%s, storeID=%d, amount=%d, balance=%d",
				payoutNo, payout.StoreID, payout.Amount, wallet.Balance)
			return repository.ErrInsufficientFunds
		}
	}

	if err := s.payoutRepo.UpdateStatus(ctx, nil, payoutNo, model.PayoutStatusRequested, toStatus, &adminID); err != nil {
		return err
	}

	log.Printf("提现审批完成: payoutNo=%s, adminID=%d, decision=%s", payoutNo, adminID, toStatus)
	return nil
}

// Settle 结算：APPROVED -> PAID
//
// 【关键点】余额在申请/审批时的读取只是参考，真正的校验在这里：
// 1. 按商家加分布式锁，同店并发结算串行化
// 2. 事务内钱包条件扣减（balance >= amount），没命中返回余额不足并整体回滚，
//    申请保持 APPROVED 等人工重新决策，绝不自动驳回
// 3. 扣减、状态迁移、payout_debit 分录同事务提交
// 同店两笔合计超过余额的并发结算恰好成功一笔
func (s *PayoutService) Settle(ctx context.Context, payoutNo string) error {
	payout, err := s.payoutRepo.GetByPayoutNo(ctx, payoutNo)
	if err != nil {
		return err
	}
	if payout.Status != model.PayoutStatusApproved {
		return repository.ErrPayoutStatusInvalid
	}

	payoutLock := lock.NewPayoutLock(s.redisClient, payout.StoreID, payoutNo)
	if err := payoutLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer payoutLock.Unlock(ctx)

	// 获取锁后重读，避免拿到锁前状态已被改走
	payout, err = s.payoutRepo.GetByPayoutNo(ctx, payoutNo)
	if err != nil {
		return err
	}
	if payout.Status != model.PayoutStatusApproved {
		return repository.ErrPayoutStatusInvalid
	}

	storeID := payout.StoreID

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.walletRepo.Debit(ctx, tx, storeID, payout.Amount); err != nil {
			return err
		}

		if err := s.payoutRepo.UpdateStatus(ctx, tx, payoutNo, model.PayoutStatusApproved, model.PayoutStatusPaid, nil); err != nil {
			return err
		}

		// 对侧资金是银行转账，在平台账本体系之外，只记出账单分录
		entry := &model.LedgerEntry{
			EntryNo:     idgen.GenerateEntryNo(),
			StoreID:     &storeID,
			Amount:      -payout.Amount,
			Kind:        model.EntryKindPayoutDebit,
			ReferenceNo: payoutNo,
			Remark:      "提现出账",
		}
		if err := s.ledgerRepo.Create(ctx, tx, entry); err != nil {
			return fmt.Errorf("记账失败: %w", err)
		}

		mailPayload, _ := json.Marshal(map[string]interface{}{
			"template":  "payout_paid",
			"payout_no": payoutNo,
			"store_id":  storeID,
			"amount":    payout.Amount,
		})
		mailMsg := &model.OutboxMessage{
			MessageKey: payoutNo,
			Topic:      s.cfg.Kafka.Topic.NotifyEmail,
			Payload:    string(mailPayload),
			Status:     model.OutboxStatusPending,
		}
		if err := s.outboxRepo.Create(ctx, tx, mailMsg); err != nil {
			return fmt.Errorf("写入邮件任务失败: %w", err)
		}

		return nil
	})

	if err != nil {
		return err
	}

	log.Printf("提现结算完成: payoutNo=%s, storeID=%d, amount=%d", payoutNo, storeID, payout.Amount)
	return nil
}

func (s *PayoutService) GetPayout(ctx context.Context, payoutNo string) (*model.PayoutRequest, error) {
	return s.payoutRepo.GetByPayoutNo(ctx, payoutNo)
}

func (s *PayoutService) ListStorePayouts(ctx context.Context, storeID int64, page, pageSize int) ([]*model.PayoutRequest, int64, error) {
	return s.payoutRepo.ListByStoreID(ctx, storeID, page, pageSize)
}

// ListPayoutsByStatus 审批队列视图：按状态捞一批提现单
func (s *PayoutService) ListPayoutsByStatus(ctx context.Context, status string, limit int) ([]*model.PayoutRequest, error) {
	switch status {
	case model.PayoutStatusRequested, model.PayoutStatusApproved,
		model.PayoutStatusRejected, model.PayoutStatusPaid:
	default:
		return nil, ErrPayoutStatusUnknown
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.payoutRepo.ListByStatus(ctx, status, limit)
}
