package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/gateway"
	"marketplace/internal/model"
	"marketplace/internal/repository"
	"marketplace/pkg/idgen"

	"gorm.io/gorm"
)

var (
	ErrInvalidSignature = errors.New("回调签名校验失败")
	ErrUnknownOrder     = errors.New("未知的网关订单号")
	ErrUnknownStatus    = errors.New("无法识别的回调状态")
	ErrAmountMismatch   = errors.New("回调金额与支付单不一致")
	ErrStatusConflict   = errors.New("回调状态与支付单终态冲突")
	ErrLedgerConflict   = errors.New("支付单状态与账本不一致")
)

type ReconcileService struct {
	db          *gorm.DB
	cfg         *config.Config
	bookingRepo *repository.BookingRepository
	paymentRepo *repository.PaymentRepository
	ledgerRepo  *repository.LedgerRepository
	walletRepo  *repository.WalletRepository
	outboxRepo  *repository.OutboxRepository
}

func NewReconcileService(db *gorm.DB, cfg *config.Config) *ReconcileService {
	return &ReconcileService{
		db:          db,
		cfg:         cfg,
		bookingRepo: repository.NewBookingRepository(db),
		paymentRepo: repository.NewPaymentRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
		walletRepo:  repository.NewWalletRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

type ReconcileResult struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`  // 处理后的支付单状态
	Applied bool   `json:"applied"` // false 表示幂等空操作
	Message string `json:"message,omitempty"`
}

// Reconcile 消费网关回调，把外部支付结果恰好一次地落到内部状态
//
// 网关投递是 at-least-once 且可能乱序、重复：
// 1. 签名不过直接拒绝，不做任何状态变更
// 2. 幂等键是 gateway_order_id + 支付单当前状态：已是匹配终态的回调返回成功空操作
// 3. 首次 paid 回调在一个事务内完成 支付单置 PAID、预订 PENDING→CONFIRMED、
//    三分录记账、钱包入账、发件箱事件；任何一步失败整体回滚，等网关重投
func (s *ReconcileService) Reconcile(ctx context.Context, n *gateway.Notification) (*ReconcileResult, error) {
	if !gateway.VerifySignature(n, s.cfg.Gateway.ServerKey) {
		return nil, ErrInvalidSignature
	}

	amount, err := parseGrossAmount(n.GrossAmount)
	if err != nil {
		return nil, fmt.Errorf("解析回调金额失败: %w", err)
	}

	targetStatus, err := mapNotifyStatus(n.Status)
	if err != nil {
		return nil, err
	}

	payment, err := s.paymentRepo.GetByGatewayOrderID(ctx, n.OrderID)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			// 网关可能为无关/测试订单回调，记录但不视为系统故障
			log.Printf("[Reconcile] 未知订单回调: orderID=%s, status=%s", n.OrderID, n.Status)
			return nil, ErrUnknownOrder
		}
		return nil, fmt.Errorf("查询支付单失败: %w", err)
	}

	// 幂等：已是匹配终态的重复回调安全返回
	if model.IsTerminalPaymentStatus(payment.Status) {
		if payment.Status == targetStatus {
			return &ReconcileResult{
				OrderID: n.OrderID,
				Status:  payment.Status,
				Applied: false,
				Message: "重复回调，已处理",
			}, nil
		}
		log.Printf("[Reconcile] 回调状态冲突: orderID=%s, current=%s, reported=%s",
			n.OrderID, payment.Status, targetStatus)
		return nil, ErrStatusConflict
	}

	if targetStatus == model.PaymentStatusPaid {
		if amount != payment.Amount {
			return nil, ErrAmountMismatch
		}
		return s.applyPaid(ctx, payment)
	}

	return s.applyFailed(ctx, payment, targetStatus)
}

// applyPaid 首次支付成功的原子单元
func (s *ReconcileService) applyPaid(ctx context.Context, payment *model.Payment) (*ReconcileResult, error) {
	booking, err := s.bookingRepo.GetByBookingNo(ctx, payment.BookingNo)
	if err != nil {
		return nil, fmt.Errorf("查询预订失败: %w", err)
	}

	if _, err := s.walletRepo.GetOrCreate(ctx, booking.StoreID); err != nil {
		return nil, fmt.Errorf("获取商家钱包失败: %w", err)
	}

	// 二次幂等校验：支付单还是 PENDING 却已有该预订的入账分录，
	// 说明状态与账本脱节（历史脏数据或人工改库），拒绝处理等人工介入
	credited, err := s.ledgerRepo.CountByReferenceNoAndKind(ctx, booking.BookingNo, model.EntryKindStoreCredit)
	if err != nil {
		return nil, fmt.Errorf("查询账本失败: %w", err)
	}
	if credited > 0 {
		log.Printf("[Reconcile] 账本冲突: orderID=%s, bookingNo=%s, 已存在入账分录 %d 条",
			payment.GatewayOrderID, booking.BookingNo, credited)
		return nil, ErrLedgerConflict
	}

	fee := payment.Amount * s.cfg.Business.PlatformFeePercent / 100
	netCredit := payment.Amount - fee

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// 条件更新没命中说明并发重复回调已抢先处理，按幂等空操作处理
		if err := s.paymentRepo.UpdateStatus(ctx, tx, payment.GatewayOrderID, model.PaymentStatusPaid); err != nil {
			if errors.Is(err, repository.ErrPaymentStatusInvalid) {
				return err
			}
			return fmt.Errorf("更新支付单失败: %w", err)
		}

		if err := s.bookingRepo.UpdateStatus(ctx, tx, booking.BookingNo, model.BookingStatusPending, model.BookingStatusConfirmed); err != nil {
			return fmt.Errorf("确认预订失败: %w", err)
		}

		storeID := booking.StoreID
		entries := []*model.LedgerEntry{
			{
				EntryNo:     idgen.GenerateEntryNo(),
				StoreID:     nil,
				Amount:      -payment.Amount,
				Kind:        model.EntryKindPaymentReceived,
				ReferenceNo: booking.BookingNo,
				Remark:      fmt.Sprintf("顾客付款-%s", payment.GatewayOrderID),
			},
			{
				EntryNo:     idgen.GenerateEntryNo(),
				StoreID:     nil,
				Amount:      fee,
				Kind:        model.EntryKindPlatformFee,
				ReferenceNo: booking.BookingNo,
				Remark:      "平台佣金",
			},
			{
				EntryNo:     idgen.GenerateEntryNo(),
				StoreID:     &storeID,
				Amount:      netCredit,
				Kind:        model.EntryKindStoreCredit,
				ReferenceNo: booking.BookingNo,
				Remark:      "商家入账",
			},
		}

		walletCredit := netCredit

		// 积分代金券由平台补贴：给商家补回券抵扣的部分，平台侧记对应支出
		if booking.VoucherDiscount > 0 {
			entries = append(entries,
				&model.LedgerEntry{
					EntryNo:     idgen.GenerateEntryNo(),
					StoreID:     &storeID,
					Amount:      booking.VoucherDiscount,
					Kind:        model.EntryKindPointRedemptionAdjustment,
					ReferenceNo: booking.BookingNo,
					Remark:      "积分券平台补贴",
				},
				&model.LedgerEntry{
					EntryNo:     idgen.GenerateEntryNo(),
					StoreID:     nil,
					Amount:      -booking.VoucherDiscount,
					Kind:        model.EntryKindPointRedemptionAdjustment,
					ReferenceNo: booking.BookingNo,
					Remark:      "积分券平台补贴（平台侧）",
				},
			)
			walletCredit += booking.VoucherDiscount
		}

		if err := s.ledgerRepo.CreateBatch(ctx, tx, entries); err != nil {
			return fmt.Errorf("记账失败: %w", err)
		}

		if err := s.walletRepo.Credit(ctx, tx, booking.StoreID, walletCredit); err != nil {
			return fmt.Errorf("钱包入账失败: %w", err)
		}

		if err := s.enqueueEvents(ctx, tx, booking); err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		// 并发重复回调输掉了条件更新，等价于已处理
		if errors.Is(err, repository.ErrPaymentStatusInvalid) {
			return &ReconcileResult{
				OrderID: payment.GatewayOrderID,
				Status:  model.PaymentStatusPaid,
				Applied: false,
				Message: "重复回调，已处理",
			}, nil
		}
		return nil, err
	}

	log.Printf("[Reconcile] 支付成功入账: orderID=%s, bookingNo=%s, amount=%d, fee=%d",
		payment.GatewayOrderID, booking.BookingNo, payment.Amount, fee)

	return &ReconcileResult{
		OrderID: payment.GatewayOrderID,
		Status:  model.PaymentStatusPaid,
		Applied: true,
	}, nil
}

// applyFailed 支付失败/过期：只改支付单状态，预订留在 PENDING 等待取消或过期任务处理
func (s *ReconcileService) applyFailed(ctx context.Context, payment *model.Payment, targetStatus string) (*ReconcileResult, error) {
	err := s.paymentRepo.UpdateStatus(ctx, nil, payment.GatewayOrderID, targetStatus)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentStatusInvalid) {
			return &ReconcileResult{
				OrderID: payment.GatewayOrderID,
				Status:  targetStatus,
				Applied: false,
				Message: "重复回调，已处理",
			}, nil
		}
		return nil, fmt.Errorf("更新支付单失败: %w", err)
	}

	log.Printf("[Reconcile] 支付未成功: orderID=%s, status=%s", payment.GatewayOrderID, targetStatus)

	return &ReconcileResult{
		OrderID: payment.GatewayOrderID,
		Status:  targetStatus,
		Applied: true,
	}, nil
}

func (s *ReconcileService) enqueueEvents(ctx context.Context, tx *gorm.DB, booking *model.Booking) error {
	eventPayload, _ := json.Marshal(map[string]interface{}{
		"booking_no":  booking.BookingNo,
		"customer_id": booking.CustomerID,
		"status":      model.BookingStatusConfirmed,
		"updated_at":  time.Now().Format(time.RFC3339),
	})
	eventMsg := &model.OutboxMessage{
		MessageKey: booking.BookingNo,
		Topic:      s.cfg.Kafka.Topic.BookingUpdated,
		Payload:    string(eventPayload),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, tx, eventMsg); err != nil {
		return fmt.Errorf("写入事件失败: %w", err)
	}

	mailPayload, _ := json.Marshal(map[string]interface{}{
		"template":    "booking_confirmed",
		"booking_no":  booking.BookingNo,
		"customer_id": booking.CustomerID,
		"amount":      booking.TotalPrice,
	})
	mailMsg := &model.OutboxMessage{
		MessageKey: booking.BookingNo,
		Topic:      s.cfg.Kafka.Topic.NotifyEmail,
		Payload:    string(mailPayload),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, tx, mailMsg); err != nil {
		return fmt.Errorf("写入邮件任务失败: %w", err)
	}
	return nil
}

// parseGrossAmount 网关金额字段为字符串，可能带小数（如 "90000.00"）
func parseGrossAmount(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(f)), nil
}

func mapNotifyStatus(status string) (string, error) {
	switch status {
	case gateway.NotifyStatusPaid:
		return model.PaymentStatusPaid, nil
	case gateway.NotifyStatusFailed:
		return model.PaymentStatusFailed, nil
	case gateway.NotifyStatusExpired:
		return model.PaymentStatusExpired, nil
	default:
		return "", ErrUnknownStatus
	}
}
