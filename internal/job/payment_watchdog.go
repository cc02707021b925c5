package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/model"
	"marketplace/internal/repository"

	"gorm.io/gorm"
)

// PaymentWatchdog 支付超时看门狗。
// 过期的待支付单置为 EXPIRED，关联预订取消；
// 长时间没有任何回调的支付单单独记录，供人工核对网关侧状态。
type PaymentWatchdog struct {
	db          *gorm.DB
	paymentRepo *repository.PaymentRepository
	bookingRepo *repository.BookingRepository
	outboxRepo  *repository.OutboxRepository
	cfg         *config.Config
	stopCh      chan struct{}
	interval    time.Duration
	batchSize   int
}

func NewPaymentWatchdog(db *gorm.DB, cfg *config.Config) *PaymentWatchdog {
	return &PaymentWatchdog{
		db:          db,
		paymentRepo: repository.NewPaymentRepository(db),
		bookingRepo: repository.NewBookingRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
		cfg:         cfg,
		stopCh:      make(chan struct{}),
		interval:    10 * time.Second,
		batchSize:   100,
	}
}

func (j *PaymentWatchdog) Start(ctx context.Context) {
	log.Println("[PaymentWatchdog] 支付超时任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[PaymentWatchdog] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[PaymentWatchdog] 任务停止")
			return
		case <-ticker.C:
			j.expireOverduePayments(ctx)
			j.reportStalePayments(ctx)
		}
	}
}

func (j *PaymentWatchdog) Stop() {
	close(j.stopCh)
}

func (j *PaymentWatchdog) expireOverduePayments(ctx context.Context) {
	payments, err := j.paymentRepo.GetExpiredPending(ctx, j.batchSize)
	if err != nil {
		log.Printf("[PaymentWatchdog] 查询超时支付单失败: %v", err)
		return
	}

	if len(payments) == 0 {
		return
	}

	log.Printf("[PaymentWatchdog] 发现 %d 个超时支付单", len(payments))

	expiredCount := 0
	for _, payment := range payments {
		if err := j.expirePayment(ctx, payment); err != nil {
			log.Printf("[PaymentWatchdog] 关闭支付单失败: gatewayOrderID=%s, err=%v", payment.GatewayOrderID, err)
			continue
		}
		expiredCount++
		log.Printf("[PaymentWatchdog] 支付单已超时关闭: gatewayOrderID=%s, bookingNo=%s, amount=%d",
			payment.GatewayOrderID, payment.BookingNo, payment.Amount)
	}

	log.Printf("[PaymentWatchdog] 本次关闭 %d 个超时支付单", expiredCount)
}

// expirePayment 支付单置为 EXPIRED 并取消预订，两步在同一事务里。
// 条件更新没命中说明回调刚好赶在超时前到达，放弃本次处理。
// 超时取消和其它来源的取消一样要发状态事件，与状态写入同事务提交。
func (j *PaymentWatchdog) expirePayment(ctx context.Context, payment *model.Payment) error {
	booking, err := j.bookingRepo.GetByBookingNo(ctx, payment.BookingNo)
	if err != nil {
		return err
	}

	return j.db.Transaction(func(tx *gorm.DB) error {
		if err := j.paymentRepo.UpdateStatus(ctx, tx, payment.GatewayOrderID, model.PaymentStatusExpired); err != nil {
			return err
		}

		err := j.bookingRepo.UpdateStatus(ctx, tx, payment.BookingNo, model.BookingStatusPending, model.BookingStatusCancelled)
		if err != nil {
			if errors.Is(err, repository.ErrBookingStatusInvalid) {
				return nil
			}
			return err
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"booking_no":  booking.BookingNo,
			"customer_id": booking.CustomerID,
			"status":      model.BookingStatusCancelled,
			"updated_at":  time.Now().Format(time.RFC3339),
		})
		msg := &model.OutboxMessage{
			MessageKey: booking.BookingNo,
			Topic:      j.cfg.Kafka.Topic.BookingUpdated,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		}
		if err := j.outboxRepo.Create(ctx, tx, msg); err != nil {
			return fmt.Errorf("写入事件失败: %w", err)
		}
		return nil
	})
}

// stalePendingWindow 兜底窗口，远大于正常的回调延迟
const stalePendingWindow = 30 * time.Minute

func (j *PaymentWatchdog) reportStalePayments(ctx context.Context) {
	beforeTime := time.Now().Add(-stalePendingWindow)
	payments, err := j.paymentRepo.GetStalePending(ctx, beforeTime, j.batchSize)
	if err != nil {
		log.Printf("[PaymentWatchdog] 查询滞留支付单失败: %v", err)
		return
	}

	for _, payment := range payments {
		log.Printf("[PaymentWatchdog] 支付单长时间无回调，需人工核对网关状态: gatewayOrderID=%s, bookingNo=%s, createdAt=%v",
			payment.GatewayOrderID, payment.BookingNo, payment.CreatedAt)
	}
}
