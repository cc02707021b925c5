package job

import (
	"context"
	"testing"
	"time"

	"marketplace/internal/model"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedPendingPayment(t *testing.T, db *gorm.DB, suffix string, expiredAt time.Time) (*model.Booking, *model.Payment) {
	t.Helper()
	booking := &model.Booking{
		BookingNo:     "BKG-" + suffix,
		RequestID:     "req-" + suffix,
		CustomerID:    101,
		StoreID:       201,
		ServiceID:     301,
		TotalPrice:    100000,
		OriginalPrice: 100000,
		Status:        model.BookingStatusPending,
		ScheduleDate:  time.Now().Add(24 * time.Hour),
	}
	require.NoError(t, db.Create(booking).Error)

	payment := &model.Payment{
		BookingNo:      booking.BookingNo,
		GatewayOrderID: "ORDER-" + suffix,
		Amount:         100000,
		Status:         model.PaymentStatusPending,
		ExpiredAt:      expiredAt,
	}
	require.NoError(t, db.Create(payment).Error)
	return booking, payment
}

func TestWatchdogExpiresOverduePayments(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	watchdog := NewPaymentWatchdog(db, cfg)
	ctx := context.Background()

	overdueBooking, overduePayment := seedPendingPayment(t, db, "overdue", time.Now().Add(-time.Minute))
	freshBooking, freshPayment := seedPendingPayment(t, db, "fresh", time.Now().Add(15*time.Minute))

	watchdog.expireOverduePayments(ctx)

	// 超时的支付单置 EXPIRED，预订同事务取消
	var gotPayment model.Payment
	require.NoError(t, db.Where("gateway_order_id = ?", overduePayment.GatewayOrderID).First(&gotPayment).Error)
	require.Equal(t, model.PaymentStatusExpired, gotPayment.Status)

	var gotBooking model.Booking
	require.NoError(t, db.Where("booking_no = ?", overdueBooking.BookingNo).First(&gotBooking).Error)
	require.Equal(t, model.BookingStatusCancelled, gotBooking.Status)

	// 未到期的不动（复用已填充主键的结构体会把 id 条件带进查询，必须用新变量）
	var gotFreshPayment model.Payment
	require.NoError(t, db.Where("gateway_order_id = ?", freshPayment.GatewayOrderID).First(&gotFreshPayment).Error)
	require.Equal(t, model.PaymentStatusPending, gotFreshPayment.Status)

	var gotFreshBooking model.Booking
	require.NoError(t, db.Where("booking_no = ?", freshBooking.BookingNo).First(&gotFreshBooking).Error)
	require.Equal(t, model.BookingStatusPending, gotFreshBooking.Status)
}

// 超时取消和其它取消来源一样要发状态事件，与状态写入同事务
func TestWatchdogCancellationEnqueuesStatusEvent(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	watchdog := NewPaymentWatchdog(db, cfg)
	ctx := context.Background()

	booking, _ := seedPendingPayment(t, db, "event", time.Now().Add(-time.Minute))

	watchdog.expireOverduePayments(ctx)

	var messages []*model.OutboxMessage
	require.NoError(t, db.Where("message_key = ?", booking.BookingNo).Find(&messages).Error)
	require.Len(t, messages, 1)
	require.Equal(t, cfg.Kafka.Topic.BookingUpdated, messages[0].Topic)
	require.Equal(t, model.OutboxStatusPending, messages[0].Status)
	require.Contains(t, messages[0].Payload, model.BookingStatusCancelled)

	// 重跑不会重复发事件：支付单已是终态，整个事务不再执行
	watchdog.expireOverduePayments(ctx)

	var count int64
	require.NoError(t, db.Model(&model.OutboxMessage{}).Where("message_key = ?", booking.BookingNo).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestWatchdogSkipsAlreadyConfirmedBooking(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	watchdog := NewPaymentWatchdog(db, cfg)
	ctx := context.Background()

	// 回调先到：预订已确认但支付单过期扫描还没跑（不会发生的竞态也要兜住）
	booking, payment := seedPendingPayment(t, db, "race", time.Now().Add(-time.Minute))
	require.NoError(t, db.Model(&model.Payment{}).
		Where("gateway_order_id = ?", payment.GatewayOrderID).
		Update("status", model.PaymentStatusPaid).Error)
	require.NoError(t, db.Model(&model.Booking{}).
		Where("booking_no = ?", booking.BookingNo).
		Update("status", model.BookingStatusConfirmed).Error)

	watchdog.expireOverduePayments(ctx)

	// 已支付的单子不受过期扫描影响
	var gotBooking model.Booking
	require.NoError(t, db.Where("booking_no = ?", booking.BookingNo).First(&gotBooking).Error)
	require.Equal(t, model.BookingStatusConfirmed, gotBooking.Status)
}
