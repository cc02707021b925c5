package job

import (
	"context"
	"testing"

	"marketplace/internal/infrastructure/mq"
	"marketplace/internal/model"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"
)

func TestOutboxSenderDelivers(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	sender := NewOutboxSender(db, cfg)
	ctx := context.Background()

	producer := mocks.NewSyncProducer(t, nil)
	defer producer.Close()
	mq.KafkaProducer = producer

	messages := []*model.OutboxMessage{
		{MessageKey: "BKG-1", Topic: "booking.updated", Payload: `{"status":"CONFIRMED"}`, Status: model.OutboxStatusPending},
		{MessageKey: "BKG-2", Topic: "notify.email", Payload: `{"template":"booking_confirmed"}`, Status: model.OutboxStatusPending},
	}
	require.NoError(t, db.Create(&messages).Error)

	producer.ExpectSendMessageAndSucceed()
	producer.ExpectSendMessageAndSucceed()

	sender.processPendingMessages(ctx)

	var sentCount int64
	require.NoError(t, db.Model(&model.OutboxMessage{}).
		Where("status = ?", model.OutboxStatusSent).
		Count(&sentCount).Error)
	require.Equal(t, int64(2), sentCount)

	// 已投递的消息不会被再次捞出
	messages, err := sender.outboxRepo.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, messages)
}

func TestOutboxSenderRetriesThenFails(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	sender := NewOutboxSender(db, cfg)
	ctx := context.Background()

	producer := mocks.NewSyncProducer(t, nil)
	defer producer.Close()
	mq.KafkaProducer = producer

	msg := &model.OutboxMessage{
		MessageKey: "BKG-1",
		Topic:      "booking.updated",
		Payload:    `{"status":"CONFIRMED"}`,
		Status:     model.OutboxStatusPending,
	}
	require.NoError(t, db.Create(msg).Error)

	// 第一轮失败：计数加一，仍是 PENDING
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	sender.processPendingMessages(ctx)

	var got model.OutboxMessage
	require.NoError(t, db.First(&got, msg.ID).Error)
	require.Equal(t, model.OutboxStatusPending, got.Status)
	require.Equal(t, 1, got.RetryCount)

	// 第二轮失败：达到最大重试次数，标记失败不再投递
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	sender.processPendingMessages(ctx)

	require.NoError(t, db.First(&got, msg.ID).Error)
	require.Equal(t, model.OutboxStatusFailed, got.Status)

	pending, err := sender.outboxRepo.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}
