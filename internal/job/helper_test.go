package job

import (
	"fmt"
	"testing"

	"marketplace/internal/config"
	"marketplace/internal/model"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.Booking{},
		&model.Payment{},
		&model.OutboxMessage{},
	))
	return db
}

func newTestConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				BookingUpdated: "booking.updated",
				NotifyEmail:    "notify.email",
			},
		},
		Business: config.BusinessConfig{
			PaymentTimeoutMinutes: 15,
			MaxRetryCount:         2,
		},
	}
}
