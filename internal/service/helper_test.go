package service

import (
	"fmt"
	"testing"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB 每个测试独立的内存库，避免用例间互相污染
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.Booking{},
		&model.Review{},
		&model.Payment{},
		&model.LedgerEntry{},
		&model.StoreWallet{},
		&model.PayoutRequest{},
		&model.Promo{},
		&model.StorePromo{},
		&model.LoyaltyAccount{},
		&model.PointTransaction{},
		&model.OutboxMessage{},
	))
	return db
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func newTestConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:      8080,
			JWTSecret: "test-secret",
		},
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				BookingUpdated: "booking.updated",
				NotifyEmail:    "notify.email",
			},
		},
		Gateway: config.GatewayConfig{
			ServerKey: "test-server-key",
		},
		Business: config.BusinessConfig{
			PaymentTimeoutMinutes: 15,
			MaxRetryCount:         5,
			PlatformFeePercent:    10,
			PointEarnDivisor:      10000,
			PointValue:            100,
			VoucherValidDays:      30,
		},
	}
}

// newActivePromo 有效期内的通用优惠码
func newActivePromo(t *testing.T, db *gorm.DB, code string, discountType string, value int64, usageLimit int) *model.Promo {
	t.Helper()
	now := time.Now()
	promo := &model.Promo{
		Code:         code,
		DiscountType: discountType,
		Value:        value,
		UsageLimit:   usageLimit,
		Status:       model.PromoStatusActive,
		StartDate:    now.Add(-time.Hour),
		EndDate:      now.Add(24 * time.Hour),
	}
	require.NoError(t, db.Create(promo).Error)
	return promo
}
