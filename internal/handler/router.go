package handler

import (
	"marketplace/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 初始化路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *gin.Engine {
	router := gin.New()

	router.Use(LoggerMiddleware())
	router.Use(RecoveryMiddleware())
	router.Use(CORSMiddleware())

	h := NewHandler(db, rdb, cfg)

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		// 网关回调，由签名校验鉴权，不走 JWT
		v1.POST("/payment/notification", h.PaymentNotification)

		secret := cfg.Server.JWTSecret

		booking := v1.Group("/booking")
		{
			booking.POST("/create", JWTAuthMiddleware(secret, RoleCustomer), h.CreateBooking)
			booking.GET("/detail", JWTAuthMiddleware(secret), h.GetBooking)
			booking.GET("/list", JWTAuthMiddleware(secret), h.ListBookings)
			booking.POST("/cancel", JWTAuthMiddleware(secret, RoleCustomer, RoleStore), h.CancelBooking)
			booking.POST("/start", JWTAuthMiddleware(secret, RoleStore), h.StartBooking)
			booking.POST("/complete", JWTAuthMiddleware(secret, RoleStore), h.CompleteBooking)
			booking.POST("/review", JWTAuthMiddleware(secret, RoleCustomer), h.SubmitReview)
		}

		wallet := v1.Group("/wallet", JWTAuthMiddleware(secret, RoleStore, RoleAdmin))
		{
			wallet.GET("/balance", h.GetWalletBalance)
			wallet.GET("/ledger", h.ListWalletLedger)
		}

		payout := v1.Group("/payout")
		{
			payout.POST("/request", JWTAuthMiddleware(secret, RoleStore), h.RequestPayout)
			payout.POST("/decide", JWTAuthMiddleware(secret, RoleAdmin), h.DecidePayout)
			payout.POST("/settle", JWTAuthMiddleware(secret, RoleAdmin), h.SettlePayout)
			payout.GET("/list", JWTAuthMiddleware(secret, RoleStore, RoleAdmin), h.ListPayouts)
			payout.GET("/queue", JWTAuthMiddleware(secret, RoleAdmin), h.ListPayoutQueue)
		}

		// 运维兜底：重投发件箱里已放弃重试的消息
		outbox := v1.Group("/outbox", JWTAuthMiddleware(secret, RoleAdmin))
		{
			outbox.POST("/requeue", h.RequeueFailedOutbox)
		}

		promo := v1.Group("/promo", JWTAuthMiddleware(secret))
		{
			promo.POST("/preview", h.PreviewPromo)
		}

		loyalty := v1.Group("/loyalty", JWTAuthMiddleware(secret, RoleCustomer))
		{
			loyalty.GET("/points", h.GetLoyaltyPoints)
			loyalty.POST("/redeem", h.RedeemPoints)
		}
	}

	return router
}
