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

type BookingService struct {
	db           *gorm.DB
	redisClient  *redis.Client
	cfg          *config.Config
	bookingRepo  *repository.BookingRepository
	paymentRepo  *repository.PaymentRepository
	outboxRepo   *repository.OutboxRepository
	promoService *PromoService
	loyalty      *LoyaltyService
}

func NewBookingService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *BookingService {
	return &BookingService{
		db:           db,
		redisClient:  redisClient,
		cfg:          cfg,
		bookingRepo:  repository.NewBookingRepository(db),
		paymentRepo:  repository.NewPaymentRepository(db),
		outboxRepo:   repository.NewOutboxRepository(db),
		promoService: NewPromoService(db),
		loyalty:      NewLoyaltyService(db, cfg),
	}
}

type CreateBookingRequest struct {
	RequestID    string    `json:"request_id" binding:"required"` // 幂等ID，客户端生成
	CustomerID   int64     `json:"customer_id" binding:"required"`
	StoreID      int64     `json:"store_id" binding:"required"`
	ServiceID    int64     `json:"service_id" binding:"required"`
	TotalPrice   int64     `json:"total_price" binding:"required,gt=0"` // 折扣前金额
	ScheduleDate time.Time `json:"schedule_date" binding:"required"`
	PromoCode    string    `json:"promo_code"`
}

type CreateBookingResponse struct {
	BookingNo      string `json:"booking_no"`
	GatewayOrderID string `json:"gateway_order_id"` // 用于网关跳转/收银台
	Status         string `json:"status"`
	OriginalPrice  int64  `json:"original_price"`
	Discount       int64  `json:"discount"`
	TotalPrice     int64  `json:"total_price"`
	Message        string `json:"message,omitempty"`
}

// CreateBooking 创建预订
//
// 优惠核销、预订落库、支付单创建在同一事务内：
// 优惠码计数递增失败（并发打满上限）时整单回滚，不会出现占了名额没下单的状态
func (s *BookingService) CreateBooking(ctx context.Context, req *CreateBookingRequest) (*CreateBookingResponse, error) {
	// 幂等校验
	existing, err := s.bookingRepo.GetByRequestID(ctx, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("查询预订失败: %w", err)
	}
	if existing != nil {
		return s.toCreateResponse(ctx, existing, "预订已存在")
	}

	var promo *model.Promo
	var discount int64

	if req.PromoCode != "" {
		promo, err = s.promoService.Validate(ctx, req.PromoCode, req.CustomerID, req.TotalPrice)
		if err != nil {
			return nil, err
		}
		discount = s.promoService.ComputeDiscount(promo, req.TotalPrice)

		// 个人代金券加锁，同一张券的并发下单在进事务前就串行化
		if promo.OwnerUserID != nil {
			voucherLock := lock.NewVoucherLock(s.redisClient, promo.Code, req.RequestID)
			if err := voucherLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
				return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
			}
			defer voucherLock.Unlock(ctx)
		}
	}

	bookingNo := idgen.GenerateBookingNo()
	gatewayOrderID := idgen.GenerateGatewayOrderID()
	finalPrice := req.TotalPrice - discount
	expiredAt := time.Now().Add(time.Duration(s.cfg.Business.PaymentTimeoutMinutes) * time.Minute)

	booking := &model.Booking{
		BookingNo:     bookingNo,
		RequestID:     req.RequestID,
		CustomerID:    req.CustomerID,
		StoreID:       req.StoreID,
		ServiceID:     req.ServiceID,
		TotalPrice:    finalPrice,
		OriginalPrice: req.TotalPrice,
		Status:        model.BookingStatusPending,
		ScheduleDate:  req.ScheduleDate,
	}
	if promo != nil {
		code := promo.Code
		booking.PromoCode = &code
		if promo.OwnerUserID != nil {
			booking.VoucherDiscount = discount
		}
	}

	payment := &model.Payment{
		BookingNo:      bookingNo,
		GatewayOrderID: gatewayOrderID,
		Amount:         finalPrice,
		Status:         model.PaymentStatusPending,
		ExpiredAt:      expiredAt,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if promo != nil {
			if err := s.promoService.Redeem(ctx, tx, promo, req.StoreID); err != nil {
				return err
			}
		}

		if err := s.bookingRepo.Create(ctx, tx, booking); err != nil {
			return fmt.Errorf("创建预订失败: %w", err)
		}

		if err := s.paymentRepo.Create(ctx, tx, payment); err != nil {
			return fmt.Errorf("创建支付单失败: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	log.Printf("预订创建成功: bookingNo=%s, customerID=%d, amount=%d, discount=%d",
		bookingNo, req.CustomerID, finalPrice, discount)

	return &CreateBookingResponse{
		BookingNo:      bookingNo,
		GatewayOrderID: gatewayOrderID,
		Status:         booking.Status,
		OriginalPrice:  req.TotalPrice,
		Discount:       discount,
		TotalPrice:     finalPrice,
	}, nil
}

func (s *BookingService) toCreateResponse(ctx context.Context, booking *model.Booking, message string) (*CreateBookingResponse, error) {
	payment, err := s.paymentRepo.GetByBookingNo(ctx, booking.BookingNo)
	if err != nil {
		return nil, err
	}
	return &CreateBookingResponse{
		BookingNo:      booking.BookingNo,
		GatewayOrderID: payment.GatewayOrderID,
		Status:         booking.Status,
		OriginalPrice:  booking.OriginalPrice,
		Discount:       booking.OriginalPrice - booking.TotalPrice,
		TotalPrice:     booking.TotalPrice,
		Message:        message,
	}, nil
}

func (s *BookingService) GetBooking(ctx context.Context, bookingNo string) (*model.Booking, error) {
	return s.bookingRepo.GetByBookingNo(ctx, bookingNo)
}

func (s *BookingService) ListCustomerBookings(ctx context.Context, customerID int64, page, pageSize int) ([]*model.Booking, int64, error) {
	return s.bookingRepo.ListByCustomerID(ctx, customerID, page, pageSize)
}

// CancelBooking 取消预订
// 只能从 PENDING / CONFIRMED / IN_PROGRESS 取消，状态机边表拒绝其余来源
func (s *BookingService) CancelBooking(ctx context.Context, bookingNo string) error {
	booking, err := s.bookingRepo.GetByBookingNo(ctx, bookingNo)
	if err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.bookingRepo.UpdateStatus(ctx, tx, bookingNo, booking.Status, model.BookingStatusCancelled); err != nil {
			return err
		}
		return s.enqueueStatusEvent(ctx, tx, booking, model.BookingStatusCancelled)
	})
	if err != nil {
		return err
	}

	log.Printf("预订已取消: bookingNo=%s", bookingNo)
	return nil
}

// StartBooking 商家开始服务
func (s *BookingService) StartBooking(ctx context.Context, bookingNo string) error {
	booking, err := s.bookingRepo.GetByBookingNo(ctx, bookingNo)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.bookingRepo.UpdateStatus(ctx, tx, bookingNo, model.BookingStatusConfirmed, model.BookingStatusInProgress); err != nil {
			return err
		}
		return s.enqueueStatusEvent(ctx, tx, booking, model.BookingStatusInProgress)
	})
}

// CompleteBooking 商家完成服务，同事务内为顾客累积积分
func (s *BookingService) CompleteBooking(ctx context.Context, bookingNo string) error {
	booking, err := s.bookingRepo.GetByBookingNo(ctx, bookingNo)
	if err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.bookingRepo.UpdateStatus(ctx, tx, bookingNo, model.BookingStatusInProgress, model.BookingStatusCompleted); err != nil {
			return err
		}

		if err := s.loyalty.AwardPoints(ctx, tx, booking.CustomerID, bookingNo, booking.TotalPrice); err != nil {
			return fmt.Errorf("累积积分失败: %w", err)
		}

		return s.enqueueStatusEvent(ctx, tx, booking, model.BookingStatusCompleted)
	})
	if err != nil {
		return err
	}

	log.Printf("预订已完成: bookingNo=%s, customerID=%d", bookingNo, booking.CustomerID)
	return nil
}

type SubmitReviewRequest struct {
	BookingNo  string `json:"booking_no" binding:"required"`
	CustomerID int64  `json:"customer_id" binding:"required"`
	Rating     int    `json:"rating" binding:"required,min=1,max=5"`
	Comment    string `json:"comment"`
}

// SubmitReview 提交评价并把预订推进到 REVIEWED（终态，不可逆）
// 每个已完成预订只允许一条评价
func (s *BookingService) SubmitReview(ctx context.Context, req *SubmitReviewRequest) error {
	booking, err := s.bookingRepo.GetByBookingNo(ctx, req.BookingNo)
	if err != nil {
		return err
	}
	if booking.CustomerID != req.CustomerID {
		return errors.New("只能评价自己的预订")
	}

	existing, err := s.bookingRepo.GetReviewByBookingNo(ctx, req.BookingNo)
	if err != nil {
		return err
	}
	if existing != nil {
		return repository.ErrReviewExists
	}

	review := &model.Review{
		BookingNo:  req.BookingNo,
		CustomerID: req.CustomerID,
		Rating:     req.Rating,
		Comment:    req.Comment,
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.bookingRepo.UpdateStatus(ctx, tx, req.BookingNo, model.BookingStatusCompleted, model.BookingStatusReviewed); err != nil {
			return err
		}
		if err := s.bookingRepo.CreateReview(ctx, tx, review); err != nil {
			return err
		}
		return s.enqueueStatusEvent(ctx, tx, booking, model.BookingStatusReviewed)
	})
}

// enqueueStatusEvent 状态变更事件进发件箱，与状态写入同事务提交
// 实际投递由后台任务异步完成，投递失败不影响已提交的迁移
func (s *BookingService) enqueueStatusEvent(ctx context.Context, tx *gorm.DB, booking *model.Booking, status string) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"booking_no":  booking.BookingNo,
		"customer_id": booking.CustomerID,
		"status":      status,
		"updated_at":  time.Now().Format(time.RFC3339),
	})

	msg := &model.OutboxMessage{
		MessageKey: booking.BookingNo,
		Topic:      s.cfg.Kafka.Topic.BookingUpdated,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("写入事件失败: %w", err)
	}
	return nil
}
