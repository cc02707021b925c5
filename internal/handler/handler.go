package handler

import (
	"errors"
	"strconv"

	"marketplace/internal/config"
	"marketplace/internal/gateway"
	"marketplace/internal/model"
	"marketplace/internal/repository"
	"marketplace/internal/service"
	"marketplace/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	bookingService   *service.BookingService
	reconcileService *service.ReconcileService
	walletService    *service.WalletService
	payoutService    *service.PayoutService
	promoService     *service.PromoService
	loyaltyService   *service.LoyaltyService
	outboxRepo       *repository.OutboxRepository
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	return &Handler{
		bookingService:   service.NewBookingService(db, rdb, cfg),
		reconcileService: service.NewReconcileService(db, cfg),
		walletService:    service.NewWalletService(db),
		payoutService:    service.NewPayoutService(db, rdb, cfg),
		promoService:     service.NewPromoService(db),
		loyaltyService:   service.NewLoyaltyService(db, cfg),
		outboxRepo:       repository.NewOutboxRepository(db),
	}
}

// ============================================================
// 支付回调
// ============================================================

// PaymentNotification 网关支付回调
// POST /api/v1/payment/notification
//
// 【关键点】网关投递是 at-least-once：
// 应答 200 表示已确认（含幂等空操作），非 200 会触发网关重投，
// 所以只有瞬时故障才返回 5xx，签名错、未知订单这类确定性结果都要吞掉重投
func (h *Handler) PaymentNotification(c *gin.Context) {
	var n gateway.Notification
	if err := c.ShouldBindJSON(&n); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.reconcileService.Reconcile(c.Request.Context(), &n)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidSignature):
			response.BusinessError(c, response.CodeInvalidSignature, err.Error())
		case errors.Is(err, service.ErrUnknownOrder):
			// 已记录日志，应答 200 避免网关对无关订单反复重投
			response.BusinessError(c, response.CodeUnknownOrder, err.Error())
		case errors.Is(err, service.ErrAmountMismatch), errors.Is(err, service.ErrStatusConflict),
			errors.Is(err, service.ErrUnknownStatus), errors.Is(err, service.ErrLedgerConflict):
			response.BusinessError(c, response.CodeBusinessError, err.Error())
		default:
			c.JSON(500, gin.H{"code": 500, "message": err.Error()})
		}
		return
	}

	response.Success(c, result)
}

// ============================================================
// 预订相关接口
// ============================================================

// CreateBooking 创建预订
// POST /api/v1/booking/create
func (h *Handler) CreateBooking(c *gin.Context) {
	var req service.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.bookingService.CreateBooking(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrPromoLimitReached):
			response.BusinessError(c, response.CodePromoLimitReached, err.Error())
		case errors.Is(err, repository.ErrPromoNotFound),
			errors.Is(err, repository.ErrVoucherConsumed),
			errors.Is(err, service.ErrPromoInactive),
			errors.Is(err, service.ErrPromoOutOfWindow),
			errors.Is(err, service.ErrPromoMinTransaction),
			errors.Is(err, service.ErrPromoNotNewUser),
			errors.Is(err, service.ErrVoucherNotOwned):
			response.BusinessError(c, response.CodePromoNotEligible, err.Error())
		default:
			response.ServerError(c, err.Error())
		}
		return
	}

	response.Success(c, result)
}

// GetBooking 查询预订详情
// GET /api/v1/booking/detail?booking_no=xxx
func (h *Handler) GetBooking(c *gin.Context) {
	bookingNo := c.Query("booking_no")
	if bookingNo == "" {
		response.ParamError(c, "booking_no 参数不能为空")
		return
	}

	booking, err := h.bookingService.GetBooking(c.Request.Context(), bookingNo)
	if err != nil {
		if errors.Is(err, repository.ErrBookingNotFound) {
			response.BusinessError(c, response.CodeBookingNotFound, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, booking)
}

// ListBookings 查询顾客预订列表
// GET /api/v1/booking/list?customer_id=xxx&page=1&page_size=10
func (h *Handler) ListBookings(c *gin.Context) {
	customerIDStr := c.Query("customer_id")
	customerID, err := strconv.ParseInt(customerIDStr, 10, 64)
	if err != nil {
		response.ParamError(c, "customer_id 参数错误")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	bookings, total, err := h.bookingService.ListCustomerBookings(c.Request.Context(), customerID, page, pageSize)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"list":      bookings,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// CancelBooking 取消预订
// POST /api/v1/booking/cancel
func (h *Handler) CancelBooking(c *gin.Context) {
	var req struct {
		BookingNo string `json:"booking_no" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.bookingService.CancelBooking(c.Request.Context(), req.BookingNo); err != nil {
		h.bookingError(c, err)
		return
	}

	response.Success(c, gin.H{
		"message": "预订已取消",
	})
}

// StartBooking 商家开始服务
// POST /api/v1/booking/start
func (h *Handler) StartBooking(c *gin.Context) {
	var req struct {
		BookingNo string `json:"booking_no" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.bookingService.StartBooking(c.Request.Context(), req.BookingNo); err != nil {
		h.bookingError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "服务已开始"})
}

// CompleteBooking 商家完成服务
// POST /api/v1/booking/complete
func (h *Handler) CompleteBooking(c *gin.Context) {
	var req struct {
		BookingNo string `json:"booking_no" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.bookingService.CompleteBooking(c.Request.Context(), req.BookingNo); err != nil {
		h.bookingError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "服务已完成"})
}

// SubmitReview 提交评价
// POST /api/v1/booking/review
func (h *Handler) SubmitReview(c *gin.Context) {
	var req service.SubmitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.bookingService.SubmitReview(c.Request.Context(), &req); err != nil {
		h.bookingError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "评价已提交"})
}

func (h *Handler) bookingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrBookingNotFound):
		response.BusinessError(c, response.CodeBookingNotFound, err.Error())
	case errors.Is(err, repository.ErrBookingStatusInvalid):
		response.BusinessError(c, response.CodeBookingStatusInvalid, err.Error())
	case errors.Is(err, repository.ErrReviewExists):
		response.BusinessError(c, response.CodeBusinessError, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

// ============================================================
// 钱包相关接口
// ============================================================

// GetWalletBalance 查询商家钱包余额
// GET /api/v1/wallet/balance?store_id=xxx
func (h *Handler) GetWalletBalance(c *gin.Context) {
	storeID, err := strconv.ParseInt(c.Query("store_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "store_id 参数错误")
		return
	}

	wallet, err := h.walletService.GetWallet(c.Request.Context(), storeID)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"store_id": wallet.StoreID,
		"balance":  wallet.Balance,
	})
}

// ListWalletLedger 查询商家账本分录
// GET /api/v1/wallet/ledger?store_id=xxx&page=1&page_size=10
func (h *Handler) ListWalletLedger(c *gin.Context) {
	storeID, err := strconv.ParseInt(c.Query("store_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "store_id 参数错误")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	entries, total, err := h.walletService.ListLedger(c.Request.Context(), storeID, page, pageSize)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"list":      entries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 提现相关接口
// ============================================================

// RequestPayout 商家发起提现
// POST /api/v1/payout/request
func (h *Handler) RequestPayout(c *gin.Context) {
	var req struct {
		StoreID int64 `json:"store_id" binding:"required"`
		Amount  int64 `json:"amount" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	payout, err := h.payoutService.RequestPayout(c.Request.Context(), req.StoreID, req.Amount)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			response.BusinessError(c, response.CodeInsufficientFunds, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"payout_no": payout.PayoutNo,
		"status":    payout.Status,
		"amount":    payout.Amount,
	})
}

// DecidePayout 管理员审批提现
// POST /api/v1/payout/decide
func (h *Handler) DecidePayout(c *gin.Context) {
	var req struct {
		PayoutNo string `json:"payout_no" binding:"required"`
		Decision string `json:"decision" binding:"required,oneof=approved rejected"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	adminID := c.GetInt64(ContextUserID)

	err := h.payoutService.Decide(c.Request.Context(), req.PayoutNo, adminID, req.Decision == "approved")
	if err != nil {
		h.payoutError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "审批已提交"})
}

// SettlePayout 管理员结算已批准的提现
// POST /api/v1/payout/settle
func (h *Handler) SettlePayout(c *gin.Context) {
	var req struct {
		PayoutNo string `json:"payout_no" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.payoutService.Settle(c.Request.Context(), req.PayoutNo); err != nil {
		h.payoutError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "提现已结算"})
}

// ListPayouts 查询商家提现记录
// GET /api/v1/payout/list?store_id=xxx&page=1&page_size=10
func (h *Handler) ListPayouts(c *gin.Context) {
	storeID, err := strconv.ParseInt(c.Query("store_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "store_id 参数错误")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	payouts, total, err := h.payoutService.ListStorePayouts(c.Request.Context(), storeID, page, pageSize)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"list":      payouts,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ListPayoutQueue 管理员按状态查看提现队列，默认展示待审批的申请
// GET /api/v1/payout/queue?status=REQUESTED&limit=50
func (h *Handler) ListPayoutQueue(c *gin.Context) {
	status := c.DefaultQuery("status", model.PayoutStatusRequested)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	payouts, err := h.payoutService.ListPayoutsByStatus(c.Request.Context(), status, limit)
	if err != nil {
		if errors.Is(err, service.ErrPayoutStatusUnknown) {
			response.ParamError(c, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"list":  payouts,
		"total": len(payouts),
	})
}

// RequeueFailedOutbox 把发件箱里标记失败的消息放回待发送队列
// POST /api/v1/outbox/requeue?limit=100
func (h *Handler) RequeueFailedOutbox(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	messages, err := h.outboxRepo.GetFailedMessages(c.Request.Context(), limit)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	requeued := 0
	for _, msg := range messages {
		if err := h.outboxRepo.Requeue(c.Request.Context(), msg.ID); err != nil {
			response.ServerError(c, err.Error())
			return
		}
		requeued++
	}

	response.Success(c, gin.H{"requeued": requeued})
}

func (h *Handler) payoutError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrPayoutNotFound):
		response.BusinessError(c, response.CodePayoutNotFound, err.Error())
	case errors.Is(err, repository.ErrPayoutStatusInvalid):
		response.BusinessError(c, response.CodePayoutStatusInvalid, err.Error())
	case errors.Is(err, repository.ErrInsufficientFunds):
		response.BusinessError(c, response.CodeInsufficientFunds, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

// ============================================================
// 优惠与积分接口
// ============================================================

// PreviewPromo 试算优惠折扣
// POST /api/v1/promo/preview
func (h *Handler) PreviewPromo(c *gin.Context) {
	var req struct {
		Code       string `json:"code" binding:"required"`
		CustomerID int64  `json:"customer_id" binding:"required"`
		Total      int64  `json:"total" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	promo, err := h.promoService.Validate(c.Request.Context(), req.Code, req.CustomerID, req.Total)
	if err != nil {
		if errors.Is(err, repository.ErrPromoLimitReached) {
			response.BusinessError(c, response.CodePromoLimitReached, err.Error())
			return
		}
		response.BusinessError(c, response.CodePromoNotEligible, err.Error())
		return
	}

	discount := h.promoService.ComputeDiscount(promo, req.Total)
	response.Success(c, gin.H{
		"code":     promo.Code,
		"discount": discount,
		"total":    req.Total - discount,
	})
}

// GetLoyaltyPoints 查询积分与流水
// GET /api/v1/loyalty/points?user_id=xxx
func (h *Handler) GetLoyaltyPoints(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "user_id 参数错误")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	account, err := h.loyaltyService.GetAccount(c.Request.Context(), userID)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	transactions, total, err := h.loyaltyService.ListTransactions(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"user_id": account.UserID,
		"points":  account.Points,
		"history": transactions,
		"total":   total,
	})
}

// RedeemPoints 积分兑换代金券
// POST /api/v1/loyalty/redeem
func (h *Handler) RedeemPoints(c *gin.Context) {
	var req struct {
		UserID int64 `json:"user_id" binding:"required"`
		Points int64 `json:"points" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.loyaltyService.Redeem(c.Request.Context(), req.UserID, req.Points)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientPoints) {
			response.BusinessError(c, response.CodeInsufficientPoints, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, result)
}
