package repository

import (
	"context"
	"errors"

	"marketplace/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrPromoNotFound     = errors.New("优惠码不存在")
	ErrPromoLimitReached = errors.New("优惠码已达使用上限")
	ErrVoucherConsumed   = errors.New("代金券已被使用")
)

type PromoRepository struct {
	db *gorm.DB
}

func NewPromoRepository(db *gorm.DB) *PromoRepository {
	return &PromoRepository{db: db}
}

func (r *PromoRepository) Create(ctx context.Context, tx *gorm.DB, promo *model.Promo) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(promo).Error
}

func (r *PromoRepository) GetByCode(ctx context.Context, code string) (*model.Promo, error) {
	var promo model.Promo
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&promo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPromoNotFound
		}
		return nil, err
	}
	return &promo, nil
}

// IncrementUsage 兑换计数
//
// 【关键点】usage_count < usage_limit 的校验和 +1 必须是一条条件更新，
// 并发兑换在上限边界最多只有 usage_limit 次能命中，先读后写会超卖
func (r *PromoRepository) IncrementUsage(ctx context.Context, tx *gorm.DB, promoID int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Promo{}).
		Where("id = ? AND status = ? AND usage_count < usage_limit", promoID, model.PromoStatusActive).
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1"))

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrPromoLimitReached
	}

	return nil
}

// ConsumeVoucher 代金券一次性核销，并发使用同一张券只允许一个赢家
func (r *PromoRepository) ConsumeVoucher(ctx context.Context, tx *gorm.DB, promoID int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Promo{}).
		Where("id = ? AND consumed = ?", promoID, false).
		Update("consumed", true)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrVoucherConsumed
	}

	return nil
}

// IncrementStoreRedeemed 单店兑换计数 +1，参与记录不存在时先建
func (r *PromoRepository) IncrementStoreRedeemed(ctx context.Context, tx *gorm.DB, promoID, storeID int64) error {
	if tx == nil {
		tx = r.db
	}

	err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "promo_id"}, {Name: "store_id"}},
			DoNothing: true,
		}).
		Create(&model.StorePromo{PromoID: promoID, StoreID: storeID}).Error
	if err != nil {
		return err
	}

	return tx.WithContext(ctx).
		Model(&model.StorePromo{}).
		Where("promo_id = ? AND store_id = ?", promoID, storeID).
		UpdateColumn("redeemed", gorm.Expr("redeemed + 1")).Error
}

func (r *PromoRepository) GetStorePromo(ctx context.Context, promoID, storeID int64) (*model.StorePromo, error) {
	var sp model.StorePromo
	err := r.db.WithContext(ctx).
		Where("promo_id = ? AND store_id = ?", promoID, storeID).
		First(&sp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sp, nil
}
