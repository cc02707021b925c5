package repository

import (
	"context"
	"errors"

	"marketplace/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrLoyaltyAccountNotFound = errors.New("积分账户不存在")
	ErrInsufficientPoints     = errors.New("积分不足")
)

type LoyaltyRepository struct {
	db *gorm.DB
}

func NewLoyaltyRepository(db *gorm.DB) *LoyaltyRepository {
	return &LoyaltyRepository{db: db}
}

func (r *LoyaltyRepository) GetByUserID(ctx context.Context, userID int64) (*model.LoyaltyAccount, error) {
	var account model.LoyaltyAccount
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLoyaltyAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *LoyaltyRepository) GetOrCreate(ctx context.Context, userID int64) (*model.LoyaltyAccount, error) {
	account, err := r.GetByUserID(ctx, userID)
	if err == nil {
		return account, nil
	}

	if !errors.Is(err, ErrLoyaltyAccountNotFound) {
		return nil, err
	}

	newAccount := &model.LoyaltyAccount{
		UserID: userID,
		Points: 0,
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(newAccount).Error

	if err != nil {
		return nil, err
	}

	return r.GetByUserID(ctx, userID)
}

// AddPoints 累积积分
func (r *LoyaltyRepository) AddPoints(ctx context.Context, tx *gorm.DB, userID int64, points int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.LoyaltyAccount{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"points":  gorm.Expr("points + ?", points),
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrLoyaltyAccountNotFound
	}

	return nil
}

// DeductPoints 扣减积分
//
// points >= n 的校验和扣减是一条条件更新，并发兑换不可能把积分扣成负数
func (r *LoyaltyRepository) DeductPoints(ctx context.Context, tx *gorm.DB, userID int64, points int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.LoyaltyAccount{}).
		Where("user_id = ? AND points >= ?", userID, points).
		Updates(map[string]interface{}{
			"points":  gorm.Expr("points - ?", points),
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrInsufficientPoints
	}

	return nil
}

func (r *LoyaltyRepository) CreateTransaction(ctx context.Context, tx *gorm.DB, trans *model.PointTransaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

// SumByUserID 汇总积分流水，作为账户余额的对账基准
func (r *LoyaltyRepository) SumByUserID(ctx context.Context, userID int64) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&model.PointTransaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(points), 0)").
		Scan(&sum).Error
	return sum, err
}

func (r *LoyaltyRepository) ListTransactionsByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.PointTransaction, int64, error) {
	var transactions []*model.PointTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.PointTransaction{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}
