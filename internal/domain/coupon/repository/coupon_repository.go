package repository

import (
	"context"
	"errors"

	"course_checkout/internal/domain/coupon/model"

	"gorm.io/gorm"
)

// ErrUsageExhausted 条件更新未命中：used_count 已达到 max_uses
var ErrUsageExhausted = errors.New("coupon usage exhausted")

type CouponRepository interface {
	// WithTx 返回绑定到事务的仓库
	WithTx(tx *gorm.DB) CouponRepository
	GetByID(ctx context.Context, id string) (*model.Coupon, error)
	GetByCode(ctx context.Context, code string) (*model.Coupon, error)
	CountUserRedemptions(ctx context.Context, couponID, userID string) (int64, error)
	IncrementUsage(ctx context.Context, couponID string) error
	CreateRedemption(ctx context.Context, redemption *model.CouponRedemption) error
}

type couponRepository struct {
	db *gorm.DB
}

func NewCouponRepository(db *gorm.DB) CouponRepository {
	return &couponRepository{db: db}
}

func (r *couponRepository) WithTx(tx *gorm.DB) CouponRepository {
	return &couponRepository{db: tx}
}

func (r *couponRepository) GetByID(ctx context.Context, id string) (*model.Coupon, error) {
	var coupon model.Coupon
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&coupon).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *couponRepository) GetByCode(ctx context.Context, code string) (*model.Coupon, error) {
	var coupon model.Coupon
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&coupon).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *couponRepository) CountUserRedemptions(ctx context.Context, couponID, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.CouponRedemption{}).
		Where("coupon_id = ? AND user_id = ?", couponID, userID).
		Count(&count).Error
	return count, err
}

// IncrementUsage 乐观条件更新，单条 UPDATE 保证并发下 used_count 不超过 max_uses
func (r *couponRepository) IncrementUsage(ctx context.Context, couponID string) error {
	result := r.db.WithContext(ctx).Model(&model.Coupon{}).
		Where("id = ? AND used_count < max_uses", couponID).
		UpdateColumn("used_count", gorm.Expr("used_count + ?", 1))

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUsageExhausted
	}
	return nil
}

func (r *couponRepository) CreateRedemption(ctx context.Context, redemption *model.CouponRedemption) error {
	return r.db.WithContext(ctx).Create(redemption).Error
}
