package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"course_checkout/internal/domain/coupon/model"
	"course_checkout/internal/domain/coupon/repository"
	"course_checkout/internal/pkg/apperr"
	"course_checkout/pkg/response"

	"gorm.io/gorm"
)

var (
	ErrInvalidCode      = apperr.Validation(response.ErrCouponInvalidCode, "invalid coupon code format")
	ErrCouponNotFound   = apperr.NotFound(response.ErrCouponNotFound, "coupon not found")
	ErrCouponExpired    = apperr.New(apperr.KindExpired, response.ErrCouponExpired, "coupon is not within its validity window")
	ErrNotApplicable    = apperr.New(apperr.KindNotApplicable, response.ErrCouponNotApplicable, "coupon does not apply to this course")
	ErrUsageLimit       = apperr.New(apperr.KindUsageLimitExceeded, response.ErrCouponUsageLimit, "coupon usage limit reached")
	ErrCouponExhausted  = apperr.Conflict(response.ErrCouponExhausted, "coupon was exhausted before settlement")
	ErrUserLimitReached = apperr.Conflict(response.ErrCouponUsageLimit, "coupon per-user limit reached before settlement")
)

var codePattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_-]{2,31}$`)

// Quote 优惠报价
type Quote struct {
	CouponID       string `json:"couponId"`
	Code           string `json:"code"`
	DiscountAmount int64  `json:"discountAmount"`
	FinalPrice     int64  `json:"finalPrice"`
}

// CouponValidator 只读校验，不修改 used_count
type CouponValidator interface {
	Validate(ctx context.Context, code, courseID, userID string, basePrice int64) (*Quote, error)
}

// CouponRedeemer 结算事务内的核销
type CouponRedeemer interface {
	Redeem(ctx context.Context, tx *gorm.DB, couponID, userID, orderID string, discount int64) error
}

// CouponService 校验 + 核销
type CouponService interface {
	CouponValidator
	CouponRedeemer
}

type couponService struct {
	repo     repository.CouponRepository
	minFinal int64
	now      func() time.Time
}

// NewCouponService minFinal 为最低成交价 (最小货币单位)
func NewCouponService(repo repository.CouponRepository, minFinal int64) CouponService {
	if minFinal < 0 {
		minFinal = 0
	}
	return &couponService{
		repo:     repo,
		minFinal: minFinal,
		now:      time.Now,
	}
}

// NormalizeCode 去空白并转大写
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *couponService) Validate(ctx context.Context, code, courseID, userID string, basePrice int64) (*Quote, error) {
	code = NormalizeCode(code)
	if !codePattern.MatchString(code) {
		return nil, ErrInvalidCode
	}
	if basePrice < 0 {
		return nil, apperr.Validation(response.ErrInvalidParam, "base price cannot be negative")
	}

	coupon, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCouponNotFound
		}
		return nil, apperr.Internal("load coupon", err)
	}
	if !coupon.Active {
		return nil, ErrCouponNotFound
	}
	if !coupon.ValidAt(s.now()) {
		return nil, ErrCouponExpired
	}
	if !coupon.AppliesTo(courseID) {
		return nil, ErrNotApplicable
	}
	if coupon.UsedCount >= coupon.MaxUses {
		return nil, ErrUsageLimit
	}
	if coupon.PerUserLimit > 0 {
		used, err := s.repo.CountUserRedemptions(ctx, coupon.ID, userID)
		if err != nil {
			return nil, apperr.Internal("count coupon redemptions", err)
		}
		if used >= int64(coupon.PerUserLimit) {
			return nil, ErrUsageLimit
		}
	}

	discount, final := ApplyDiscount(coupon.DiscountType, coupon.DiscountValue, basePrice, s.minFinal)
	return &Quote{
		CouponID:       coupon.ID,
		Code:           coupon.Code,
		DiscountAmount: discount,
		FinalPrice:     final,
	}, nil
}

// Redeem 原子递增 used_count 并写入核销记录，必须在结算事务内调用
func (s *couponService) Redeem(ctx context.Context, tx *gorm.DB, couponID, userID, orderID string, discount int64) error {
	repo := s.repo.WithTx(tx)

	if err := repo.IncrementUsage(ctx, couponID); err != nil {
		if errors.Is(err, repository.ErrUsageExhausted) {
			return ErrCouponExhausted
		}
		return apperr.Internal("increment coupon usage", err)
	}

	// 报价之后同一用户可能已经用掉了额度
	coupon, err := repo.GetByID(ctx, couponID)
	if err != nil {
		return apperr.Internal("load coupon", err)
	}
	if coupon.PerUserLimit > 0 {
		used, err := repo.CountUserRedemptions(ctx, couponID, userID)
		if err != nil {
			return apperr.Internal("count coupon redemptions", err)
		}
		if used >= int64(coupon.PerUserLimit) {
			return ErrUserLimitReached
		}
	}

	if err := repo.CreateRedemption(ctx, &model.CouponRedemption{
		CouponID:       couponID,
		UserID:         userID,
		OrderID:        orderID,
		DiscountAmount: discount,
	}); err != nil {
		return apperr.Internal("create coupon redemption", err)
	}
	return nil
}

// ApplyDiscount 计算折扣与成交价
// percent 按四舍五入取整并不超过原价；fixed 取 min(value, base)；成交价不低于 minFinal 且不高于原价
func ApplyDiscount(discountType string, value, base, minFinal int64) (discount, final int64) {
	switch discountType {
	case model.DiscountTypePercent:
		if value < 0 {
			value = 0
		}
		discount = (base*value + 50) / 100
	case model.DiscountTypeFixed:
		discount = value
	}
	if discount < 0 {
		discount = 0
	}
	if discount > base {
		discount = base
	}

	final = base - discount
	if final < minFinal {
		final = minFinal
	}
	if final > base {
		final = base
	}
	if final < 0 {
		final = 0
	}
	return base - final, final
}
