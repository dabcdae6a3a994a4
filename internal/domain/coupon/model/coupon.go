package model

import (
	"time"

	baseModel "course_checkout/pkg/model"
)

const (
	DiscountTypePercent = "percent"
	DiscountTypeFixed   = "fixed"
)

// Coupon 优惠券定义 (由管理端创建，本服务只做校验与原子计数)
type Coupon struct {
	baseModel.BaseModel
	Code          string     `gorm:"type:varchar(32);uniqueIndex;not null" json:"code"` // 统一大写
	DiscountType  string     `gorm:"type:varchar(16);not null" json:"discountType"`
	DiscountValue int64      `gorm:"not null" json:"discountValue"` // percent: 1-100; fixed: 最小货币单位
	MaxUses       int        `gorm:"not null" json:"maxUses"`
	UsedCount     int        `gorm:"not null;default:0" json:"usedCount"` // 不变式: used_count <= max_uses
	PerUserLimit  int        `gorm:"not null;default:1" json:"perUserLimit"` // 0 表示不限
	CourseID      *string    `gorm:"type:varchar(36);index" json:"courseId,omitempty"` // 为空表示全部课程可用
	ValidFrom     time.Time  `gorm:"not null" json:"validFrom"`
	ValidUntil    *time.Time `json:"validUntil,omitempty"`
	Active        bool       `gorm:"not null;default:true" json:"active"`
}

// AppliesTo 课程范围校验
func (c *Coupon) AppliesTo(courseID string) bool {
	return c.CourseID == nil || *c.CourseID == courseID
}

// ValidAt 有效期校验，[ValidFrom, ValidUntil]
func (c *Coupon) ValidAt(t time.Time) bool {
	if t.Before(c.ValidFrom) {
		return false
	}
	return c.ValidUntil == nil || !t.After(*c.ValidUntil)
}

// CouponRedemption 优惠券核销记录，只在结算事务内写入
type CouponRedemption struct {
	baseModel.BaseModel
	CouponID       string `gorm:"type:varchar(36);index;not null" json:"couponId"`
	UserID         string `gorm:"type:varchar(36);index;not null" json:"userId"`
	OrderID        string `gorm:"type:varchar(36);uniqueIndex;not null" json:"orderId"`
	DiscountAmount int64  `gorm:"not null" json:"discountAmount"`
}
