package model

import (
	"time"

	baseModel "course_checkout/pkg/model"
)

// Order 订单，金额在创建时快照，之后不再重新计算
type Order struct {
	baseModel.BaseModel
	GatewayOrderID *string    `gorm:"type:varchar(64);uniqueIndex" json:"gatewayOrderId,omitempty"` // 网关应答前为空
	CourseID       string     `gorm:"type:varchar(36);index;not null" json:"courseId"`
	UserID         string     `gorm:"type:varchar(36);index;not null" json:"userId"`
	Currency       string     `gorm:"type:varchar(8);not null" json:"currency"`
	BaseAmount     int64      `gorm:"not null" json:"baseAmount"`
	DiscountAmount int64      `gorm:"not null;default:0" json:"discountAmount"`
	Amount         int64      `gorm:"not null" json:"amount"`
	CouponID       *string    `gorm:"type:varchar(36);index" json:"couponId,omitempty"`
	Status         string     `gorm:"type:varchar(16);not null;default:'created';index" json:"status"`
	FailureReason  string     `gorm:"type:varchar(255)" json:"failureReason,omitempty"`
	PaidAt         *time.Time `json:"paidAt,omitempty"`
}

// 状态机: created -> paid, created -> failed
const (
	OrderStatusCreated = "created"
	OrderStatusPaid    = "paid"
	OrderStatusFailed  = "failed"
)

func (o *Order) GatewayID() string {
	if o.GatewayOrderID == nil {
		return ""
	}
	return *o.GatewayOrderID
}
