package model

import (
	"time"

	baseModel "course_checkout/pkg/model"
)

// PaymentRecord 验签通过的支付记录，每个订单最多一条
type PaymentRecord struct {
	baseModel.BaseModel
	GatewayPaymentID  string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"gatewayPaymentId"`
	OrderID           string     `gorm:"type:varchar(36);uniqueIndex;not null" json:"orderId"`
	SignatureVerified bool       `gorm:"not null" json:"signatureVerified"`
	Amount            int64      `gorm:"not null" json:"amount"`
	Currency          string     `gorm:"type:varchar(8);not null" json:"currency"`
	Status            string     `gorm:"type:varchar(16);not null" json:"status"`
	VerifiedAt        time.Time  `gorm:"not null" json:"verifiedAt"`
	RefundedAt        *time.Time `json:"refundedAt,omitempty"`
}

const (
	PaymentStatusCaptured = "captured"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

// WebhookEvent 已处理的网关事件，用于去重
type WebhookEvent struct {
	baseModel.BaseModel
	EventID string `gorm:"type:varchar(128);uniqueIndex;not null" json:"eventId"`
	Event   string `gorm:"type:varchar(64);not null" json:"event"`
	Outcome string `gorm:"type:varchar(32)" json:"outcome"`
}
