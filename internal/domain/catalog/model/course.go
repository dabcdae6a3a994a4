package model

import (
	baseModel "course_checkout/pkg/model"
)

// Course 课程目录 (由外部管理端维护，本服务只读)
type Course struct {
	baseModel.BaseModel
	Title     string `gorm:"type:varchar(200);not null" json:"title"`
	Price     int64  `gorm:"not null" json:"price"` // 最小货币单位
	Currency  string `gorm:"type:varchar(8);not null" json:"currency"`
	Published bool   `gorm:"not null;default:false" json:"published"`
	OwnerID   string `gorm:"type:varchar(36);index" json:"ownerId"` // 课程作者，用于结算异常通知
}
