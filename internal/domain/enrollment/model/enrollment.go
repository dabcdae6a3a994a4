package model

import (
	"time"

	baseModel "course_checkout/pkg/model"
)

// Enrollment 课程访问授权，只由结算流程创建，(user_id, course_id) 唯一
type Enrollment struct {
	baseModel.BaseModel
	UserID          string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_enrollment_user_course" json:"userId"`
	CourseID        string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_enrollment_user_course" json:"courseId"`
	PaymentRecordID string    `gorm:"type:varchar(36);not null;index" json:"paymentRecordId"`
	EnrolledAt      time.Time `gorm:"not null" json:"enrolledAt"`
}
