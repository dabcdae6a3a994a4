package repository

import (
	"context"

	"course_checkout/internal/domain/enrollment/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EnrollmentRepository interface {
	WithTx(tx *gorm.DB) EnrollmentRepository
	// CreateIfAbsent 插入授权，(user_id, course_id) 已存在时返回已有记录与 false
	CreateIfAbsent(ctx context.Context, enrollment *model.Enrollment) (*model.Enrollment, bool, error)
	GetByUserCourse(ctx context.Context, userID, courseID string) (*model.Enrollment, error)
}

type enrollmentRepository struct {
	db *gorm.DB
}

func NewEnrollmentRepository(db *gorm.DB) EnrollmentRepository {
	return &enrollmentRepository{db: db}
}

func (r *enrollmentRepository) WithTx(tx *gorm.DB) EnrollmentRepository {
	return &enrollmentRepository{db: tx}
}

func (r *enrollmentRepository) CreateIfAbsent(ctx context.Context, enrollment *model.Enrollment) (*model.Enrollment, bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}},
			DoNothing: true,
		}).
		Create(enrollment)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected > 0 {
		return enrollment, true, nil
	}

	existing, err := r.GetByUserCourse(ctx, enrollment.UserID, enrollment.CourseID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *enrollmentRepository) GetByUserCourse(ctx context.Context, userID, courseID string) (*model.Enrollment, error) {
	var enrollment model.Enrollment
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&enrollment).Error
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}
