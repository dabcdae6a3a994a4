package repository

import (
	"context"

	"course_checkout/internal/domain/catalog/model"

	"gorm.io/gorm"
)

type CourseRepository interface {
	GetByID(ctx context.Context, id string) (*model.Course, error)
}

type courseRepository struct {
	db *gorm.DB
}

func NewCourseRepository(db *gorm.DB) CourseRepository {
	return &courseRepository{db: db}
}

func (r *courseRepository) GetByID(ctx context.Context, id string) (*model.Course, error) {
	var course model.Course
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&course).Error; err != nil {
		return nil, err
	}
	return &course, nil
}
