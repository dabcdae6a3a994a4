package service

import (
	"context"
	"errors"

	"course_checkout/internal/domain/enrollment/model"
	"course_checkout/internal/domain/enrollment/repository"
	"course_checkout/internal/pkg/apperr"
	"course_checkout/pkg/response"

	"gorm.io/gorm"
)

var ErrEnrollmentNotFound = apperr.NotFound(response.ErrEnrollmentNotFound, "not enrolled in this course")

// EnrollmentService 只读访问检查；授权只能由结算流程创建
type EnrollmentService interface {
	GetEnrollment(ctx context.Context, userID, courseID string) (*model.Enrollment, error)
}

type enrollmentService struct {
	repo repository.EnrollmentRepository
}

func NewEnrollmentService(repo repository.EnrollmentRepository) EnrollmentService {
	return &enrollmentService{repo: repo}
}

func (s *enrollmentService) GetEnrollment(ctx context.Context, userID, courseID string) (*model.Enrollment, error) {
	if userID == "" || courseID == "" {
		return nil, apperr.Validation(response.ErrInvalidParam, "user id and course id are required")
	}
	enrollment, err := s.repo.GetByUserCourse(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, apperr.Internal("load enrollment", err)
	}
	return enrollment, nil
}
