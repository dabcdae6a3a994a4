package service

import (
	"context"
	"errors"
	"fmt"

	"course_checkout/internal/domain/catalog/repository"
	"course_checkout/internal/pkg/apperr"
	"course_checkout/pkg/response"

	"gorm.io/gorm"
)

var ErrCourseNotFound = apperr.NotFound(response.ErrCourseNotFound, "course not found")

// Price 服务端权威价格
type Price struct {
	CourseID string
	OwnerID  string
	Amount   int64
	Currency string
}

// PriceCalculator 每次都从课程目录重新读取价格，从不信任调用方传入的金额
type PriceCalculator interface {
	ComputePrice(ctx context.Context, courseID string) (*Price, error)
}

type priceCalculator struct {
	repo repository.CourseRepository
}

func NewPriceCalculator(repo repository.CourseRepository) PriceCalculator {
	return &priceCalculator{repo: repo}
}

func (p *priceCalculator) ComputePrice(ctx context.Context, courseID string) (*Price, error) {
	if courseID == "" {
		return nil, apperr.Validation(response.ErrInvalidParam, "course id is required")
	}

	course, err := p.repo.GetByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, apperr.Internal("load course", err)
	}
	// 未上架课程对购买方不可见
	if !course.Published {
		return nil, ErrCourseNotFound
	}
	if course.Price < 0 {
		return nil, apperr.Internal("load course", fmt.Errorf("course %s has negative price", course.ID))
	}

	return &Price{
		CourseID: course.ID,
		OwnerID:  course.OwnerID,
		Amount:   course.Price,
		Currency: course.Currency,
	}, nil
}
