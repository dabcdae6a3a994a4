package service

import (
	"context"
	"errors"
	"testing"

	"course_checkout/internal/domain/catalog/model"
	"course_checkout/internal/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"
)

// MockCourseRepository is a mock of CourseRepository
type MockCourseRepository struct {
	mock.Mock
}

func (m *MockCourseRepository) GetByID(ctx context.Context, id string) (*model.Course, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Course), args.Error(1)
}

func createTestCourse(id string, price int64, published bool) *model.Course {
	c := &model.Course{
		Title:     "Go in Production",
		Price:     price,
		Currency:  "INR",
		Published: published,
		OwnerID:   "owner-1",
	}
	c.ID = id
	return c
}

func TestComputePrice(t *testing.T) {
	ctx := context.Background()

	t.Run("Published course returns catalog price", func(t *testing.T) {
		repo := new(MockCourseRepository)
		calc := NewPriceCalculator(repo)
		repo.On("GetByID", ctx, "course-1").Return(createTestCourse("course-1", 10000, true), nil)

		price, err := calc.ComputePrice(ctx, "course-1")

		assert.NoError(t, err)
		assert.Equal(t, int64(10000), price.Amount)
		assert.Equal(t, "INR", price.Currency)
		assert.Equal(t, "owner-1", price.OwnerID)
		repo.AssertExpectations(t)
	})

	t.Run("Unpublished course is not found", func(t *testing.T) {
		repo := new(MockCourseRepository)
		calc := NewPriceCalculator(repo)
		repo.On("GetByID", ctx, "draft").Return(createTestCourse("draft", 5000, false), nil)

		price, err := calc.ComputePrice(ctx, "draft")

		assert.Nil(t, price)
		assert.ErrorIs(t, err, ErrCourseNotFound)
	})

	t.Run("Missing course is not found", func(t *testing.T) {
		repo := new(MockCourseRepository)
		calc := NewPriceCalculator(repo)
		repo.On("GetByID", ctx, "nope").Return(nil, gorm.ErrRecordNotFound)

		_, err := calc.ComputePrice(ctx, "nope")

		assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	})

	t.Run("Storage failure is internal", func(t *testing.T) {
		repo := new(MockCourseRepository)
		calc := NewPriceCalculator(repo)
		repo.On("GetByID", ctx, "course-2").Return(nil, errors.New("connection reset"))

		_, err := calc.ComputePrice(ctx, "course-2")

		assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	})

	t.Run("Empty course id is rejected before storage", func(t *testing.T) {
		repo := new(MockCourseRepository)
		calc := NewPriceCalculator(repo)

		_, err := calc.ComputePrice(ctx, "")

		assert.True(t, apperr.IsKind(err, apperr.KindValidation))
		repo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
	})
}
