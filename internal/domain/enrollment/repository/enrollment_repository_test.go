package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"course_checkout/internal/domain/enrollment/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&model.Enrollment{}))
	return db
}

func TestCreateIfAbsent(t *testing.T) {
	ctx := context.Background()
	repo := NewEnrollmentRepository(newTestDB(t))

	first, created, err := repo.CreateIfAbsent(ctx, &model.Enrollment{
		UserID:          "user-1",
		CourseID:        "course-1",
		PaymentRecordID: "payment-1",
		EnrolledAt:      time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, first.ID)

	second, created, err := repo.CreateIfAbsent(ctx, &model.Enrollment{
		UserID:          "user-1",
		CourseID:        "course-1",
		PaymentRecordID: "payment-2",
		EnrolledAt:      time.Now(),
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "payment-1", second.PaymentRecordID)

	// 其他课程不受影响
	_, created, err = repo.CreateIfAbsent(ctx, &model.Enrollment{
		UserID:          "user-1",
		CourseID:        "course-2",
		PaymentRecordID: "payment-3",
		EnrolledAt:      time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, created)
}

func TestGetByUserCourse(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewEnrollmentRepository(db)

	_, err := repo.GetByUserCourse(ctx, "user-1", "course-1")
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	_, _, err = repo.CreateIfAbsent(ctx, &model.Enrollment{UserID: "user-1", CourseID: "course-1", PaymentRecordID: "p", EnrolledAt: time.Now()})
	require.NoError(t, err)

	// 事务内可见
	err = db.Transaction(func(tx *gorm.DB) error {
		e, err := repo.WithTx(tx).GetByUserCourse(ctx, "user-1", "course-1")
		if err != nil {
			return err
		}
		assert.Equal(t, "course-1", e.CourseID)
		return nil
	})
	assert.NoError(t, err)
}
