package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return db, mock
}

func TestIncrementUsage(t *testing.T) {
	ctx := context.Background()

	t.Run("Conditional update hits one row", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewCouponRepository(db)

		mock.ExpectExec(`UPDATE "coupons" SET "used_count"=used_count \+ \$1 WHERE \(id = \$2 AND used_count < max_uses\)`).
			WithArgs(sqlmock.AnyArg(), "coupon-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.IncrementUsage(ctx, "coupon-1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("No row means exhausted", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewCouponRepository(db)

		mock.ExpectExec(`UPDATE "coupons" SET "used_count"=used_count \+ \$1 WHERE \(id = \$2 AND used_count < max_uses\)`).
			WithArgs(sqlmock.AnyArg(), "coupon-1").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.IncrementUsage(ctx, "coupon-1")
		assert.True(t, errors.Is(err, ErrUsageExhausted))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Driver error is returned as is", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewCouponRepository(db)

		mock.ExpectExec(`UPDATE "coupons"`).WillReturnError(errors.New("connection reset"))

		err := repo.IncrementUsage(ctx, "coupon-1")
		assert.Error(t, err)
		assert.False(t, errors.Is(err, ErrUsageExhausted))
	})
}

func TestGetByCode(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCouponRepository(db)

	rows := sqlmock.NewRows([]string{"id", "code", "discount_type", "discount_value", "max_uses", "used_count", "per_user_limit", "valid_from", "active"}).
		AddRow("coupon-1", "SAVE20", "percent", 20, 10, 3, 1, time.Now().Add(-time.Hour), true)
	mock.ExpectQuery(`SELECT \* FROM "coupons" WHERE code = \$1`).WillReturnRows(rows)

	coupon, err := repo.GetByCode(context.Background(), "SAVE20")

	require.NoError(t, err)
	assert.Equal(t, "coupon-1", coupon.ID)
	assert.Equal(t, int64(20), coupon.DiscountValue)
	assert.Equal(t, 3, coupon.UsedCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountUserRedemptions(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCouponRepository(db)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "coupon_redemptions" WHERE \(coupon_id = \$1 AND user_id = \$2\)`).
		WithArgs("coupon-1", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountUserRedemptions(context.Background(), "coupon-1", "user-1")

	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
