package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	catalogModel "course_checkout/internal/domain/catalog/model"
	catalogRepo "course_checkout/internal/domain/catalog/repository"
	couponModel "course_checkout/internal/domain/coupon/model"
	couponRepo "course_checkout/internal/domain/coupon/repository"
	couponService "course_checkout/internal/domain/coupon/service"
	enrollmentModel "course_checkout/internal/domain/enrollment/model"
	enrollmentRepo "course_checkout/internal/domain/enrollment/repository"
	"course_checkout/internal/domain/payment/model"
	"course_checkout/internal/domain/payment/repository"
	"course_checkout/internal/pkg/apperr"
	"course_checkout/internal/pkg/worker"
	"course_checkout/pkg/security"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testKeySecret = "test_key_secret_0123456789"

// recordingNotifier 记录入队的通知
type recordingNotifier struct {
	mu    sync.Mutex
	tasks []worker.NotifyTask
}

func (n *recordingNotifier) Enqueue(task worker.NotifyTask) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tasks = append(n.tasks, task)
	return true
}

func (n *recordingNotifier) byKind(kind string) []worker.NotifyTask {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []worker.NotifyTask
	for _, t := range n.tasks {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

// newTestDB 内存 SQLite，单连接保证并发测试中事务串行
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&catalogModel.Course{},
		&couponModel.Coupon{},
		&couponModel.CouponRedemption{},
		&model.Order{},
		&model.PaymentRecord{},
		&model.WebhookEvent{},
		&enrollmentModel.Enrollment{},
	))
	return db
}

type ledgerFixture struct {
	db       *gorm.DB
	ledger   SettlementLedger
	verifier *security.SignatureVerifier
	monitor  *security.SecurityMonitor
	notifier *recordingNotifier
	course   *catalogModel.Course
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	db := newTestDB(t)

	course := &catalogModel.Course{Title: "Go 并发实战", Price: 10000, Currency: "INR", Published: true, OwnerID: "owner-1"}
	require.NoError(t, db.Create(course).Error)

	f := &ledgerFixture{
		db:       db,
		verifier: security.NewSignatureVerifier(testKeySecret, "test_webhook_secret"),
		monitor:  security.NewSecurityMonitor(nil, zap.NewNop()),
		notifier: &recordingNotifier{},
		course:   course,
	}
	f.ledger = NewSettlementLedger(SettlementDeps{
		DB:          db,
		Orders:      repository.NewOrderRepository(db),
		Payments:    repository.NewPaymentRecordRepository(db),
		Enrollments: enrollmentRepo.NewEnrollmentRepository(db),
		Courses:     catalogRepo.NewCourseRepository(db),
		Coupons:     couponService.NewCouponService(couponRepo.NewCouponRepository(db), 0),
		Verifier:    f.verifier,
		Monitor:     f.monitor,
		Notifier:    f.notifier,
	})
	return f
}

func (f *ledgerFixture) seedOrder(t *testing.T, userID, gatewayOrderID string, coupon *couponModel.Coupon) *model.Order {
	t.Helper()
	order := &model.Order{
		GatewayOrderID: &gatewayOrderID,
		CourseID:       f.course.ID,
		UserID:         userID,
		Currency:       "INR",
		BaseAmount:     f.course.Price,
		Amount:         f.course.Price,
		Status:         model.OrderStatusCreated,
	}
	if coupon != nil {
		discount, final := couponService.ApplyDiscount(coupon.DiscountType, coupon.DiscountValue, f.course.Price, 0)
		order.CouponID = &coupon.ID
		order.DiscountAmount = discount
		order.Amount = final
	}
	require.NoError(t, f.db.Create(order).Error)
	return order
}

func (f *ledgerFixture) seedCoupon(t *testing.T, code string, maxUses int) *couponModel.Coupon {
	t.Helper()
	coupon := &couponModel.Coupon{
		Code:          code,
		DiscountType:  couponModel.DiscountTypePercent,
		DiscountValue: 20,
		MaxUses:       maxUses,
		PerUserLimit:  1,
		ValidFrom:     time.Now().Add(-time.Hour),
		Active:        true,
	}
	require.NoError(t, f.db.Create(coupon).Error)
	return coupon
}

func (f *ledgerFixture) request(gatewayOrderID, paymentID string) SettleRequest {
	return SettleRequest{
		GatewayOrderID:   gatewayOrderID,
		GatewayPaymentID: paymentID,
		Signature:        f.verifier.Sign(gatewayOrderID, paymentID),
		Actor:            Actor{UserID: "user-1", IP: "127.0.0.1", Source: ActorSourceClient},
	}
}

func (f *ledgerFixture) reload(t *testing.T, id string) *model.Order {
	t.Helper()
	var order model.Order
	require.NoError(t, f.db.First(&order, "id = ?", id).Error)
	return &order
}

func (f *ledgerFixture) count(t *testing.T, m interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(m).Count(&n).Error)
	return n
}

func TestSettle(t *testing.T) {
	ctx := context.Background()

	t.Run("Verified payment grants enrollment", func(t *testing.T) {
		f := newLedgerFixture(t)
		order := f.seedOrder(t, "user-1", "order_GW1", nil)

		result, err := f.ledger.Settle(ctx, f.request("order_GW1", "pay_1"))

		require.NoError(t, err)
		assert.True(t, result.Created)
		assert.Equal(t, order.ID, result.OrderID)
		assert.NotEmpty(t, result.EnrollmentID)

		paid := f.reload(t, order.ID)
		assert.Equal(t, model.OrderStatusPaid, paid.Status)
		assert.NotNil(t, paid.PaidAt)

		var record model.PaymentRecord
		require.NoError(t, f.db.First(&record, "gateway_payment_id = ?", "pay_1").Error)
		assert.Equal(t, order.ID, record.OrderID)
		assert.True(t, record.SignatureVerified)
		assert.Equal(t, model.PaymentStatusCaptured, record.Status)
		assert.Equal(t, int64(10000), record.Amount)

		var enrollment enrollmentModel.Enrollment
		require.NoError(t, f.db.First(&enrollment, "id = ?", result.EnrollmentID).Error)
		assert.Equal(t, record.ID, enrollment.PaymentRecordID)

		tasks := f.notifier.byKind(worker.TaskEnrollmentConfirmed)
		require.Len(t, tasks, 1)
		assert.Equal(t, "user-1", tasks[0].AccountID)
		assert.Equal(t, order.ID, tasks[0].Ext["order_id"])
	})

	t.Run("Double settle is idempotent", func(t *testing.T) {
		f := newLedgerFixture(t)
		f.seedOrder(t, "user-1", "order_GW1", nil)

		first, err := f.ledger.Settle(ctx, f.request("order_GW1", "pay_1"))
		require.NoError(t, err)
		second, err := f.ledger.Settle(ctx, f.request("order_GW1", "pay_1"))
		require.NoError(t, err)

		assert.Equal(t, first.EnrollmentID, second.EnrollmentID)
		assert.True(t, first.Created)
		assert.False(t, second.Created)
		assert.Equal(t, int64(1), f.count(t, &enrollmentModel.Enrollment{}))
		assert.Equal(t, int64(1), f.count(t, &model.PaymentRecord{}))
		assert.Len(t, f.notifier.byKind(worker.TaskEnrollmentConfirmed), 1)
	})

	t.Run("Concurrent settle of the same order", func(t *testing.T) {
		f := newLedgerFixture(t)
		f.seedOrder(t, "user-1", "order_GW1", nil)

		const callers = 5
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			results []*SettleResult
			errs    []error
		)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r, err := f.ledger.Settle(ctx, f.request("order_GW1", "pay_1"))
				mu.Lock()
				defer mu.Unlock()
				results = append(results, r)
				errs = append(errs, err)
			}()
		}
		wg.Wait()

		created := 0
		for i := range results {
			require.NoError(t, errs[i])
			if results[i].Created {
				created++
			}
			assert.Equal(t, results[0].EnrollmentID, results[i].EnrollmentID)
		}
		assert.Equal(t, 1, created)
		assert.Equal(t, int64(1), f.count(t, &enrollmentModel.Enrollment{}))
		assert.Equal(t, int64(1), f.count(t, &model.PaymentRecord{}))
	})

	t.Run("Tampered signature changes nothing", func(t *testing.T) {
		f := newLedgerFixture(t)
		order := f.seedOrder(t, "user-1", "order_GW1", nil)

		req := f.request("order_GW1", "pay_1")
		req.Signature = "deadbeef" + req.Signature[8:]

		_, err := f.ledger.Settle(ctx, req)

		assert.True(t, errors.Is(err, ErrSignatureInvalid))
		assert.Equal(t, apperr.KindSecurity, apperr.KindOf(err))
		assert.Equal(t, model.OrderStatusCreated, f.reload(t, order.ID).Status)
		assert.Equal(t, int64(0), f.count(t, &model.PaymentRecord{}))
		assert.Equal(t, int64(0), f.count(t, &enrollmentModel.Enrollment{}))

		events := f.monitor.GetEvents(security.EventSignatureMismatch, 10)
		require.Len(t, events, 1)
		assert.Equal(t, "order_GW1", events[0].Details["gateway_order_id"])
	})

	t.Run("Any single character mutation is rejected", func(t *testing.T) {
		f := newLedgerFixture(t)
		order := f.seedOrder(t, "user-1", "order_GW1", nil)
		valid := f.request("order_GW1", "pay_1")

		for i := 0; i < len(valid.Signature); i++ {
			b := []byte(valid.Signature)
			if b[i] == '0' {
				b[i] = '1'
			} else {
				b[i] = '0'
			}
			req := valid
			req.Signature = string(b)

			_, err := f.ledger.Settle(ctx, req)
			require.Error(t, err, "mutation at %d", i)
			assert.Equal(t, apperr.KindSecurity, apperr.KindOf(err))
		}
		assert.Equal(t, model.OrderStatusCreated, f.reload(t, order.ID).Status)
		assert.Equal(t, int64(0), f.count(t, &enrollmentModel.Enrollment{}))
	})

	t.Run("Signature bound to a different order", func(t *testing.T) {
		f := newLedgerFixture(t)
		f.seedOrder(t, "user-1", "order_GW1", nil)
		f.seedOrder(t, "user-2", "order_GW2", nil)

		req := f.request("order_GW2", "pay_1")
		req.GatewayOrderID = "order_GW1"

		_, err := f.ledger.Settle(ctx, req)
		assert.True(t, errors.Is(err, ErrSignatureInvalid))
	})

	t.Run("Missing fields", func(t *testing.T) {
		f := newLedgerFixture(t)

		_, err := f.ledger.Settle(ctx, SettleRequest{GatewayOrderID: "order_GW1", Signature: "x"})
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})

	t.Run("Unknown gateway order", func(t *testing.T) {
		f := newLedgerFixture(t)

		_, err := f.ledger.Settle(ctx, f.request("order_missing", "pay_1"))
		assert.True(t, errors.Is(err, ErrOrderNotFound))
	})

	t.Run("Failed order cannot be settled", func(t *testing.T) {
		f := newLedgerFixture(t)
		order := f.seedOrder(t, "user-1", "order_GW1", nil)
		require.NoError(t, f.db.Model(order).Update("status", model.OrderStatusFailed).Error)

		_, err := f.ledger.Settle(ctx, f.request("order_GW1", "pay_1"))

		assert.True(t, errors.Is(err, ErrOrderNotPayable))
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
		assert.Equal(t, int64(0), f.count(t, &model.PaymentRecord{}))
	})

	t.Run("Re-purchase keeps existing enrollment", func(t *testing.T) {
		f := newLedgerFixture(t)
		f.seedOrder(t, "user-1", "order_GW1", nil)
		second := f.seedOrder(t, "user-1", "order_GW2", nil)

		first, err := f.ledger.Settle(ctx, f.request("order_GW1", "pay_1"))
		require.NoError(t, err)
		again, err := f.ledger.Settle(ctx, f.request("order_GW2", "pay_2"))
		require.NoError(t, err)

		assert.False(t, again.Created)
		assert.Equal(t, first.EnrollmentID, again.EnrollmentID)
		assert.Equal(t, model.OrderStatusPaid, f.reload(t, second.ID).Status)
		assert.Equal(t, int64(2), f.count(t, &model.PaymentRecord{}))
		assert.Equal(t, int64(1), f.count(t, &enrollmentModel.Enrollment{}))
	})

	t.Run("Payment id replay across orders", func(t *testing.T) {
		f := newLedgerFixture(t)
		f.seedOrder(t, "user-1", "order_GW1", nil)
		other := f.seedOrder(t, "user-2", "order_GW2", nil)

		_, err := f.ledger.Settle(ctx, f.request("order_GW1", "pay_1"))
		require.NoError(t, err)
		_, err = f.ledger.Settle(ctx, f.request("order_GW2", "pay_1"))

		assert.True(t, errors.Is(err, ErrPaymentReplay))
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
		assert.Equal(t, model.OrderStatusCreated, f.reload(t, other.ID).Status)
		assert.Equal(t, int64(1), f.count(t, &enrollmentModel.Enrollment{}))
	})

	t.Run("Coupon redemption is recorded", func(t *testing.T) {
		f := newLedgerFixture(t)
		coupon := f.seedCoupon(t, "SAVE20", 10)
		order := f.seedOrder(t, "user-1", "order_GW1", coupon)

		_, err := f.ledger.Settle(ctx, f.request("order_GW1", "pay_1"))
		require.NoError(t, err)

		var stored couponModel.Coupon
		require.NoError(t, f.db.First(&stored, "id = ?", coupon.ID).Error)
		assert.Equal(t, 1, stored.UsedCount)

		var redemption couponModel.CouponRedemption
		require.NoError(t, f.db.First(&redemption, "order_id = ?", order.ID).Error)
		assert.Equal(t, int64(2000), redemption.DiscountAmount)

		var record model.PaymentRecord
		require.NoError(t, f.db.First(&record, "order_id = ?", order.ID).Error)
		assert.Equal(t, int64(8000), record.Amount)
	})
}

func TestSettleCouponRace(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	coupon := f.seedCoupon(t, "ONLYONE", 1)
	orderA := f.seedOrder(t, "user-a", "order_GWA", coupon)
	orderB := f.seedOrder(t, "user-b", "order_GWB", coupon)

	var (
		wg   sync.WaitGroup
		errA error
		errB error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errA = f.ledger.Settle(ctx, f.request("order_GWA", "pay_a"))
	}()
	go func() {
		defer wg.Done()
		_, errB = f.ledger.Settle(ctx, f.request("order_GWB", "pay_b"))
	}()
	wg.Wait()

	// 恰好一个成功
	require.True(t, (errA == nil) != (errB == nil), "errA=%v errB=%v", errA, errB)
	loserErr, loser := errB, orderB
	if errA != nil {
		loserErr, loser = errA, orderA
	}
	assert.True(t, errors.Is(loserErr, couponService.ErrCouponExhausted))
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(loserErr))
	assert.Equal(t, model.OrderStatusCreated, f.reload(t, loser.ID).Status)

	var stored couponModel.Coupon
	require.NoError(t, f.db.First(&stored, "id = ?", coupon.ID).Error)
	assert.Equal(t, 1, stored.UsedCount)
	assert.Equal(t, int64(1), f.count(t, &model.PaymentRecord{}))
	assert.Equal(t, int64(1), f.count(t, &enrollmentModel.Enrollment{}))

	notices := f.notifier.byKind(worker.TaskCouponExhausted)
	require.Len(t, notices, 1)
	assert.Equal(t, "owner-1", notices[0].AccountID)
	assert.Equal(t, loser.ID, notices[0].Ext["order_id"])
}

func TestSettleVerified(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	f.seedOrder(t, "user-1", "order_GW1", nil)

	result, err := f.ledger.SettleVerified(ctx, "order_GW1", "pay_1", Actor{Source: ActorSourceWebhook})
	require.NoError(t, err)
	assert.True(t, result.Created)

	// 客户端回调晚到，走已支付分支
	replay, err := f.ledger.Settle(ctx, f.request("order_GW1", "pay_1"))
	require.NoError(t, err)
	assert.False(t, replay.Created)
	assert.Equal(t, result.EnrollmentID, replay.EnrollmentID)

	_, err = f.ledger.SettleVerified(ctx, "", "pay_1", Actor{Source: ActorSourceWebhook})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
