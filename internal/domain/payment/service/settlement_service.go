package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	catalogRepo "course_checkout/internal/domain/catalog/repository"
	couponService "course_checkout/internal/domain/coupon/service"
	enrollmentModel "course_checkout/internal/domain/enrollment/model"
	enrollmentRepo "course_checkout/internal/domain/enrollment/repository"
	"course_checkout/internal/domain/payment/model"
	"course_checkout/internal/domain/payment/repository"
	"course_checkout/internal/pkg/apperr"
	"course_checkout/internal/pkg/locker"
	"course_checkout/internal/pkg/worker"
	"course_checkout/pkg/metrics"
	"course_checkout/pkg/response"
	"course_checkout/pkg/security"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ActorSourceClient  = "client"
	ActorSourceGateway = "gateway"
	ActorSourceWebhook = "webhook"
)

// Actor 结算请求的发起方，用于审计
type Actor struct {
	UserID string
	IP     string
	Source string
}

type SettleRequest struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
	Actor            Actor
}

type SettleResult struct {
	EnrollmentID string `json:"enrollment_id"`
	OrderID      string `json:"order_id"`
	Created      bool   `json:"created"`
}

// SignatureVerifier 回调签名校验
type SignatureVerifier interface {
	Verify(gatewayOrderID, gatewayPaymentID, signature string) bool
}

// SettlementLedger 唯一允许创建 Enrollment 的组件
type SettlementLedger interface {
	Settle(ctx context.Context, req SettleRequest) (*SettleResult, error)
	// SettleVerified 供已通过 webhook 签名校验的网关事件使用
	SettleVerified(ctx context.Context, gatewayOrderID, gatewayPaymentID string, actor Actor) (*SettleResult, error)
}

// SettlementDeps 结算依赖
type SettlementDeps struct {
	DB          *gorm.DB
	Orders      repository.OrderRepository
	Payments    repository.PaymentRecordRepository
	Enrollments enrollmentRepo.EnrollmentRepository
	Courses     catalogRepo.CourseRepository
	Coupons     couponService.CouponRedeemer
	Verifier    SignatureVerifier
	Monitor     *security.SecurityMonitor
	Locker      locker.Locker
	Notifier    worker.Notifier
	Logger      *zap.Logger
	Metrics     *metrics.MetricsCollector
}

type settlementLedger struct {
	SettlementDeps
	log *zap.Logger
	now func() time.Time
}

func NewSettlementLedger(deps SettlementDeps) SettlementLedger {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Locker == nil {
		deps.Locker = locker.NopLocker{}
	}
	return &settlementLedger{
		SettlementDeps: deps,
		log:            log.Named("settlement"),
		now:            time.Now,
	}
}

func (s *settlementLedger) Settle(ctx context.Context, req SettleRequest) (*SettleResult, error) {
	start := time.Now()
	req.GatewayOrderID = strings.TrimSpace(req.GatewayOrderID)
	req.GatewayPaymentID = strings.TrimSpace(req.GatewayPaymentID)
	req.Signature = strings.TrimSpace(req.Signature)

	if req.GatewayOrderID == "" || req.GatewayPaymentID == "" || req.Signature == "" {
		s.Metrics.RecordSettlement("validation", time.Since(start))
		return nil, apperr.Validation(response.ErrInvalidParam, "gateway_order_id, gateway_payment_id and signature are required")
	}

	if !s.Verifier.Verify(req.GatewayOrderID, req.GatewayPaymentID, req.Signature) {
		s.Monitor.RecordEvent(security.SecurityEvent{
			Type:    security.EventSignatureMismatch,
			Source:  req.Actor.Source,
			UserID:  req.Actor.UserID,
			IP:      req.Actor.IP,
			Path:    "settle",
			Message: "payment signature mismatch",
			Details: map[string]string{
				"gateway_order_id":   req.GatewayOrderID,
				"gateway_payment_id": req.GatewayPaymentID,
			},
		})
		s.Metrics.RecordSettlement("security", time.Since(start))
		return nil, ErrSignatureInvalid
	}

	result, err := s.settle(ctx, req.GatewayOrderID, req.GatewayPaymentID, req.Actor)
	s.Metrics.RecordSettlement(settlementLabel(result, err), time.Since(start))
	return result, err
}

func (s *settlementLedger) SettleVerified(ctx context.Context, gatewayOrderID, gatewayPaymentID string, actor Actor) (*SettleResult, error) {
	start := time.Now()
	if gatewayOrderID == "" || gatewayPaymentID == "" {
		return nil, apperr.Validation(response.ErrInvalidParam, "gateway order id and payment id are required")
	}
	result, err := s.settle(ctx, gatewayOrderID, gatewayPaymentID, actor)
	s.Metrics.RecordSettlement(settlementLabel(result, err), time.Since(start))
	return result, err
}

// settle 签名已通过后的结算事务
func (s *settlementLedger) settle(ctx context.Context, gatewayOrderID, gatewayPaymentID string, actor Actor) (*SettleResult, error) {
	// 分布式锁只是减少无效竞争，真正的串行化由事务内的行锁保证
	unlock, err := s.Locker.Acquire(ctx, "settle:"+gatewayOrderID)
	if err != nil {
		s.log.Warn("settlement lock unavailable, relying on row lock",
			zap.String("gateway_order_id", gatewayOrderID), zap.Error(err))
	} else {
		defer unlock()
	}

	var (
		result *SettleResult
		order  *model.Order
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		order, txErr = s.Orders.WithTx(tx).GetByGatewayOrderIDForUpdate(ctx, gatewayOrderID)
		if txErr != nil {
			if errors.Is(txErr, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return apperr.Internal("load order", txErr)
		}

		switch order.Status {
		case model.OrderStatusPaid:
			result, txErr = s.replayPaid(ctx, tx, order, gatewayPaymentID)
			return txErr
		case model.OrderStatusFailed:
			return ErrOrderNotPayable
		case model.OrderStatusCreated:
			result, txErr = s.settleCreated(ctx, tx, order, gatewayPaymentID)
			return txErr
		default:
			return apperr.Internal("load order", fmt.Errorf("order %s has unknown status %q", order.ID, order.Status))
		}
	})

	if err != nil {
		if _, ok := apperr.As(err); !ok {
			err = apperr.Internal("settlement transaction", err)
		}
		if order != nil && errors.Is(err, couponService.ErrCouponExhausted) {
			s.notifyCouponExhausted(ctx, order)
		}
		s.log.Warn("settlement rejected",
			zap.String("gateway_order_id", gatewayOrderID),
			zap.String("gateway_payment_id", gatewayPaymentID),
			zap.String("actor", actor.Source),
			zap.String("kind", apperr.KindOf(err).String()),
			zap.Error(err),
		)
		return nil, err
	}

	if result.Created {
		s.log.Info("enrollment granted",
			zap.String("order_id", order.ID),
			zap.String("enrollment_id", result.EnrollmentID),
			zap.String("user_id", order.UserID),
			zap.String("actor", actor.Source),
		)
		s.notifyEnrolled(order)
	}
	return result, nil
}

// replayPaid 已支付订单直接返回已有授权
func (s *settlementLedger) replayPaid(ctx context.Context, tx *gorm.DB, order *model.Order, gatewayPaymentID string) (*SettleResult, error) {
	enrollment, err := s.Enrollments.WithTx(tx).GetByUserCourse(ctx, order.UserID, order.CourseID)
	if err != nil {
		return nil, apperr.Internal("load enrollment for paid order", err)
	}

	if _, err := s.Payments.WithTx(tx).GetByGatewayPaymentID(ctx, gatewayPaymentID); errors.Is(err, gorm.ErrRecordNotFound) {
		// 同一网关订单出现第二笔成功支付，需要人工退款
		s.log.Error("second verified payment for a paid order",
			zap.String("order_id", order.ID),
			zap.String("gateway_payment_id", gatewayPaymentID),
		)
	}

	return &SettleResult{EnrollmentID: enrollment.ID, OrderID: order.ID, Created: false}, nil
}

func (s *settlementLedger) settleCreated(ctx context.Context, tx *gorm.DB, order *model.Order, gatewayPaymentID string) (*SettleResult, error) {
	now := s.now()

	// a. created -> paid
	ok, err := s.Orders.WithTx(tx).MarkPaid(ctx, order.ID, now)
	if err != nil {
		return nil, apperr.Internal("mark order paid", err)
	}
	if !ok {
		return nil, ErrSettlementConflict
	}

	// b. 支付记录，payment id 唯一防重放
	payments := s.Payments.WithTx(tx)
	if _, err := payments.GetByGatewayPaymentID(ctx, gatewayPaymentID); err == nil {
		return nil, ErrPaymentReplay
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internal("check payment record", err)
	}

	record := &model.PaymentRecord{
		GatewayPaymentID:  gatewayPaymentID,
		OrderID:           order.ID,
		SignatureVerified: true,
		Amount:            order.Amount,
		Currency:          order.Currency,
		Status:            model.PaymentStatusCaptured,
		VerifiedAt:        now,
	}
	if err := payments.Create(ctx, record); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrPaymentReplay
		}
		return nil, apperr.Internal("create payment record", err)
	}

	// c. 优惠券原子计数
	if order.CouponID != nil {
		if err := s.Coupons.Redeem(ctx, tx, *order.CouponID, order.UserID, order.ID, order.DiscountAmount); err != nil {
			return nil, err
		}
	}

	// d. 授权，已存在则返回已有记录
	enrollment, created, err := s.Enrollments.WithTx(tx).CreateIfAbsent(ctx, &enrollmentModel.Enrollment{
		UserID:          order.UserID,
		CourseID:        order.CourseID,
		PaymentRecordID: record.ID,
		EnrolledAt:      now,
	})
	if err != nil {
		return nil, apperr.Internal("create enrollment", err)
	}
	if !created {
		// 重复购买：钱已收，授权沿用旧记录
		s.log.Warn("buyer already enrolled, payment kept for review",
			zap.String("order_id", order.ID),
			zap.String("enrollment_id", enrollment.ID),
		)
	}

	order.Status = model.OrderStatusPaid
	order.PaidAt = &now
	return &SettleResult{EnrollmentID: enrollment.ID, OrderID: order.ID, Created: created}, nil
}

func (s *settlementLedger) notifyEnrolled(order *model.Order) {
	if s.Notifier == nil {
		return
	}
	s.Notifier.Enqueue(worker.NotifyTask{
		Kind:      worker.TaskEnrollmentConfirmed,
		AccountID: order.UserID,
		Title:     "报名成功",
		Body:      "支付已确认，课程已开通。",
		Ext: map[string]string{
			"order_id":  order.ID,
			"course_id": order.CourseID,
		},
	})
}

// notifyCouponExhausted 优惠券在结算时已被抢完，通知课程所有者
func (s *settlementLedger) notifyCouponExhausted(ctx context.Context, order *model.Order) {
	if s.Notifier == nil || s.Courses == nil {
		return
	}
	course, err := s.Courses.GetByID(ctx, order.CourseID)
	if err != nil {
		s.log.Warn("cannot resolve course owner for coupon notice", zap.String("course_id", order.CourseID), zap.Error(err))
		return
	}
	couponID := ""
	if order.CouponID != nil {
		couponID = *order.CouponID
	}
	s.Notifier.Enqueue(worker.NotifyTask{
		Kind:      worker.TaskCouponExhausted,
		AccountID: course.OwnerID,
		Title:     "优惠券名额已用完",
		Body:      "有买家在优惠券用完后完成了支付，请处理。",
		Ext: map[string]string{
			"order_id":  order.ID,
			"course_id": order.CourseID,
			"coupon_id": couponID,
			"buyer_id":  order.UserID,
		},
	})
}

func settlementLabel(result *SettleResult, err error) string {
	if err != nil {
		return apperr.KindOf(err).String()
	}
	if result.Created {
		return "enrolled"
	}
	return "replayed"
}
