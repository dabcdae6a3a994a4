package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	catalogService "course_checkout/internal/domain/catalog/service"
	couponService "course_checkout/internal/domain/coupon/service"
	"course_checkout/internal/domain/payment/gateway"
	"course_checkout/internal/domain/payment/model"
	"course_checkout/internal/domain/payment/repository"
	"course_checkout/internal/pkg/apperr"
	"course_checkout/pkg/metrics"
	"course_checkout/pkg/response"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Checkout 客户端拉起网关支付所需的信息
type Checkout struct {
	OrderID        string `json:"order_id"`
	GatewayOrderID string `json:"gateway_order_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	KeyID          string `json:"key_id"`
}

type OrderService interface {
	CreateOrder(ctx context.Context, userID, courseID, couponCode string) (*Checkout, error)
	// RetryGatewayOrder 复用同一 created 订单及其金额快照重新向网关下单
	RetryGatewayOrder(ctx context.Context, userID, orderID string) (*Checkout, error)
	// AbandonOrder 买家主动放弃，created -> failed
	AbandonOrder(ctx context.Context, userID, orderID string) error
	GetOrder(ctx context.Context, userID, orderID string) (*model.Order, error)
}

// OrderOptions 下单配置
type OrderOptions struct {
	KeyID           string
	DefaultCurrency string
	GatewayTimeout  time.Duration
}

type orderService struct {
	repo    repository.OrderRepository
	prices  catalogService.PriceCalculator
	coupons couponService.CouponValidator
	gateway gateway.Gateway
	opts    OrderOptions
	log     *zap.Logger
	metrics *metrics.MetricsCollector
}

func NewOrderService(
	repo repository.OrderRepository,
	prices catalogService.PriceCalculator,
	coupons couponService.CouponValidator,
	gw gateway.Gateway,
	opts OrderOptions,
	log *zap.Logger,
	m *metrics.MetricsCollector,
) OrderService {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = 10 * time.Second
	}
	return &orderService{
		repo:    repo,
		prices:  prices,
		coupons: coupons,
		gateway: gw,
		opts:    opts,
		log:     log.Named("order"),
		metrics: m,
	}
}

func (s *orderService) CreateOrder(ctx context.Context, userID, courseID, couponCode string) (*Checkout, error) {
	if userID == "" {
		return nil, apperr.Validation(response.ErrInvalidParam, "user id is required")
	}

	// 1. 服务端权威价格
	price, err := s.prices.ComputePrice(ctx, courseID)
	if err != nil {
		return nil, err
	}

	order := &model.Order{
		CourseID:   price.CourseID,
		UserID:     userID,
		Currency:   price.Currency,
		BaseAmount: price.Amount,
		Amount:     price.Amount,
		Status:     model.OrderStatusCreated,
	}
	if order.Currency == "" {
		order.Currency = s.opts.DefaultCurrency
	}

	// 2. 优惠券报价 (只读，不占用名额)
	if strings.TrimSpace(couponCode) != "" {
		quote, err := s.coupons.Validate(ctx, couponCode, price.CourseID, userID, price.Amount)
		if err != nil {
			if apperr.IsCouponRejection(err) {
				s.metrics.RecordOrder("coupon_rejected")
			}
			return nil, err
		}
		couponID := quote.CouponID
		order.CouponID = &couponID
		order.DiscountAmount = quote.DiscountAmount
		order.Amount = quote.FinalPrice
	}

	// 3. 先落库再请求网关，网关失败时本地仍有可对账的记录
	if err := s.repo.Create(ctx, order); err != nil {
		return nil, apperr.Internal("create order", err)
	}
	s.metrics.RecordOrder("created")

	return s.requestGatewayOrder(ctx, order)
}

func (s *orderService) RetryGatewayOrder(ctx context.Context, userID, orderID string) (*Checkout, error) {
	order, err := s.getOwnedOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	switch order.Status {
	case model.OrderStatusPaid:
		return nil, ErrOrderAlreadyPaid
	case model.OrderStatusFailed:
		return nil, ErrOrderNotPayable
	}

	// 之前的请求其实已经成功
	if order.GatewayOrderID != nil {
		return s.checkout(order), nil
	}
	return s.requestGatewayOrder(ctx, order)
}

func (s *orderService) AbandonOrder(ctx context.Context, userID, orderID string) error {
	order, err := s.getOwnedOrder(ctx, userID, orderID)
	if err != nil {
		return err
	}

	switch order.Status {
	case model.OrderStatusPaid:
		return ErrOrderAlreadyPaid
	case model.OrderStatusFailed:
		return nil
	}

	ok, err := s.repo.MarkFailed(ctx, order.ID, "abandoned by buyer")
	if err != nil {
		return apperr.Internal("abandon order", err)
	}
	if !ok {
		// 并发结算抢先完成
		current, err := s.repo.GetByID(ctx, order.ID)
		if err != nil {
			return apperr.Internal("reload order", err)
		}
		if current.Status == model.OrderStatusPaid {
			return ErrOrderAlreadyPaid
		}
	}

	s.log.Info("order abandoned", zap.String("order_id", order.ID), zap.String("user_id", userID))
	return nil
}

func (s *orderService) GetOrder(ctx context.Context, userID, orderID string) (*model.Order, error) {
	return s.getOwnedOrder(ctx, userID, orderID)
}

// getOwnedOrder 非本人订单一律视为不存在
func (s *orderService) getOwnedOrder(ctx context.Context, userID, orderID string) (*model.Order, error) {
	if userID == "" || orderID == "" {
		return nil, apperr.Validation(response.ErrInvalidParam, "user id and order id are required")
	}
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, apperr.Internal("load order", err)
	}
	if order.UserID != userID {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (s *orderService) requestGatewayOrder(ctx context.Context, order *model.Order) (*Checkout, error) {
	gctx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
	defer cancel()

	start := time.Now()
	gwOrder, err := s.gateway.CreateOrder(gctx, gateway.OrderRequest{
		Amount:   order.Amount,
		Currency: order.Currency,
		Receipt:  order.ID,
		Notes: map[string]string{
			"course_id": order.CourseID,
			"user_id":   order.UserID,
		},
	})
	if err == nil && gwOrder.Amount != 0 && gwOrder.Amount != order.Amount {
		err = fmt.Errorf("gateway order %s amount %d does not match %d", gwOrder.ID, gwOrder.Amount, order.Amount)
	}

	if err != nil {
		// 超时或调用方取消：网关侧结果未知，订单保持 created 以便复用
		if gateway.IsTimeout(err) || errors.Is(err, context.Canceled) {
			s.metrics.RecordGatewayCall("timeout", time.Since(start))
			s.log.Warn("gateway order request timed out",
				zap.String("order_id", order.ID),
				zap.String("gateway", s.gateway.Name()),
				zap.Error(err),
			)
			return nil, errGatewayTimeout(err).WithDetail("order_id", order.ID)
		}

		s.metrics.RecordGatewayCall("failed", time.Since(start))
		s.log.Error("gateway order request failed",
			zap.String("order_id", order.ID),
			zap.String("gateway", s.gateway.Name()),
			zap.Error(err),
		)
		if _, markErr := s.repo.MarkFailed(ctx, order.ID, truncate("gateway: "+err.Error(), 255)); markErr != nil {
			s.log.Error("failed to mark order failed", zap.String("order_id", order.ID), zap.Error(markErr))
		}
		return nil, errGatewayUnavailable(err).WithDetail("order_id", order.ID)
	}
	s.metrics.RecordGatewayCall("ok", time.Since(start))

	ok, err := s.repo.AttachGatewayOrder(ctx, order.ID, gwOrder.ID)
	if err != nil {
		return nil, apperr.Internal("attach gateway order", err)
	}
	if !ok {
		// 并发重试已经绑定了网关订单，或订单已被放弃
		current, err := s.repo.GetByID(ctx, order.ID)
		if err != nil {
			return nil, apperr.Internal("reload order", err)
		}
		if current.Status != model.OrderStatusCreated || current.GatewayOrderID == nil {
			return nil, ErrOrderNotPayable
		}
		return s.checkout(current), nil
	}

	gwID := gwOrder.ID
	order.GatewayOrderID = &gwID
	s.log.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("gateway_order_id", gwID),
		zap.String("user_id", order.UserID),
		zap.Int64("amount", order.Amount),
	)
	return s.checkout(order), nil
}

func (s *orderService) checkout(order *model.Order) *Checkout {
	return &Checkout{
		OrderID:        order.ID,
		GatewayOrderID: order.GatewayID(),
		Amount:         order.Amount,
		Currency:       order.Currency,
		KeyID:          s.opts.KeyID,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
