package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"course_checkout/internal/domain/payment/model"
	"course_checkout/internal/domain/payment/repository"
	"course_checkout/internal/pkg/apperr"
	"course_checkout/pkg/metrics"
	"course_checkout/pkg/response"
	"course_checkout/pkg/security"

	"go.uber.org/zap"
)

const (
	EventPaymentCaptured = "payment.captured"
	EventOrderPaid       = "order.paid"
	EventPaymentFailed   = "payment.failed"
	EventRefundProcessed = "refund.processed"
	EventPaymentRefunded = "payment.refunded"
)

const (
	OutcomeSettled   = "settled"
	OutcomeRefunded  = "refunded"
	OutcomeRecorded  = "recorded"
	OutcomeIgnored   = "ignored"
	OutcomeDuplicate = "duplicate"
	OutcomeConflict  = "conflict"
)

// WebhookVerifier webhook 签名校验
type WebhookVerifier interface {
	VerifyWebhook(body []byte, signature string) bool
}

// WebhookRequest 原始 webhook
type WebhookRequest struct {
	Body      []byte
	Signature string
	EventID   string
	Actor     Actor
}

type WebhookService interface {
	HandleWebhook(ctx context.Context, req WebhookRequest) (string, error)
}

type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID               string `json:"id"`
				OrderID          string `json:"order_id"`
				Amount           int64  `json:"amount"`
				Status           string `json:"status"`
				ErrorDescription string `json:"error_description"`
			} `json:"entity"`
		} `json:"payment"`
		Refund struct {
			Entity struct {
				ID        string `json:"id"`
				PaymentID string `json:"payment_id"`
				Amount    int64  `json:"amount"`
			} `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

type webhookService struct {
	payments repository.PaymentRecordRepository
	ledger   SettlementLedger
	verifier WebhookVerifier
	monitor  *security.SecurityMonitor
	log      *zap.Logger
	metrics  *metrics.MetricsCollector
	now      func() time.Time
}

func NewWebhookService(
	payments repository.PaymentRecordRepository,
	ledger SettlementLedger,
	verifier WebhookVerifier,
	monitor *security.SecurityMonitor,
	log *zap.Logger,
	m *metrics.MetricsCollector,
) WebhookService {
	if log == nil {
		log = zap.NewNop()
	}
	return &webhookService{
		payments: payments,
		ledger:   ledger,
		verifier: verifier,
		monitor:  monitor,
		log:      log.Named("webhook"),
		metrics:  m,
		now:      time.Now,
	}
}

func (s *webhookService) HandleWebhook(ctx context.Context, req WebhookRequest) (string, error) {
	if !s.verifier.VerifyWebhook(req.Body, req.Signature) {
		s.monitor.RecordEvent(security.SecurityEvent{
			Type:    security.EventWebhookSignature,
			Source:  req.Actor.Source,
			IP:      req.Actor.IP,
			Path:    "webhook",
			Message: "webhook signature mismatch",
			Details: map[string]string{"event_id": req.EventID},
		})
		s.metrics.RecordWebhook("unknown", "rejected")
		return "", ErrWebhookInvalid
	}

	var env webhookEnvelope
	if err := json.Unmarshal(req.Body, &env); err != nil || env.Event == "" {
		return "", apperr.Validation(response.ErrInvalidParam, "malformed webhook payload")
	}

	eventID := strings.TrimSpace(req.EventID)
	if eventID == "" {
		sum := sha256.Sum256(req.Body)
		eventID = "body:" + hex.EncodeToString(sum[:])
	}

	// 已处理过的事件直接确认
	if seen, err := s.payments.HasWebhookEvent(ctx, eventID); err != nil {
		return "", apperr.Internal("check webhook event", err)
	} else if seen {
		s.metrics.RecordWebhook(env.Event, OutcomeDuplicate)
		return OutcomeDuplicate, nil
	}

	outcome, err := s.dispatch(ctx, &env, req.Actor)
	if err != nil {
		s.metrics.RecordWebhook(env.Event, "error")
		return "", err
	}

	if _, err := s.payments.RecordWebhookEvent(ctx, &model.WebhookEvent{
		EventID: eventID,
		Event:   env.Event,
		Outcome: outcome,
	}); err != nil {
		// 处理本身是幂等的，去重记录失败只影响下次是否重复处理
		s.log.Warn("failed to record webhook event", zap.String("event_id", eventID), zap.Error(err))
	}

	s.metrics.RecordWebhook(env.Event, outcome)
	return outcome, nil
}

func (s *webhookService) dispatch(ctx context.Context, env *webhookEnvelope, actor Actor) (string, error) {
	payment := env.Payload.Payment.Entity

	switch env.Event {
	case EventPaymentCaptured, EventOrderPaid:
		if payment.ID == "" || payment.OrderID == "" {
			return "", apperr.Validation(response.ErrInvalidParam, "payment entity missing id or order_id")
		}
		actor.Source = ActorSourceWebhook
		if _, err := s.ledger.SettleVerified(ctx, payment.OrderID, payment.ID, actor); err != nil {
			// 网关重放前本地订单可能尚未绑定网关订单号
			if apperr.IsKind(err, apperr.KindNotFound) {
				s.log.Warn("webhook for unknown order", zap.String("gateway_order_id", payment.OrderID))
				return OutcomeIgnored, nil
			}
			// 冲突重投也不会成功，确认收到并留给人工处理
			if apperr.IsKind(err, apperr.KindConflict) {
				s.log.Error("webhook settlement conflict, manual review required",
					zap.String("gateway_order_id", payment.OrderID),
					zap.String("gateway_payment_id", payment.ID),
					zap.Error(err),
				)
				return OutcomeConflict, nil
			}
			return "", err
		}
		return OutcomeSettled, nil

	case EventPaymentFailed:
		// 同一网关订单允许多次尝试，失败的尝试不是放弃信号
		s.log.Info("payment attempt failed",
			zap.String("gateway_order_id", payment.OrderID),
			zap.String("gateway_payment_id", payment.ID),
			zap.String("reason", payment.ErrorDescription),
		)
		return OutcomeRecorded, nil

	case EventRefundProcessed, EventPaymentRefunded:
		paymentID := env.Payload.Refund.Entity.PaymentID
		if paymentID == "" {
			paymentID = payment.ID
		}
		if paymentID == "" {
			return "", apperr.Validation(response.ErrInvalidParam, "refund event missing payment id")
		}
		ok, err := s.payments.MarkRefunded(ctx, paymentID, s.now())
		if err != nil {
			return "", apperr.Internal("mark payment refunded", err)
		}
		if !ok {
			return OutcomeIgnored, nil
		}
		// 退款不自动撤销授权，留给运营策略处理
		s.log.Warn("payment refunded, enrollment kept",
			zap.String("gateway_payment_id", paymentID),
			zap.Int64("refund_amount", env.Payload.Refund.Entity.Amount),
		)
		return OutcomeRefunded, nil

	default:
		return OutcomeIgnored, nil
	}
}
