package repository

import (
	"context"
	"time"

	"course_checkout/internal/domain/payment/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentRecordRepository interface {
	WithTx(tx *gorm.DB) PaymentRecordRepository
	Create(ctx context.Context, record *model.PaymentRecord) error
	GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*model.PaymentRecord, error)
	// MarkRefunded captured -> refunded，返回是否命中
	MarkRefunded(ctx context.Context, gatewayPaymentID string, at time.Time) (bool, error)
	HasWebhookEvent(ctx context.Context, eventID string) (bool, error)
	// RecordWebhookEvent 首次出现返回 true，重放返回 false
	RecordWebhookEvent(ctx context.Context, event *model.WebhookEvent) (bool, error)
}

type paymentRecordRepository struct {
	db *gorm.DB
}

func NewPaymentRecordRepository(db *gorm.DB) PaymentRecordRepository {
	return &paymentRecordRepository{db: db}
}

func (r *paymentRecordRepository) WithTx(tx *gorm.DB) PaymentRecordRepository {
	return &paymentRecordRepository{db: tx}
}

func (r *paymentRecordRepository) Create(ctx context.Context, record *model.PaymentRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *paymentRecordRepository) GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*model.PaymentRecord, error) {
	var record model.PaymentRecord
	if err := r.db.WithContext(ctx).Where("gateway_payment_id = ?", gatewayPaymentID).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *paymentRecordRepository) MarkRefunded(ctx context.Context, gatewayPaymentID string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.PaymentRecord{}).
		Where("gateway_payment_id = ? AND status = ?", gatewayPaymentID, model.PaymentStatusCaptured).
		Updates(map[string]interface{}{
			"status":      model.PaymentStatusRefunded,
			"refunded_at": at,
		})
	return result.RowsAffected > 0, result.Error
}

func (r *paymentRecordRepository) HasWebhookEvent(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.WebhookEvent{}).Where("event_id = ?", eventID).Count(&count).Error
	return count > 0, err
}

func (r *paymentRecordRepository) RecordWebhookEvent(ctx context.Context, event *model.WebhookEvent) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).
		Create(event)
	return result.RowsAffected > 0, result.Error
}
