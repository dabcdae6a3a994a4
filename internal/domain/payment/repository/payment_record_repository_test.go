package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"course_checkout/internal/domain/payment/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newRecord(orderID, paymentID string) *model.PaymentRecord {
	return &model.PaymentRecord{
		GatewayPaymentID:  paymentID,
		OrderID:           orderID,
		SignatureVerified: true,
		Amount:            8000,
		Currency:          "INR",
		Status:            model.PaymentStatusCaptured,
		VerifiedAt:        time.Now(),
	}
}

func TestPaymentRecordUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := NewPaymentRecordRepository(newTestDB(t))

	require.NoError(t, repo.Create(ctx, newRecord("order-1", "pay_1")))

	t.Run("Payment id reused by another order", func(t *testing.T) {
		err := repo.Create(ctx, newRecord("order-2", "pay_1"))
		assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey))
	})

	t.Run("Second payment for the same order", func(t *testing.T) {
		err := repo.Create(ctx, newRecord("order-1", "pay_2"))
		assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey))
	})

	got, err := repo.GetByGatewayPaymentID(ctx, "pay_1")
	require.NoError(t, err)
	assert.Equal(t, "order-1", got.OrderID)
	assert.True(t, got.SignatureVerified)
}

func TestMarkRefunded(t *testing.T) {
	ctx := context.Background()
	repo := NewPaymentRecordRepository(newTestDB(t))
	require.NoError(t, repo.Create(ctx, newRecord("order-1", "pay_1")))

	ok, err := repo.MarkRefunded(ctx, "pay_1", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkRefunded(ctx, "pay_1", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.MarkRefunded(ctx, "pay_unknown", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetByGatewayPaymentID(ctx, "pay_1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusRefunded, got.Status)
	assert.NotNil(t, got.RefundedAt)
}

func TestWebhookEvents(t *testing.T) {
	ctx := context.Background()
	repo := NewPaymentRecordRepository(newTestDB(t))

	seen, err := repo.HasWebhookEvent(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	inserted, err := repo.RecordWebhookEvent(ctx, &model.WebhookEvent{EventID: "evt_1", Event: "payment.captured", Outcome: "settled"})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.RecordWebhookEvent(ctx, &model.WebhookEvent{EventID: "evt_1", Event: "payment.captured", Outcome: "settled"})
	require.NoError(t, err)
	assert.False(t, inserted)

	seen, err = repo.HasWebhookEvent(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)
}
