package repository

import (
	"context"
	"time"

	"course_checkout/internal/domain/payment/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderRepository interface {
	WithTx(tx *gorm.DB) OrderRepository
	Create(ctx context.Context, order *model.Order) error
	GetByID(ctx context.Context, id string) (*model.Order, error)
	// GetByGatewayOrderIDForUpdate 行锁读取，只能在事务内使用
	GetByGatewayOrderIDForUpdate(ctx context.Context, gatewayOrderID string) (*model.Order, error)
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*model.Order, error)
	// 以下条件更新返回是否命中，未命中说明状态已被并发修改
	AttachGatewayOrder(ctx context.Context, id, gatewayOrderID string) (bool, error)
	MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id, reason string) (bool, error)
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) WithTx(tx *gorm.DB) OrderRepository {
	return &orderRepository{db: tx}
}

func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *orderRepository) GetByID(ctx context.Context, id string) (*model.Order, error) {
	var order model.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) GetByGatewayOrderIDForUpdate(ctx context.Context, gatewayOrderID string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("gateway_order_id = ?", gatewayOrderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*model.Order, error) {
	var order model.Order
	if err := r.db.WithContext(ctx).Where("gateway_order_id = ?", gatewayOrderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) AttachGatewayOrder(ctx context.Context, id, gatewayOrderID string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ? AND gateway_order_id IS NULL", id, model.OrderStatusCreated).
		Update("gateway_order_id", gatewayOrderID)
	return result.RowsAffected > 0, result.Error
}

func (r *orderRepository) MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", id, model.OrderStatusCreated).
		Updates(map[string]interface{}{
			"status":  model.OrderStatusPaid,
			"paid_at": paidAt,
		})
	return result.RowsAffected > 0, result.Error
}

func (r *orderRepository) MarkFailed(ctx context.Context, id, reason string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", id, model.OrderStatusCreated).
		Updates(map[string]interface{}{
			"status":         model.OrderStatusFailed,
			"failure_reason": reason,
		})
	return result.RowsAffected > 0, result.Error
}
