// Package gateway 第三方支付网关客户端
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrTimeout 网关在截止时间内未应答，订单结果未知，可以用同一订单重试
var ErrTimeout = errors.New("payment gateway timeout")

// OrderRequest 网关下单请求，Receipt 为内部订单 ID
type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// Order 网关订单
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Gateway 支付网关
type Gateway interface {
	Name() string
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
}

// APIError 网关返回的业务错误
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway error %d %s: %s", e.StatusCode, e.Code, e.Description)
}

// IsTimeout 判断是否为超时类错误
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
