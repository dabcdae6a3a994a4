package handler

import (
	"io"
	"net/http"

	"course_checkout/internal/domain/payment/service"
	"course_checkout/internal/pkg/apperr"
	commonHandler "course_checkout/internal/pkg/common"
	"course_checkout/internal/pkg/middleware"
	"course_checkout/pkg/response"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

type PaymentHandler struct {
	orders   service.OrderService
	ledger   service.SettlementLedger
	webhooks service.WebhookService
}

func NewPaymentHandler(orders service.OrderService, ledger service.SettlementLedger, webhooks service.WebhookService) *PaymentHandler {
	return &PaymentHandler{orders: orders, ledger: ledger, webhooks: webhooks}
}

// CreateOrderInput 金额由服务端计算，请求中的任何金额字段都会被忽略
type CreateOrderInput struct {
	CourseID   string `json:"course_id" binding:"required"`
	CouponCode string `json:"coupon_code"`
}

// CreateOrder 创建订单
// @Summary 创建课程订单并向网关下单
// @Tags Payment
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param input body CreateOrderInput true "Order Info"
// @Success 200 {object} response.Response{data=service.Checkout}
// @Failure 502 {object} response.Response "gateway error, data.order_id when retryable"
// @Router /payment/orders [post]
func (h *PaymentHandler) CreateOrder(c *gin.Context) {
	uid, ok := middleware.CurrentUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.ErrTokenInvalid, "User not authenticated")
		return
	}

	var input CreateOrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		commonHandler.BindError(c, err)
		return
	}

	checkout, err := h.orders.CreateOrder(c.Request.Context(), uid, input.CourseID, input.CouponCode)
	if err != nil {
		// 优惠券无效不是致命错误，不创建订单
		if apperr.IsCouponRejection(err) {
			response.Fail(c, apperr.CodeOf(err), apperr.MessageOf(err))
			return
		}
		commonHandler.HandleError(c, err)
		return
	}

	response.Success(c, checkout)
}

// RetryOrder 网关超时后复用同一订单重新下单
// @Summary 重试网关下单
// @Tags Payment
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Success 200 {object} response.Response{data=service.Checkout}
// @Router /payment/orders/{id}/retry [post]
func (h *PaymentHandler) RetryOrder(c *gin.Context) {
	uid, ok := middleware.CurrentUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.ErrTokenInvalid, "User not authenticated")
		return
	}

	checkout, err := h.orders.RetryGatewayOrder(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		commonHandler.HandleError(c, err)
		return
	}
	response.Success(c, checkout)
}

// CancelOrder 放弃订单
// @Summary 放弃未支付订单
// @Tags Payment
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.Response "order already paid"
// @Router /payment/orders/{id}/cancel [post]
func (h *PaymentHandler) CancelOrder(c *gin.Context) {
	uid, ok := middleware.CurrentUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.ErrTokenInvalid, "User not authenticated")
		return
	}

	if err := h.orders.AbandonOrder(c.Request.Context(), uid, c.Param("id")); err != nil {
		commonHandler.HandleError(c, err)
		return
	}
	response.Success(c, gin.H{"order_id": c.Param("id"), "status": "failed"})
}

// GetOrder 订单状态
// @Summary 查询订单状态
// @Tags Payment
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Success 200 {object} response.Response{data=model.Order}
// @Router /payment/orders/{id} [get]
func (h *PaymentHandler) GetOrder(c *gin.Context) {
	uid, ok := middleware.CurrentUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.ErrTokenInvalid, "User not authenticated")
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		commonHandler.HandleError(c, err)
		return
	}
	response.Success(c, order)
}

// SettleInput 网关回调参数，客户端转发或网关直接回调
type SettleInput struct {
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
}

// SettleOutput 结算结果
type SettleOutput struct {
	Success      bool   `json:"success"`
	EnrollmentID string `json:"enrollment_id,omitempty"`
	OrderID      string `json:"order_id,omitempty"`
	Created      *bool  `json:"created,omitempty"`
	Error        string `json:"error,omitempty"`
	Retryable    bool   `json:"retryable,omitempty"`
}

// Settle 验签并结算
// @Summary 支付回调验签、结算并开通课程
// @Tags Payment
// @Accept json
// @Produce json
// @Param input body SettleInput true "Gateway callback"
// @Success 200 {object} response.Response{data=SettleOutput}
// @Failure 401 {object} response.Response{data=SettleOutput} "signature mismatch"
// @Failure 409 {object} response.Response{data=SettleOutput}
// @Router /payment/settle [post]
func (h *PaymentHandler) Settle(c *gin.Context) {
	var input SettleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		commonHandler.BindError(c, err)
		return
	}

	actor := service.Actor{IP: c.ClientIP(), Source: service.ActorSourceGateway}
	if uid, ok := middleware.CurrentUserID(c); ok {
		actor.UserID = uid
		actor.Source = service.ActorSourceClient
	}

	result, err := h.ledger.Settle(c.Request.Context(), service.SettleRequest{
		GatewayOrderID:   input.GatewayOrderID,
		GatewayPaymentID: input.GatewayPaymentID,
		Signature:        input.Signature,
		Actor:            actor,
	})
	if err != nil {
		out := SettleOutput{Success: false, Error: apperr.MessageOf(err)}
		if e, ok := apperr.As(err); ok {
			out.Retryable = e.Retryable
		}
		response.ErrorWithData(c, apperr.HTTPStatus(err), apperr.CodeOf(err), out.Error, out)
		return
	}

	created := result.Created
	response.Success(c, SettleOutput{
		Success:      true,
		EnrollmentID: result.EnrollmentID,
		OrderID:      result.OrderID,
		Created:      &created,
	})
}

// Webhook 网关异步通知
// @Summary 网关 webhook (payment.captured / order.paid / refund.processed)
// @Tags Payment
// @Accept json
// @Produce json
// @Param X-Razorpay-Signature header string true "HMAC-SHA256 of body"
// @Param X-Razorpay-Event-Id header string false "event id"
// @Success 200 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /payment/webhook [post]
func (h *PaymentHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "cannot read body")
		return
	}

	outcome, err := h.webhooks.HandleWebhook(c.Request.Context(), service.WebhookRequest{
		Body:      body,
		Signature: c.GetHeader("X-Razorpay-Signature"),
		EventID:   c.GetHeader("X-Razorpay-Event-Id"),
		Actor:     service.Actor{IP: c.ClientIP(), Source: service.ActorSourceGateway},
	})
	if err != nil {
		commonHandler.HandleError(c, err)
		return
	}
	response.Success(c, gin.H{"outcome": outcome})
}
