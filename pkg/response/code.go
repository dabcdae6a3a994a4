package response

// 业务状态码
const (
	CodeSuccess = 0
	CodeError   = 1

	// 身份/权限错误 100xx
	ErrTokenInvalid = 10004
	ErrNoPermission = 10005

	// 课程目录错误 200xx
	ErrCourseNotFound = 20001

	// 优惠券错误 300xx
	ErrCouponInvalidCode   = 30001
	ErrCouponNotFound      = 30002
	ErrCouponExpired       = 30003
	ErrCouponNotApplicable = 30004
	ErrCouponUsageLimit    = 30005
	ErrCouponExhausted     = 30006 // 结算时并发竞争失败

	// 订单/支付错误 400xx
	ErrOrderNotFound      = 40001
	ErrOrderNotPayable    = 40002
	ErrOrderAlreadyPaid   = 40003
	ErrPaymentReplay      = 40004
	ErrSignatureInvalid   = 40005
	ErrGatewayUnavailable = 40006
	ErrGatewayTimeout     = 40007
	ErrSettlementConflict = 40008
	ErrWebhookInvalid     = 40009
	ErrPaymentNotFound    = 40010
	ErrEnrollmentNotFound = 40011

	// 系统错误 500xx
	ErrServerInternal  = 50001
	ErrInvalidParam    = 50002
	ErrTooManyRequests = 50003
)
