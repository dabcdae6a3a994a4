// Package apperr 定义业务错误类型，handler 层据此映射 HTTP 状态码与业务码
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"course_checkout/pkg/response"
)

// Kind 错误类别
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindExpired
	KindNotApplicable
	KindUsageLimitExceeded
	KindConflict
	KindSecurity
	KindGateway
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindExpired:
		return "expired"
	case KindNotApplicable:
		return "not_applicable"
	case KindUsageLimitExceeded:
		return "usage_limit_exceeded"
	case KindConflict:
		return "conflict"
	case KindSecurity:
		return "security"
	case KindGateway:
		return "gateway"
	default:
		return "internal"
	}
}

// Error 业务错误
type Error struct {
	Kind      Kind
	Code      int
	Message   string
	Retryable bool
	Err       error
	Details   map[string]string // 可以返回给调用方的附加信息，如 order_id
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 同类同码视为相等，便于 errors.Is(err, apperr.ErrXxx) 判断
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// WithDetail 返回带附加信息的副本，不修改包级错误变量
func (e *Error) WithDetail(key, value string) *Error {
	cp := *e
	cp.Details = make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// New 创建业务错误
func New(kind Kind, code int, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// Wrap 包装底层错误
func Wrap(kind Kind, code int, msg string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Err: err}
}

func Validation(code int, msg string) *Error {
	return New(KindValidation, code, msg)
}

func NotFound(code int, msg string) *Error {
	return New(KindNotFound, code, msg)
}

// Conflict 冲突错误，调用方应先检查状态再决定是否重试
func Conflict(code int, msg string) *Error {
	e := New(KindConflict, code, msg)
	e.Retryable = true
	return e
}

func Security(code int, msg string) *Error {
	return New(KindSecurity, code, msg)
}

// Gateway 网关错误，总是可重试
func Gateway(code int, msg string, err error) *Error {
	e := Wrap(KindGateway, code, msg, err)
	e.Retryable = true
	return e
}

func Internal(msg string, err error) *Error {
	return Wrap(KindInternal, response.ErrServerInternal, msg, err)
}

// As 提取 *Error
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf 返回错误类别，非业务错误视为 internal
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// IsKind 判断错误类别
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsCouponRejection 优惠券规则拒绝 (不致命，仅提示“优惠券无效”)
func IsCouponRejection(err error) bool {
	switch KindOf(err) {
	case KindExpired, KindNotApplicable, KindUsageLimitExceeded:
		return true
	}
	return false
}

// HTTPStatus 错误类别对应的 HTTP 状态码
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindExpired, KindNotApplicable, KindUsageLimitExceeded:
		return http.StatusOK
	case KindConflict:
		return http.StatusConflict
	case KindSecurity:
		return http.StatusUnauthorized
	case KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf 返回业务码
func CodeOf(err error) int {
	if e, ok := As(err); ok {
		return e.Code
	}
	return response.ErrServerInternal
}

// MessageOf 返回可以展示给调用方的信息，内部错误不暴露细节
func MessageOf(err error) string {
	if e, ok := As(err); ok && e.Kind != KindInternal {
		return e.Message
	}
	return "internal server error"
}
