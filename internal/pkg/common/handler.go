package handler

import (
	"net/http"

	"course_checkout/internal/pkg/apperr"
	"course_checkout/pkg/logger"
	"course_checkout/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HandleError 将业务错误映射为 HTTP 状态码 + 业务码，内部错误只记录日志不外泄
func HandleError(c *gin.Context, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		logger.Log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString("RequestID")),
			zap.Error(err),
		)
	}

	var data interface{}
	if e, ok := apperr.As(err); ok && (e.Retryable || len(e.Details) > 0) {
		d := gin.H{"retryable": e.Retryable}
		for k, v := range e.Details {
			d[k] = v
		}
		data = d
	}
	response.ErrorWithData(c, apperr.HTTPStatus(err), apperr.CodeOf(err), apperr.MessageOf(err), data)
}

// BindError 参数绑定失败
func BindError(c *gin.Context, err error) {
	response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
}

// Health 健康检查
// @Summary 健康检查
// @Tags Common
// @Produce json
// @Success 200 {object} response.Response
// @Router /health [get]
func Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}
