package handler

import (
	"net/http"

	"course_checkout/internal/domain/enrollment/service"
	commonHandler "course_checkout/internal/pkg/common"
	"course_checkout/internal/pkg/middleware"
	"course_checkout/pkg/response"

	"github.com/gin-gonic/gin"
)

type EnrollmentHandler struct {
	service service.EnrollmentService
}

func NewEnrollmentHandler(service service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{service: service}
}

// GetEnrollment 课程访问检查
// @Summary 查询当前用户是否已报名课程
// @Tags Enrollment
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Response{data=model.Enrollment}
// @Failure 404 {object} response.Response
// @Router /enrollments/{courseId} [get]
func (h *EnrollmentHandler) GetEnrollment(c *gin.Context) {
	uid, ok := middleware.CurrentUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.ErrTokenInvalid, "User not authenticated")
		return
	}

	enrollment, err := h.service.GetEnrollment(c.Request.Context(), uid, c.Param("courseId"))
	if err != nil {
		commonHandler.HandleError(c, err)
		return
	}
	response.Success(c, enrollment)
}
