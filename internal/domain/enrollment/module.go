package enrollment

import (
	"course_checkout/internal/domain/enrollment/handler"
	"course_checkout/internal/domain/enrollment/repository"
	"course_checkout/internal/domain/enrollment/service"
	"course_checkout/internal/pkg/middleware"
	"course_checkout/internal/pkg/registry"

	"github.com/gin-gonic/gin"
)

// EnrollmentModule 报名查询模块
type EnrollmentModule struct{}

func init() {
	registry.Register(&EnrollmentModule{})
}

func (m *EnrollmentModule) Name() string {
	return "enrollment"
}

func (m *EnrollmentModule) Priority() int {
	return 20
}

func (m *EnrollmentModule) Init(ctx *registry.ModuleContext) error {
	eService := service.NewEnrollmentService(repository.NewEnrollmentRepository(ctx.DB))
	setupRoutes(ctx.Router, handler.NewEnrollmentHandler(eService))
	return nil
}

func setupRoutes(r *gin.Engine, h *handler.EnrollmentHandler) {
	g := r.Group("/enrollments")
	g.Use(middleware.AuthMiddleware())
	{
		g.GET("/:courseId", h.GetEnrollment)
	}
}
