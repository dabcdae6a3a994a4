package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"course_checkout/pkg/security"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	monitor := security.NewSecurityMonitor(nil, nil)
	limiter := NewIPRateLimiter(1, 2)

	r := gin.New()
	r.POST("/payment/settle", RateLimitMiddleware(limiter, monitor), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/payment/settle", nil)
		req.RemoteAddr = "10.0.0.9:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Len(t, monitor.GetEvents(security.EventRateLimit, 0), 1)
}

func TestIPRateLimiterCleanup(t *testing.T) {
	limiter := NewIPRateLimiter(1, 1)
	limiter.GetLimiter("10.0.0.1")
	limiter.GetLimiter("10.0.0.2")

	assert.Equal(t, 0, limiter.Cleanup(time.Hour))
	assert.Equal(t, 2, limiter.Cleanup(-time.Second))
}
