package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilCollectorIsSafe(t *testing.T) {
	var m *MetricsCollector
	assert.NotPanics(t, func() {
		m.RecordOrder("created")
		m.RecordSettlement("enrolled", time.Millisecond)
		m.RecordSecurityEvent("signature_mismatch")
		m.RecordNotification("sent")
		m.UpdateDBConnections(1, 2)
	})
}

func TestSettlementCounters(t *testing.T) {
	m := NewMetricsCollector(prometheus.NewRegistry())

	m.RecordSettlement("enrolled", 10*time.Millisecond)
	m.RecordSettlement("enrolled", 5*time.Millisecond)
	m.RecordSettlement("conflict", time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.settlementsTotal.WithLabelValues("enrolled")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.settlementsTotal.WithLabelValues("conflict")))
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetricsCollector(prometheus.NewRegistry())

	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/payment/orders/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/payment/orders/abc", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/payment/orders/:id", "4xx")))
}

func TestGetStatusCategory(t *testing.T) {
	assert.Equal(t, "2xx", getStatusCategory(200))
	assert.Equal(t, "4xx", getStatusCategory(409))
	assert.Equal(t, "5xx", getStatusCategory(502))
	assert.Equal(t, "100", getStatusCategory(100))
}
