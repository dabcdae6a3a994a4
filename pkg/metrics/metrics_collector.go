package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector 指标收集器
// 所有方法对 nil 接收者安全，未启用指标时可直接传 nil
type MetricsCollector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 结算指标
	ordersTotal        *prometheus.CounterVec
	gatewayCallsTotal  *prometheus.CounterVec
	gatewayDuration    prometheus.Histogram
	settlementsTotal   *prometheus.CounterVec
	settlementDuration prometheus.Histogram
	securityEvents     *prometheus.CounterVec
	webhookEvents      *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec

	// 数据库指标
	dbConnectionsActive prometheus.Gauge
	dbConnectionsIdle   prometheus.Gauge
}

// NewMetricsCollector 创建指标收集器，reg 为 nil 时使用默认注册表
func NewMetricsCollector(reg prometheus.Registerer) *MetricsCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &MetricsCollector{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		ordersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_orders_total",
				Help: "Orders by creation outcome",
			},
			[]string{"outcome"},
		),

		gatewayCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_gateway_calls_total",
				Help: "Payment gateway order requests by outcome",
			},
			[]string{"outcome"},
		),

		gatewayDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "checkout_gateway_call_duration_seconds",
				Help:    "Payment gateway order request latency",
				Buckets: prometheus.DefBuckets,
			},
		),

		settlementsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_settlements_total",
				Help: "Settlement attempts by result",
			},
			[]string{"result"},
		),

		settlementDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "checkout_settlement_duration_seconds",
				Help:    "Settlement latency including lock wait",
				Buckets: prometheus.DefBuckets,
			},
		),

		securityEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_security_events_total",
				Help: "Security events by type",
			},
			[]string{"type"},
		),

		webhookEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_webhook_events_total",
				Help: "Gateway webhook events by event name and outcome",
			},
			[]string{"event", "outcome"},
		),

		notificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_notifications_total",
				Help: "Notification deliveries by outcome",
			},
			[]string{"outcome"},
		),

		dbConnectionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "db_connections_active",
				Help: "Number of active database connections",
			},
		),

		dbConnectionsIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}
}

// RecordHTTPRequest 记录HTTP请求指标
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordOrder outcome: created, coupon_rejected, gateway_failed, gateway_timeout
func (m *MetricsCollector) RecordOrder(outcome string) {
	if m == nil {
		return
	}
	m.ordersTotal.WithLabelValues(outcome).Inc()
}

func (m *MetricsCollector) RecordGatewayCall(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.gatewayCallsTotal.WithLabelValues(outcome).Inc()
	m.gatewayDuration.Observe(duration.Seconds())
}

// RecordSettlement result: enrolled, replayed, security, conflict, not_found, ...
func (m *MetricsCollector) RecordSettlement(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.settlementsTotal.WithLabelValues(result).Inc()
	m.settlementDuration.Observe(duration.Seconds())
}

func (m *MetricsCollector) RecordSecurityEvent(eventType string) {
	if m == nil {
		return
	}
	m.securityEvents.WithLabelValues(eventType).Inc()
}

func (m *MetricsCollector) RecordWebhook(event, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(event, outcome).Inc()
}

func (m *MetricsCollector) RecordNotification(outcome string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(outcome).Inc()
}

// UpdateDBConnections 更新数据库连接数
func (m *MetricsCollector) UpdateDBConnections(active, idle int) {
	if m == nil {
		return
	}
	m.dbConnectionsActive.Set(float64(active))
	m.dbConnectionsIdle.Set(float64(idle))
}

// GinMiddleware 请求指标中间件，endpoint 使用路由模板避免标签爆炸
func (m *MetricsCollector) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, endpoint, getStatusCategory(c.Writer.Status()), time.Since(start))
	}
}

func getStatusCategory(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return strconv.Itoa(status)
	}
}
