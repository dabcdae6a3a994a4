package security

import (
	"sync"
	"time"

	"course_checkout/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SecurityEvent 安全事件，Details 中不得包含密钥或计算出的摘要
type SecurityEvent struct {
	ID        string             `json:"id"`
	Type      SecurityEventType  `json:"type"`
	Level     SecurityEventLevel `json:"level"`
	Timestamp time.Time          `json:"timestamp"`
	Source    string             `json:"source"`
	UserID    string             `json:"user_id,omitempty"`
	IP        string             `json:"ip"`
	Path      string             `json:"path"`
	Message   string             `json:"message"`
	Details   map[string]string  `json:"details,omitempty"`
}

// SecurityEventType 安全事件类型
type SecurityEventType string

const (
	EventSignatureMismatch SecurityEventType = "signature_mismatch"
	EventWebhookSignature  SecurityEventType = "webhook_signature_invalid"
	EventRateLimit         SecurityEventType = "rate_limit"
	EventUnauthorized      SecurityEventType = "unauthorized"
)

// SecurityEventLevel 安全事件级别
type SecurityEventLevel string

const (
	LevelInfo     SecurityEventLevel = "info"
	LevelWarning  SecurityEventLevel = "warning"
	LevelCritical SecurityEventLevel = "critical"
)

const maxRetainedEvents = 1000

// AlertHandler 告警处理器接口
type AlertHandler interface {
	Handle(event SecurityEvent, reason string) error
}

// SecurityMonitor 安全监控器
type SecurityMonitor struct {
	metricsCollector *metrics.MetricsCollector
	log              *zap.Logger
	events           []SecurityEvent
	mu               sync.RWMutex
	alertThresholds  map[SecurityEventType]int
	alertHandlers    []AlertHandler
	now              func() time.Time
}

// NewSecurityMonitor 创建安全监控器
func NewSecurityMonitor(metricsCollector *metrics.MetricsCollector, log *zap.Logger) *SecurityMonitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &SecurityMonitor{
		metricsCollector: metricsCollector,
		log:              log.Named("security"),
		events:           make([]SecurityEvent, 0),
		alertThresholds: map[SecurityEventType]int{
			EventSignatureMismatch: 5,  // 5次/分钟
			EventWebhookSignature:  5,  // 5次/分钟
			EventRateLimit:         20, // 20次/分钟
		},
		now: time.Now,
	}
}

// RecordEvent 记录安全事件
func (sm *SecurityMonitor) RecordEvent(event SecurityEvent) {
	if sm == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = sm.now()
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Level == "" {
		event.Level = LevelWarning
	}

	// 保持最近1000个事件
	sm.mu.Lock()
	sm.events = append(sm.events, event)
	if len(sm.events) > maxRetainedEvents {
		sm.events = sm.events[len(sm.events)-maxRetainedEvents:]
	}
	sm.mu.Unlock()

	sm.metricsCollector.RecordSecurityEvent(string(event.Type))
	sm.logEvent(event)
	sm.checkAlerts(event)
}

func (sm *SecurityMonitor) logEvent(event SecurityEvent) {
	fields := []zap.Field{
		zap.String("event", string(event.Type)),
		zap.String("event_id", event.ID),
		zap.String("level", string(event.Level)),
		zap.String("source", event.Source),
		zap.String("user_id", event.UserID),
		zap.String("ip", event.IP),
		zap.String("path", event.Path),
		zap.Time("at", event.Timestamp),
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String(k, v))
	}

	if event.Level == LevelCritical {
		sm.log.Error(event.Message, fields...)
		return
	}
	sm.log.Warn(event.Message, fields...)
}

// checkAlerts 一分钟内同类事件超过阈值则告警
func (sm *SecurityMonitor) checkAlerts(event SecurityEvent) {
	sm.mu.RLock()
	threshold, ok := sm.alertThresholds[event.Type]
	handlers := sm.alertHandlers
	sm.mu.RUnlock()
	if !ok {
		return
	}

	if sm.getEventCount(event.Type, time.Minute) < threshold {
		return
	}
	for _, h := range handlers {
		if err := h.Handle(event, "threshold exceeded"); err != nil {
			sm.log.Error("alert handler failed", zap.Error(err))
		}
	}
}

func (sm *SecurityMonitor) getEventCount(eventType SecurityEventType, duration time.Duration) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	since := sm.now().Add(-duration)
	count := 0
	for i := len(sm.events) - 1; i >= 0; i-- {
		e := sm.events[i]
		if e.Timestamp.Before(since) {
			break
		}
		if e.Type == eventType {
			count++
		}
	}
	return count
}

// GetEvents 按类型取最近的事件，eventType 为空表示全部
func (sm *SecurityMonitor) GetEvents(eventType SecurityEventType, limit int) []SecurityEvent {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	result := make([]SecurityEvent, 0)
	for i := len(sm.events) - 1; i >= 0 && (limit <= 0 || len(result) < limit); i-- {
		if eventType == "" || sm.events[i].Type == eventType {
			result = append(result, sm.events[i])
		}
	}
	return result
}

// GetEventStats 事件类型计数
func (sm *SecurityMonitor) GetEventStats() map[string]int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	stats := make(map[string]int)
	for _, e := range sm.events {
		stats[string(e.Type)]++
	}
	return stats
}

func (sm *SecurityMonitor) AddAlertHandler(handler AlertHandler) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.alertHandlers = append(sm.alertHandlers, handler)
}

func (sm *SecurityMonitor) SetAlertThreshold(eventType SecurityEventType, threshold int) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.alertThresholds[eventType] = threshold
}

// LogAlertHandler 告警写入错误日志
type LogAlertHandler struct {
	log *zap.Logger
}

func NewLogAlertHandler(log *zap.Logger) *LogAlertHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogAlertHandler{log: log}
}

func (h *LogAlertHandler) Handle(event SecurityEvent, reason string) error {
	h.log.Error("security alert",
		zap.String("event", string(event.Type)),
		zap.String("reason", reason),
		zap.String("ip", event.IP),
	)
	return nil
}
