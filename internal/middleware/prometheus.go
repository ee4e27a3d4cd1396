// Package middleware 提供 gin 中间件与 Prometheus 指标
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// PrometheusMetrics Prometheus 指标收集器
type PrometheusMetrics struct {
	logger *logrus.Logger

	// HTTP 请求指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 分析指标
	analysesTotal    *prometheus.CounterVec
	analysisDuration prometheus.Histogram
	sessionsOpen     prometheus.Gauge
	methodsExtracted prometheus.Counter
}

// NewPrometheusMetrics 创建指标收集器
func NewPrometheusMetrics(logger *logrus.Logger, namespace string) *PrometheusMetrics {
	return &PrometheusMetrics{
		logger: logger,

		httpRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		httpRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		analysesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Total number of sample analyses by status",
		}, []string{"status"}),

		analysisDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Sample analysis duration",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),

		sessionsOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rizin_sessions_open",
			Help:      "Number of open rizin sessions",
		}),

		methodsExtracted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "methods_extracted_total",
			Help:      "Total number of methods extracted",
		}),
	}
}

// HTTPMiddleware 记录 HTTP 请求指标
func (m *PrometheusMetrics) HTTPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		m.httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, path).
			Observe(time.Since(startTime).Seconds())
	}
}

// Handler 返回 /metrics 端点的处理器
func (m *PrometheusMetrics) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// ObserveAnalysis 记录一次分析的结果与耗时
func (m *PrometheusMetrics) ObserveAnalysis(status string, duration time.Duration, methodCount int) {
	m.analysesTotal.WithLabelValues(status).Inc()
	m.analysisDuration.Observe(duration.Seconds())
	m.methodsExtracted.Add(float64(methodCount))
}

// SessionOpened / SessionClosed 维护活跃会话数
func (m *PrometheusMetrics) SessionOpened() { m.sessionsOpen.Inc() }
func (m *PrometheusMetrics) SessionClosed() { m.sessionsOpen.Dec() }
