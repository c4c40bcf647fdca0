package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// IMConnections 当前实时连接数（含同一用户的多端）
	IMConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "im_live_connections",
		Help: "Number of live realtime connections",
	})

	IMOnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "im_online_users",
		Help: "Number of users with at least one live connection",
	})

	IMMessageCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "im_messages_total",
			Help: "Realtime frames by type and direction",
		},
		[]string{"type", "direction"},
	)

	IMMessageOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "im_message_outcomes_total",
			Help: "Direct message submissions by final delivery state",
		},
		[]string{"state"},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(RequestCounter)
		prometheus.MustRegister(RequestDuration)
		prometheus.MustRegister(IMConnections)
		prometheus.MustRegister(IMOnlineUsers)
		prometheus.MustRegister(IMMessageCounter)
		prometheus.MustRegister(IMMessageOutcomes)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
