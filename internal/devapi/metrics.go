package devapi

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the dev API's Prometheus collectors.
type Metrics struct {
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	SignIns         *prometheus.CounterVec
	MailsQueued     prometheus.Counter
	Swept           *prometheus.CounterVec
}

// NewMetrics registers the dev API metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "campusadmin_devapi_requests_total",
			Help: "Total requests served by route and status code",
		}, []string{"method", "route", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "campusadmin_devapi_request_duration_seconds",
			Help:    "Duration of served requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		SignIns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "campusadmin_devapi_signins_total",
			Help: "Sign-in attempts by method and outcome",
		}, []string{"method", "outcome"}),
		MailsQueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "campusadmin_devapi_mails_queued_total",
			Help: "Emails handed to the outbox",
		}),
		Swept: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "campusadmin_devapi_swept_total",
			Help: "Expired records removed by the janitor",
		}, []string{"kind"}),
	}
}

// Middleware records request counts and latency by matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.Requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) signIn(method, outcome string) {
	m.SignIns.WithLabelValues(method, outcome).Inc()
}
