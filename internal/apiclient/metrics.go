package apiclient

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts outgoing API requests.
type Metrics struct {
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ForcedSignOuts  prometheus.Counter
}

// NewMetrics registers the client metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "campusadmin_api_requests_total",
			Help: "Total API requests by method and status class",
		}, []string{"method", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "campusadmin_api_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		ForcedSignOuts: factory.NewCounter(prometheus.CounterOpts{
			Name: "campusadmin_api_forced_signouts_total",
			Help: "Number of 401 responses that cleared the session",
		}),
	}
}

func (m *Metrics) observe(method string, status int, start time.Time) {
	if m == nil {
		return
	}
	class := "network_error"
	if status > 0 {
		class = strconv.Itoa(status/100) + "xx"
	}
	m.Requests.WithLabelValues(method, class).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

func (m *Metrics) forcedSignOut() {
	if m == nil {
		return
	}
	m.ForcedSignOuts.Inc()
}
