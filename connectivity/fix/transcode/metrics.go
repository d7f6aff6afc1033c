package transcode

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wyfcoding/fixrelay/connectivity/fix"
	"github.com/wyfcoding/fixrelay/metrics"
)

const resultOK, resultError = "ok", "error"

// Metrics 是转码指标集合，nil 值的方法均为空操作.
type Metrics struct {
	total    *prometheus.CounterVec   // route, stage, result, kind
	duration *prometheus.HistogramVec // route, result
	fields   *prometheus.HistogramVec // route
}

// NewMetrics 在 m 的注册表上创建转码指标，每个注册表只能调用一次.
func NewMetrics(m *metrics.Metrics) *Metrics {
	if m == nil {
		return nil
	}
	return &Metrics{
		total: m.NewCounterVec(prometheus.CounterOpts{
			Name: "fix_transcode_total",
			Help: "Transcode attempts by route, final stage, result and error kind",
		}, []string{"route", "stage", "result", "kind"}),
		duration: m.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fix_transcode_duration_seconds",
			Help:    "Transcode latency in seconds",
			Buckets: []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .05},
		}, []string{"route", "result"}),
		fields: m.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fix_message_fields",
			Help:    "Number of fields in successfully transcoded messages",
			Buckets: prometheus.LinearBuckets(5, 10, 10),
		}, []string{"route"}),
	}
}

func (m *Metrics) observeSuccess(route string, fields int, d time.Duration) {
	if m == nil {
		return
	}
	m.total.WithLabelValues(route, StageEncode.String(), resultOK, "").Inc()
	m.duration.WithLabelValues(route, resultOK).Observe(d.Seconds())
	m.fields.WithLabelValues(route).Observe(float64(fields))
}

func (m *Metrics) observeFailure(route string, stage Stage, kind fix.Kind, d time.Duration) {
	if m == nil {
		return
	}
	m.total.WithLabelValues(route, stage.String(), resultError, kind.String()).Inc()
	m.duration.WithLabelValues(route, resultError).Observe(d.Seconds())
}
