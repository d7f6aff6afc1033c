package metrics

import "github.com/prometheus/client_golang/prometheus"

// 报文通常在几百字节到几十 KB 之间。
var sizeBuckets = prometheus.ExponentialBuckets(128, 2, 10)

// RegisterSizeMetrics 注册请求体与响应体大小指标。
func (m *Metrics) RegisterSizeMetrics() {
	if m == nil || m.HTTPRequestSizeBytes != nil {
		return
	}

	m.HTTPRequestSizeBytes = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_server_request_size_bytes",
		Help:    "HTTP request body size in bytes",
		Buckets: sizeBuckets,
	}, []string{"method", "path"})

	m.HTTPResponseSizeBytes = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_server_response_size_bytes",
		Help:    "HTTP response body size in bytes",
		Buckets: sizeBuckets,
	}, []string{"method", "path"})
}
