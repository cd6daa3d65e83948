package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 消息指标
	MessagesSent    prometheus.Counter
	MessagesDeleted prometheus.Counter
	MessagesLive    prometheus.Gauge

	// 捐赠与出站调用指标
	DonationsConfirmed prometheus.Counter
	NotifyCalls        *prometheus.CounterVec // outcome: committed / aborted
	PaymentTransfers   *prometheus.CounterVec // outcome: ok / failed

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter
}

// NewMetrics 创建监控指标（promauto 自动注册到默认 Registry）
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailledger_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailledger_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		MessagesSent: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailledger_messages_sent_total",
				Help: "Total number of messages recorded",
			},
		),

		MessagesDeleted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailledger_messages_deleted_total",
				Help: "Total number of messages deleted by their sender",
			},
		),

		MessagesLive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailledger_messages_live",
				Help: "Number of currently stored messages",
			},
		),

		DonationsConfirmed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailledger_donations_confirmed_total",
				Help: "Total number of donation ledger entries written after confirmation",
			},
		),

		NotifyCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailledger_notify_calls_total",
				Help: "Total number of resolved outbound notification calls",
			},
			[]string{"outcome"},
		),

		PaymentTransfers: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailledger_payment_transfers_total",
				Help: "Total number of payment transfer attempts",
			},
			[]string{"outcome"},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailledger_errors_total",
				Help: "Total number of errors by type",
			},
			[]string{"type"},
		),

		PanicsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailledger_panics_total",
				Help: "Total number of recovered panics in HTTP handlers",
			},
		),
	}
}

// HTTPHandler 返回 Prometheus 指标端点处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
