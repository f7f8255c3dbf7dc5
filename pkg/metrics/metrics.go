// Package metrics 提供 Prometheus helper，包含会话与交易相关的业务指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 指标集合
type Metrics struct {
	// HTTP 请求计数（按方法、路径、状态码）
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration *prometheus.HistogramVec

	// 会话创建计数
	SessionsCreatedTotal prometheus.Counter
	// 会话强制过期计数
	SessionsExpiredTotal prometheus.Counter
	// 当前有效会话数
	SessionsActive prometheus.Gauge
	// 交易计数
	TradesTotal prometheus.Counter
	// 被拒交易计数（按原因）
	TradesRejectedTotal *prometheus.CounterVec
	// 授权交易员数量
	AuthorizedTraders prometheus.Gauge

	// 聚合器请求耗时（按 endpoint）
	AggregatorRequestDuration *prometheus.HistogramVec
	// 聚合器请求错误计数
	AggregatorErrorsTotal *prometheus.CounterVec

	// Outbox 待发送消息数
	OutboxPending prometheus.Gauge
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zksession",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "zksession",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		SessionsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zksession",
			Subsystem: serviceName,
			Name:      "sessions_created_total",
			Help:      "Total trading sessions created",
		}),
		SessionsExpiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zksession",
			Subsystem: serviceName,
			Name:      "sessions_expired_total",
			Help:      "Total sessions force-expired",
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zksession",
			Subsystem: serviceName,
			Name:      "sessions_active",
			Help:      "Number of currently valid sessions",
		}),
		TradesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zksession",
			Subsystem: serviceName,
			Name:      "trades_total",
			Help:      "Total trades executed against sessions",
		}),
		TradesRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zksession",
			Subsystem: serviceName,
			Name:      "trades_rejected_total",
			Help:      "Total trades rejected by the ledger",
		}, []string{"reason"}),
		AuthorizedTraders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zksession",
			Subsystem: serviceName,
			Name:      "authorized_traders",
			Help:      "Number of addresses in the trader allow-list",
		}),

		AggregatorRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "zksession",
			Subsystem: serviceName,
			Name:      "aggregator_request_duration_seconds",
			Help:      "DEX aggregator request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		AggregatorErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zksession",
			Subsystem: serviceName,
			Name:      "aggregator_errors_total",
			Help:      "Total DEX aggregator request failures",
		}, []string{"endpoint"}),

		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zksession",
			Subsystem: serviceName,
			Name:      "outbox_pending",
			Help:      "Number of outbox messages waiting for relay",
		}),
	}
}

// Register 注册所有指标
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SessionsCreatedTotal,
		m.SessionsExpiredTotal,
		m.SessionsActive,
		m.TradesTotal,
		m.TradesRejectedTotal,
		m.AuthorizedTraders,
		m.AggregatorRequestDuration,
		m.AggregatorErrorsTotal,
		m.OutboxPending,
	}

	for _, c := range collectors {
		if err := prometheus.DefaultRegisterer.Register(c); err != nil {
			return err
		}
	}
	return nil
}
