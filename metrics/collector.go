package metrics

import (
	"time"

	"github.com/fyerfyer/fyer-lock/distributelock"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector 实现了基于 Prometheus 的指标收集器
type PrometheusCollector struct {
	acquireCounter  *prometheus.CounterVec
	waitHistogram   *prometheus.HistogramVec
	wakeupCounter   *prometheus.CounterVec
	renewalCounter  *prometheus.CounterVec
	releaseCounter  *prometheus.CounterVec
	storeHistogram  *prometheus.HistogramVec
	storeErrCounter *prometheus.CounterVec

	registry *prometheus.Registry

	namespace string
	subsystem string
}

var _ Collector = (*PrometheusCollector)(nil)

// NewPrometheusCollector 创建一个新的 Prometheus 指标收集器
func NewPrometheusCollector(config *MetricsConfig) *PrometheusCollector {
	if config == nil {
		config = DefaultMetricsConfig()
	}
	ns, sub := config.Namespace, config.Subsystem

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      name,
			Help:      help,
		}, labels)
	}

	pc := &PrometheusCollector{
		acquireCounter: counter(MetricAcquireCount, HelpAcquireCount, "resource", "phase"),
		waitHistogram: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      MetricWaitLatency,
			Help:      HelpWaitLatency,
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60},
		}, []string{"resource", "phase"}),
		wakeupCounter:  counter(MetricWakeupCount, HelpWakeupCount, "resource", "reason"),
		renewalCounter: counter(MetricRenewalCount, HelpRenewalCount, "resource", "result"),
		releaseCounter: counter(MetricReleaseCount, HelpReleaseCount, "resource", "result"),
		storeHistogram: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      MetricStoreLatency,
			Help:      HelpStoreLatency,
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
		storeErrCounter: counter(MetricStoreErrCount, HelpStoreErrCount, "operation"),
		registry:        prometheus.NewRegistry(),
		namespace:       ns,
		subsystem:       sub,
	}
	pc.registry.MustRegister(
		pc.acquireCounter,
		pc.waitHistogram,
		pc.wakeupCounter,
		pc.renewalCounter,
		pc.releaseCounter,
		pc.storeHistogram,
		pc.storeErrCounter,
	)
	return pc
}

func (pc *PrometheusCollector) Acquired(resource string, phase distributelock.Phase, wait time.Duration) {
	pc.acquireCounter.WithLabelValues(resource, string(phase)).Inc()
	pc.waitHistogram.WithLabelValues(resource, string(phase)).Observe(wait.Seconds())
}

func (pc *PrometheusCollector) Woken(resource string, reason distributelock.WakeReason) {
	pc.wakeupCounter.WithLabelValues(resource, string(reason)).Inc()
}

func (pc *PrometheusCollector) Renewed(resource string, result distributelock.Result) {
	pc.renewalCounter.WithLabelValues(resource, string(result)).Inc()
}

func (pc *PrometheusCollector) Released(resource string, result distributelock.Result) {
	pc.releaseCounter.WithLabelValues(resource, string(result)).Inc()
}

// ObserveStore 记录存储操作延迟，失败时额外计数
func (pc *PrometheusCollector) ObserveStore(operation string, duration time.Duration, err error) {
	pc.storeHistogram.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		pc.storeErrCounter.WithLabelValues(operation).Inc()
	}
}

// GetRegistry 获取 Prometheus 注册表
func (pc *PrometheusCollector) GetRegistry() *prometheus.Registry {
	return pc.registry
}
