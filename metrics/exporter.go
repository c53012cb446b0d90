package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter 将收集的指标导出为 Prometheus 格式
type PrometheusExporter struct {
	collector *PrometheusCollector
	registry  *prometheus.Registry
	handler   http.Handler
}

// NewPrometheusExporter 创建 Prometheus 指标导出器
func NewPrometheusExporter(collector *PrometheusCollector) *PrometheusExporter {
	registry := collector.GetRegistry()
	return &PrometheusExporter{
		collector: collector,
		registry:  registry,
		handler:   promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
}

// Export 将指标导出到 HTTP 响应
func (pe *PrometheusExporter) Export(w http.ResponseWriter, r *http.Request) {
	pe.handler.ServeHTTP(w, r)
}

// RegisterMetric 注册新的指标，使用与收集器相同的命名空间
func (pe *PrometheusExporter) RegisterMetric(name, help string, typ MetricType, labels ...string) error {
	ns, sub := pe.collector.namespace, pe.collector.subsystem
	var c prometheus.Collector
	switch typ {
	case TypeCounter:
		c = prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Subsystem: sub, Name: name, Help: help}, labels)
	case TypeGauge:
		c = prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Subsystem: sub, Name: name, Help: help}, labels)
	case TypeHistogram:
		c = prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Subsystem: sub, Name: name, Help: help}, labels)
	case TypeSummary:
		c = prometheus.NewSummaryVec(prometheus.SummaryOpts{Namespace: ns, Subsystem: sub, Name: name, Help: help}, labels)
	default:
		return fmt.Errorf("unknown metric type %q", typ)
	}
	return pe.registry.Register(c)
}
