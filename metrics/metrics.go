package metrics

import (
	"net/http"
	"time"

	"github.com/fyerfyer/fyer-lock/distributelock"
)

// MetricType 表示指标类型
type MetricType string

const (
	TypeCounter   MetricType = "counter"
	TypeGauge     MetricType = "gauge"
	TypeHistogram MetricType = "histogram"
	TypeSummary   MetricType = "summary"
)

// 默认指标名称常量
const (
	DefaultNamespace = "fyerlock"
	DefaultSubsystem = "lock"

	MetricAcquireCount  = "acquire_total"
	MetricWaitLatency   = "acquire_wait_seconds"
	MetricWakeupCount   = "wakeup_total"
	MetricRenewalCount  = "renewal_total"
	MetricReleaseCount  = "release_total"
	MetricStoreLatency  = "store_operation_seconds"
	MetricStoreErrCount = "store_error_total"

	HelpAcquireCount  = "Total number of lock acquisitions by phase"
	HelpWaitLatency   = "Time spent acquiring a lock in seconds"
	HelpWakeupCount   = "Total number of parked waiter wake-ups by reason"
	HelpRenewalCount  = "Total number of lease renewals by result"
	HelpReleaseCount  = "Total number of lock releases by result"
	HelpStoreLatency  = "Latency distribution of store operations in seconds"
	HelpStoreErrCount = "Total number of failed store operations"
)

// Collector 指标收集器
// 锁事件部分与 distributelock.Recorder 一致，另加存储操作指标
type Collector interface {
	distributelock.Recorder

	// ObserveStore 记录一次存储操作的耗时与结果
	ObserveStore(operation string, duration time.Duration, err error)
}

// Exporter 定义了指标导出器的接口
type Exporter interface {
	// 导出收集到的指标
	Export(w http.ResponseWriter, r *http.Request)

	// 注册新的指标
	RegisterMetric(name, help string, typ MetricType, labels ...string) error
}

// MetricsConfig 包含指标系统配置
type MetricsConfig struct {
	// HTTP服务器地址
	Address string `koanf:"address"`

	// 指标路径
	MetricsPath string `koanf:"path"`

	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Address:     ":9090",
		MetricsPath: "/metrics",
		Namespace:   DefaultNamespace,
		Subsystem:   DefaultSubsystem,
	}
}
