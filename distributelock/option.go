package distributelock

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/fyerfyer/fyer-lock/internal/ferr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultNamespace     = "loser:blk"
	DefaultLeaseTTL      = 30 * time.Second
	DefaultRenewInterval = 20 * time.Second
	DefaultSpinTries     = 32

	defaultRetryAttempts  = 3
	defaultRetryDelay     = 50 * time.Millisecond
	defaultRetryMaxDelay  = time.Second
	defaultRefreshTimeout = 3 * time.Second

	tracerName = "github.com/fyerfyer/fyer-lock/distributelock"
)

// LockOption 锁配置选项
type LockOption struct {
	// 锁key的命名空间
	Namespace string
	// 租约时长，也是每轮阻塞等待的最长时间
	LeaseTTL time.Duration
	// 续约间隔，必须小于 LeaseTTL
	RenewInterval time.Duration
	// 单次续约的超时时间
	RefreshTimeout time.Duration
	// 自旋次数
	SpinTries int
	// 存储不可用时的重试次数(含首次)
	RetryAttempts uint
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration

	Logger   *zap.Logger
	Recorder Recorder
	Tracer   trace.Tracer
	// 释放锁时发布的诊断信息前缀
	Hostname string
}

// Option 定义选项函数类型
type Option func(*LockOption)

// WithNamespace 设置命名空间
func WithNamespace(ns string) Option {
	return func(o *LockOption) {
		o.Namespace = ns
	}
}

// WithLeaseTTL 设置租约时长
func WithLeaseTTL(ttl time.Duration) Option {
	return func(o *LockOption) {
		o.LeaseTTL = ttl
	}
}

// WithRenewInterval 设置续约间隔
func WithRenewInterval(interval time.Duration) Option {
	return func(o *LockOption) {
		o.RenewInterval = interval
	}
}

// WithRefreshTimeout 设置单次续约超时
func WithRefreshTimeout(timeout time.Duration) Option {
	return func(o *LockOption) {
		o.RefreshTimeout = timeout
	}
}

// WithSpinTries 设置自旋次数，0 表示不自旋
func WithSpinTries(n int) Option {
	return func(o *LockOption) {
		o.SpinTries = n
	}
}

// WithStoreRetry 设置存储不可用时的重试策略
// delay 按指数增长，不超过 maxDelay
func WithStoreRetry(attempts uint, delay, maxDelay time.Duration) Option {
	return func(o *LockOption) {
		o.RetryAttempts = attempts
		o.RetryDelay = delay
		o.RetryMaxDelay = maxDelay
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *LockOption) {
		o.Logger = logger
	}
}

func WithRecorder(r Recorder) Option {
	return func(o *LockOption) {
		o.Recorder = r
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *LockOption) {
		o.Tracer = tracer
	}
}

func WithHostname(hostname string) Option {
	return func(o *LockOption) {
		o.Hostname = hostname
	}
}

// DefaultOption 默认选项
func DefaultOption() *LockOption {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	spin := DefaultSpinTries
	// 单核机器上自旋只会拖慢持有者
	if runtime.NumCPU() < 2 {
		spin = 0
	}
	return &LockOption{
		Namespace:      DefaultNamespace,
		LeaseTTL:       DefaultLeaseTTL,
		RenewInterval:  DefaultRenewInterval,
		RefreshTimeout: defaultRefreshTimeout,
		SpinTries:      spin,
		RetryAttempts:  defaultRetryAttempts,
		RetryDelay:     defaultRetryDelay,
		RetryMaxDelay:  defaultRetryMaxDelay,
		Logger:         zap.NewNop(),
		Recorder:       noopRecorder{},
		Tracer:         otel.Tracer(tracerName),
		Hostname:       hostname,
	}
}

func newOption(opts ...Option) (*LockOption, error) {
	o := DefaultOption()
	for _, opt := range opts {
		opt(o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *LockOption) validate() error {
	switch {
	case o.Namespace == "":
		return fmt.Errorf("%w: namespace must not be empty", ferr.ErrInvalidOption)
	case o.LeaseTTL <= 0:
		return fmt.Errorf("%w: lease ttl must be positive, got %s", ferr.ErrInvalidOption, o.LeaseTTL)
	case o.RenewInterval <= 0 || o.RenewInterval >= o.LeaseTTL:
		return fmt.Errorf("%w: renew interval %s must be in (0, %s)", ferr.ErrInvalidOption, o.RenewInterval, o.LeaseTTL)
	case o.SpinTries < 0:
		return fmt.Errorf("%w: spin tries must not be negative", ferr.ErrInvalidOption)
	case o.RetryAttempts == 0:
		return fmt.Errorf("%w: retry attempts must be at least 1", ferr.ErrInvalidOption)
	case o.RetryDelay < 0 || o.RetryMaxDelay < o.RetryDelay:
		return fmt.Errorf("%w: retry delay %s exceeds max %s", ferr.ErrInvalidOption, o.RetryDelay, o.RetryMaxDelay)
	}
	if o.RefreshTimeout <= 0 || o.RefreshTimeout > o.RenewInterval {
		o.RefreshTimeout = min(defaultRefreshTimeout, o.RenewInterval)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Recorder == nil {
		o.Recorder = noopRecorder{}
	}
	if o.Tracer == nil {
		o.Tracer = otel.Tracer(tracerName)
	}
	return nil
}
