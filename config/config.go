package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fyerfyer/fyer-lock/api"
	"github.com/fyerfyer/fyer-lock/distributelock"
	"github.com/fyerfyer/fyer-lock/internal/flog"
	"github.com/fyerfyer/fyer-lock/metrics"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Format 配置格式
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverEtcd   = "etcd"
)

// Config 全部配置
type Config struct {
	Store   StoreConfig           `koanf:"store"`
	Lock    LockConfig            `koanf:"lock"`
	Log     flog.Config           `koanf:"log"`
	Metrics metrics.MetricsConfig `koanf:"metrics"`
	API     api.APIConfig         `koanf:"api"`
}

// StoreConfig 存储后端配置
type StoreConfig struct {
	// Driver memory、redis 或 etcd
	Driver  string        `koanf:"driver"`
	Redis   RedisConfig   `koanf:"redis"`
	Etcd    EtcdConfig    `koanf:"etcd"`
	Breaker BreakerConfig `koanf:"breaker"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	PoolSize int    `koanf:"pool_size"`

	// Shards 非空时忽略 Addr，锁按一致性哈希分散到这些实例
	Shards []string `koanf:"shards"`
}

type EtcdConfig struct {
	Endpoints   []string      `koanf:"endpoints"`
	DialTimeout time.Duration `koanf:"dial_timeout"`
}

// BreakerConfig 熔断配置，Enabled 为 false 时不包装
type BreakerConfig struct {
	Enabled             bool          `koanf:"enabled"`
	ConsecutiveFailures uint32        `koanf:"consecutive_failures"`
	OpenTimeout         time.Duration `koanf:"open_timeout"`
	HalfOpenRequests    uint32        `koanf:"half_open_requests"`
}

// LockConfig 锁参数，对应 distributelock 的选项
type LockConfig struct {
	Namespace      string        `koanf:"namespace"`
	LeaseTTL       time.Duration `koanf:"lease_ttl"`
	RenewInterval  time.Duration `koanf:"renew_interval"`
	RefreshTimeout time.Duration `koanf:"refresh_timeout"`
	SpinTries      int           `koanf:"spin_tries"`
	Retry          RetryConfig   `koanf:"retry"`

	// Hostname 为空时使用本机名
	Hostname string `koanf:"hostname"`
}

type RetryConfig struct {
	Attempts uint          `koanf:"attempts"`
	Delay    time.Duration `koanf:"delay"`
	MaxDelay time.Duration `koanf:"max_delay"`
}

// Default 返回默认配置
func Default() *Config {
	lo := distributelock.DefaultOption()
	return &Config{
		Store: StoreConfig{
			Driver: DriverRedis,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
			},
			Etcd: EtcdConfig{
				Endpoints:   []string{"localhost:2379"},
				DialTimeout: 5 * time.Second,
			},
			Breaker: BreakerConfig{
				Enabled:             true,
				ConsecutiveFailures: 5,
				OpenTimeout:         5 * time.Second,
				HalfOpenRequests:    1,
			},
		},
		Lock: LockConfig{
			Namespace:      lo.Namespace,
			LeaseTTL:       lo.LeaseTTL,
			RenewInterval:  lo.RenewInterval,
			RefreshTimeout: lo.RefreshTimeout,
			SpinTries:      lo.SpinTries,
			Retry: RetryConfig{
				Attempts: lo.RetryAttempts,
				Delay:    lo.RetryDelay,
				MaxDelay: lo.RetryMaxDelay,
			},
		},
		Log:     flog.DefaultConfig(),
		Metrics: *metrics.DefaultMetricsConfig(),
		API:     *api.DefaultAPIConfig(),
	}
}

// Load 从文件加载配置，根据扩展名判断格式
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	format, err := detectFormat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	return LoadBytes(data, format)
}

// LoadBytes 从字节加载配置，空数据得到默认配置
// 文件中未出现的字段保持 Default 的值
func LoadBytes(data []byte, format Format) (*Config, error) {
	parser, err := parserFor(format)
	if err != nil {
		return nil, err
	}
	k := koanf.New(".")
	if len(data) > 0 {
		if err := k.Load(rawbytes.Provider(data), parser); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParseFailed, err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnmarshalFailed, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查配置是否可用
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Store.Redis.Addr == "" && len(c.Store.Redis.Shards) == 0 {
			return fmt.Errorf("%w: store.redis.addr is required", ErrInvalidConfig)
		}
	case DriverEtcd:
		if len(c.Store.Etcd.Endpoints) == 0 {
			return fmt.Errorf("%w: store.etcd.endpoints is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrInvalidConfig, c.Store.Driver)
	}

	l := c.Lock
	switch {
	case l.Namespace == "":
		return fmt.Errorf("%w: lock.namespace is required", ErrInvalidConfig)
	case l.LeaseTTL <= 0:
		return fmt.Errorf("%w: lock.lease_ttl must be positive", ErrInvalidConfig)
	case l.RenewInterval <= 0 || l.RenewInterval >= l.LeaseTTL:
		return fmt.Errorf("%w: lock.renew_interval must be shorter than lock.lease_ttl", ErrInvalidConfig)
	case l.SpinTries < 0:
		return fmt.Errorf("%w: lock.spin_tries must not be negative", ErrInvalidConfig)
	case l.Retry.Attempts == 0:
		return fmt.Errorf("%w: lock.retry.attempts must be at least 1", ErrInvalidConfig)
	case l.Retry.Delay > l.Retry.MaxDelay:
		return fmt.Errorf("%w: lock.retry.delay exceeds lock.retry.max_delay", ErrInvalidConfig)
	}
	return nil
}

// Options 转换为 distributelock 选项
func (l LockConfig) Options() []distributelock.Option {
	opts := []distributelock.Option{
		distributelock.WithNamespace(l.Namespace),
		distributelock.WithLeaseTTL(l.LeaseTTL),
		distributelock.WithRenewInterval(l.RenewInterval),
		distributelock.WithRefreshTimeout(l.RefreshTimeout),
		distributelock.WithSpinTries(l.SpinTries),
		distributelock.WithStoreRetry(l.Retry.Attempts, l.Retry.Delay, l.Retry.MaxDelay),
	}
	if l.Hostname != "" {
		opts = append(opts, distributelock.WithHostname(l.Hostname))
	}
	return opts
}

func detectFormat(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %s", ErrUnsupportedFormat, ext)
	}
}

func parserFor(format Format) (koanf.Parser, error) {
	switch format {
	case FormatYAML:
		return yaml.Parser(), nil
	case FormatJSON:
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
