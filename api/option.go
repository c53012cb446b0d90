package api

import (
	"time"

	"go.uber.org/zap"
)

// APIConfig API 服务器配置
type APIConfig struct {
	// 绑定地址，例如 ":8080"
	BindAddress string `koanf:"address"`

	// API 基础路径，如 "/api"
	BasePath string `koanf:"base_path"`

	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"`

	Logger *zap.Logger `koanf:"-"`
}

// DefaultAPIConfig 返回默认的 API 配置
func DefaultAPIConfig() *APIConfig {
	return &APIConfig{
		BindAddress:  ":8080",
		BasePath:     "/api",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
		Logger:       zap.NewNop(),
	}
}

// Option API 服务器配置选项
type Option func(*APIConfig)

// WithBindAddress 设置绑定地址
func WithBindAddress(addr string) Option {
	return func(c *APIConfig) {
		if addr != "" {
			c.BindAddress = addr
		}
	}
}

// WithBasePath 设置 API 基础路径
func WithBasePath(path string) Option {
	return func(c *APIConfig) {
		if path != "" {
			c.BasePath = path
		}
	}
}

// WithTimeouts 设置所有超时参数，非正数保持默认
func WithTimeouts(readTimeout, writeTimeout, idleTimeout time.Duration) Option {
	return func(c *APIConfig) {
		if readTimeout > 0 {
			c.ReadTimeout = readTimeout
		}
		if writeTimeout > 0 {
			c.WriteTimeout = writeTimeout
		}
		if idleTimeout > 0 {
			c.IdleTimeout = idleTimeout
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *APIConfig) {
		if logger != nil {
			c.Logger = logger
		}
	}
}
