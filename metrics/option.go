package metrics

import (
	"context"

	"go.uber.org/zap"
)

// ServerOption 定义指标服务器的配置选项
type ServerOption func(*Server)

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHealthCheck 设置健康检查，返回错误时 /health 响应 503
func WithHealthCheck(check func(ctx context.Context) error) ServerOption {
	return func(s *Server) {
		s.healthCheck = check
	}
}

// WithMetricsPath 设置指标路径，默认为 "/metrics"
func WithMetricsPath(path string) ServerOption {
	return func(s *Server) {
		if path != "" {
			s.config.MetricsPath = path
		}
	}
}
