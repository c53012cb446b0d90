package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const healthTimeout = 2 * time.Second

// Server 提供HTTP服务器，暴露指标端点
type Server struct {
	exporter    Exporter
	config      MetricsConfig
	logger      *zap.Logger
	healthCheck func(ctx context.Context) error

	server   *http.Server
	listener net.Listener
	running  bool
	mu       sync.RWMutex
}

// NewServer 创建一个新的指标服务器
func NewServer(exporter Exporter, config *MetricsConfig, opts ...ServerOption) *Server {
	if config == nil {
		config = DefaultMetricsConfig()
	}
	s := &Server{
		exporter: exporter,
		config:   *config,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler 返回指标与健康检查的路由
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.config.MetricsPath, s.handleMetrics)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start 监听端口并在后台提供服务
// 监听失败时直接返回错误
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	s.running = true
	s.logger.Info("metrics server started", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr 实际监听的地址，未启动时为空
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop 停止HTTP服务器
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}

	s.running = false
	s.listener = nil
	return nil
}

// IsRunning 返回服务器是否正在运行
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.exporter.Export(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.healthCheck != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := s.healthCheck(ctx); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
