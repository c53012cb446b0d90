package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// APIServer 提供锁管理 HTTP API
type APIServer struct {
	svc    LockService
	health func(ctx context.Context) error

	server *http.Server
	config *APIConfig

	mu      sync.RWMutex
	running bool

	// 实际监听地址（用于随机端口）
	actualAddr string
}

// NewAPIServer 创建新的 API 服务器
// health 为空时 /health 总是返回成功
func NewAPIServer(svc LockService, health func(ctx context.Context) error, options ...Option) *APIServer {
	config := DefaultAPIConfig()
	for _, option := range options {
		option(config)
	}
	return &APIServer{
		svc:    svc,
		health: health,
		config: config,
	}
}

// Handler 返回 API 路由
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()
	base := s.config.BasePath

	// GET /locks?resource=X - 查询锁状态
	mux.HandleFunc(base+"/locks", func(w http.ResponseWriter, r *http.Request) {
		HandleInspect(w, r, s.svc)
	})

	// POST /locks/release?resource=X&token=Y - 凭 token 释放锁
	mux.HandleFunc(base+"/locks/release", func(w http.ResponseWriter, r *http.Request) {
		HandleRelease(w, r, s.svc)
	})

	mux.HandleFunc(base+"/health", func(w http.ResponseWriter, r *http.Request) {
		HandleHealth(w, r, s.health)
	})
	return mux
}

// Start 启动 API 服务器
func (s *APIServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	// 先创建监听器，以便获取实际端口
	listener, err := net.Listen("tcp", s.config.BindAddress)
	if err != nil {
		return err
	}
	s.actualAddr = listener.Addr().String()

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.config.Logger.Error("api server stopped", zap.Error(err))
		}
	}()

	s.running = true
	s.config.Logger.Info("api server started", zap.String("addr", s.actualAddr))
	return nil
}

// Stop 停止 API 服务器
func (s *APIServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.server.Shutdown(ctx)
	s.running = false
	return err
}

// IsRunning 检查 API 服务器是否正在运行
func (s *APIServer) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Address 返回 API 服务器绑定地址
func (s *APIServer) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.actualAddr != "" {
		return s.actualAddr
	}
	return s.config.BindAddress
}
