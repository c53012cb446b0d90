package distributelock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fyerfyer/fyer-lock/store"
	"go.uber.org/zap"
)

// WatchDog 租约续约器
// 每个持有中的锁对应一个，按 RenewInterval 周期性地校验 token 后续约
type WatchDog struct {
	store    store.Store
	resource string
	key      string
	token    string
	opts     *LockOption

	started  atomic.Bool
	running  atomic.Bool
	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewWatchDog 创建WatchDog实例
func NewWatchDog(s store.Store, resource, key, token string, opts *LockOption) *WatchDog {
	return &WatchDog{
		store:    s,
		resource: resource,
		key:      key,
		token:    token,
		opts:     opts,
		done:     make(chan struct{}),
	}
}

// Start 启动watchdog，重复调用无效
func (w *WatchDog) Start() {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.running.Store(true)
	go w.run(ctx)
}

// Stop 停止watchdog并等待续约协程退出
// 返回后不会再有续约请求发出
func (w *WatchDog) Stop() {
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
	})
	if w.started.Load() {
		<-w.done
	}
}

// Running 续约协程是否仍在运行
func (w *WatchDog) Running() bool {
	return w.running.Load()
}

func (w *WatchDog) run(ctx context.Context) {
	defer close(w.done)
	defer w.running.Store(false)

	ticker := time.NewTicker(w.opts.RenewInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !w.refresh(ctx) {
				return
			}
		}
	}
}

// refresh 执行一次续约，返回是否继续运行
func (w *WatchDog) refresh(ctx context.Context) bool {
	rctx, cancel := context.WithTimeout(ctx, w.opts.RefreshTimeout)
	ok, err := w.store.CompareAndRefresh(rctx, w.key, w.token, w.opts.LeaseTTL)
	cancel()

	logger := w.opts.Logger
	switch {
	case ctx.Err() != nil:
		return false
	case err != nil:
		// 存储暂时不可用，等下一个周期再试，租约还有余量
		logger.Warn("lease renewal failed",
			zap.String("key", w.key),
			zap.Error(err))
		w.opts.Recorder.Renewed(w.resource, ResultError)
		return true
	case !ok:
		logger.Warn("lease lost, stop renewing",
			zap.String("key", w.key),
			zap.String("token", w.token))
		w.opts.Recorder.Renewed(w.resource, ResultLost)
		return false
	default:
		logger.Debug("lease renewed", zap.String("key", w.key))
		w.opts.Recorder.Renewed(w.resource, ResultOK)
		return true
	}
}
