package distributelock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fyerfyer/fyer-lock/internal/ferr"
	"github.com/fyerfyer/fyer-lock/store"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// State 阻塞锁所处的状态
type State int32

const (
	StateUnacquired State = iota
	StateTryingImmediate
	StateSpinning
	StateBlockedWaiting
	StateHeld
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateUnacquired:
		return "unacquired"
	case StateTryingImmediate:
		return "trying-immediate"
	case StateSpinning:
		return "spinning"
	case StateBlockedWaiting:
		return "blocked-waiting"
	case StateHeld:
		return "held"
	case StateReleased:
		return "released"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// unsubscribeTimeout 退订不受调用方上下文影响，单独限时
const unsubscribeTimeout = 5 * time.Second

// BlockingLock 阻塞式分布式锁
// 获取流程: 立即尝试 -> 自旋 -> 订阅唤醒频道并挂起，挂起最长一个租约时长
// 同一时刻只应由一个协程使用
type BlockingLock struct {
	store    store.Store
	resource string
	key      string
	channel  string
	opts     *LockOption

	state atomic.Int32
	// mu 保护 token 与 watchdog，串行化持有态的进入与退出
	mu       sync.Mutex
	token    string
	watchdog *WatchDog
}

var _ Locker = (*BlockingLock)(nil)

// NewBlockingLock 创建BlockingLock实例
func NewBlockingLock(s store.Store, resource string, opts ...Option) (*BlockingLock, error) {
	if s == nil {
		return nil, ferr.ErrNilStore
	}
	if resource == "" {
		return nil, ferr.ErrEmptyResource
	}
	o, err := newOption(opts...)
	if err != nil {
		return nil, err
	}
	return newBlockingLock(s, resource, o), nil
}

func newBlockingLock(s store.Store, resource string, o *LockOption) *BlockingLock {
	return &BlockingLock{
		store:    s,
		resource: resource,
		key:      LockKey(o.Namespace, resource),
		channel:  ChannelName(o.Namespace, resource),
		opts:     o,
	}
}

func (l *BlockingLock) Key() string {
	return l.key
}

func (l *BlockingLock) State() State {
	return State(l.state.Load())
}

// Held 是否处于持有状态
// 租约在别处过期时仍返回 true，直到 Unlock 发现
func (l *BlockingLock) Held() bool {
	return l.State() == StateHeld
}

// Token 当前持有的 token，未持有时为空
func (l *BlockingLock) Token() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.State() != StateHeld {
		return ""
	}
	return l.token
}

// Renewing 续约器是否在运行
func (l *BlockingLock) Renewing() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.watchdog != nil && l.watchdog.Running()
}

// Lock 获取锁，直到成功或 ctx 被取消
// 使用 context.Background() 时无限等待
func (l *BlockingLock) Lock(ctx context.Context) (err error) {
	prev, ok := l.begin()
	if !ok {
		return fmt.Errorf("%w: lock called while %s", ferr.ErrInvalidLockState, prev)
	}

	ctx, span := l.startSpan(ctx, "distributelock.Lock")
	defer func() { endSpan(span, err) }()

	start := time.Now()
	// 每次获取都生成新的 token
	token := uuid.NewString()
	phase, err := l.acquire(ctx, token)
	if err != nil {
		l.state.Store(int32(prev))
		return err
	}

	l.hold(token)
	span.SetAttributes(attribute.String("lock.phase", string(phase)))
	l.opts.Recorder.Acquired(l.resource, phase, time.Since(start))
	l.opts.Logger.Info("lock acquired",
		zap.String("key", l.key),
		zap.String("phase", string(phase)),
		zap.Duration("wait", time.Since(start)))
	return nil
}

// TryLock 只尝试一次立即获取
func (l *BlockingLock) TryLock(ctx context.Context) (acquired bool, err error) {
	prev, ok := l.begin()
	if !ok {
		return false, fmt.Errorf("%w: try lock called while %s", ferr.ErrInvalidLockState, prev)
	}

	ctx, span := l.startSpan(ctx, "distributelock.TryLock")
	defer func() { endSpan(span, err) }()

	token := uuid.NewString()
	acquired, err = l.attempt(ctx, token)
	if err != nil || !acquired {
		l.state.Store(int32(prev))
		return false, err
	}
	l.hold(token)
	l.opts.Recorder.Acquired(l.resource, PhaseImmediate, 0)
	return true, nil
}

// Unlock 释放锁
// 先停止续约，再比较删除，最后在唤醒频道发布消息
// 存储不可用时锁保持持有状态，调用方可以重试，否则等租约自然过期
func (l *BlockingLock) Unlock(ctx context.Context) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if st := l.State(); st != StateHeld {
		return fmt.Errorf("%w: unlock called while %s", ferr.ErrInvalidLockState, st)
	}

	ctx, span := l.startSpan(ctx, "distributelock.Unlock")
	defer func() { endSpan(span, err) }()

	if l.watchdog != nil {
		l.watchdog.Stop()
		l.watchdog = nil
	}

	deleted, err := l.store.CompareAndDelete(ctx, l.key, l.token)
	l.publishRelease(ctx)
	if err != nil {
		l.opts.Recorder.Released(l.resource, ResultError)
		return err
	}

	l.state.Store(int32(StateReleased))
	if !deleted {
		l.opts.Recorder.Released(l.resource, ResultMismatch)
		l.opts.Logger.Warn("lock lease expired before release",
			zap.String("key", l.key),
			zap.String("token", l.token))
		return ferr.ErrLeaseExpiredElsewhere
	}
	l.opts.Recorder.Released(l.resource, ResultOK)
	l.opts.Logger.Info("lock released", zap.String("key", l.key))
	return nil
}

// begin 从空闲状态进入获取流程，返回之前的状态
func (l *BlockingLock) begin() (State, bool) {
	for {
		cur := l.State()
		if cur != StateUnacquired && cur != StateReleased {
			return cur, false
		}
		if l.state.CompareAndSwap(int32(cur), int32(StateTryingImmediate)) {
			return cur, true
		}
	}
}

func (l *BlockingLock) hold(token string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.token = token
	l.watchdog = NewWatchDog(l.store, l.resource, l.key, token, l.opts)
	l.watchdog.Start()
	l.state.Store(int32(StateHeld))
}

func (l *BlockingLock) setState(s State) {
	l.state.Store(int32(s))
	l.opts.Logger.Debug("lock state changed",
		zap.String("key", l.key),
		zap.Stringer("state", s))
}

// attempt 立即尝试一次，存储不可用时按策略重试
func (l *BlockingLock) attempt(ctx context.Context, token string) (bool, error) {
	return withRetry(ctx, l.opts, "TrySetWithExpiry", func() (bool, error) {
		return l.store.TrySetWithExpiry(ctx, l.key, token, l.opts.LeaseTTL)
	})
}

func (l *BlockingLock) acquire(ctx context.Context, token string) (Phase, error) {
	ok, err := l.attempt(ctx, token)
	if err != nil {
		return "", err
	}
	if ok {
		return PhaseImmediate, nil
	}

	l.setState(StateSpinning)
	for i := 0; i < l.opts.SpinTries; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		// 自旋阶段的存储错误只算一次失败
		ok, err = l.store.TrySetWithExpiry(ctx, l.key, token, l.opts.LeaseTTL)
		if err == nil && ok {
			return PhaseSpin, nil
		}
	}

	l.setState(StateBlockedWaiting)
	if err := l.block(ctx, token); err != nil {
		return "", err
	}
	return PhaseBlock, nil
}

// block 订阅唤醒频道后循环尝试
// 先订阅再尝试，尝试失败到挂起之间的释放消息会留在 permit 中
func (l *BlockingLock) block(ctx context.Context, token string) error {
	p := newParker()
	sub, err := withRetry(ctx, l.opts, "Subscribe", func() (store.Subscription, error) {
		return l.store.Subscribe(ctx, l.channel, func(string) { p.unpark() })
	})
	if err != nil {
		return err
	}
	defer func() {
		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unsubscribeTimeout)
		defer cancel()
		if err := sub.Unsubscribe(uctx); err != nil {
			l.opts.Logger.Warn("unsubscribe wake channel failed",
				zap.String("channel", l.channel),
				zap.Error(err))
		}
	}()

	for {
		ok, err := l.attempt(ctx, token)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		reason, err := p.park(ctx, l.opts.LeaseTTL)
		if err != nil {
			return err
		}
		l.opts.Recorder.Woken(l.resource, reason)
		l.opts.Logger.Debug("waiter woken",
			zap.String("key", l.key),
			zap.String("reason", string(reason)))
	}
}

// publishRelease 通知等待者重新检查，消息内容只用于诊断
func (l *BlockingLock) publishRelease(ctx context.Context) {
	msg := l.opts.Hostname + "/" + l.token
	if err := l.store.Publish(ctx, l.channel, msg); err != nil {
		l.opts.Logger.Warn("publish release message failed",
			zap.String("channel", l.channel),
			zap.Error(err))
	}
}

func (l *BlockingLock) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return l.opts.Tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("lock.resource", l.resource),
		attribute.String("lock.key", l.key),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
