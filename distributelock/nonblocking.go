package distributelock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fyerfyer/fyer-lock/internal/ferr"
	"github.com/fyerfyer/fyer-lock/store"
	"go.uber.org/zap"
)

// ImmediateLock 非阻塞获取的结果
// 获取只尝试一次，不启动续约，持有者自己管理过期时间
// 与 BlockingLock 一样不应在协程间共享
type ImmediateLock struct {
	store    store.Store
	resource string
	key      string
	channel  string
	token    string
	opts     *LockOption

	mu     sync.Mutex
	locked bool
	hooked bool
}

// NewImmediateLock 由已知的获取结果构造 ImmediateLock
// locked 为 false 时忽略 token，释放后在 key+":channel" 上发布唤醒消息
func NewImmediateLock(s store.Store, key, token string, locked bool, opts ...Option) (*ImmediateLock, error) {
	if s == nil {
		return nil, ferr.ErrNilStore
	}
	if key == "" {
		return nil, ferr.ErrEmptyResource
	}
	o, err := newOption(opts...)
	if err != nil {
		return nil, err
	}
	return newImmediateLock(s, key, key, token, locked, o), nil
}

func newImmediateLock(s store.Store, resource, key, token string, locked bool, o *LockOption) *ImmediateLock {
	if !locked {
		token = ""
	}
	return &ImmediateLock{
		store:    s,
		resource: resource,
		key:      key,
		channel:  key + ":channel",
		token:    token,
		opts:     o,
		locked:   locked,
	}
}

func (l *ImmediateLock) Locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked
}

func (l *ImmediateLock) Key() string {
	return l.key
}

// Token 获取成功时写入的 token
func (l *ImmediateLock) Token() string {
	return l.token
}

// Unlock 比较删除释放锁
// 未持有或已经释放过返回 ErrInvalidLockState，不会访问存储
func (l *ImmediateLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.locked {
		return fmt.Errorf("%w: lock not held", ferr.ErrInvalidLockState)
	}
	return l.release(ctx)
}

// release 需要持有 mu
func (l *ImmediateLock) release(ctx context.Context) error {
	deleted, err := l.store.CompareAndDelete(ctx, l.key, l.token)
	if err != nil {
		l.opts.Recorder.Released(l.resource, ResultError)
		return err
	}
	l.locked = false
	if !deleted {
		l.opts.Recorder.Released(l.resource, ResultMismatch)
		return ferr.ErrLeaseExpiredElsewhere
	}
	l.opts.Recorder.Released(l.resource, ResultOK)
	l.publishRelease(ctx)
	return nil
}

// publishRelease 与 BlockingLock 一样唤醒等待者，失败只记录日志
func (l *ImmediateLock) publishRelease(ctx context.Context) {
	msg := l.opts.Hostname + "/" + l.token
	if err := l.store.Publish(ctx, l.channel, msg); err != nil {
		l.opts.Logger.Warn("publish release message failed",
			zap.String("channel", l.channel),
			zap.Error(err))
	}
}

// UnlockOnCompletion 在工作单元结束后释放锁，只能注册一次
func (l *ImmediateLock) UnlockOnCompletion(hook CompletionHook) error {
	if hook == nil {
		return fmt.Errorf("%w: completion hook is nil", ferr.ErrInvalidOption)
	}
	l.mu.Lock()
	if l.hooked {
		l.mu.Unlock()
		return fmt.Errorf("%w: unlock on completion already registered", ferr.ErrInvalidLockState)
	}
	if !l.locked {
		l.mu.Unlock()
		return fmt.Errorf("%w: lock not held", ferr.ErrInvalidLockState)
	}
	l.hooked = true
	l.mu.Unlock()

	err := hook.AfterCompletion(func(ctx context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if !l.locked {
			return nil
		}
		if err := l.release(ctx); err != nil {
			l.opts.Logger.Warn("release on completion failed",
				zap.String("key", l.key),
				zap.Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		l.mu.Lock()
		l.hooked = false
		l.mu.Unlock()
		return err
	}
	return nil
}

// RefreshExpiry 重新设置过期时间
func (l *ImmediateLock) RefreshExpiry(ctx context.Context, ttl time.Duration) (bool, error) {
	if err := l.mustHold(); err != nil {
		return false, err
	}
	return l.store.RefreshExpiry(ctx, l.key, ttl)
}

// ExpireAt 设置绝对过期时间
func (l *ImmediateLock) ExpireAt(ctx context.Context, at time.Time) (bool, error) {
	if err := l.mustHold(); err != nil {
		return false, err
	}
	if at.IsZero() {
		return false, nil
	}
	return l.store.ExpireAt(ctx, l.key, at)
}

// ClearExpiry 移除过期时间，锁不会再自动释放
func (l *ImmediateLock) ClearExpiry(ctx context.Context) (bool, error) {
	if err := l.mustHold(); err != nil {
		return false, err
	}
	return l.store.Persist(ctx, l.key)
}

// RemainingTTL 查询剩余时间，不要求持有
// 无过期时间返回 store.NoExpiry，key 不存在返回 store.KeyMissing
func (l *ImmediateLock) RemainingTTL(ctx context.Context) (time.Duration, error) {
	return l.store.TTL(ctx, l.key)
}

func (l *ImmediateLock) Lock(context.Context) error {
	return fmt.Errorf("%w: ImmediateLock does not support Lock, use BlockingLock", ferr.ErrUnsupportedOperation)
}

func (l *ImmediateLock) LockInterruptibly(context.Context) error {
	return fmt.Errorf("%w: ImmediateLock does not support LockInterruptibly, use BlockingLock", ferr.ErrUnsupportedOperation)
}

func (l *ImmediateLock) TryLock(context.Context) (bool, error) {
	return false, fmt.Errorf("%w: ImmediateLock does not support TryLock, use Client.TryLock", ferr.ErrUnsupportedOperation)
}

func (l *ImmediateLock) NewCond() (*sync.Cond, error) {
	return nil, fmt.Errorf("%w: ImmediateLock does not support conditions", ferr.ErrUnsupportedOperation)
}

func (l *ImmediateLock) mustHold() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.locked {
		return fmt.Errorf("%w: lock not held", ferr.ErrInvalidLockState)
	}
	return nil
}
