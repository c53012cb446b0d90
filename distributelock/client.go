package distributelock

import (
	"context"
	"time"

	"github.com/fyerfyer/fyer-lock/internal/ferr"
	"github.com/fyerfyer/fyer-lock/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Client 锁的入口，持有存储与公共配置
// 并发安全，一个进程通常只需要一个
type Client struct {
	store store.Store
	opts  *LockOption
}

// NewClient 创建Client实例
func NewClient(s store.Store, opts ...Option) (*Client, error) {
	if s == nil {
		return nil, ferr.ErrNilStore
	}
	o, err := newOption(opts...)
	if err != nil {
		return nil, err
	}
	return &Client{store: s, opts: o}, nil
}

func (c *Client) Namespace() string {
	return c.opts.Namespace
}

// NewLock 为资源创建阻塞锁，每个使用者各自创建
func (c *Client) NewLock(resource string) (*BlockingLock, error) {
	if resource == "" {
		return nil, ferr.ErrEmptyResource
	}
	return newBlockingLock(c.store, resource, c.opts), nil
}

// TryLock 非阻塞获取，锁被占用时返回 Locked() 为 false 的结果
func (c *Client) TryLock(ctx context.Context, resource string) (*ImmediateLock, error) {
	if resource == "" {
		return nil, ferr.ErrEmptyResource
	}
	key := LockKey(c.opts.Namespace, resource)
	token := uuid.NewString()
	ok, err := withRetry(ctx, c.opts, "TrySetWithExpiry", func() (bool, error) {
		return c.store.TrySetWithExpiry(ctx, key, token, c.opts.LeaseTTL)
	})
	if err != nil {
		return nil, err
	}
	if ok {
		c.opts.Recorder.Acquired(resource, PhaseImmediate, 0)
	}
	return newImmediateLock(c.store, resource, key, token, ok, c.opts), nil
}

// LockInfo 锁在存储中的状态
type LockInfo struct {
	Resource string        `json:"resource"`
	Key      string        `json:"key"`
	Held     bool          `json:"held"`
	TTL      time.Duration `json:"ttl"`
}

// Inspect 查询锁是否被持有以及剩余时间
func (c *Client) Inspect(ctx context.Context, resource string) (LockInfo, error) {
	if resource == "" {
		return LockInfo{}, ferr.ErrEmptyResource
	}
	key := LockKey(c.opts.Namespace, resource)
	ttl, err := c.store.TTL(ctx, key)
	if err != nil {
		return LockInfo{}, err
	}
	return LockInfo{
		Resource: resource,
		Key:      key,
		Held:     ttl != store.KeyMissing,
		TTL:      ttl,
	}, nil
}

// Release 凭 token 释放锁并唤醒等待者
// 供管理接口使用，持有者进程崩溃后无需等待租约过期
func (c *Client) Release(ctx context.Context, resource, token string) error {
	if resource == "" {
		return ferr.ErrEmptyResource
	}
	key := LockKey(c.opts.Namespace, resource)
	deleted, err := c.store.CompareAndDelete(ctx, key, token)
	if err != nil {
		c.opts.Recorder.Released(resource, ResultError)
		return err
	}
	if !deleted {
		c.opts.Recorder.Released(resource, ResultMismatch)
		return ferr.ErrLeaseExpiredElsewhere
	}
	c.opts.Recorder.Released(resource, ResultOK)
	channel := ChannelName(c.opts.Namespace, resource)
	if err := c.store.Publish(ctx, channel, c.opts.Hostname+"/"+token); err != nil {
		c.opts.Logger.Warn("publish release message failed",
			zap.String("channel", channel),
			zap.Error(err))
	}
	return nil
}
