package store

import (
	"context"
	"time"
)

const (
	// NoExpiry TTL 查询时 key 存在但没有过期时间
	NoExpiry = time.Duration(-1)
	// KeyMissing TTL 查询时 key 不存在
	KeyMissing = time.Duration(-2)
)

// MessageHandler 订阅消息回调
// 在存储的投递协程中执行，不能阻塞
type MessageHandler func(message string)

// Store 定义锁依赖的共享键值存储
// 所有方法遇到连接问题时返回包装了 ferr.ErrStoreUnavailable 的错误
type Store interface {
	// TrySetWithExpiry key 不存在时原子地写入 value 并设置过期时间
	TrySetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// CompareAndDelete 仅当 key 的值等于 value 时原子删除
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)

	// CompareAndRefresh 仅当 key 的值等于 value 时原子地重置过期时间
	CompareAndRefresh(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// RefreshExpiry 无条件重置过期时间，key 不存在时返回 false
	RefreshExpiry(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// ExpireAt 设置绝对过期时间
	ExpireAt(ctx context.Context, key string, at time.Time) (bool, error)

	// Persist 清除过期时间
	Persist(ctx context.Context, key string) (bool, error)

	// TTL 查询剩余存活时间
	// key 不存在返回 KeyMissing，没有过期时间返回 NoExpiry
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Publish 向频道发布消息
	Publish(ctx context.Context, channel, message string) error

	// Subscribe 订阅频道
	// 返回时订阅已被存储确认，之后发布的消息一定会投递给 handler
	Subscribe(ctx context.Context, channel string, handler MessageHandler) (Subscription, error)
}

// Subscription 订阅句柄
type Subscription interface {
	// Unsubscribe 取消订阅，只有第一次调用生效
	Unsubscribe(ctx context.Context) error
}
