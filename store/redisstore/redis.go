package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/fyerfyer/fyer-lock/internal/ferr"
	"github.com/fyerfyer/fyer-lock/store"
	"github.com/redis/go-redis/v9"
)

// RedisStore 基于Redis的存储实现
// 比较后删除、比较后续约使用lua脚本保证原子性
// 订阅使用独立的PubSub连接，发布走连接池
type RedisStore struct {
	client redis.UniversalClient
	hub    *hub
}

var _ store.Store = (*RedisStore)(nil)

// New 创建RedisStore实例
// client 的生命周期由调用方管理
func New(client redis.UniversalClient) (*RedisStore, error) {
	if client == nil {
		return nil, ferr.ErrNilStore
	}
	return &RedisStore{
		client: client,
		hub:    newHub(client),
	}, nil
}

// TrySetWithExpiry 使用 SET NX PX 写入
func (s *RedisStore) TrySetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, ferr.Unavailable(err)
	}
	return ok, nil
}

// CompareAndDelete 值匹配时删除
func (s *RedisStore) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	n, err := compareAndDeleteScript.Run(ctx, s.client, []string{key}, value).Int64()
	if err != nil {
		return false, ferr.Unavailable(err)
	}
	return n == 1, nil
}

// CompareAndRefresh 值匹配时续约
func (s *RedisStore) CompareAndRefresh(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	n, err := compareAndRefreshScript.Run(ctx, s.client, []string{key}, value, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, ferr.Unavailable(err)
	}
	return n == 1, nil
}

// RefreshExpiry 无条件续约
func (s *RedisStore) RefreshExpiry(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.PExpire(ctx, key, ttl).Result()
	if err != nil {
		return false, ferr.Unavailable(err)
	}
	return ok, nil
}

func (s *RedisStore) ExpireAt(ctx context.Context, key string, at time.Time) (bool, error) {
	ok, err := s.client.PExpireAt(ctx, key, at).Result()
	if err != nil {
		return false, ferr.Unavailable(err)
	}
	return ok, nil
}

func (s *RedisStore) Persist(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.Persist(ctx, key).Result()
	if err != nil {
		return false, ferr.Unavailable(err)
	}
	return ok, nil
}

// TTL 查询剩余时间
// go-redis 对 -1/-2 不做单位换算，正好对应 store.NoExpiry/store.KeyMissing
func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, ferr.Unavailable(err)
	}
	return d, nil
}

func (s *RedisStore) Publish(ctx context.Context, channel, message string) error {
	return ferr.Unavailable(s.client.Publish(ctx, channel, message).Err())
}

func (s *RedisStore) Subscribe(ctx context.Context, channel string, handler store.MessageHandler) (store.Subscription, error) {
	return s.hub.subscribe(ctx, channel, handler)
}

// Close 关闭所有订阅连接，不关闭 client
func (s *RedisStore) Close() error {
	return s.hub.close()
}
