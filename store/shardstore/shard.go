package shardstore

import (
	"context"
	"fmt"
	"time"

	"github.com/fyerfyer/fyer-lock/internal/ferr"
	"github.com/fyerfyer/fyer-lock/store"
)

// Options 分片配置
type Options struct {
	// Replicas 每个节点的虚拟节点数量，默认 100
	Replicas int
	// Weights 节点权重，未指定的节点权重为 1
	Weights  map[string]int
	HashFunc HashFunc
}

// Store 按一致性哈希把 key 路由到不同后端的 store.Store
// 锁 key 与唤醒频道各自路由，同一频道的发布和订阅总落在同一个后端
// 节点在创建后不可变，迁移节点会让它持有的锁不可见
type Store struct {
	ring   *Ring
	shards map[string]store.Store
}

var _ store.Store = (*Store)(nil)

// New 以节点名到存储的映射创建分片存储
func New(shards map[string]store.Store, opts Options) (*Store, error) {
	if len(shards) == 0 {
		return nil, fmt.Errorf("%w: no shards", ferr.ErrInvalidOption)
	}
	ring := NewRing(opts.Replicas, opts.HashFunc)
	for name, s := range shards {
		if s == nil {
			return nil, fmt.Errorf("%w: shard %q", ferr.ErrNilStore, name)
		}
		ring.Add(name, opts.Weights[name])
	}
	return &Store{ring: ring, shards: shards}, nil
}

// ShardFor 返回 key 所在的节点名
func (s *Store) ShardFor(key string) string {
	return s.ring.Get(key)
}

func (s *Store) pick(key string) store.Store {
	return s.shards[s.ring.Get(key)]
}

func (s *Store) TrySetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.pick(key).TrySetWithExpiry(ctx, key, value, ttl)
}

func (s *Store) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	return s.pick(key).CompareAndDelete(ctx, key, value)
}

func (s *Store) CompareAndRefresh(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.pick(key).CompareAndRefresh(ctx, key, value, ttl)
}

func (s *Store) RefreshExpiry(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.pick(key).RefreshExpiry(ctx, key, ttl)
}

func (s *Store) ExpireAt(ctx context.Context, key string, at time.Time) (bool, error) {
	return s.pick(key).ExpireAt(ctx, key, at)
}

func (s *Store) Persist(ctx context.Context, key string) (bool, error) {
	return s.pick(key).Persist(ctx, key)
}

func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	return s.pick(key).TTL(ctx, key)
}

func (s *Store) Publish(ctx context.Context, channel, message string) error {
	return s.pick(channel).Publish(ctx, channel, message)
}

func (s *Store) Subscribe(ctx context.Context, channel string, handler store.MessageHandler) (store.Subscription, error) {
	return s.pick(channel).Subscribe(ctx, channel, handler)
}
