package etcdstore

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/fyerfyer/fyer-lock/internal/ferr"
	"github.com/fyerfyer/fyer-lock/store"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// Client 需要用到的 etcd 操作，*clientv3.Client 实现了该接口
type Client interface {
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error)
	Txn(ctx context.Context) clientv3.Txn
	Grant(ctx context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error)
	Revoke(ctx context.Context, id clientv3.LeaseID) (*clientv3.LeaseRevokeResponse, error)
	TimeToLive(ctx context.Context, id clientv3.LeaseID, opts ...clientv3.LeaseOption) (*clientv3.LeaseTimeToLiveResponse, error)
	Watch(ctx context.Context, key string, opts ...clientv3.OpOption) clientv3.WatchChan
}

var _ Client = (*clientv3.Client)(nil)

// revokeTimeout 回收旧租约与请求上下文无关
const revokeTimeout = 3 * time.Second

var (
	errWatchClosed     = errors.New("etcdstore: watch channel closed")
	errWatchNotCreated = errors.New("etcdstore: watch was not created")
)

// EtcdStore 基于 etcd 的存储实现
// 过期时间用租约表示，每个 key 独占一个租约，修改过期时间时挂到新租约并回收旧租约
// 比较类操作是以值和 mod revision 为条件的事务
// 发布写入以频道命名的 key，订阅 watch 该 key
type EtcdStore struct {
	client Client
}

var _ store.Store = (*EtcdStore)(nil)

// New 创建EtcdStore实例，client 的生命周期由调用方管理
func New(client Client) (*EtcdStore, error) {
	if client == nil {
		return nil, ferr.ErrNilStore
	}
	return &EtcdStore{client: client}, nil
}

// leaseSeconds etcd 租约精度为秒，向上取整且至少 1 秒
func leaseSeconds(ttl time.Duration) int64 {
	secs := int64(math.Ceil(ttl.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

func (s *EtcdStore) grant(ctx context.Context, ttl time.Duration) (clientv3.LeaseID, error) {
	resp, err := s.client.Grant(ctx, leaseSeconds(ttl))
	if err != nil {
		return clientv3.NoLease, ferr.Unavailable(err)
	}
	return resp.ID, nil
}

// revoke 尽力回收租约，失败时等它自然过期
func (s *EtcdStore) revoke(id clientv3.LeaseID) {
	if id == clientv3.NoLease {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), revokeTimeout)
	defer cancel()
	_, _ = s.client.Revoke(ctx, id)
}

func (s *EtcdStore) get(ctx context.Context, key string) (*mvccpb.KeyValue, error) {
	resp, err := s.client.Get(ctx, key)
	if err != nil {
		return nil, ferr.Unavailable(err)
	}
	if len(resp.Kvs) == 0 {
		return nil, nil
	}
	return resp.Kvs[0], nil
}

// TrySetWithExpiry key 已存在时不申请租约，锁竞争时只需一次读
func (s *EtcdStore) TrySetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	resp, err := s.client.Get(ctx, key, clientv3.WithCountOnly())
	if err != nil {
		return false, ferr.Unavailable(err)
	}
	if resp.Count > 0 {
		return false, nil
	}

	lease, err := s.grant(ctx, ttl)
	if err != nil {
		return false, err
	}
	txn, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, value, clientv3.WithLease(lease))).
		Commit()
	if err != nil {
		s.revoke(lease)
		return false, ferr.Unavailable(err)
	}
	// 读取之后被别人抢先写入
	if !txn.Succeeded {
		s.revoke(lease)
	}
	return txn.Succeeded, nil
}

func (s *EtcdStore) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.Value(key), "=", value)).
		Then(clientv3.OpDelete(key, clientv3.WithPrevKV())).
		Commit()
	if err != nil {
		return false, ferr.Unavailable(err)
	}
	if !resp.Succeeded {
		return false, nil
	}
	if del := resp.Responses[0].GetResponseDeleteRange(); del != nil && len(del.PrevKvs) > 0 {
		s.revoke(clientv3.LeaseID(del.PrevKvs[0].Lease))
	}
	return true, nil
}

// reattach 把 key 挂到新的租约上，要求 key 自读取后未被修改
// lease 为 NoLease 时清除过期时间
func (s *EtcdStore) reattach(ctx context.Context, kv *mvccpb.KeyValue, lease clientv3.LeaseID) (bool, error) {
	key := string(kv.Key)
	opts := []clientv3.OpOption{}
	if lease != clientv3.NoLease {
		opts = append(opts, clientv3.WithLease(lease))
	}
	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(key), "=", kv.ModRevision)).
		Then(clientv3.OpPut(key, string(kv.Value), opts...)).
		Commit()
	if err != nil {
		s.revoke(lease)
		return false, ferr.Unavailable(err)
	}
	if !resp.Succeeded {
		s.revoke(lease)
		return false, nil
	}
	s.revoke(clientv3.LeaseID(kv.Lease))
	return true, nil
}

func (s *EtcdStore) CompareAndRefresh(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	kv, err := s.get(ctx, key)
	if err != nil || kv == nil || string(kv.Value) != value {
		return false, err
	}
	lease, err := s.grant(ctx, ttl)
	if err != nil {
		return false, err
	}
	return s.reattach(ctx, kv, lease)
}

func (s *EtcdStore) RefreshExpiry(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	kv, err := s.get(ctx, key)
	if err != nil || kv == nil {
		return false, err
	}
	lease, err := s.grant(ctx, ttl)
	if err != nil {
		return false, err
	}
	return s.reattach(ctx, kv, lease)
}

// ExpireAt 时间已过时直接删除
func (s *EtcdStore) ExpireAt(ctx context.Context, key string, at time.Time) (bool, error) {
	ttl := time.Until(at)
	if ttl > 0 {
		return s.RefreshExpiry(ctx, key, ttl)
	}
	kv, err := s.get(ctx, key)
	if err != nil || kv == nil {
		return false, err
	}
	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(key), "=", kv.ModRevision)).
		Then(clientv3.OpDelete(key)).
		Commit()
	if err != nil {
		return false, ferr.Unavailable(err)
	}
	if resp.Succeeded {
		s.revoke(clientv3.LeaseID(kv.Lease))
	}
	return resp.Succeeded, nil
}

func (s *EtcdStore) Persist(ctx context.Context, key string) (bool, error) {
	kv, err := s.get(ctx, key)
	if err != nil || kv == nil || kv.Lease == 0 {
		return false, err
	}
	return s.reattach(ctx, kv, clientv3.NoLease)
}

func (s *EtcdStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	kv, err := s.get(ctx, key)
	if err != nil {
		return 0, err
	}
	if kv == nil {
		return store.KeyMissing, nil
	}
	if kv.Lease == 0 {
		return store.NoExpiry, nil
	}
	resp, err := s.client.TimeToLive(ctx, clientv3.LeaseID(kv.Lease))
	if err != nil {
		return 0, ferr.Unavailable(err)
	}
	// 租约刚好过期
	if resp.TTL < 0 {
		return store.KeyMissing, nil
	}
	return time.Duration(resp.TTL) * time.Second, nil
}

// Publish 覆盖写频道 key，订阅者通过 watch 收到 PUT 事件
func (s *EtcdStore) Publish(ctx context.Context, channel, message string) error {
	_, err := s.client.Put(ctx, channel, message)
	return ferr.Unavailable(err)
}

// Subscribe 在 watch 建立后才返回，之后的 Publish 一定能收到
func (s *EtcdStore) Subscribe(ctx context.Context, channel string, handler store.MessageHandler) (store.Subscription, error) {
	wctx, cancel := context.WithCancel(context.Background())
	wch := s.client.Watch(clientv3.WithRequireLeader(wctx), channel, clientv3.WithCreatedNotify())

	select {
	case resp, ok := <-wch:
		if !ok {
			cancel()
			return nil, ferr.Unavailable(errWatchClosed)
		}
		if err := resp.Err(); err != nil {
			cancel()
			return nil, ferr.Unavailable(err)
		}
		if !resp.Created {
			cancel()
			return nil, ferr.Unavailable(errWatchNotCreated)
		}
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}

	sub := &subscription{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		for resp := range wch {
			for _, ev := range resp.Events {
				if ev.Type == mvccpb.PUT {
					handler(string(ev.Kv.Value))
				}
			}
		}
	}()
	return sub, nil
}

type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) Unsubscribe(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		s.cancel()
		select {
		case <-s.done:
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}
