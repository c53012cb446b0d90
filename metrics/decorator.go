package metrics

import (
	"context"
	"time"

	"github.com/fyerfyer/fyer-lock/store"
)

// MonitoredStore 包装存储实例，记录每个操作的耗时与错误
type MonitoredStore struct {
	next      store.Store
	collector Collector
}

var _ store.Store = (*MonitoredStore)(nil)

// NewMonitoredStore 创建带监控的存储装饰器
func NewMonitoredStore(next store.Store, collector Collector) *MonitoredStore {
	return &MonitoredStore{next: next, collector: collector}
}

func (m *MonitoredStore) observe(op string, start time.Time, err error) {
	m.collector.ObserveStore(op, time.Since(start), err)
}

func (m *MonitoredStore) TrySetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	start := time.Now()
	ok, err := m.next.TrySetWithExpiry(ctx, key, value, ttl)
	m.observe("TrySetWithExpiry", start, err)
	return ok, err
}

func (m *MonitoredStore) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	start := time.Now()
	ok, err := m.next.CompareAndDelete(ctx, key, value)
	m.observe("CompareAndDelete", start, err)
	return ok, err
}

func (m *MonitoredStore) CompareAndRefresh(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	start := time.Now()
	ok, err := m.next.CompareAndRefresh(ctx, key, value, ttl)
	m.observe("CompareAndRefresh", start, err)
	return ok, err
}

func (m *MonitoredStore) RefreshExpiry(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	start := time.Now()
	ok, err := m.next.RefreshExpiry(ctx, key, ttl)
	m.observe("RefreshExpiry", start, err)
	return ok, err
}

func (m *MonitoredStore) ExpireAt(ctx context.Context, key string, at time.Time) (bool, error) {
	start := time.Now()
	ok, err := m.next.ExpireAt(ctx, key, at)
	m.observe("ExpireAt", start, err)
	return ok, err
}

func (m *MonitoredStore) Persist(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	ok, err := m.next.Persist(ctx, key)
	m.observe("Persist", start, err)
	return ok, err
}

func (m *MonitoredStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	start := time.Now()
	ttl, err := m.next.TTL(ctx, key)
	m.observe("TTL", start, err)
	return ttl, err
}

func (m *MonitoredStore) Publish(ctx context.Context, channel, message string) error {
	start := time.Now()
	err := m.next.Publish(ctx, channel, message)
	m.observe("Publish", start, err)
	return err
}

func (m *MonitoredStore) Subscribe(ctx context.Context, channel string, handler store.MessageHandler) (store.Subscription, error) {
	start := time.Now()
	sub, err := m.next.Subscribe(ctx, channel, handler)
	m.observe("Subscribe", start, err)
	return sub, err
}
