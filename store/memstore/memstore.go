package memstore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fyerfyer/fyer-lock/internal/ferr"
	"github.com/fyerfyer/fyer-lock/store"
)

var errOffline = errors.New("memstore: offline")

type entry struct {
	value    string
	expireAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// MemStore 进程内的 store.Store 实现
// key 在读取时按可调整的时钟惰性过期，后台清理交给 Cleaner
// 发布的消息在独立协程中投递给订阅者，与网络存储的行为一致
type MemStore struct {
	mu     sync.Mutex
	data   map[string]entry
	subs   map[string]map[uint64]store.MessageHandler
	nextID uint64
	offset time.Duration

	offline atomic.Bool
	calls   sync.Map // 操作名 -> *atomic.Int64
}

var _ store.Store = (*MemStore)(nil)

func New() *MemStore {
	return &MemStore{
		data: make(map[string]entry),
		subs: make(map[string]map[uint64]store.MessageHandler),
	}
}

// Advance 拨快存储时钟，到期的 key 随之失效
func (m *MemStore) Advance(d time.Duration) {
	m.mu.Lock()
	m.offset += d
	m.mu.Unlock()
}

// SetOffline 模拟存储不可用，之后所有操作返回 ferr.ErrStoreUnavailable
func (m *MemStore) SetOffline(offline bool) {
	m.offline.Store(offline)
}

// Calls 返回操作被调用的次数，如 "CompareAndDelete"
func (m *MemStore) Calls(op string) int64 {
	v, ok := m.calls.Load(op)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

// Get 读取未过期的值
func (m *MemStore) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	return e.value, ok
}

// Len 包含已过期但尚未清理的 key
func (m *MemStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

func (m *MemStore) enter(op string) error {
	v, _ := m.calls.LoadOrStore(op, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)
	if m.offline.Load() {
		return ferr.Unavailable(errOffline)
	}
	return nil
}

func (m *MemStore) now() time.Time {
	return time.Now().Add(m.offset)
}

// live 需要持有 mu
func (m *MemStore) live(key string) (entry, bool) {
	e, ok := m.data[key]
	if !ok {
		return entry{}, false
	}
	if e.expired(m.now()) {
		delete(m.data, key)
		return entry{}, false
	}
	return e, true
}

func (m *MemStore) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

func (m *MemStore) TrySetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := m.enter("TrySetWithExpiry"); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.live(key); ok {
		return false, nil
	}
	m.data[key] = entry{value: value, expireAt: m.deadline(ttl)}
	return true, nil
}

func (m *MemStore) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	if err := m.enter("CompareAndDelete"); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok || e.value != value {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}

func (m *MemStore) CompareAndRefresh(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := m.enter("CompareAndRefresh"); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok || e.value != value {
		return false, nil
	}
	e.expireAt = m.deadline(ttl)
	m.data[key] = e
	return true, nil
}

func (m *MemStore) RefreshExpiry(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := m.enter("RefreshExpiry"); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok {
		return false, nil
	}
	e.expireAt = m.deadline(ttl)
	m.data[key] = e
	return true, nil
}

func (m *MemStore) ExpireAt(ctx context.Context, key string, at time.Time) (bool, error) {
	if err := m.enter("ExpireAt"); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok {
		return false, nil
	}
	if !at.After(m.now()) {
		delete(m.data, key)
		return true, nil
	}
	e.expireAt = at
	m.data[key] = e
	return true, nil
}

func (m *MemStore) Persist(ctx context.Context, key string) (bool, error) {
	if err := m.enter("Persist"); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok || e.expireAt.IsZero() {
		return false, nil
	}
	e.expireAt = time.Time{}
	m.data[key] = e
	return true, nil
}

func (m *MemStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	if err := m.enter("TTL"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok {
		return store.KeyMissing, nil
	}
	if e.expireAt.IsZero() {
		return store.NoExpiry, nil
	}
	return e.expireAt.Sub(m.now()), nil
}

func (m *MemStore) Publish(ctx context.Context, channel, message string) error {
	if err := m.enter("Publish"); err != nil {
		return err
	}
	m.mu.Lock()
	handlers := make([]store.MessageHandler, 0, len(m.subs[channel]))
	for _, h := range m.subs[channel] {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		go h(message)
	}
	return nil
}

func (m *MemStore) Subscribe(ctx context.Context, channel string, handler store.MessageHandler) (store.Subscription, error) {
	if err := m.enter("Subscribe"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	if m.subs[channel] == nil {
		m.subs[channel] = make(map[uint64]store.MessageHandler)
	}
	m.subs[channel][id] = handler
	return &subscription{store: m, channel: channel, id: id}, nil
}

// Subscribers 频道上的订阅数
func (m *MemStore) Subscribers(channel string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[channel])
}

type subscription struct {
	store   *MemStore
	channel string
	id      uint64
	once    sync.Once
}

func (s *subscription) Unsubscribe(ctx context.Context) error {
	s.once.Do(func() {
		m := s.store
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs[s.channel], s.id)
		if len(m.subs[s.channel]) == 0 {
			delete(m.subs, s.channel)
		}
	})
	return nil
}
