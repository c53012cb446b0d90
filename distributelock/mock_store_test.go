package distributelock

import (
	"context"
	"sync"
	"time"

	"github.com/fyerfyer/fyer-lock/store"
	"github.com/stretchr/testify/mock"
)

type mockStore struct {
	mock.Mock
}

var _ store.Store = (*mockStore)(nil)

func (m *mockStore) TrySetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, value, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	args := m.Called(ctx, key, value)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) CompareAndRefresh(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, value, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) RefreshExpiry(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) ExpireAt(ctx context.Context, key string, at time.Time) (bool, error) {
	args := m.Called(ctx, key, at)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) Persist(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(time.Duration), args.Error(1)
}

func (m *mockStore) Publish(ctx context.Context, channel, message string) error {
	args := m.Called(ctx, channel, message)
	return args.Error(0)
}

func (m *mockStore) Subscribe(ctx context.Context, channel string, handler store.MessageHandler) (store.Subscription, error) {
	args := m.Called(ctx, channel, handler)
	sub, _ := args.Get(0).(store.Subscription)
	return sub, args.Error(1)
}

// fakeRecorder 记录所有事件
type fakeRecorder struct {
	mu       sync.Mutex
	acquired []Phase
	woken    []WakeReason
	renewed  []Result
	released []Result
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{}
}

func (r *fakeRecorder) Acquired(_ string, phase Phase, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acquired = append(r.acquired, phase)
}

func (r *fakeRecorder) Woken(_ string, reason WakeReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.woken = append(r.woken, reason)
}

func (r *fakeRecorder) Renewed(_ string, result Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renewed = append(r.renewed, result)
}

func (r *fakeRecorder) Released(_ string, result Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, result)
}

func (r *fakeRecorder) snapshot() (acquired []Phase, woken []WakeReason, renewed, released []Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Phase(nil), r.acquired...),
		append([]WakeReason(nil), r.woken...),
		append([]Result(nil), r.renewed...),
		append([]Result(nil), r.released...)
}
