package distributelock

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fyerfyer/fyer-lock/internal/ferr"
	"github.com/fyerfyer/fyer-lock/store/memstore"
	"github.com/fyerfyer/fyer-lock/store/redisstore"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/sync/errgroup"
)

func newTestClient(t *testing.T, mem *memstore.MemStore, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithNamespace("ns"),
		WithSpinTries(DefaultSpinTries),
		WithStoreRetry(3, time.Millisecond, 5*time.Millisecond),
		WithHostname("test-host"),
	}
	c, err := NewClient(mem, append(base, opts...)...)
	require.NoError(t, err)
	return c
}

func TestLockKey(t *testing.T) {
	assert.Equal(t, "ns:job42:lock", LockKey("ns", "job42"))
	assert.Equal(t, "ns:job42:lock:channel", ChannelName("ns", "job42"))
	assert.Equal(t, "loser:blk:order:lock", LockKey(DefaultNamespace, "order"))
}

func TestNewBlockingLock_Validation(t *testing.T) {
	testCases := []struct {
		name     string
		resource string
		opts     []Option
		wantErr  error
	}{
		{name: "empty resource", resource: "", wantErr: ferr.ErrEmptyResource},
		{name: "renew equals ttl", resource: "r", opts: []Option{WithLeaseTTL(time.Second), WithRenewInterval(time.Second)}, wantErr: ferr.ErrInvalidOption},
		{name: "negative spin", resource: "r", opts: []Option{WithSpinTries(-1)}, wantErr: ferr.ErrInvalidOption},
		{name: "zero attempts", resource: "r", opts: []Option{WithStoreRetry(0, 0, 0)}, wantErr: ferr.ErrInvalidOption},
		{name: "empty namespace", resource: "r", opts: []Option{WithNamespace("")}, wantErr: ferr.ErrInvalidOption},
		{name: "ok", resource: "r"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			l, err := NewBlockingLock(memstore.New(), tc.resource, tc.opts...)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StateUnacquired, l.State())
			assert.Equal(t, "loser:blk:r:lock", l.Key())
		})
	}

	_, err := NewBlockingLock(nil, "r")
	assert.ErrorIs(t, err, ferr.ErrNilStore)
}

// TestBlockingLock_Immediate 测试无竞争时立即获取
func TestBlockingLock_Immediate(t *testing.T) {
	mem := memstore.New()
	rec := newFakeRecorder()
	c := newTestClient(t, mem, WithRecorder(rec))
	ctx := context.Background()

	l, err := c.NewLock("job")
	require.NoError(t, err)
	require.NoError(t, l.Lock(ctx))
	defer l.Unlock(ctx)

	assert.True(t, l.Held())
	assert.True(t, l.Renewing())
	val, ok := mem.Get("ns:job:lock")
	require.True(t, ok)
	assert.Equal(t, l.Token(), val)
	assert.Equal(t, int64(1), mem.Calls("TrySetWithExpiry"))
	assert.Equal(t, int64(0), mem.Calls("Subscribe"))

	acquired, _, _, _ := rec.snapshot()
	assert.Equal(t, []Phase{PhaseImmediate}, acquired)
}

// TestBlockingLock_InvalidState 测试非法状态转换
func TestBlockingLock_InvalidState(t *testing.T) {
	mem := memstore.New()
	c := newTestClient(t, mem)
	ctx := context.Background()
	l, err := c.NewLock("job")
	require.NoError(t, err)

	assert.ErrorIs(t, l.Unlock(ctx), ferr.ErrInvalidLockState)

	require.NoError(t, l.Lock(ctx))
	assert.ErrorIs(t, l.Lock(ctx), ferr.ErrInvalidLockState)
	_, err = l.TryLock(ctx)
	assert.ErrorIs(t, err, ferr.ErrInvalidLockState)

	require.NoError(t, l.Unlock(ctx))
	assert.Equal(t, StateReleased, l.State())
	assert.ErrorIs(t, l.Unlock(ctx), ferr.ErrInvalidLockState)
	assert.Equal(t, int64(1), mem.Calls("CompareAndDelete"))
}

// TestBlockingLock_RelockMintsNewToken 测试释放后可以再次获取，token 不同
func TestBlockingLock_RelockMintsNewToken(t *testing.T) {
	mem := memstore.New()
	c := newTestClient(t, mem)
	ctx := context.Background()
	l, err := c.NewLock("job")
	require.NoError(t, err)

	require.NoError(t, l.Lock(ctx))
	first := l.Token()
	require.NoError(t, l.Unlock(ctx))
	assert.Empty(t, l.Token())

	require.NoError(t, l.Lock(ctx))
	defer l.Unlock(ctx)
	assert.NotEqual(t, first, l.Token())
}

// TestBlockingLock_EndToEnd A 持有，B 自旋后挂起，A 释放后 B 被唤醒并获取
func TestBlockingLock_EndToEnd(t *testing.T) {
	mem := memstore.New()
	rec := newFakeRecorder()
	c := newTestClient(t, mem, WithLeaseTTL(30*time.Second), WithRenewInterval(20*time.Second), WithRecorder(rec))
	ctx := context.Background()

	a, err := c.NewLock("job42")
	require.NoError(t, err)
	b, err := c.NewLock("job42")
	require.NoError(t, err)

	require.NoError(t, a.Lock(ctx))
	t1 := a.Token()
	assert.Equal(t, "ns:job42:lock", a.Key())

	done := make(chan error, 1)
	go func() {
		done <- b.Lock(ctx)
	}()

	// A 1 次 + B 立即 1 次 + 自旋 32 次 + 订阅后 1 次
	require.Eventually(t, func() bool {
		return mem.Calls("TrySetWithExpiry") == 35 && mem.Subscribers("ns:job42:lock:channel") == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateBlockedWaiting, b.State())

	released := time.Now()
	require.NoError(t, a.Unlock(ctx))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken by release")
	}
	assert.Less(t, time.Since(released), time.Second)

	t2 := b.Token()
	assert.NotEqual(t, t1, t2)
	val, ok := mem.Get("ns:job42:lock")
	require.True(t, ok)
	assert.Equal(t, t2, val)
	assert.False(t, a.Renewing())
	assert.True(t, b.Renewing())
	assert.Equal(t, int64(36), mem.Calls("TrySetWithExpiry"))
	assert.Equal(t, 0, mem.Subscribers("ns:job42:lock:channel"))

	acquired, woken, _, _ := rec.snapshot()
	assert.Equal(t, []Phase{PhaseImmediate, PhaseBlock}, acquired)
	assert.Equal(t, []WakeReason{WakeMessage}, woken)

	require.NoError(t, b.Unlock(ctx))
}

// TestBlockingLock_EndToEnd_Redis 测试 Redis 订阅连接上的唤醒消息送达等待者
func TestBlockingLock_EndToEnd_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	s, err := redisstore.New(client)
	require.NoError(t, err)
	defer s.Close()

	rec := newFakeRecorder()
	c, err := NewClient(s,
		WithNamespace("ns"),
		WithLeaseTTL(30*time.Second),
		WithRenewInterval(20*time.Second),
		WithHostname("test-host"),
		WithRecorder(rec))
	require.NoError(t, err)
	ctx := context.Background()

	a, err := c.NewLock("job42")
	require.NoError(t, err)
	b, err := c.NewLock("job42")
	require.NoError(t, err)
	require.NoError(t, a.Lock(ctx))

	done := make(chan error, 1)
	go func() {
		done <- b.Lock(ctx)
	}()

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub("ns:job42:lock:channel")["ns:job42:lock:channel"] == 1 &&
			b.State() == StateBlockedWaiting
	}, 2*time.Second, 5*time.Millisecond)

	released := time.Now()
	require.NoError(t, a.Unlock(ctx))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken by release over redis")
	}
	assert.Less(t, time.Since(released), time.Second)

	val, err := mr.Get("ns:job42:lock")
	require.NoError(t, err)
	assert.Equal(t, b.Token(), val)
	// 等待结束后退订
	assert.Eventually(t, func() bool {
		return mr.PubSubNumSub("ns:job42:lock:channel")["ns:job42:lock:channel"] == 0
	}, time.Second, 10*time.Millisecond)

	_, woken, _, _ := rec.snapshot()
	assert.Equal(t, []WakeReason{WakeMessage}, woken)
	require.NoError(t, b.Unlock(ctx))
}

// TestBlockingLock_SpinAcquire 测试自旋阶段获取成功
func TestBlockingLock_SpinAcquire(t *testing.T) {
	ms := &mockStore{}
	ms.On("TrySetWithExpiry", mock.Anything, "ns:job:lock", mock.Anything, DefaultLeaseTTL).Return(false, nil).Times(3)
	ms.On("TrySetWithExpiry", mock.Anything, "ns:job:lock", mock.Anything, DefaultLeaseTTL).Return(true, nil).Once()
	ms.On("CompareAndDelete", mock.Anything, "ns:job:lock", mock.Anything).Return(true, nil).Once()
	ms.On("Publish", mock.Anything, "ns:job:lock:channel", mock.Anything).Return(nil).Once()

	l, err := NewBlockingLock(ms, "job", WithNamespace("ns"), WithSpinTries(5))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, l.Lock(ctx))
	require.NoError(t, l.Unlock(ctx))

	ms.AssertExpectations(t)
	ms.AssertNotCalled(t, "Subscribe", mock.Anything, mock.Anything, mock.Anything)
}

// TestBlockingLock_StoreRetry 测试存储短暂不可用时重试成功
func TestBlockingLock_StoreRetry(t *testing.T) {
	ms := &mockStore{}
	ms.On("TrySetWithExpiry", mock.Anything, "ns:job:lock", mock.Anything, DefaultLeaseTTL).
		Return(false, ferr.Unavailable(errors.New("connection reset"))).Twice()
	ms.On("TrySetWithExpiry", mock.Anything, "ns:job:lock", mock.Anything, DefaultLeaseTTL).Return(true, nil).Once()

	l, err := NewBlockingLock(ms, "job", WithNamespace("ns"), WithStoreRetry(3, time.Millisecond, 2*time.Millisecond))
	require.NoError(t, err)
	ok, err := l.TryLock(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	ms.AssertExpectations(t)

	l.watchdog.Stop()
}

// TestBlockingLock_StoreUnavailable 测试重试耗尽后返回存储错误
func TestBlockingLock_StoreUnavailable(t *testing.T) {
	mem := memstore.New()
	c := newTestClient(t, mem)
	l, err := c.NewLock("job")
	require.NoError(t, err)

	mem.SetOffline(true)
	err = l.Lock(context.Background())
	assert.ErrorIs(t, err, ferr.ErrStoreUnavailable)
	assert.Equal(t, int64(3), mem.Calls("TrySetWithExpiry"))
	assert.Equal(t, StateUnacquired, l.State())

	mem.SetOffline(false)
	require.NoError(t, l.Lock(context.Background()))
	require.NoError(t, l.Unlock(context.Background()))
}

// TestBlockingLock_UnlockStoreFailure 测试释放时存储不可用，锁保持持有可重试
func TestBlockingLock_UnlockStoreFailure(t *testing.T) {
	mem := memstore.New()
	c := newTestClient(t, mem)
	ctx := context.Background()
	l, err := c.NewLock("job")
	require.NoError(t, err)
	require.NoError(t, l.Lock(ctx))

	mem.SetOffline(true)
	err = l.Unlock(ctx)
	assert.ErrorIs(t, err, ferr.ErrStoreUnavailable)
	assert.Equal(t, StateHeld, l.State())
	assert.False(t, l.Renewing())

	mem.SetOffline(false)
	require.NoError(t, l.Unlock(ctx))
	assert.Equal(t, StateReleased, l.State())
	_, ok := mem.Get("ns:job:lock")
	assert.False(t, ok)
}

// TestBlockingLock_LeaseExpiredElsewhere 测试租约已被他人占用时释放不会删除别人的锁
func TestBlockingLock_LeaseExpiredElsewhere(t *testing.T) {
	mem := memstore.New()
	rec := newFakeRecorder()
	c := newTestClient(t, mem, WithLeaseTTL(time.Second), WithRenewInterval(500*time.Millisecond), WithRecorder(rec))
	ctx := context.Background()

	a, err := c.NewLock("job")
	require.NoError(t, err)
	require.NoError(t, a.Lock(ctx))
	a.watchdog.Stop()

	mem.Advance(2 * time.Second)
	other, err := c.TryLock(ctx, "job")
	require.NoError(t, err)
	require.True(t, other.Locked())

	assert.ErrorIs(t, a.Unlock(ctx), ferr.ErrLeaseExpiredElsewhere)
	assert.Equal(t, StateReleased, a.State())
	val, ok := mem.Get("ns:job:lock")
	require.True(t, ok)
	assert.Equal(t, other.Token(), val)

	_, _, _, released := rec.snapshot()
	assert.Equal(t, []Result{ResultMismatch}, released)
}

// TestBlockingLock_SelfHealing 测试持有者停止续约后，等待者在一个租约周期内获取
func TestBlockingLock_SelfHealing(t *testing.T) {
	mem := memstore.New()
	c := newTestClient(t, mem, WithLeaseTTL(300*time.Millisecond), WithRenewInterval(100*time.Millisecond), WithSpinTries(0))
	ctx := context.Background()

	a, err := c.NewLock("job")
	require.NoError(t, err)
	require.NoError(t, a.Lock(ctx))
	// 模拟持有者崩溃，既不续约也不释放
	a.watchdog.Stop()

	b, err := c.NewLock("job")
	require.NoError(t, err)
	start := time.Now()
	require.NoError(t, b.Lock(ctx))
	assert.Less(t, time.Since(start), 2*time.Second)
	require.NoError(t, b.Unlock(ctx))
}

// TestBlockingLock_ContextCancel 测试阻塞阶段取消上下文
func TestBlockingLock_ContextCancel(t *testing.T) {
	mem := memstore.New()
	c := newTestClient(t, mem)
	a, err := c.NewLock("job")
	require.NoError(t, err)
	require.NoError(t, a.Lock(context.Background()))
	defer a.Unlock(context.Background())

	b, err := c.NewLock("job")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err = b.Lock(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateUnacquired, b.State())
	assert.Equal(t, 0, mem.Subscribers("ns:job:lock:channel"))
}

// TestBlockingLock_TryLock 测试单次尝试
func TestBlockingLock_TryLock(t *testing.T) {
	mem := memstore.New()
	c := newTestClient(t, mem)
	ctx := context.Background()

	a, err := c.NewLock("job")
	require.NoError(t, err)
	b, err := c.NewLock("job")
	require.NoError(t, err)

	ok, err := a.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, StateUnacquired, b.State())

	require.NoError(t, a.Unlock(ctx))
	ok, err = b.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.Unlock(ctx))
}

// TestBlockingLock_MutualExclusion 测试多个协程竞争同一把锁
func TestBlockingLock_MutualExclusion(t *testing.T) {
	mem := memstore.New()
	c := newTestClient(t, mem, WithLeaseTTL(5*time.Second), WithRenewInterval(time.Second))

	const workers, rounds = 8, 20
	var inside, violations, total atomic.Int32
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			l, err := c.NewLock("counter")
			if err != nil {
				return err
			}
			ctx := context.Background()
			for r := 0; r < rounds; r++ {
				if err := l.Lock(ctx); err != nil {
					return err
				}
				if inside.Add(1) != 1 {
					violations.Add(1)
				}
				total.Add(1)
				time.Sleep(100 * time.Microsecond)
				inside.Add(-1)
				if err := l.Unlock(ctx); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(0), violations.Load())
	assert.Equal(t, int32(workers*rounds), total.Load())
}

// TestBlockingLock_Tracing 测试获取与释放产生 span
func TestBlockingLock_Tracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer tp.Shutdown(context.Background())

	mem := memstore.New()
	c := newTestClient(t, mem, WithTracer(tp.Tracer("test")))
	ctx := context.Background()
	l, err := c.NewLock("job")
	require.NoError(t, err)
	require.NoError(t, l.Lock(ctx))
	require.NoError(t, l.Unlock(ctx))

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "distributelock.Lock", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("lock.phase", string(PhaseImmediate)))
	assert.Contains(t, spans[0].Attributes(), attribute.String("lock.key", "ns:job:lock"))
	assert.Equal(t, "distributelock.Unlock", spans[1].Name())
}
