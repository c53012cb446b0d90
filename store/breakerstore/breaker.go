package breakerstore

import (
	"context"
	"errors"
	"time"

	"github.com/fyerfyer/fyer-lock/internal/ferr"
	"github.com/fyerfyer/fyer-lock/store"
	"github.com/sony/gobreaker/v2"
)

// Settings 熔断配置，零值使用默认值
type Settings struct {
	Name string
	// 连续失败多少次后打开，默认 5
	ConsecutiveFailures uint32
	// 打开后多久进入半开，默认 5s
	OpenTimeout time.Duration
	// 半开状态允许通过的请求数，默认 1
	HalfOpenRequests uint32
	OnStateChange    func(name string, from, to gobreaker.State)
}

func (s *Settings) fill() {
	if s.Name == "" {
		s.Name = "store"
	}
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 5 * time.Second
	}
	if s.HalfOpenRequests == 0 {
		s.HalfOpenRequests = 1
	}
}

// Store 带熔断的 store.Store
// 只有 ferr.ErrStoreUnavailable 计为失败，锁竞争和 token 不匹配是正常结果
// 熔断打开时直接返回，错误同样匹配 ferr.ErrStoreUnavailable
type Store struct {
	next store.Store
	cb   *gobreaker.CircuitBreaker[any]
}

var _ store.Store = (*Store)(nil)

func New(next store.Store, st Settings) (*Store, error) {
	if next == nil {
		return nil, ferr.ErrNilStore
	}
	st.fill()
	threshold := st.ConsecutiveFailures
	settings := gobreaker.Settings{
		Name:        st.Name,
		MaxRequests: st.HalfOpenRequests,
		Timeout:     st.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return !errors.Is(err, ferr.ErrStoreUnavailable)
		},
		OnStateChange: st.OnStateChange,
	}
	return &Store{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[any](settings),
	}, nil
}

func (s *Store) State() gobreaker.State {
	return s.cb.State()
}

func execute[T any](s *Store, fn func() (T, error)) (T, error) {
	v, err := s.cb.Execute(func() (any, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, ferr.Unavailable(err)
	}
	if v == nil {
		var zero T
		return zero, err
	}
	return v.(T), err
}

func (s *Store) TrySetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return execute(s, func() (bool, error) {
		return s.next.TrySetWithExpiry(ctx, key, value, ttl)
	})
}

func (s *Store) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	return execute(s, func() (bool, error) {
		return s.next.CompareAndDelete(ctx, key, value)
	})
}

func (s *Store) CompareAndRefresh(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return execute(s, func() (bool, error) {
		return s.next.CompareAndRefresh(ctx, key, value, ttl)
	})
}

func (s *Store) RefreshExpiry(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return execute(s, func() (bool, error) {
		return s.next.RefreshExpiry(ctx, key, ttl)
	})
}

func (s *Store) ExpireAt(ctx context.Context, key string, at time.Time) (bool, error) {
	return execute(s, func() (bool, error) {
		return s.next.ExpireAt(ctx, key, at)
	})
}

func (s *Store) Persist(ctx context.Context, key string) (bool, error) {
	return execute(s, func() (bool, error) {
		return s.next.Persist(ctx, key)
	})
}

func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	return execute(s, func() (time.Duration, error) {
		return s.next.TTL(ctx, key)
	})
}

func (s *Store) Publish(ctx context.Context, channel, message string) error {
	_, err := execute(s, func() (struct{}, error) {
		return struct{}{}, s.next.Publish(ctx, channel, message)
	})
	return err
}

func (s *Store) Subscribe(ctx context.Context, channel string, handler store.MessageHandler) (store.Subscription, error) {
	return execute(s, func() (store.Subscription, error) {
		return s.next.Subscribe(ctx, channel, handler)
	})
}
